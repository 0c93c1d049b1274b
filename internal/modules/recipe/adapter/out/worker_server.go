package out

import (
	"context"
	"fmt"

	recipegrpc "gocpl/internal/modules/recipe/adapter/out/rpc"
	recipeout "gocpl/internal/modules/recipe/port/out"
)

// WorkerServer answers the worker protocol by delegating every call to a
// loader living in the worker process. Each call opens and closes its plugin.
type WorkerServer struct {
	loader recipeout.Loader
}

func NewWorkerServer(loader recipeout.Loader) *WorkerServer {
	return &WorkerServer{loader: loader}
}

func (s *WorkerServer) Describe(ctx context.Context, in *recipegrpc.DescribeRequest) (*recipegrpc.DescribeResponse, error) {
	lib, err := s.loader.Open(ctx, in.PluginPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", in.PluginPath, err)
	}
	defer lib.Close()

	recipes, err := lib.Recipes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recipes of %s: %w", in.PluginPath, err)
	}
	out := &recipegrpc.DescribeResponse{Recipes: make([]recipegrpc.Recipe, 0, len(recipes))}
	for _, d := range recipes {
		out.Recipes = append(out.Recipes, recipegrpc.FromDescriptor(d))
	}
	return out, nil
}

func (s *WorkerServer) Invoke(ctx context.Context, in *recipegrpc.InvokeRequest) (*recipegrpc.InvokeResponse, error) {
	req, err := in.Native()
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	lib, err := s.loader.Open(ctx, in.PluginPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", in.PluginPath, err)
	}
	defer lib.Close()

	out, err := lib.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	return recipegrpc.FromNativeOutput(out), nil
}
