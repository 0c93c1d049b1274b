package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	PluginMapKey   = "recipe-worker"
	serviceName    = "gocpl.worker.v1.RecipeWorker"
	jsonCodecName  = "json"
	methodDescribe = "/" + serviceName + "/Describe"
	methodInvoke   = "/" + serviceName + "/Invoke"
)

var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "GOCPL_WORKER_COOKIE",
	MagicCookieValue: "cpl-recipe-worker",
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Value is a typed scalar; Kind selects the populated field.
type Value struct {
	Kind  string  `json:"kind"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Bool  bool    `json:"bool,omitempty"`
	Text  string  `json:"text,omitempty"`
}

type ParameterDecl struct {
	Name        string  `json:"name"`
	Alias       string  `json:"alias,omitempty"`
	Context     string  `json:"context,omitempty"`
	Description string  `json:"description,omitempty"`
	Type        string  `json:"type"`
	EnumKind    string  `json:"enum_kind,omitempty"`
	Default     Value   `json:"default"`
	Min         *Value  `json:"min,omitempty"`
	Max         *Value  `json:"max,omitempty"`
	Choices     []Value `json:"choices,omitempty"`
}

type FrameConfig struct {
	Tag string `json:"tag"`
	Min int    `json:"min"`
	Max int    `json:"max"`
}

type Recipe struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Synopsis    string          `json:"synopsis,omitempty"`
	Description string          `json:"description,omitempty"`
	Author      string          `json:"author,omitempty"`
	Email       string          `json:"email,omitempty"`
	Copyright   string          `json:"copyright,omitempty"`
	Parameters  []ParameterDecl `json:"parameters,omitempty"`
	Inputs      []FrameConfig   `json:"inputs,omitempty"`
	Outputs     []string        `json:"outputs,omitempty"`
}

type DescribeRequest struct {
	PluginPath string `json:"plugin_path"`
}

type DescribeResponse struct {
	Recipes []Recipe `json:"recipes"`
}

type Param struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

type Frame struct {
	Path  string `json:"path"`
	Tag   string `json:"tag"`
	Group string `json:"group,omitempty"`
}

type Keyword struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`
}

type InvokeRequest struct {
	PluginPath string            `json:"plugin_path"`
	Recipe     string            `json:"recipe"`
	Parameters []Param           `json:"parameters"`
	Frames     []Frame           `json:"frames"`
	OutputDir  string            `json:"output_dir"`
	TempDir    string            `json:"temp_dir,omitempty"`
	LogLevel   string            `json:"log_level,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

type InvokeResponse struct {
	Status        int32     `json:"status"`
	Frames        []Frame   `json:"frames"`
	Keywords      []Keyword `json:"keywords,omitempty"`
	Log           string    `json:"log,omitempty"`
	ErrorCode     int32     `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ErrorLocation string    `json:"error_location,omitempty"`
}

// RecipeWorkerServer runs inside the worker process, one plugin per call.
type RecipeWorkerServer interface {
	Describe(ctx context.Context, in *DescribeRequest) (*DescribeResponse, error)
	Invoke(ctx context.Context, in *InvokeRequest) (*InvokeResponse, error)
}

type RecipeWorkerClient interface {
	Describe(ctx context.Context, in *DescribeRequest) (*DescribeResponse, error)
	Invoke(ctx context.Context, in *InvokeRequest) (*InvokeResponse, error)
}

type recipeWorkerClient struct {
	conn *grpc.ClientConn
}

func NewRecipeWorkerClient(conn *grpc.ClientConn) RecipeWorkerClient {
	return &recipeWorkerClient{conn: conn}
}

func (c *recipeWorkerClient) Describe(ctx context.Context, in *DescribeRequest) (*DescribeResponse, error) {
	out := &DescribeResponse{}
	if err := c.conn.Invoke(ctx, methodDescribe, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *recipeWorkerClient) Invoke(ctx context.Context, in *InvokeRequest) (*InvokeResponse, error) {
	out := &InvokeResponse{}
	if err := c.conn.Invoke(ctx, methodInvoke, in, out, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func unary[Req any](method string, call func(context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				typed, ok := req.(*Req)
				if !ok {
					return nil, fmt.Errorf("invalid request type %T", req)
				}
				return call(ctx, typed)
			})
		},
	}
}

func RegisterRecipeWorkerServer(server grpc.ServiceRegistrar, impl RecipeWorkerServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*RecipeWorkerServer)(nil),
		Methods: []grpc.MethodDesc{
			unary("Describe", func(ctx context.Context, in *DescribeRequest) (any, error) { return impl.Describe(ctx, in) }),
			unary("Invoke", func(ctx context.Context, in *InvokeRequest) (any, error) { return impl.Invoke(ctx, in) }),
		},
		Streams: []grpc.StreamDesc{},
	}, impl)
}

type GRPCPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	Impl RecipeWorkerServer
}

func (p *GRPCPlugin) GRPCServer(_ *plugin.GRPCBroker, server *grpc.Server) error {
	RegisterRecipeWorkerServer(server, p.Impl)
	return nil
}

func (p *GRPCPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, conn *grpc.ClientConn) (any, error) {
	return NewRecipeWorkerClient(conn), nil
}

func PluginMap(impl RecipeWorkerServer) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		PluginMapKey: &GRPCPlugin{Impl: impl},
	}
}

// Serve blocks serving impl to the host; worker binaries call it from main.
func Serve(impl RecipeWorkerServer) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap(impl),
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}
