package in

import (
	"context"

	"gocpl/internal/modules/recipe/dto"
	recipein "gocpl/internal/modules/recipe/port/in"
)

type CLIHandler struct {
	usecase recipein.Usecase
}

func NewCLIHandler(usecase recipein.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Discover(ctx context.Context) (dto.DiscoverOutput, error) {
	return h.usecase.Discover(ctx)
}

func (h CLIHandler) ListRecipes(ctx context.Context) ([]dto.RecipeInfo, error) {
	return h.usecase.ListRecipes(ctx)
}

func (h CLIHandler) Describe(ctx context.Context, name string) (dto.RecipeDetail, error) {
	return h.usecase.Describe(ctx, name)
}

func (h CLIHandler) ListPlugins(ctx context.Context) ([]dto.PluginInfo, error) {
	return h.usecase.ListPlugins(ctx)
}

func (h CLIHandler) Run(ctx context.Context, input dto.RunInput) (dto.RunOutput, error) {
	return h.usecase.Run(ctx, input)
}
