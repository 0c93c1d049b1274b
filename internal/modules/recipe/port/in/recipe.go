package in

import (
	"context"

	"gocpl/internal/modules/recipe/dto"
)

type Usecase interface {
	Discover(ctx context.Context) (dto.DiscoverOutput, error)
	ListRecipes(ctx context.Context) ([]dto.RecipeInfo, error)
	Describe(ctx context.Context, name string) (dto.RecipeDetail, error)
	ListPlugins(ctx context.Context) ([]dto.PluginInfo, error)
	Run(ctx context.Context, input dto.RunInput) (dto.RunOutput, error)
}
