package usecase

import (
	"context"

	"gocpl/internal/modules/recipe/dto"
	recipein "gocpl/internal/modules/recipe/port/in"
	"gocpl/internal/modules/recipe/service"
)

type Interactor struct {
	svc *service.RecipeService
}

func NewInteractor(svc *service.RecipeService) recipein.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Discover(ctx context.Context) (dto.DiscoverOutput, error) {
	return i.svc.Discover(ctx)
}

func (i *Interactor) ListRecipes(ctx context.Context) ([]dto.RecipeInfo, error) {
	return i.svc.ListRecipes(ctx)
}

func (i *Interactor) Describe(ctx context.Context, name string) (dto.RecipeDetail, error) {
	return i.svc.Describe(ctx, name)
}

func (i *Interactor) ListPlugins(ctx context.Context) ([]dto.PluginInfo, error) {
	return i.svc.ListPlugins(ctx)
}

func (i *Interactor) Run(ctx context.Context, input dto.RunInput) (dto.RunOutput, error) {
	return i.svc.Run(ctx, input)
}
