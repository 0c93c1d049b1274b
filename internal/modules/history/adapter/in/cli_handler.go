package in

import (
	"context"

	"gocpl/internal/modules/history/dto"
	historyin "gocpl/internal/modules/history/port/in"
)

type CLIHandler struct {
	usecase historyin.Usecase
}

func NewCLIHandler(usecase historyin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) List(ctx context.Context, recipe string, limit int) ([]dto.RunOutput, error) {
	return h.usecase.List(ctx, dto.ListInput{Recipe: recipe, Limit: limit})
}

func (h CLIHandler) Get(ctx context.Context, id string) (dto.RunOutput, error) {
	return h.usecase.Get(ctx, id)
}
