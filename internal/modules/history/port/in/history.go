package in

import (
	"context"

	"gocpl/internal/modules/history/dto"
)

type Usecase interface {
	Record(ctx context.Context, input dto.RecordInput) (dto.RunOutput, error)
	List(ctx context.Context, input dto.ListInput) ([]dto.RunOutput, error)
	Get(ctx context.Context, id string) (dto.RunOutput, error)
}
