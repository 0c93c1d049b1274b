package out

import (
	"context"

	"gocpl/internal/modules/history/domain"
)

type RunStore interface {
	Save(ctx context.Context, run domain.Run) error
	FindByID(ctx context.Context, id string) (domain.Run, error)
	// List returns the newest runs first.
	List(ctx context.Context, filter domain.Filter) ([]domain.Run, error)
}
