package service

import (
	"context"
	"fmt"
	"strings"

	"gocpl/internal/modules/history/domain"
	historyout "gocpl/internal/modules/history/port/out"
	"gocpl/internal/platform/clock"
	"gocpl/internal/platform/id"
)

const defaultListLimit = 20

type RunService struct {
	clock clock.Clock
	idGen id.Generator
	store historyout.RunStore
}

func NewRunService(clock clock.Clock, idGen id.Generator, store historyout.RunStore) *RunService {
	return &RunService{clock: clock, idGen: idGen, store: store}
}

// Record stores run, assigning an id and timestamps the caller left empty.
func (s *RunService) Record(ctx context.Context, run domain.Run) (domain.Run, error) {
	if strings.TrimSpace(run.ID) == "" {
		run.ID = s.idGen.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.clock.Now()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}
	if err := run.Validate(); err != nil {
		return domain.Run{}, err
	}
	if err := s.store.Save(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return run, nil
}

func (s *RunService) List(ctx context.Context, filter domain.Filter) ([]domain.Run, error) {
	if filter.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}
	if filter.Limit == 0 {
		filter.Limit = defaultListLimit
	}
	return s.store.List(ctx, filter)
}

func (s *RunService) Get(ctx context.Context, id string) (domain.Run, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}
	return s.store.FindByID(ctx, id)
}
