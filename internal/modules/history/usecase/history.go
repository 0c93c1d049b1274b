package usecase

import (
	"context"

	"gocpl/internal/modules/history/domain"
	"gocpl/internal/modules/history/dto"
	historyin "gocpl/internal/modules/history/port/in"
	"gocpl/internal/modules/history/service"
)

type Interactor struct {
	svc *service.RunService
}

func NewInteractor(svc *service.RunService) historyin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) Record(ctx context.Context, input dto.RecordInput) (dto.RunOutput, error) {
	run := domain.Run{
		ID:         input.ID,
		Recipe:     input.Recipe,
		Plugin:     input.Plugin,
		Outcome:    domain.Outcome(input.Outcome),
		Status:     input.Status,
		Error:      input.Error,
		StartedAt:  input.StartedAt,
		FinishedAt: input.FinishedAt,
	}
	for _, o := range input.Outputs {
		run.Outputs = append(run.Outputs, domain.Output{Path: o.Path, Tag: o.Tag})
	}
	saved, err := i.svc.Record(ctx, run)
	if err != nil {
		return dto.RunOutput{}, err
	}
	return toOutput(saved), nil
}

func (i *Interactor) List(ctx context.Context, input dto.ListInput) ([]dto.RunOutput, error) {
	runs, err := i.svc.List(ctx, domain.Filter{Recipe: input.Recipe, Limit: input.Limit})
	if err != nil {
		return nil, err
	}
	out := make([]dto.RunOutput, 0, len(runs))
	for _, run := range runs {
		out = append(out, toOutput(run))
	}
	return out, nil
}

func (i *Interactor) Get(ctx context.Context, id string) (dto.RunOutput, error) {
	run, err := i.svc.Get(ctx, id)
	if err != nil {
		return dto.RunOutput{}, err
	}
	return toOutput(run), nil
}

func toOutput(run domain.Run) dto.RunOutput {
	out := dto.RunOutput{
		ID:         run.ID,
		Recipe:     run.Recipe,
		Plugin:     run.Plugin,
		Outcome:    string(run.Outcome),
		Status:     run.Status,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Duration:   run.Duration(),
	}
	for _, o := range run.Outputs {
		out.Outputs = append(out.Outputs, dto.OutputInfo{Path: o.Path, Tag: o.Tag})
	}
	return out
}
