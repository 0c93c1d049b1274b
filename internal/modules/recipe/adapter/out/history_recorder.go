package out

import (
	"context"
	"errors"
	"strings"

	historydto "gocpl/internal/modules/history/dto"
	historyin "gocpl/internal/modules/history/port/in"
	"gocpl/internal/modules/recipe/domain"
)

// HistoryRecorder hands finished invocations to the history module.
type HistoryRecorder struct {
	history historyin.Usecase
}

func NewHistoryRecorder(history historyin.Usecase) HistoryRecorder {
	return HistoryRecorder{history: history}
}

func (r HistoryRecorder) Record(ctx context.Context, result *domain.InvocationResult, err error) error {
	input := historydto.RecordInput{
		ID:         result.RunID,
		Recipe:     result.Recipe,
		Plugin:     result.Plugin,
		Outcome:    outcome(err),
		Status:     result.Status,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if err != nil {
		input.Error = firstLine(err.Error())
	}
	for _, f := range result.Outputs.Frames() {
		input.Outputs = append(input.Outputs, historydto.OutputInfo{Path: f.Path(), Tag: f.Tag()})
	}
	_, recErr := r.history.Record(ctx, input)
	return recErr
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrExecution):
		return "failed"
	default:
		return "plugin_error"
	}
}

// firstLine drops the native log that execution and plugin errors append.
func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
