package out

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	historydto "gocpl/internal/modules/history/dto"
	"gocpl/internal/modules/recipe/domain"
)

type captureHistory struct {
	inputs []historydto.RecordInput
	err    error
}

func (c *captureHistory) Record(_ context.Context, input historydto.RecordInput) (historydto.RunOutput, error) {
	c.inputs = append(c.inputs, input)
	return historydto.RunOutput{ID: input.ID}, c.err
}

func (c *captureHistory) List(context.Context, historydto.ListInput) ([]historydto.RunOutput, error) {
	return nil, nil
}

func (c *captureHistory) Get(context.Context, string) (historydto.RunOutput, error) {
	return historydto.RunOutput{}, nil
}

func TestHistoryRecorderMapsOutcomes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "success", err: nil, want: "ok"},
		{name: "validation", err: &domain.ValidationError{Recipe: "flatcombine", Parameter: "flat.method", Reason: "bogus"}, want: "invalid"},
		{name: "execution", err: &domain.ExecutionError{Recipe: "flatcombine", Status: 1, Log: "[ ERROR ] no flats\n"}, want: "failed"},
		{name: "plugin", err: &domain.PluginError{Recipe: "flatcombine", Plugin: "/p.so", Cause: errors.New("signal: segmentation fault")}, want: "plugin_error"},
		{name: "wrapped plugin", err: fmt.Errorf("run: %w", &domain.PluginError{Cause: domain.ErrInvocationTimeout}), want: "plugin_error"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			history := &captureHistory{}
			result := &domain.InvocationResult{RunID: "run-1", Recipe: "flatcombine", StartedAt: time.Unix(0, 0)}
			if err := NewHistoryRecorder(history).Record(context.Background(), result, tc.err); err != nil {
				t.Fatalf("record: %v", err)
			}
			if got := history.inputs[0].Outcome; got != tc.want {
				t.Fatalf("expected outcome %s, got %s", tc.want, got)
			}
		})
	}
}

func TestHistoryRecorderCopiesResult(t *testing.T) {
	t.Parallel()

	product, _ := domain.NewFrame("/out/master_flat.fits", "MASTER_FLAT", domain.FrameGroupProduct)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result := &domain.InvocationResult{
		RunID:      "run-7",
		Recipe:     "flatcombine",
		Plugin:     "/plugins/flat.so",
		Status:     1,
		Outputs:    domain.NewFrameSet(product),
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}
	history := &captureHistory{}
	execErr := &domain.ExecutionError{Recipe: "flatcombine", Status: 1, Log: "[ ERROR ] bad pixel map\n"}
	if err := NewHistoryRecorder(history).Record(context.Background(), result, execErr); err != nil {
		t.Fatalf("record: %v", err)
	}
	got := history.inputs[0]
	if got.ID != "run-7" || got.Plugin != "/plugins/flat.so" || got.Status != 1 {
		t.Fatalf("unexpected input %+v", got)
	}
	if got.Error != "recipe flatcombine failed with status 1" {
		t.Fatalf("expected log stripped from error, got %q", got.Error)
	}
	if len(got.Outputs) != 1 || got.Outputs[0].Tag != "MASTER_FLAT" {
		t.Fatalf("outputs not copied: %+v", got.Outputs)
	}
}

func TestHistoryRecorderSurfacesFailure(t *testing.T) {
	t.Parallel()

	history := &captureHistory{err: errors.New("database is locked")}
	err := NewHistoryRecorder(history).Record(context.Background(), &domain.InvocationResult{Recipe: "x"}, nil)
	if !errors.Is(err, history.err) {
		t.Fatalf("expected history error, got %v", err)
	}
}
