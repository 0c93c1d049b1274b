package domain_test

import (
	"errors"
	"reflect"
	"testing"

	"gocpl/internal/modules/recipe/domain"
)

func flatcombine() domain.RecipeDescriptor {
	return domain.RecipeDescriptor{
		Name:       "flatcombine",
		Version:    "1.0.0",
		Parameters: []domain.Parameter{methodParam()},
		Inputs:     []domain.FrameConfig{{Tag: "FLAT", Min: 1}, {Tag: "MASTER_BIAS", Max: 1}},
		Outputs:    []string{"MASTER_FLAT"},
	}
}

func TestRecipeDescriptorValidate(t *testing.T) {
	t.Parallel()
	if err := flatcombine().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	dup := flatcombine()
	dup.Parameters = append(dup.Parameters, methodParam())
	if err := dup.Validate(); err == nil {
		t.Fatalf("expected duplicate parameter error")
	}
	bad := flatcombine()
	bad.Inputs = []domain.FrameConfig{{Tag: "FLAT", Min: 3, Max: 2}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected range error")
	}
	if err := (domain.RecipeDescriptor{}).Validate(); err == nil {
		t.Fatalf("expected missing name error")
	}
}

func TestValidateFrames(t *testing.T) {
	t.Parallel()
	d := flatcombine()
	cases := []struct {
		name      string
		frames    domain.FrameSet
		wantFrame string
	}{
		{name: "three flats", frames: domain.NewFrameSet(mustFrame(t, "1", "FLAT"), mustFrame(t, "2", "FLAT"), mustFrame(t, "3", "FLAT"))},
		{name: "flat and bias", frames: domain.NewFrameSet(mustFrame(t, "1", "FLAT"), mustFrame(t, "b", "MASTER_BIAS"))},
		{name: "missing flats", frames: domain.NewFrameSet(mustFrame(t, "b", "MASTER_BIAS")), wantFrame: "FLAT"},
		{name: "two biases", frames: domain.NewFrameSet(mustFrame(t, "1", "FLAT"), mustFrame(t, "b1", "MASTER_BIAS"), mustFrame(t, "b2", "MASTER_BIAS")), wantFrame: "MASTER_BIAS"},
		{name: "unknown tag", frames: domain.NewFrameSet(mustFrame(t, "1", "FLAT"), mustFrame(t, "d", "DARK")), wantFrame: "d"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := d.ValidateFrames(tc.frames)
			if tc.wantFrame == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) || verr.Frame != tc.wantFrame || verr.Recipe != "flatcombine" {
				t.Fatalf("expected validation error on %s, got %v", tc.wantFrame, err)
			}
		})
	}
}

func TestValidateFramesWithoutDeclaredInputs(t *testing.T) {
	t.Parallel()
	d := domain.RecipeDescriptor{Name: "any"}
	if err := d.ValidateFrames(domain.NewFrameSet(mustFrame(t, "x", "WHATEVER"))); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestMergeFrameConfigs(t *testing.T) {
	t.Parallel()
	science := []domain.FrameConfig{{Tag: "SCIENCE", Min: 1}, {Tag: "MASTER_FLAT", Min: 1, Max: 1}, {Tag: "MASTER_BIAS", Min: 1, Max: 1}}
	standard := []domain.FrameConfig{{Tag: "STD", Min: 1, Max: 1}, {Tag: "MASTER_FLAT", Min: 1, Max: 2}, {Tag: "MASTER_BIAS", Min: 1, Max: 1}}
	got := domain.MergeFrameConfigs(science, standard)
	want := []domain.FrameConfig{
		{Tag: "SCIENCE", Min: 0, Max: 0},
		{Tag: "MASTER_FLAT", Min: 1, Max: 2},
		{Tag: "MASTER_BIAS", Min: 1, Max: 1},
		{Tag: "STD", Min: 0, Max: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected merge:\n got %+v\nwant %+v", got, want)
	}
}

func TestDescriptorParameterSetStartsAtDefaults(t *testing.T) {
	t.Parallel()
	d := flatcombine()
	d.Parameters[0].SetString("mean")
	set := d.ParameterSet()
	p, ok := set.Lookup("method")
	if !ok || p.IsSet() || p.Value().String() != "median" {
		t.Fatalf("expected default median, got %+v", p)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()
	exec := &domain.ExecutionError{Recipe: "flatcombine", Status: 2, Message: "Illegal input", Location: "flat_combine():42", Log: "[ ERROR ] no data\n"}
	if !errors.Is(exec, domain.ErrExecution) {
		t.Fatalf("expected ErrExecution")
	}
	want := "recipe flatcombine failed with status 2: Illegal input in flat_combine():42\n[ ERROR ] no data"
	if exec.Error() != want {
		t.Fatalf("unexpected message: %q", exec.Error())
	}
	cause := errors.New("worker exited")
	perr := &domain.PluginError{Recipe: "flatcombine", Plugin: "/p/flat.so", Cause: cause}
	if !errors.Is(perr, domain.ErrPlugin) || !errors.Is(perr, cause) {
		t.Fatalf("plugin error must match sentinel and cause")
	}
	closed := &domain.HandleClosedError{Recipe: "flatcombine"}
	if !errors.Is(closed, domain.ErrHandleClosed) {
		t.Fatalf("expected ErrHandleClosed")
	}
	warn := domain.DiscoveryWarning{Plugin: "/p/b.so", Recipe: "flatcombine", Message: "shadowed by /p/a.so"}
	if warn.String() != "/p/b.so: recipe flatcombine: shadowed by /p/a.so" {
		t.Fatalf("unexpected warning text: %s", warn)
	}
}
