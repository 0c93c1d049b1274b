package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"gocpl/internal/modules/recipe/domain"
	recipeout "gocpl/internal/modules/recipe/port/out"
	"gocpl/internal/platform/clock"
	"gocpl/internal/platform/id"
)

const (
	OutcomeOK          = "ok"
	OutcomeInvalid     = "invalid"
	OutcomeFailed      = "failed"
	OutcomePluginError = "plugin_error"
)

// InvokeOptions are per-invocation settings. Zero fields fall back to the
// bridge defaults.
type InvokeOptions struct {
	Timeout   time.Duration
	OutputDir string
	TempDir   string
	Env       map[string]string
	LogLevel  string
}

func (o InvokeOptions) merge(defaults InvokeOptions) InvokeOptions {
	if o.Timeout == 0 {
		o.Timeout = defaults.Timeout
	}
	if o.OutputDir == "" {
		o.OutputDir = defaults.OutputDir
	}
	if o.TempDir == "" {
		o.TempDir = defaults.TempDir
	}
	if o.LogLevel == "" {
		o.LogLevel = defaults.LogLevel
	}
	if len(defaults.Env) > 0 {
		env := make(map[string]string, len(defaults.Env)+len(o.Env))
		for k, v := range defaults.Env {
			env[k] = v
		}
		for k, v := range o.Env {
			env[k] = v
		}
		o.Env = env
	}
	return o
}

type BridgeDeps struct {
	Collector *Collector
	Recorder  recipeout.RunRecorder
	Observer  recipeout.Observer
	Clock     clock.Clock
	IDs       id.Generator
	Logger    hclog.Logger
	Defaults  InvokeOptions
}

// Bridge validates and marshals one invocation across the native boundary.
type Bridge struct {
	collector *Collector
	recorder  recipeout.RunRecorder
	observer  recipeout.Observer
	clock     clock.Clock
	ids       id.Generator
	logger    hclog.Logger
	defaults  InvokeOptions
}

func NewBridge(deps BridgeDeps) *Bridge {
	b := &Bridge{
		collector: deps.Collector,
		recorder:  deps.Recorder,
		observer:  deps.Observer,
		clock:     deps.Clock,
		ids:       deps.IDs,
		logger:    deps.Logger,
		defaults:  deps.Defaults,
	}
	if b.logger == nil {
		b.logger = hclog.NewNullLogger()
	}
	if b.collector == nil {
		b.collector = NewCollector(nil, b.logger)
	}
	if b.clock == nil {
		b.clock = clock.SystemClock{}
	}
	if b.ids == nil {
		b.ids = id.UUID{}
	}
	return b
}

// Invoke runs the handle's recipe on frames with the handle's current
// parameters. Nothing reaches native code unless every parameter and frame
// passes validation. On ExecutionError the result is returned as well.
func (b *Bridge) Invoke(ctx context.Context, h *Handle, frames domain.FrameSet, opts InvokeOptions) (*domain.InvocationResult, error) {
	descriptor, params, img, err := h.snapshot()
	if err != nil {
		return nil, err
	}
	opts = opts.merge(b.defaults)
	frames = frames.Clone()

	req, err := b.prepare(descriptor, params, frames, opts)
	if err != nil {
		b.finish(ctx, descriptor, nil, err, OutcomeInvalid, 0)
		return nil, err
	}

	if h.registry.serialize() {
		img.invokeMu.Lock()
		defer img.invokeMu.Unlock()
	}
	callCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	runID := b.ids.New()
	started := b.clock.Now()
	b.logger.Info("invoking recipe", "recipe", descriptor.Name, "run", runID, "frames", len(req.Frames))
	raw, callErr := img.lib.Invoke(callCtx, req)
	finished := b.clock.Now()
	elapsed := finished.Sub(started)

	if callErr != nil {
		perr := b.pluginError(callCtx, descriptor, callErr, opts.Timeout)
		h.markBroken(perr)
		failed := &domain.InvocationResult{RunID: runID, Recipe: descriptor.Name, Plugin: descriptor.Plugin, Status: -1, Log: perr.Log, StartedAt: started, FinishedAt: finished}
		b.finish(ctx, descriptor, failed, perr, OutcomePluginError, elapsed)
		return nil, perr
	}

	result, execErr := b.collector.Collect(ctx, descriptor.Name, raw, req.OutputDir)
	result.RunID = runID
	result.Plugin = descriptor.Plugin
	result.StartedAt = started
	result.FinishedAt = finished
	if execErr != nil {
		b.finish(ctx, descriptor, result, execErr, OutcomeFailed, elapsed)
		return result, execErr
	}
	b.finish(ctx, descriptor, result, nil, OutcomeOK, elapsed)
	return result, nil
}

func (b *Bridge) prepare(d domain.RecipeDescriptor, params domain.ParameterSet, frames domain.FrameSet, opts InvokeOptions) (domain.NativeRequest, error) {
	if err := params.Validate(d.Name); err != nil {
		return domain.NativeRequest{}, err
	}
	if err := d.ValidateFrames(frames); err != nil {
		return domain.NativeRequest{}, err
	}
	req := domain.NativeRequest{
		Recipe:   d.Name,
		Env:      opts.Env,
		LogLevel: opts.LogLevel,
	}
	for _, p := range params.All() {
		v, err := p.Resolved()
		if err != nil {
			return domain.NativeRequest{}, err
		}
		req.Parameters = append(req.Parameters, domain.NativeParam{Name: p.Name, Value: v})
	}
	for _, f := range frames.Frames() {
		resolved, err := resolveFrame(d.Name, f)
		if err != nil {
			return domain.NativeRequest{}, err
		}
		req.Frames = append(req.Frames, resolved)
	}
	outputDir, err := ensureDir(d.Name, "output", opts.OutputDir)
	if err != nil {
		return domain.NativeRequest{}, err
	}
	req.OutputDir = outputDir
	if opts.TempDir != "" {
		tempDir, err := ensureDir(d.Name, "temp", opts.TempDir)
		if err != nil {
			return domain.NativeRequest{}, err
		}
		req.TempDir = tempDir
	}
	return req, nil
}

// resolveFrame makes the path absolute, since the recipe runs in the output
// directory, and checks that a regular file is there.
func resolveFrame(recipe string, f domain.Frame) (domain.Frame, error) {
	if f.IsZero() {
		return domain.Frame{}, &domain.ValidationError{Recipe: recipe, Frame: "(empty)", Reason: "frame has no path"}
	}
	if err := f.Group().Validate(); err != nil {
		return domain.Frame{}, &domain.ValidationError{Recipe: recipe, Frame: f.Path(), Reason: err.Error()}
	}
	abs, err := filepath.Abs(f.Path())
	if err != nil {
		return domain.Frame{}, &domain.ValidationError{Recipe: recipe, Frame: f.Path(), Reason: err.Error()}
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return domain.Frame{}, &domain.ValidationError{Recipe: recipe, Frame: f.Path(), Reason: "file does not exist"}
	case err != nil:
		return domain.Frame{}, &domain.ValidationError{Recipe: recipe, Frame: f.Path(), Reason: err.Error()}
	case info.IsDir():
		return domain.Frame{}, &domain.ValidationError{Recipe: recipe, Frame: f.Path(), Reason: "is a directory"}
	}
	return f.WithPath(abs), nil
}

func ensureDir(recipe, kind, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("recipe %s: %s directory: %w", recipe, kind, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("recipe %s: create %s directory: %w", recipe, kind, err)
	}
	return abs, nil
}

func (b *Bridge) pluginError(callCtx context.Context, d domain.RecipeDescriptor, err error, timeout time.Duration) *domain.PluginError {
	perr := &domain.PluginError{}
	if !errors.As(err, &perr) {
		perr = &domain.PluginError{Cause: err}
	}
	perr.Recipe = d.Name
	if perr.Plugin == "" {
		perr.Plugin = d.Plugin
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(perr, domain.ErrInvocationTimeout) {
		perr.Cause = fmt.Errorf("%w after %s: %w", domain.ErrInvocationTimeout, timeout, perr.Cause)
	}
	return perr
}

func (b *Bridge) finish(ctx context.Context, d domain.RecipeDescriptor, result *domain.InvocationResult, err error, outcome string, elapsed time.Duration) {
	switch outcome {
	case OutcomeOK:
		b.logger.Info("recipe finished", "recipe", d.Name, "run", result.RunID, "products", result.Outputs.Len(), "elapsed", elapsed)
	case OutcomeInvalid:
		b.logger.Debug("recipe input rejected", "recipe", d.Name, "error", err)
	default:
		b.logger.Error("recipe failed", "recipe", d.Name, "outcome", outcome, "error", err)
	}
	if b.observer != nil {
		b.observer.ObserveInvocation(d.Name, outcome, elapsed)
	}
	if b.recorder == nil {
		return
	}
	if result == nil {
		now := b.clock.Now()
		result = &domain.InvocationResult{RunID: b.ids.New(), Recipe: d.Name, Plugin: d.Plugin, StartedAt: now, FinishedAt: now}
	}
	if recErr := b.recorder.Record(context.WithoutCancel(ctx), result, err); recErr != nil {
		b.logger.Warn("record run", "recipe", d.Name, "error", recErr)
	}
}
