package service

import (
	"context"
	"fmt"
	"sync"

	"gocpl/internal/modules/recipe/domain"
)

// Handle is an opened recipe: a descriptor, a reference to its plugin image
// and a private parameter set. Handles opened on the same recipe share the
// image but never parameter state.
type Handle struct {
	registry   *Registry
	image      *image
	descriptor domain.RecipeDescriptor

	mu     sync.Mutex
	params domain.ParameterSet
	closed bool
	broken error
}

func (r *Registry) Open(ctx context.Context, name string) (*Handle, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return r.OpenDescriptor(ctx, d)
}

// OpenDescriptor opens d directly, even if a later scan dropped it from the
// table.
func (r *Registry) OpenDescriptor(ctx context.Context, d domain.RecipeDescriptor) (*Handle, error) {
	if d.Plugin == "" {
		return nil, fmt.Errorf("recipe %s: descriptor has no plugin path", d.Name)
	}
	img, err := r.acquire(ctx, d.Plugin)
	if err != nil {
		if perr, ok := err.(*domain.PluginError); ok {
			perr.Recipe = d.Name
		}
		return nil, err
	}
	return &Handle{
		registry:   r,
		image:      img,
		descriptor: d,
		params:     d.ParameterSet(),
	}, nil
}

func (h *Handle) Name() string { return h.descriptor.Name }

func (h *Handle) Descriptor() domain.RecipeDescriptor { return h.descriptor }

// Close releases the image reference. Closing twice is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.registry.release(h.image)
}

func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed || h.image.unloaded.Load()
}

func (h *Handle) Parameters() ([]domain.Parameter, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	return h.params.All(), nil
}

func (h *Handle) Set(name string, v domain.Value) error {
	return h.update(func(p *domain.ParameterSet) error { return p.Set(name, v) })
}

// SetString parses raw as the parameter's declared type. Unknown names fail
// immediately; values are checked when the recipe is invoked.
func (h *Handle) SetString(name, raw string) error {
	return h.update(func(p *domain.ParameterSet) error { return p.SetString(name, raw) })
}

func (h *Handle) Reset(name string) error {
	return h.update(func(p *domain.ParameterSet) error { return p.Reset(name) })
}

// Apply assigns settings from the command line or an RC file in order.
func (h *Handle) Apply(settings []domain.Setting) error {
	return h.update(func(p *domain.ParameterSet) error { return p.Apply(settings) })
}

func (h *Handle) update(fn func(*domain.ParameterSet) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkOpen(); err != nil {
		return err
	}
	if err := fn(&h.params); err != nil {
		if verr, ok := err.(*domain.ValidationError); ok {
			verr.Recipe = h.descriptor.Name
		}
		return err
	}
	return nil
}

// snapshot hands the bridge private copies of everything an invocation needs.
func (h *Handle) snapshot() (domain.RecipeDescriptor, domain.ParameterSet, *image, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkOpen(); err != nil {
		return domain.RecipeDescriptor{}, domain.ParameterSet{}, nil, err
	}
	if h.broken != nil {
		return domain.RecipeDescriptor{}, domain.ParameterSet{}, nil, &domain.PluginError{
			Recipe: h.descriptor.Name,
			Plugin: h.descriptor.Plugin,
			Cause:  fmt.Errorf("%w: %v", domain.ErrHandleUnusable, h.broken),
		}
	}
	return h.descriptor, h.params.Clone(), h.image, nil
}

func (h *Handle) markBroken(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.broken == nil {
		h.broken = err
	}
}

func (h *Handle) checkOpen() error {
	if h.closed || h.image.unloaded.Load() {
		return &domain.HandleClosedError{Recipe: h.descriptor.Name}
	}
	return nil
}
