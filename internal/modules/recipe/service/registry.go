package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"gocpl/internal/modules/recipe/domain"
	recipeout "gocpl/internal/modules/recipe/port/out"
)

// Registry maps recipe names to descriptors and owns the loaded plugin
// images. Scans are serialized; lookups run concurrently with each other and
// with a scan in progress, and only ever see a complete table.
type Registry struct {
	loader      recipeout.Loader
	observer    recipeout.Observer
	logger      hclog.Logger
	concurrency int

	scanMu  sync.Mutex
	mu      sync.RWMutex
	catalog domain.Catalog
	scanned bool

	imagesMu sync.Mutex
	images   map[string]*image
}

type RegistryOption func(*Registry)

func WithLogger(logger hclog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithObserver(observer recipeout.Observer) RegistryOption {
	return func(r *Registry) { r.observer = observer }
}

// WithConcurrency bounds how many plugin files an isolated loader examines at
// once. Non-isolated loaders always scan one file at a time.
func WithConcurrency(n int) RegistryOption {
	return func(r *Registry) { r.concurrency = n }
}

func NewRegistry(loader recipeout.Loader, opts ...RegistryOption) *Registry {
	r := &Registry{
		loader:      loader,
		logger:      hclog.NewNullLogger(),
		concurrency: 1,
		catalog:     domain.Catalog{Recipes: map[string]domain.RecipeDescriptor{}},
		images:      map[string]*image{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type pluginScan struct {
	path     string
	recipes  []domain.RecipeDescriptor
	warnings []domain.DiscoveryWarning
	err      error
}

// Discover scans searchPaths in order and replaces the recipe table. Broken
// plugins and shadowed recipes become warnings; only cancellation fails the
// scan, and then the previous table stays in place.
func (r *Registry) Discover(ctx context.Context, searchPaths []string) (domain.Catalog, error) {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	started := time.Now()

	files, warnings := r.pluginFiles(searchPaths)
	scans := make([]pluginScan, len(files))
	limit := 1
	if r.loader.Isolated() && r.concurrency > 1 {
		limit = r.concurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scans[i] = r.examine(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Catalog{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Catalog{}, err
	}

	catalog := domain.Catalog{Recipes: map[string]domain.RecipeDescriptor{}}
	for _, scan := range scans {
		status := domain.PluginStatus{Path: scan.path}
		warnings = append(warnings, scan.warnings...)
		if scan.err != nil {
			status.Error = scan.err.Error()
			warnings = append(warnings, domain.DiscoveryWarning{Plugin: scan.path, Message: scan.err.Error()})
			catalog.Plugins = append(catalog.Plugins, status)
			continue
		}
		for _, d := range scan.recipes {
			if first, ok := catalog.Recipes[d.Name]; ok {
				warnings = append(warnings, domain.DiscoveryWarning{
					Plugin:  scan.path,
					Recipe:  d.Name,
					Message: "shadowed by " + first.Plugin,
				})
				continue
			}
			catalog.Recipes[d.Name] = d
			status.Recipes = append(status.Recipes, d.Name)
		}
		catalog.Plugins = append(catalog.Plugins, status)
	}
	catalog.Warnings = warnings
	for _, w := range warnings {
		r.logger.Warn("discovery warning", "plugin", w.Plugin, "recipe", w.Recipe, "reason", w.Message)
	}

	r.mu.Lock()
	r.catalog = catalog
	r.scanned = true
	r.mu.Unlock()

	elapsed := time.Since(started)
	r.logger.Info("discovery finished", "plugins", len(files), "recipes", len(catalog.Recipes), "warnings", len(warnings), "elapsed", elapsed)
	if r.observer != nil {
		r.observer.ObserveDiscovery(len(files), len(catalog.Recipes), len(warnings), elapsed)
	}
	return catalog, nil
}

func (r *Registry) pluginFiles(searchPaths []string) ([]string, []domain.DiscoveryWarning) {
	var files []string
	var warnings []domain.DiscoveryWarning
	seen := map[string]struct{}{}
	add := func(path string) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	for _, root := range searchPaths {
		info, err := os.Stat(root)
		if err != nil {
			warnings = append(warnings, domain.DiscoveryWarning{Plugin: root, Message: fmt.Sprintf("search path unavailable: %v", err)})
			continue
		}
		if !info.IsDir() {
			if isPluginFile(root) {
				add(root)
			}
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				warnings = append(warnings, domain.DiscoveryWarning{Plugin: path, Message: err.Error()})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !isPluginFile(d.Name()) {
				return nil
			}
			add(path)
			return nil
		})
	}
	return files, warnings
}

func isPluginFile(name string) bool {
	if strings.HasSuffix(name, ".so") {
		return true
	}
	return runtime.GOOS == "darwin" && strings.HasSuffix(name, ".dylib")
}

func (r *Registry) examine(ctx context.Context, path string) pluginScan {
	scan := pluginScan{path: path}
	lib, err := r.loader.Open(ctx, path)
	if err != nil {
		scan.err = err
		return scan
	}
	defer func() {
		if err := lib.Close(); err != nil {
			r.logger.Debug("close plugin after scan", "plugin", path, "error", err)
		}
	}()
	descriptors, err := lib.Recipes(ctx)
	if err != nil {
		scan.err = err
		return scan
	}
	for _, d := range descriptors {
		d.Plugin = path
		if err := d.Validate(); err != nil {
			scan.warnings = append(scan.warnings, domain.DiscoveryWarning{Plugin: path, Recipe: d.Name, Message: err.Error()})
			continue
		}
		scan.recipes = append(scan.recipes, d)
	}
	return scan
}

func (r *Registry) Scanned() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scanned
}

func (r *Registry) Lookup(name string) (domain.RecipeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.catalog.Recipes[name]
	if !ok {
		return domain.RecipeDescriptor{}, fmt.Errorf("%w: %s", domain.ErrRecipeNotFound, name)
	}
	return d, nil
}

// Recipes returns the current table sorted by name.
func (r *Registry) Recipes() []domain.RecipeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RecipeDescriptor, 0, len(r.catalog.Recipes))
	for _, name := range r.catalog.Names() {
		out = append(out, r.catalog.Recipes[name])
	}
	return out
}

func (r *Registry) Warnings() []domain.DiscoveryWarning {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.DiscoveryWarning(nil), r.catalog.Warnings...)
}

func (r *Registry) Plugins() []domain.PluginStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]domain.PluginStatus(nil), r.catalog.Plugins...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Unload closes every cached image and clears the table. Handles still open
// afterwards report HandleClosedError.
func (r *Registry) Unload() error {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	r.mu.Lock()
	r.catalog = domain.Catalog{Recipes: map[string]domain.RecipeDescriptor{}}
	r.scanned = false
	r.mu.Unlock()

	r.imagesMu.Lock()
	defer r.imagesMu.Unlock()
	var errs []error
	for path, img := range r.images {
		img.unloaded.Store(true)
		if err := img.lib.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
		delete(r.images, path)
	}
	return errors.Join(errs...)
}

// image is one loaded plugin shared by every handle opened on it.
type image struct {
	path     string
	lib      recipeout.Library
	refs     int
	invokeMu sync.Mutex
	unloaded atomic.Bool
}

func (r *Registry) acquire(ctx context.Context, path string) (*image, error) {
	r.imagesMu.Lock()
	defer r.imagesMu.Unlock()
	if img, ok := r.images[path]; ok {
		img.refs++
		return img, nil
	}
	lib, err := r.loader.Open(ctx, path)
	if err != nil {
		return nil, &domain.PluginError{Plugin: path, Cause: err}
	}
	img := &image{path: path, lib: lib, refs: 1}
	r.images[path] = img
	r.logger.Debug("plugin image loaded", "plugin", path)
	return img, nil
}

func (r *Registry) release(img *image) error {
	r.imagesMu.Lock()
	defer r.imagesMu.Unlock()
	if r.images[img.path] != img {
		return nil
	}
	img.refs--
	if img.refs > 0 {
		return nil
	}
	delete(r.images, img.path)
	r.logger.Debug("plugin image released", "plugin", img.path)
	return img.lib.Close()
}

func (r *Registry) serialize() bool {
	return !r.loader.Isolated()
}
