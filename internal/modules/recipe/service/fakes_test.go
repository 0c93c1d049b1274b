package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gocpl/internal/modules/recipe/domain"
	recipeout "gocpl/internal/modules/recipe/port/out"
	"gocpl/internal/modules/recipe/service"
)

type invokeFunc func(ctx context.Context, req domain.NativeRequest) (domain.NativeOutput, error)

// fakePlugin stands in for one shared library, keyed by file base name.
type fakePlugin struct {
	recipes []domain.RecipeDescriptor
	openErr error
	listErr error
	invoke  invokeFunc

	calls    atomic.Int32
	mu       sync.Mutex
	requests []domain.NativeRequest
}

func (p *fakePlugin) lastRequest(t *testing.T) domain.NativeRequest {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		t.Fatalf("plugin was never invoked")
	}
	return p.requests[len(p.requests)-1]
}

type fakeLoader struct {
	isolated bool
	plugins  map[string]*fakePlugin

	mu           sync.Mutex
	opens        map[string]int
	closes       map[string]int
	doubleCloses int
}

func newFakeLoader(plugins map[string]*fakePlugin) *fakeLoader {
	return &fakeLoader{plugins: plugins, opens: map[string]int{}, closes: map[string]int{}}
}

func (l *fakeLoader) Isolated() bool { return l.isolated }

func (l *fakeLoader) Open(_ context.Context, path string) (recipeout.Library, error) {
	plugin, ok := l.plugins[filepath.Base(path)]
	if !ok {
		return nil, errors.New("not a CPL plugin")
	}
	if plugin.openErr != nil {
		return nil, plugin.openErr
	}
	l.mu.Lock()
	l.opens[filepath.Base(path)]++
	l.mu.Unlock()
	return &fakeLibrary{loader: l, path: path, plugin: plugin}, nil
}

func (l *fakeLoader) counts(name string) (opens, closes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens[name], l.closes[name]
}

type fakeLibrary struct {
	loader *fakeLoader
	path   string
	plugin *fakePlugin
	closed atomic.Bool
}

func (l *fakeLibrary) Path() string { return l.path }

func (l *fakeLibrary) Recipes(context.Context) ([]domain.RecipeDescriptor, error) {
	if l.plugin.listErr != nil {
		return nil, l.plugin.listErr
	}
	return append([]domain.RecipeDescriptor(nil), l.plugin.recipes...), nil
}

func (l *fakeLibrary) Invoke(ctx context.Context, req domain.NativeRequest) (domain.NativeOutput, error) {
	if l.closed.Load() {
		return domain.NativeOutput{}, errors.New("invoke on closed library")
	}
	l.plugin.calls.Add(1)
	l.plugin.mu.Lock()
	l.plugin.requests = append(l.plugin.requests, req)
	l.plugin.mu.Unlock()
	if l.plugin.invoke == nil {
		return domain.NativeOutput{}, nil
	}
	return l.plugin.invoke(ctx, req)
}

func (l *fakeLibrary) Close() error {
	l.loader.mu.Lock()
	defer l.loader.mu.Unlock()
	if !l.closed.CompareAndSwap(false, true) {
		l.loader.doubleCloses++
		return errors.New("double close")
	}
	l.loader.closes[filepath.Base(l.path)]++
	return nil
}

type recorded struct {
	result *domain.InvocationResult
	err    error
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []recorded
}

func (r *fakeRecorder) Record(_ context.Context, result *domain.InvocationResult, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, recorded{result: result, err: err})
	return nil
}

type fakeObserver struct {
	mu        sync.Mutex
	outcomes  []string
	discovery []int
}

func (o *fakeObserver) ObserveInvocation(_ string, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *fakeObserver) ObserveDiscovery(plugins, recipes, warnings int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.discovery = []int{plugins, recipes, warnings}
}

func ptr(v domain.Value) *domain.Value { return &v }

func flatcombineRecipe() domain.RecipeDescriptor {
	return domain.RecipeDescriptor{
		Name:    "flatcombine",
		Version: "1.2.0",
		Parameters: []domain.Parameter{
			{
				Name:     "gocpl.flatcombine.method",
				Alias:    "method",
				Type:     domain.TypeEnum,
				EnumKind: domain.KindString,
				Default:  domain.String("median"),
				Choices:  []domain.Value{domain.String("median"), domain.String("mean")},
			},
			{
				Name:    "gocpl.flatcombine.kappa",
				Alias:   "kappa",
				Type:    domain.TypeFloat,
				Default: domain.Float(3),
				Min:     ptr(domain.Float(0)),
				Max:     ptr(domain.Float(10)),
			},
			{
				Name:    "gocpl.flatcombine.niter",
				Alias:   "niter",
				Type:    domain.TypeInt,
				Default: domain.Int(5),
				Min:     ptr(domain.Int(1)),
			},
		},
		Inputs:  []domain.FrameConfig{{Tag: "FLAT", Min: 1}, {Tag: "MASTER_BIAS", Max: 1}},
		Outputs: []string{"MASTER_FLAT"},
	}
}

func simpleRecipe(name string) domain.RecipeDescriptor {
	return domain.RecipeDescriptor{Name: name, Version: "1.0.0"}
}

// combineInvoke behaves like a flat combination: one MASTER_FLAT product and
// the chosen method echoed as a keyword.
func combineInvoke(ctx context.Context, req domain.NativeRequest) (domain.NativeOutput, error) {
	out := domain.NativeOutput{
		Frames: []domain.NativeFrame{{Path: "master_flat.fits", Tag: "MASTER_FLAT"}},
		Log:    "[ INFO  ] combined frames\n",
	}
	for _, p := range req.Parameters {
		out.Keywords = append(out.Keywords, domain.Keyword{Name: p.Name, Value: p.Value.String()})
	}
	return out, nil
}

// pluginDir creates empty plugin files so discovery has something to walk.
func pluginDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("write plugin file: %v", err)
		}
	}
	return dir
}

func frameFile(t *testing.T, dir, name, tag string) domain.Frame {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("SIMPLE  =                    T"), 0o644); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	f, err := domain.NewFrame(path, tag, domain.FrameGroupRaw)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	return f
}

type fixture struct {
	loader   *fakeLoader
	plugin   *fakePlugin
	registry *service.Registry
	bridge   *service.Bridge
	recorder *fakeRecorder
	observer *fakeObserver
	outDir   string
	dataDir  string
}

func newFixture(t *testing.T, isolated bool) *fixture {
	t.Helper()
	plugin := &fakePlugin{recipes: []domain.RecipeDescriptor{flatcombineRecipe()}, invoke: combineInvoke}
	loader := newFakeLoader(map[string]*fakePlugin{"flat.so": plugin})
	loader.isolated = isolated
	f := &fixture{
		loader:   loader,
		plugin:   plugin,
		recorder: &fakeRecorder{},
		observer: &fakeObserver{},
		outDir:   filepath.Join(t.TempDir(), "out"),
		dataDir:  t.TempDir(),
	}
	f.registry = service.NewRegistry(loader, service.WithObserver(f.observer))
	if _, err := f.registry.Discover(context.Background(), []string{pluginDir(t, "flat.so")}); err != nil {
		t.Fatalf("discover: %v", err)
	}
	f.bridge = service.NewBridge(service.BridgeDeps{
		Recorder: f.recorder,
		Observer: f.observer,
		Defaults: service.InvokeOptions{OutputDir: f.outDir},
	})
	return f
}

func (f *fixture) open(t *testing.T) *service.Handle {
	t.Helper()
	h, err := f.registry.Open(context.Background(), "flatcombine")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func (f *fixture) flats(t *testing.T, n int) domain.FrameSet {
	t.Helper()
	set := domain.FrameSet{}
	for i := 0; i < n; i++ {
		set.Append(frameFile(t, f.dataDir, "flat_"+string(rune('a'+i))+".fits", "FLAT"))
	}
	return set
}
