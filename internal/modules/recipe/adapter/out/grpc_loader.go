package out

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	recipegrpc "gocpl/internal/modules/recipe/adapter/out/rpc"
	"gocpl/internal/modules/recipe/domain"
	recipeout "gocpl/internal/modules/recipe/port/out"
)

const defaultStartTimeout = 10 * time.Second

// GRPCLoader runs every native call in a fresh cpl-worker process, so a
// crashing recipe takes down only its worker. Opening a plugin starts
// nothing; each Recipes or Invoke call spawns, dispenses and kills a worker.
type GRPCLoader struct {
	worker       string
	logger       hclog.Logger
	startTimeout time.Duration
	precheck     func(path string) error
}

type GRPCLoaderOption func(*GRPCLoader)

func WithWorkerLogger(logger hclog.Logger) GRPCLoaderOption {
	return func(l *GRPCLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithStartTimeout(d time.Duration) GRPCLoaderOption {
	return func(l *GRPCLoader) {
		if d > 0 {
			l.startTimeout = d
		}
	}
}

// WithPrecheck rejects files before any worker is spawned for them.
func WithPrecheck(check func(path string) error) GRPCLoaderOption {
	return func(l *GRPCLoader) { l.precheck = check }
}

func NewGRPCLoader(worker string, opts ...GRPCLoaderOption) *GRPCLoader {
	l := &GRPCLoader{
		worker:       worker,
		logger:       hclog.NewNullLogger(),
		startTimeout: defaultStartTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *GRPCLoader) Isolated() bool { return true }

func (l *GRPCLoader) Open(_ context.Context, path string) (recipeout.Library, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open plugin: %s is a directory", path)
	}
	if l.precheck != nil {
		if err := l.precheck(path); err != nil {
			return nil, err
		}
	}
	return &workerLibrary{loader: l, path: path}, nil
}

type workerLibrary struct {
	loader *GRPCLoader
	path   string
}

func (w *workerLibrary) Path() string { return w.path }

func (w *workerLibrary) Recipes(ctx context.Context) ([]domain.RecipeDescriptor, error) {
	session, err := w.loader.start(ctx, "")
	if err != nil {
		return nil, err
	}
	defer session.kill()

	response, err := session.client.Describe(ctx, &recipegrpc.DescribeRequest{PluginPath: w.path})
	if err != nil {
		return nil, session.wrap(fmt.Errorf("describe plugin: %w", err))
	}
	out := make([]domain.RecipeDescriptor, 0, len(response.Recipes))
	for _, r := range response.Recipes {
		d, err := r.Descriptor()
		if err != nil {
			return nil, err
		}
		d.Plugin = w.path
		out = append(out, d)
	}
	return out, nil
}

func (w *workerLibrary) Invoke(ctx context.Context, req domain.NativeRequest) (domain.NativeOutput, error) {
	session, err := w.loader.start(ctx, req.OutputDir)
	if err != nil {
		return domain.NativeOutput{}, &domain.PluginError{Recipe: req.Recipe, Plugin: w.path, Cause: err}
	}
	defer session.kill()

	response, err := session.client.Invoke(ctx, recipegrpc.FromNativeRequest(w.path, req))
	if err != nil {
		cause := fmt.Errorf("invoke recipe: %w", err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cause = fmt.Errorf("%w: worker killed: %w", domain.ErrInvocationTimeout, err)
		}
		session.kill()
		return domain.NativeOutput{}, &domain.PluginError{Recipe: req.Recipe, Plugin: w.path, Cause: cause, Log: session.stderr.String()}
	}
	return response.Native(), nil
}

func (w *workerLibrary) Close() error { return nil }

type workerSession struct {
	client recipegrpc.RecipeWorkerClient
	plugin *plugin.Client
	stderr *syncBuffer
	once   sync.Once
}

func (s *workerSession) kill() {
	s.once.Do(s.plugin.Kill)
}

// wrap attaches whatever the worker wrote to stderr before it failed.
func (s *workerSession) wrap(err error) error {
	s.kill()
	if text := s.stderr.String(); text != "" {
		return fmt.Errorf("%w\n%s", err, text)
	}
	return err
}

func (l *GRPCLoader) start(ctx context.Context, dir string) (*workerSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(l.worker)
	cmd.Dir = dir
	stderr := &syncBuffer{}
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  recipegrpc.HandshakeConfig,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolGRPC},
		Plugins:          recipegrpc.PluginMap(nil),
		Cmd:              cmd,
		Managed:          true,
		StartTimeout:     l.startTimeout,
		Stderr:           stderr,
		Logger:           l.logger,
	})
	session := &workerSession{plugin: client, stderr: stderr}

	rpcClient, err := client.Client()
	if err != nil {
		return nil, session.wrap(fmt.Errorf("start worker %s: %w", l.worker, err))
	}
	raw, err := rpcClient.Dispense(recipegrpc.PluginMapKey)
	if err != nil {
		return nil, session.wrap(fmt.Errorf("dispense worker: %w", err))
	}
	typed, ok := raw.(recipegrpc.RecipeWorkerClient)
	if !ok {
		session.kill()
		return nil, fmt.Errorf("worker rpc client type mismatch")
	}
	session.client = typed
	return session, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
