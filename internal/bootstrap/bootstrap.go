package bootstrap

import (
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"

	historyinadapter "gocpl/internal/modules/history/adapter/in"
	historyoutadapter "gocpl/internal/modules/history/adapter/out"
	historyservice "gocpl/internal/modules/history/service"
	historyusecase "gocpl/internal/modules/history/usecase"
	recipeinadapter "gocpl/internal/modules/recipe/adapter/in"
	recipeoutadapter "gocpl/internal/modules/recipe/adapter/out"
	recipeout "gocpl/internal/modules/recipe/port/out"
	recipeservice "gocpl/internal/modules/recipe/service"
	recipeusecase "gocpl/internal/modules/recipe/usecase"
	"gocpl/internal/platform/clock"
	"gocpl/internal/platform/config"
	"gocpl/internal/platform/cplnative"
	"gocpl/internal/platform/id"
	"gocpl/internal/platform/logging"
	"gocpl/internal/platform/metrics"
)

var ErrHistoryDisabled = errors.New("run history disabled: set history_db in the config")

type App struct {
	RecipeCLI recipeinadapter.CLIHandler
	// HistoryCLI is nil when no history database is configured.
	HistoryCLI *historyinadapter.CLIHandler
	Logger     hclog.Logger

	cfg      config.Config
	registry *recipeservice.Registry
	metrics  *metrics.Recorder
	history  *historyoutadapter.SQLiteRunStore
}

// New wires the application. Logs go to logOutput.
func New(cfg config.Config, logOutput io.Writer) (*App, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, logOutput)
	clk := clock.SystemClock{}
	ids := id.UUID{}
	recorder := metrics.New()

	loader, err := newLoader(cfg, logger)
	if err != nil {
		return nil, err
	}
	registry := recipeservice.NewRegistry(loader,
		recipeservice.WithLogger(logger.Named("registry")),
		recipeservice.WithObserver(recorder),
		recipeservice.WithConcurrency(cfg.DiscoveryConcurrency),
	)

	app := &App{Logger: logger, cfg: cfg, registry: registry, metrics: recorder}

	var runRecorder recipeout.RunRecorder
	if cfg.HistoryDB != "" {
		store, err := historyoutadapter.NewSQLiteRunStore(cfg.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("new run store: %w", err)
		}
		app.history = store
		historyUC := historyusecase.NewInteractor(historyservice.NewRunService(clk, ids, store))
		handler := historyinadapter.NewCLIHandler(historyUC)
		app.HistoryCLI = &handler
		runRecorder = recipeoutadapter.NewHistoryRecorder(historyUC)
	}

	var headers recipeout.HeaderReader
	if cfg.ReadProductHeaders {
		headers = recipeoutadapter.NewFITSHeaderReader()
	}
	bridgeLogger := logger.Named("bridge")
	bridge := recipeservice.NewBridge(recipeservice.BridgeDeps{
		Collector: recipeservice.NewCollector(headers, bridgeLogger),
		Recorder:  runRecorder,
		Observer:  recorder,
		Clock:     clk,
		IDs:       ids,
		Logger:    bridgeLogger,
		Defaults: recipeservice.InvokeOptions{
			Timeout:   cfg.Timeout,
			OutputDir: cfg.OutputDir,
			TempDir:   cfg.TempDir,
		},
	})
	recipeUC := recipeusecase.NewInteractor(recipeservice.NewRecipeService(registry, bridge, cfg.RecipeDirs))
	app.RecipeCLI = recipeinadapter.NewCLIHandler(recipeUC)
	return app, nil
}

// newLoader picks the isolation mode. The ELF precheck only applies to the
// bundled cpl-worker; a custom worker decides for itself what a plugin is.
func newLoader(cfg config.Config, logger hclog.Logger) (recipeout.Loader, error) {
	switch cfg.Isolation {
	case config.IsolationInProcess:
		return recipeoutadapter.NewNativeLoader(), nil
	default:
		worker, err := cfg.ResolveWorker()
		if err != nil {
			return nil, err
		}
		opts := []recipeoutadapter.GRPCLoaderOption{recipeoutadapter.WithWorkerLogger(logger.Named("worker"))}
		if cfg.WorkerBinary == "" {
			opts = append(opts, recipeoutadapter.WithPrecheck(cplnative.CheckELF))
		}
		return recipeoutadapter.NewGRPCLoader(worker, opts...), nil
	}
}

// Close unloads plugins, flushes metrics and closes the history database.
func (a *App) Close() error {
	var errs []error
	if err := a.registry.Unload(); err != nil {
		errs = append(errs, fmt.Errorf("unload plugins: %w", err))
	}
	if a.cfg.MetricsTextfile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			errs = append(errs, err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) History() (historyinadapter.CLIHandler, error) {
	if a.HistoryCLI == nil {
		return historyinadapter.CLIHandler{}, ErrHistoryDisabled
	}
	return *a.HistoryCLI, nil
}
