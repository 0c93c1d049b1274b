package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gocpl/internal/bootstrap"
	recipedto "gocpl/internal/modules/recipe/dto"
	"gocpl/internal/modules/recipe/domain"
	"gocpl/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode mirrors esorex: a failed recipe exits with its native status, and
// with 1 when the recipe reported an error but returned zero.
func exitCode(err error) int {
	var execErr *domain.ExecutionError
	if errors.As(err, &execErr) && execErr.Status > 0 && execErr.Status < 126 {
		return execErr.Status
	}
	return 1
}

type globalFlags struct {
	configPath string
	recipeDirs []string
	isolation  string
	worker     string
	logLevel   string
	logFormat  string
	history    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "gocpl",
		Short:         "Discover and run CPL pipeline recipes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.gocpl/config.yaml)")
	pf.StringSliceVar(&flags.recipeDirs, "recipe-dir", nil, "recipe plugin search path; repeatable (overrides "+config.EnvPluginDir+")")
	pf.StringVar(&flags.isolation, "isolation", "", "plugin isolation: process|inprocess")
	pf.StringVar(&flags.worker, "worker", "", "worker binary used in process isolation")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: trace|debug|info|warn|error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: text|json")
	pf.StringVar(&flags.history, "history-db", "", "run history database; empty disables history")

	root.AddCommand(newDiscoverCmd(flags))
	root.AddCommand(newRecipesCmd(flags))
	root.AddCommand(newDescribeCmd(flags))
	root.AddCommand(newPluginsCmd(flags))
	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newHistoryCmd(flags))
	return root
}

func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	pf := cmd.Flags()
	if pf.Changed("recipe-dir") {
		cfg.RecipeDirs = flags.recipeDirs
	}
	if pf.Changed("isolation") {
		cfg.Isolation = config.Isolation(flags.isolation)
	}
	if pf.Changed("worker") {
		cfg.WorkerBinary = flags.worker
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if pf.Changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if pf.Changed("history-db") {
		cfg.HistoryDB = flags.history
	}
	return cfg, cfg.Validate()
}

// withApp builds the application for one command and releases it afterwards.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	app, err := bootstrap.New(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			app.Logger.Warn("shutdown", "error", closeErr)
		}
	}()
	return fn(cmd.Context(), app)
}

func newDiscoverCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Scan the recipe search path and report what was found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.RecipeCLI.Discover(ctx)
				if err != nil {
					return err
				}
				renderDiscovery(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newRecipesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "recipes",
		Aliases: []string{"list"},
		Short:   "List available recipes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				recipes, err := app.RecipeCLI.ListRecipes(ctx)
				if err != nil {
					return err
				}
				renderRecipes(cmd.OutOrStdout(), recipes)
				return nil
			})
		},
	}
}

func newDescribeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <recipe>",
		Short: "Show a recipe's parameters, inputs and outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				detail, err := app.RecipeCLI.Describe(ctx, args[0])
				if err != nil {
					return err
				}
				renderDetail(cmd.OutOrStdout(), detail)
				return nil
			})
		},
	}
}

func newPluginsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List scanned plugin files and their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				plugins, err := app.RecipeCLI.ListPlugins(ctx)
				if err != nil {
					return err
				}
				renderPlugins(cmd.OutOrStdout(), plugins)
				return nil
			})
		},
	}
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		params    []string
		rcFiles   []string
		frames    []string
		outputDir string
		tempDir   string
		timeout   time.Duration
		env       map[string]string
		logLevel  string
		asJSON    bool
		showLog   bool
	)
	run := &cobra.Command{
		Use:   "run <recipe> [sof...]",
		Short: "Run a recipe on the frames listed in set-of-frames files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := recipedto.RunInput{
				Recipe:    args[0],
				Params:    params,
				RCFiles:   rcFiles,
				SOFFiles:  args[1:],
				OutputDir: outputDir,
				TempDir:   tempDir,
				TimeoutMS: int(timeout / time.Millisecond),
				LogLevel:  logLevel,
				Env:       env,
			}
			for _, raw := range frames {
				frame, err := parseFrameFlag(raw)
				if err != nil {
					return err
				}
				input.Frames = append(input.Frames, frame)
			}
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				out, err := app.RecipeCLI.Run(ctx, input)
				if out.RunID != "" {
					if asJSON {
						if encErr := writeJSON(cmd.OutOrStdout(), out); encErr != nil {
							return encErr
						}
					} else {
						renderRun(cmd.OutOrStdout(), out, showLog)
					}
				}
				return err
			})
		},
	}
	fs := run.Flags()
	fs.StringArrayVarP(&params, "param", "p", nil, "parameter as name=value; repeatable, applied after --rc files")
	fs.StringArrayVar(&rcFiles, "rc", nil, "recipe configuration file; repeatable")
	fs.StringArrayVar(&frames, "frame", nil, "frame as path:TAG[:group]; repeatable, appended after sof frames")
	fs.StringVar(&outputDir, "output-dir", "", "directory for products (default from config)")
	fs.StringVar(&tempDir, "temp-dir", "", "scratch directory for the recipe")
	fs.DurationVar(&timeout, "timeout", 0, "abort the recipe after this long (process isolation only)")
	fs.StringToStringVar(&env, "env", nil, "extra environment for the recipe as KEY=VALUE")
	fs.StringVar(&logLevel, "recipe-log-level", "", "CPL message level inside the recipe: debug|info|warning|error|off")
	fs.BoolVar(&asJSON, "json", false, "print the result as JSON")
	fs.BoolVar(&showLog, "show-log", false, "print the recipe log after a successful run")
	return run
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var recipe string
	var limit int
	history := &cobra.Command{
		Use:   "history",
		Short: "List recent recipe runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				handler, err := app.History()
				if err != nil {
					return err
				}
				runs, err := handler.List(ctx, recipe, limit)
				if err != nil {
					return err
				}
				renderHistory(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	history.Flags().StringVar(&recipe, "recipe", "", "only runs of this recipe")
	history.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")

	history.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, app *bootstrap.App) error {
				handler, err := app.History()
				if err != nil {
					return err
				}
				run, err := handler.Get(ctx, args[0])
				if err != nil {
					return err
				}
				renderHistoryRun(cmd.OutOrStdout(), run)
				return nil
			})
		},
	})
	return history
}

func parseFrameFlag(raw string) (recipedto.FrameInput, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return recipedto.FrameInput{}, fmt.Errorf("--frame %q: want path:TAG[:group]", raw)
	}
	frame := recipedto.FrameInput{Path: parts[0], Tag: parts[1]}
	if len(parts) == 3 {
		frame.Group = parts[2]
	}
	return frame, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
