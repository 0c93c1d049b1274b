package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvPluginDir = "ESOREX_PLUGIN_DIR"
	EnvWorker    = "GOCPL_WORKER"
	EnvLogLevel  = "GOCPL_LOG_LEVEL"

	workerName = "cpl-worker"
)

type Isolation string

const (
	// IsolationProcess runs every native call in a subordinate worker process.
	IsolationProcess Isolation = "process"
	// IsolationInProcess loads plugins into this process. Requires a cpl build.
	IsolationInProcess Isolation = "inprocess"
)

type Config struct {
	RecipeDirs           []string      `yaml:"recipe_dirs"`
	Isolation            Isolation     `yaml:"isolation"`
	WorkerBinary         string        `yaml:"worker_binary"`
	Timeout              time.Duration `yaml:"timeout"`
	OutputDir            string        `yaml:"output_dir"`
	TempDir              string        `yaml:"temp_dir"`
	HistoryDB            string        `yaml:"history_db"`
	MetricsTextfile      string        `yaml:"metrics_textfile"`
	LogLevel             string        `yaml:"log_level"`
	LogFormat            string        `yaml:"log_format"`
	DiscoveryConcurrency int           `yaml:"discovery_concurrency"`
	ReadProductHeaders   bool          `yaml:"read_product_headers"`
}

// Default follows the esorex installation convention for the plugin search path.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		RecipeDirs:           []string{"/usr/lib/esopipes-plugins", "/usr/local/lib/esopipes-plugins"},
		Isolation:            IsolationProcess,
		OutputDir:            ".",
		HistoryDB:            filepath.Join(home, ".gocpl", "history.db"),
		LogLevel:             "warn",
		LogFormat:            "text",
		DiscoveryConcurrency: runtime.NumCPU(),
		ReadProductHeaders:   true,
	}
}

// DefaultPath is the config file consulted when no explicit path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".gocpl", "config.yaml")
}

// Load layers defaults, the YAML file at path and the environment. A missing
// file is only an error when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			decoder := yaml.NewDecoder(bytes.NewReader(b))
			decoder.KnownFields(true)
			if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return Config{}, fmt.Errorf("decode config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if dirs := SplitPathList(os.Getenv(EnvPluginDir)); len(dirs) > 0 {
		c.RecipeDirs = dirs
	}
	if worker := strings.TrimSpace(os.Getenv(EnvWorker)); worker != "" {
		c.WorkerBinary = worker
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		c.LogLevel = level
	}
}

func (c Config) Validate() error {
	if len(c.RecipeDirs) == 0 {
		return fmt.Errorf("at least one recipe directory is required")
	}
	switch c.Isolation {
	case IsolationProcess, IsolationInProcess:
	default:
		return fmt.Errorf("unknown isolation mode %q", c.Isolation)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.DiscoveryConcurrency < 0 {
		return fmt.Errorf("discovery concurrency must not be negative")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// ResolveWorker locates the worker binary: the configured path, a sibling of
// the running executable, then PATH.
func (c Config) ResolveWorker() (string, error) {
	if c.WorkerBinary != "" {
		return c.WorkerBinary, nil
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), workerName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(workerName)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", workerName, err)
	}
	return path, nil
}

// SplitPathList splits a colon separated directory list, dropping empty entries.
func SplitPathList(value string) []string {
	var out []string
	for _, part := range filepath.SplitList(value) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
