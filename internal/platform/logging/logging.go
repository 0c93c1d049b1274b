package logging

import (
	"io"
	"os"
	"strings"

	hclog "github.com/hashicorp/go-hclog"
)

// New builds the root logger. Components take named sub-loggers from it.
func New(level, format string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}
	parsed := hclog.LevelFromString(strings.TrimSpace(level))
	if parsed == hclog.NoLevel {
		parsed = hclog.Warn
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "gocpl",
		Level:      parsed,
		Output:     output,
		JSONFormat: format == "json",
	})
}
