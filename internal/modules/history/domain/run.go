package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "gocpl/internal/platform/errors"
)

type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeFailed      Outcome = "failed"
	OutcomePluginError Outcome = "plugin_error"
)

func (o Outcome) Validate() error {
	switch o {
	case OutcomeOK, OutcomeInvalid, OutcomeFailed, OutcomePluginError:
		return nil
	default:
		return fmt.Errorf("unknown run outcome %q", string(o))
	}
}

var ErrRunNotFound = fmt.Errorf("run %w", apperrors.ErrNotFound)

type Output struct {
	Path string
	Tag  string
}

// Run is one recorded recipe invocation, whatever its outcome. Status is the
// native return value; runs rejected before the native call keep zero.
type Run struct {
	ID         string
	Recipe     string
	Plugin     string
	Outcome    Outcome
	Status     int
	Error      string
	Outputs    []Output
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("run id is required: %w", apperrors.ErrInvalidInput)
	}
	if strings.TrimSpace(r.Recipe) == "" {
		return fmt.Errorf("run recipe is required: %w", apperrors.ErrInvalidInput)
	}
	if err := r.Outcome.Validate(); err != nil {
		return fmt.Errorf("%w: %w", err, apperrors.ErrInvalidInput)
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("run %s finished before it started: %w", r.ID, apperrors.ErrInvalidInput)
	}
	return nil
}

func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Filter narrows a history listing. Zero Limit means no limit.
type Filter struct {
	Recipe string
	Limit  int
}
