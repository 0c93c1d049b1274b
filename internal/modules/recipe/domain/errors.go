package domain

import (
	"errors"
	"fmt"
	"strings"

	apperrors "gocpl/internal/platform/errors"
)

var (
	ErrValidation        = errors.New("recipe input rejected")
	ErrExecution         = errors.New("recipe execution failed")
	ErrPlugin            = errors.New("plugin failure")
	ErrHandleClosed      = errors.New("recipe handle closed")
	ErrHandleUnusable    = errors.New("recipe handle unusable after plugin failure; close and reopen it")
	ErrInvocationTimeout = errors.New("recipe invocation timeout")
	ErrRecipeNotFound    = fmt.Errorf("recipe %w", apperrors.ErrNotFound)
)

// DiscoveryWarning records a plugin that contributed nothing to a scan, or a
// recipe shadowed by an earlier plugin. It is never returned as an error.
type DiscoveryWarning struct {
	Plugin  string
	Recipe  string
	Message string
}

func (w DiscoveryWarning) String() string {
	if w.Recipe != "" {
		return fmt.Sprintf("%s: recipe %s: %s", w.Plugin, w.Recipe, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Plugin, w.Message)
}

// ValidationError is raised before any native call when a parameter or frame
// breaks the recipe's declared contract.
type ValidationError struct {
	Recipe    string
	Parameter string
	Frame     string
	Reason    string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, 3)
	if e.Recipe != "" {
		parts = append(parts, "recipe "+e.Recipe)
	}
	if e.Parameter != "" {
		parts = append(parts, "parameter "+e.Parameter)
	}
	if e.Frame != "" {
		parts = append(parts, "frame "+e.Frame)
	}
	parts = append(parts, e.Reason)
	return strings.Join(parts, ": ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == apperrors.ErrInvalidInput
}

// ExecutionError reports a recipe that ran and failed. Status and Log are the
// native values, unmodified.
type ExecutionError struct {
	Recipe    string
	Status    int
	ErrorCode int
	Message   string
	Location  string
	Log       string
}

func (e *ExecutionError) Error() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "recipe %s failed with status %d", e.Recipe, e.Status)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
		if e.Location != "" {
			fmt.Fprintf(&b, " in %s", e.Location)
		}
	}
	if strings.TrimSpace(e.Log) != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(e.Log, "\n"))
	}
	return b.String()
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// PluginError reports a crash, a load failure or a broken ABI contract at the
// native boundary. The handle that saw it must be closed and reopened.
type PluginError struct {
	Recipe string
	Plugin string
	Cause  error
	Log    string
}

func (e *PluginError) Error() string {
	b := strings.Builder{}
	b.WriteString("plugin ")
	b.WriteString(e.Plugin)
	if e.Recipe != "" {
		b.WriteString(" recipe ")
		b.WriteString(e.Recipe)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if strings.TrimSpace(e.Log) != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(e.Log, "\n"))
	}
	return b.String()
}

func (e *PluginError) Unwrap() error { return e.Cause }

func (e *PluginError) Is(target error) bool {
	return target == ErrPlugin
}

type HandleClosedError struct {
	Recipe string
}

func (e *HandleClosedError) Error() string {
	return fmt.Sprintf("recipe %s: %s", e.Recipe, ErrHandleClosed)
}

func (e *HandleClosedError) Is(target error) bool {
	return target == ErrHandleClosed
}
