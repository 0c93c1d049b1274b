package out

import (
	"context"
	"time"

	"gocpl/internal/modules/recipe/domain"
)

// Loader opens plugin images. Isolated loaders run every native call in its
// own process, so calls through one image may overlap.
type Loader interface {
	Open(ctx context.Context, path string) (Library, error)
	Isolated() bool
}

// Library is one opened plugin image.
type Library interface {
	Path() string
	Recipes(ctx context.Context) ([]domain.RecipeDescriptor, error)
	Invoke(ctx context.Context, req domain.NativeRequest) (domain.NativeOutput, error)
	Close() error
}

type HeaderReader interface {
	ReadPrimary(ctx context.Context, path string) (domain.Header, error)
}

// RunRecorder persists one invocation outcome. err is nil on success.
type RunRecorder interface {
	Record(ctx context.Context, result *domain.InvocationResult, err error) error
}

type Observer interface {
	ObserveInvocation(recipe, outcome string, elapsed time.Duration)
	ObserveDiscovery(plugins, recipes, warnings int, elapsed time.Duration)
}
