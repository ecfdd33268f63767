package driven

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// Connector discovers source documents and reports changes to them.
type Connector interface {
	// Type returns the connector type identifier.
	Type() string

	// Validate checks the connector is ready, e.g. that a directory exists.
	Validate(ctx context.Context) error

	// Discover lists the paths of all supported source files.
	Discover(ctx context.Context) ([]string, error)

	// Watch reports changes until ctx is cancelled.
	Watch(ctx context.Context) (<-chan domain.SourceChange, error)

	// Close releases resources.
	Close() error
}
