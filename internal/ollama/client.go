// Package ollama defines the interface the cache layer expects from a
// remote Ollama server, independent of any concrete transport.
package ollama

import (
	"context"
	"errors"

	"github.com/llamalot/llamalot/internal/model"
)

// ErrUnavailable indicates the server could not be reached. Implementations
// must wrap connectivity failures with it so callers can distinguish an
// unreachable server from a bad request and fall back to cached data.
var ErrUnavailable = errors.New("ollama server unavailable")

// Client is the remote model catalog consumed by the cache layer.
type Client interface {
	// ListModels returns the full catalog with extended metadata and
	// capabilities populated. One detail call per model server-side.
	ListModels(ctx context.Context) ([]model.Model, error)

	// ListModelsBasic returns the lightweight catalog listing only:
	// name, size, digest, modified time, and details.
	ListModelsBasic(ctx context.Context) ([]model.Model, error)

	// GetModelInfo fetches one model's extended metadata.
	GetModelInfo(ctx context.Context, name string) (*model.Model, error)
}
