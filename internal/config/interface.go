package config

import (
	"context"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads configuration from the given paths and applies it on top of
	// base. Paths that do not exist are skipped; directories are searched
	// recursively. The returned model is a new value; base is not modified.
	Load(ctx context.Context, base Model, paths ...string) (*Model, error)
}
