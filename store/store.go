// Package store persists resource configurations.
package store

import (
	"context"

	"github.com/fornellas/roam/resource"
)

// Store defines an interface for storage of resource configurations, grouped by kind, eg:
// "cluster" or "env".
type Store interface {
	// Save persists config as name, replacing any previous config.
	Save(ctx context.Context, kind, name string, config resource.Config) error

	// Load returns the config previously saved with Save. Returns an error wrapping
	// fs.ErrNotExist when there is none.
	Load(ctx context.Context, kind, name string) (resource.Config, error)

	// Delete deletes a config previously saved with Save.
	Delete(ctx context.Context, kind, name string) error

	// List returns the sorted names of all configs saved for kind.
	List(ctx context.Context, kind string) ([]string, error)
}
