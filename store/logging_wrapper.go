package store

import (
	"context"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/resource"
)

// Wraps a Store and log function calls.
type LoggingWrapper struct {
	store Store
}

func NewLoggingWrapper(store Store) *LoggingWrapper {
	return &LoggingWrapper{
		store: store,
	}
}

func (s *LoggingWrapper) Save(ctx context.Context, kind, name string, config resource.Config) error {
	ctx, logger := log.MustWithGroupAttrs(ctx, "🗄️ Store")
	logger.Debug("Save", "kind", kind, "name", name)
	return s.store.Save(ctx, kind, name, config)
}

func (s *LoggingWrapper) Load(ctx context.Context, kind, name string) (resource.Config, error) {
	ctx, logger := log.MustWithGroupAttrs(ctx, "🗄️ Store")
	logger.Debug("Load", "kind", kind, "name", name)
	return s.store.Load(ctx, kind, name)
}

func (s *LoggingWrapper) Delete(ctx context.Context, kind, name string) error {
	ctx, logger := log.MustWithGroupAttrs(ctx, "🗄️ Store")
	logger.Debug("Delete", "kind", kind, "name", name)
	return s.store.Delete(ctx, kind, name)
}

func (s *LoggingWrapper) List(ctx context.Context, kind string) ([]string, error) {
	ctx, logger := log.MustWithGroupAttrs(ctx, "🗄️ Store")
	logger.Debug("List", "kind", kind)
	return s.store.List(ctx, kind)
}
