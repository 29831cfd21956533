package store

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/host"
	"github.com/fornellas/roam/resource"
)

func testStore(t *testing.T, ctx context.Context, store Store) {
	config := resource.Config{
		resource.KeyType: "env",
		resource.KeyName: "foo",
		"setup_cmds":     []any{"echo a"},
		"env_vars":       map[string]any{"FOO": "bar"},
	}

	t.Run("Load missing", func(t *testing.T) {
		_, err := store.Load(ctx, "env", "missing")
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("List missing kind", func(t *testing.T) {
		names, err := store.List(ctx, "cluster")
		require.NoError(t, err)
		require.Empty(t, names)
	})

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "env", "foo", config))
		loaded, err := store.Load(ctx, "env", "foo")
		require.NoError(t, err)
		require.Equal(t, config, loaded)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "env", "bar", config))
		names, err := store.List(ctx, "env")
		require.NoError(t, err)
		require.Equal(t, []string{"bar", "foo"}, names)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "env", "bar"))
		_, err := store.Load(ctx, "env", "bar")
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("invalid name", func(t *testing.T) {
		require.ErrorContains(t, store.Save(ctx, "env", "../foo", config), "invalid store key")
	})
}

func TestHostStore(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	store := NewLoggingWrapper(NewHostStore(host.Local{}, t.TempDir()))
	testStore(t, ctx, store)
}

func TestHostStoreDiff(t *testing.T) {
	var buff bytes.Buffer
	ctx := log.WithLogger(t.Context(), slog.New(slog.NewTextHandler(&buff, nil)))
	store := NewHostStore(host.Local{}, t.TempDir())

	config := resource.Config{"setup_cmds": []any{"echo a"}}
	require.NoError(t, store.Save(ctx, "env", "foo", config))
	require.NotContains(t, buff.String(), "Updated")

	require.NoError(t, store.Save(ctx, "env", "foo", config))
	require.NotContains(t, buff.String(), "Updated")

	config = resource.Config{"setup_cmds": []any{"echo a", "echo b"}}
	require.NoError(t, store.Save(ctx, "env", "foo", config))
	require.Contains(t, buff.String(), "Updated")
	require.Contains(t, buff.String(), "echo b")
}
