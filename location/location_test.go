package location

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/concurrency"
	"github.com/fornellas/roam/host"
	"github.com/fornellas/roam/location/s3test"
)

func useFakeS3(t *testing.T) *s3test.Fake {
	fake := s3test.NewFake()
	RegisterSystem(SystemS3, func(ctx context.Context, options Options) (Backend, error) {
		return NewS3Backend(fake, options["region"]), nil
	})
	t.Cleanup(func() { RegisterSystem(SystemS3, openS3) })
	return fake
}

func write(t *testing.T, ctx context.Context, l *Location, name string, data []byte) {
	writeCloser, err := l.Create(ctx, name)
	require.NoError(t, err)
	_, err = writeCloser.Write(data)
	require.NoError(t, err)
	require.NoError(t, writeCloser.Close())
}

func TestNew(t *testing.T) {
	t.Run("file relative path", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)
		l := New(SystemFile, "foo/bar/", nil)
		require.Equal(t, filepath.Join(wd, "foo", "bar"), l.Path())
	})
	t.Run("file home", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		l := New(SystemFile, "~/foo", nil)
		require.Equal(t, filepath.Join(home, "foo"), l.Path())
	})
	t.Run("default system", func(t *testing.T) {
		l := New("", "/tmp", nil)
		require.Equal(t, SystemFile, l.System())
	})
	t.Run("default path", func(t *testing.T) {
		l := New(SystemS3, "", Options{"bucket": "data"})
		require.Equal(t, "/data/blobs", l.Path())
		l = New(SystemSsh, "", Options{"host": "example.com"})
		require.Equal(t, "/tmp/roam/blobs", l.Path())
	})
	t.Run("s3 relative path", func(t *testing.T) {
		l := New(SystemS3, "bucket//dir/", nil)
		require.Equal(t, "/bucket/dir", l.Path())
		require.Equal(t, "/bucket/dir/file", l.Join("file"))
	})
	t.Run("options are copied", func(t *testing.T) {
		options := Options{"region": "us-east-1"}
		l := New(SystemS3, "/bucket", options)
		options["region"] = "eu-west-1"
		require.Equal(t, "us-east-1", l.Options()["region"])
	})
}

func TestConfig(t *testing.T) {
	l := New(SystemS3, "/bucket/dir", Options{"region": "us-east-1"})
	config := l.Config()
	require.Equal(t, SystemS3, config["system"])
	loaded, err := FromConfig(config)
	require.NoError(t, err)
	require.Equal(t, l.System(), loaded.System())
	require.Equal(t, l.Path(), loaded.Path())
	require.Equal(t, l.Options(), loaded.Options())
}

func TestUnknownSystem(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	l := New("ftp", "/foo", nil)
	_, err := l.Read(ctx, "bar")
	require.ErrorIs(t, err, ErrUnknownSystem)
}

func testLocation(t *testing.T, ctx context.Context, l *Location) {
	require.NoError(t, l.Mkdir(ctx))
	require.NoError(t, l.Mkdir(ctx))

	t.Run("Read missing", func(t *testing.T) {
		_, err := l.Read(ctx, "missing")
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("Create and Read", func(t *testing.T) {
		write(t, ctx, l, "file", []byte("longer content"))
		write(t, ctx, l, "file", []byte("foo"))
		data, err := l.Read(ctx, "file")
		require.NoError(t, err)
		require.Equal(t, []byte("foo"), data)
	})

	t.Run("Exists", func(t *testing.T) {
		write(t, ctx, l, "exists", []byte{})
		exists, err := l.Exists(ctx, "exists")
		require.NoError(t, err)
		require.True(t, exists)
		exists, err = l.Exists(ctx, "missing")
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("List", func(t *testing.T) {
		sub := New(l.System(), l.Join("list"), l.Options())
		defer func() { require.NoError(t, sub.Close(ctx)) }()
		require.NoError(t, sub.Mkdir(ctx))
		write(t, ctx, sub, "a", []byte("a"))
		write(t, ctx, sub, "dir/b", []byte("b"))
		entries, err := sub.List(ctx)
		require.NoError(t, err)
		require.ElementsMatch(t, []Entry{{Name: "a"}, {Name: "dir", IsDir: true}}, entries)
	})

	t.Run("Remove", func(t *testing.T) {
		write(t, ctx, l, "rm", []byte("x"))
		require.NoError(t, l.Remove(ctx, []string{"rm"}, false))
		exists, err := l.Exists(ctx, "rm")
		require.NoError(t, err)
		require.False(t, exists)

		err = l.Remove(ctx, []string{"rm"}, false)
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("Remove recursive", func(t *testing.T) {
		write(t, ctx, l, "tree/a/b", []byte("x"))
		require.NoError(t, l.Remove(ctx, []string{"tree"}, true))
		exists, err := l.Exists(ctx, "tree")
		require.NoError(t, err)
		require.False(t, exists)
	})
}

func TestFileLocation(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	l := New(SystemFile, filepath.Join(t.TempDir(), "location"), nil)
	defer func() { require.NoError(t, l.Close(ctx)) }()
	require.NoError(t, os.MkdirAll(filepath.Join(l.Path(), "tree", "a"), 0700))
	require.NoError(t, os.MkdirAll(filepath.Join(l.Path(), "list", "dir"), 0700))
	testLocation(t, ctx, l)
}

func TestS3Location(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	fake := useFakeS3(t)
	l := New(SystemS3, "/bucket/location", nil)
	defer func() { require.NoError(t, l.Close(ctx)) }()
	testLocation(t, ctx, l)

	data, ok := fake.Object("bucket", "location/file")
	require.True(t, ok)
	require.Equal(t, []byte("foo"), data)
}

func TestNewHostLocation(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	dir := t.TempDir()
	backend, err := open(ctx, SystemFile, nil)
	require.NoError(t, err)
	hst := backend.(*HostBackend).Host
	l := NewHostLocation(hst, dir)
	require.Equal(t, SystemFile, l.System())
	write(t, ctx, l, "file", []byte("foo"))
	require.NoError(t, l.Close(ctx))
	data, err := os.ReadFile(filepath.Join(dir, "file"))
	require.NoError(t, err)
	require.Equal(t, []byte("foo"), data)
}

func TestCopyTo(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	ctx = concurrency.WithConcurrencyLimit(ctx, 2)
	fake := useFakeS3(t)

	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "tree", "sub"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "file"), []byte("file"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "tree", "a"), []byte("a"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "tree", "sub", "b"), []byte("b"), 0600))
	src := New(SystemFile, srcDir, nil)
	defer func() { require.NoError(t, src.Close(ctx)) }()

	t.Run("file to s3 and back", func(t *testing.T) {
		s3Location, err := src.CopyTo(ctx, SystemS3, "/bucket/copy", nil)
		require.NoError(t, err)
		defer func() { require.NoError(t, s3Location.Close(ctx)) }()

		for key, expected := range map[string]string{
			"copy/file":       "file",
			"copy/tree/a":     "a",
			"copy/tree/sub/b": "b",
		} {
			data, ok := fake.Object("bucket", key)
			require.True(t, ok, key)
			require.Equal(t, []byte(expected), data)
		}

		destDir := filepath.Join(t.TempDir(), "dest")
		fileLocation, err := s3Location.CopyTo(ctx, SystemFile, destDir, nil, "tree")
		require.NoError(t, err)
		defer func() { require.NoError(t, fileLocation.Close(ctx)) }()
		data, err := os.ReadFile(filepath.Join(destDir, "tree", "sub", "b"))
		require.NoError(t, err)
		require.Equal(t, []byte("b"), data)
		_, err = os.Stat(filepath.Join(destDir, "file"))
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("CopyEntryTo renames", func(t *testing.T) {
		dest := New(SystemFile, t.TempDir(), nil)
		defer func() { require.NoError(t, dest.Close(ctx)) }()
		require.NoError(t, src.CopyEntryTo(ctx, "file", dest, "renamed"))
		data, err := dest.Read(ctx, "renamed")
		require.NoError(t, err)
		require.Equal(t, []byte("file"), data)
	})

	t.Run("missing entry", func(t *testing.T) {
		_, err := src.CopyTo(ctx, SystemFile, t.TempDir(), nil, "missing")
		require.ErrorIs(t, err, fs.ErrNotExist)
	})
}

var errClosed = errors.New("use of closed connection")

// closableBackend fails once closed, as a network connection would.
type closableBackend struct {
	*HostBackend
	closed bool
}

func (b *closableBackend) Stat(ctx context.Context, name string) (Entry, error) {
	if b.closed {
		return Entry{}, errClosed
	}
	return b.HostBackend.Stat(ctx, name)
}

func (b *closableBackend) Close(ctx context.Context) error {
	b.closed = true
	return nil
}

func TestSub(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "file"), []byte("foo"), 0600))

	t.Run("outlives parent", func(t *testing.T) {
		opened := 0
		RegisterSystem("closable", func(ctx context.Context, options Options) (Backend, error) {
			opened++
			return &closableBackend{HostBackend: NewHostBackend(host.Local{})}, nil
		})

		l := New("closable", dir, nil)
		exists, err := l.Exists(ctx, "sub")
		require.NoError(t, err)
		require.True(t, exists)

		sub := l.Sub("sub")
		require.NoError(t, l.Close(ctx))

		exists, err = sub.Exists(ctx, "file")
		require.NoError(t, err)
		require.True(t, exists)
		require.Equal(t, 2, opened)
		require.NoError(t, sub.Close(ctx))
	})

	t.Run("shares host backend", func(t *testing.T) {
		l := NewHostLocation(host.Local{}, dir)
		sub := l.Sub("sub")
		require.NoError(t, l.Close(ctx))

		backend, err := sub.Backend(ctx)
		require.NoError(t, err)
		require.IsType(t, &HostBackend{}, backend)
		exists, err := sub.Exists(ctx, "file")
		require.NoError(t, err)
		require.True(t, exists)
	})
}
