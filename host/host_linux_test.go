package host

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/roam/host/lib"
	"github.com/fornellas/roam/host/types"
)

func readAll(t *testing.T, ctx context.Context, hst types.Host, name string) []byte {
	readCloser, err := hst.ReadFile(ctx, name)
	require.NoError(t, err)
	defer func() { require.NoError(t, readCloser.Close()) }()
	data, err := io.ReadAll(readCloser)
	require.NoError(t, err)
	return data
}

func readDirNames(t *testing.T, ctx context.Context, hst types.Host, name string) map[string]types.DirEnt {
	dirEntResultCh, cancel := hst.ReadDir(ctx, name)
	defer cancel()
	dirEnts := map[string]types.DirEnt{}
	for dirEntResult := range dirEntResultCh {
		require.NoError(t, dirEntResult.Error)
		dirEnts[dirEntResult.DirEnt.Name] = dirEntResult.DirEnt
	}
	return dirEnts
}

//gocyclo:ignore
func testHost(
	t *testing.T,
	ctx context.Context,
	hst types.Host,
	hostString,
	hostType string,
) {
	testBaseHost(t, ctx, hst, hostString, hostType)

	t.Run("Lstat", func(t *testing.T) {
		t.Run("regular file", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "file")
			require.NoError(t, os.WriteFile(name, []byte("foo"), 0640))
			require.NoError(t, os.Chmod(name, 0640))
			stat_t, err := hst.Lstat(ctx, name)
			require.NoError(t, err)
			require.True(t, types.FileMode(stat_t.Mode).IsRegular())
			require.Equal(t, types.FileMode(0640), types.FileMode(stat_t.Mode)&types.FileModeBitsMask)
			require.Equal(t, int64(3), stat_t.Size)
			require.Equal(t, uint32(os.Getuid()), stat_t.Uid)
		})
		t.Run("directory", func(t *testing.T) {
			stat_t, err := hst.Lstat(ctx, t.TempDir())
			require.NoError(t, err)
			require.True(t, stat_t.IsDir())
		})
		t.Run("path must be absolute", func(t *testing.T) {
			_, err := hst.Lstat(ctx, "foo/bar")
			require.ErrorContains(t, err, "path must be absolute")
			var pathError *fs.PathError
			require.ErrorAs(t, err, &pathError)
		})
		t.Run("ErrNotExist", func(t *testing.T) {
			_, err := hst.Lstat(ctx, "/non-existent")
			require.ErrorIs(t, err, fs.ErrNotExist)
			var pathError *fs.PathError
			require.ErrorAs(t, err, &pathError)
		})
	})

	t.Run("ReadDir", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "file with space"), []byte{}, 0600))
			require.NoError(t, os.Mkdir(filepath.Join(dir, "dir"), 0700))
			require.NoError(t, os.Symlink("file with space", filepath.Join(dir, "symlink")))

			dirEnts := readDirNames(t, ctx, hst, dir)
			names := []string{}
			for name := range dirEnts {
				names = append(names, name)
			}
			sort.Strings(names)
			require.Equal(t, []string{"dir", "file with space", "symlink"}, names)
			fileDirEnt := dirEnts["file with space"]
			require.True(t, fileDirEnt.IsRegularFile())
			dirDirEnt := dirEnts["dir"]
			require.True(t, dirDirEnt.IsDirectory())
			symlinkDirEnt := dirEnts["symlink"]
			require.True(t, symlinkDirEnt.IsSymbolicLink())
		})
		t.Run("Empty", func(t *testing.T) {
			require.Empty(t, readDirNames(t, ctx, hst, t.TempDir()))
		})
		t.Run("ErrNotExist", func(t *testing.T) {
			dirEntResultCh, cancel := hst.ReadDir(ctx, "/non-existent")
			defer cancel()
			var err error
			for dirEntResult := range dirEntResultCh {
				if dirEntResult.Error != nil {
					err = dirEntResult.Error
				}
			}
			require.ErrorIs(t, err, fs.ErrNotExist)
		})
	})

	t.Run("Mkdir", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "dir")
			require.NoError(t, hst.Mkdir(ctx, name, 0751))
			var stat_t syscall.Stat_t
			require.NoError(t, syscall.Lstat(name, &stat_t))
			require.Equal(t, types.FileMode(0751), types.FileMode(stat_t.Mode)&types.FileModeBitsMask)
			require.True(t, types.FileMode(stat_t.Mode).IsDir())
		})
		t.Run("ErrExist", func(t *testing.T) {
			err := hst.Mkdir(ctx, t.TempDir(), 0700)
			require.ErrorIs(t, err, fs.ErrExist)
		})
		t.Run("ErrNotExist", func(t *testing.T) {
			err := hst.Mkdir(ctx, "/non-existent/dir", 0700)
			require.ErrorIs(t, err, fs.ErrNotExist)
		})
		t.Run("MkdirAll", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "a", "b", "c")
			require.NoError(t, lib.MkdirAll(ctx, hst, name, 0700))
			require.NoError(t, lib.MkdirAll(ctx, hst, name, 0700))
			stat_t, err := hst.Lstat(ctx, name)
			require.NoError(t, err)
			require.True(t, stat_t.IsDir())
		})
	})

	t.Run("ReadFile", func(t *testing.T) {
		t.Run("with contents", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "file")
			data := []byte("foo\x00bar\n")
			require.NoError(t, os.WriteFile(name, data, 0600))
			require.Equal(t, data, readAll(t, ctx, hst, name))
		})
		t.Run("empty", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "file")
			require.NoError(t, os.WriteFile(name, []byte{}, 0600))
			require.Empty(t, readAll(t, ctx, hst, name))
		})
		t.Run("ErrNotExist", func(t *testing.T) {
			_, err := hst.ReadFile(ctx, "/non-existent")
			require.ErrorIs(t, err, fs.ErrNotExist)
		})
	})

	t.Run("Symlink", func(t *testing.T) {
		dir := t.TempDir()
		newname := filepath.Join(dir, "symlink")
		require.NoError(t, hst.Symlink(ctx, "target", newname))
		oldname, err := os.Readlink(newname)
		require.NoError(t, err)
		require.Equal(t, "target", oldname)
	})

	t.Run("Remove", func(t *testing.T) {
		t.Run("file", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "file")
			require.NoError(t, os.WriteFile(name, []byte{}, 0600))
			require.NoError(t, hst.Remove(ctx, name))
			_, err := os.Lstat(name)
			require.ErrorIs(t, err, fs.ErrNotExist)
		})
		t.Run("dir", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "dir")
			require.NoError(t, os.Mkdir(name, 0700))
			require.NoError(t, hst.Remove(ctx, name))
			_, err := os.Lstat(name)
			require.ErrorIs(t, err, fs.ErrNotExist)
		})
		t.Run("ErrNotExist", func(t *testing.T) {
			err := hst.Remove(ctx, "/non-existent")
			require.ErrorIs(t, err, fs.ErrNotExist)
		})
		t.Run("RemoveAll", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "tree")
			require.NoError(t, os.MkdirAll(filepath.Join(name, "a", "b"), 0700))
			require.NoError(t, os.WriteFile(filepath.Join(name, "a", "file"), []byte("x"), 0600))
			require.NoError(t, lib.RemoveAll(ctx, hst, name))
			_, err := os.Lstat(name)
			require.ErrorIs(t, err, fs.ErrNotExist)
			require.NoError(t, lib.RemoveAll(ctx, hst, name))
		})
	})

	t.Run("WriteFile", func(t *testing.T) {
		t.Run("create", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "file")
			data := []byte("foo\x00bar")
			require.NoError(t, hst.WriteFile(ctx, name, bytes.NewReader(data), 0604))
			readData, err := os.ReadFile(name)
			require.NoError(t, err)
			require.Equal(t, data, readData)
			fileInfo, err := os.Lstat(name)
			require.NoError(t, err)
			require.Equal(t, fs.FileMode(0604), fileInfo.Mode().Perm())
		})
		t.Run("overwrite", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "file")
			require.NoError(t, os.WriteFile(name, []byte("longer content"), 0600))
			require.NoError(t, hst.WriteFile(ctx, name, bytes.NewReader([]byte("short")), 0600))
			readData, err := os.ReadFile(name)
			require.NoError(t, err)
			require.Equal(t, []byte("short"), readData)
		})
		t.Run("HostFileWriter", func(t *testing.T) {
			name := filepath.Join(t.TempDir(), "file")
			writer := lib.NewHostFileWriter(ctx, hst, name, 0600)
			_, err := writer.Write([]byte("foo"))
			require.NoError(t, err)
			_, err = writer.Write([]byte("bar"))
			require.NoError(t, err)
			require.NoError(t, writer.Close())
			require.Equal(t, []byte("foobar"), readAll(t, ctx, hst, name))
		})
		t.Run("ErrNotExist", func(t *testing.T) {
			err := hst.WriteFile(ctx, "/non-existent/file", bytes.NewReader([]byte{}), 0600)
			require.ErrorIs(t, err, fs.ErrNotExist)
		})
	})
}
