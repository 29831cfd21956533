package host

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/fornellas/roam/host/lib"
	"github.com/fornellas/roam/host/types"
)

var errRelativePath = errors.New("path must be absolute")

// Local is the machine roam runs at. Its Location system is "file".
type Local struct{}

// pathError wraps err as a *fs.PathError, unless it already is one.
func pathError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if pathErr := (*fs.PathError)(nil); errors.As(err, &pathErr) {
		return err
	}
	return &fs.PathError{Op: op, Path: name, Err: err}
}

// localOp runs fn for name, which must be absolute, reporting errors for op.
func localOp(op, name string, fn func() error) error {
	if !filepath.IsAbs(name) {
		return pathError(op, name, errRelativePath)
	}
	return pathError(op, name, fn())
}

func (h Local) Lstat(ctx context.Context, name string) (*types.Stat_t, error) {
	var st unix.Stat_t
	if err := localOp("Lstat", name, func() error { return unix.Lstat(name, &st) }); err != nil {
		return nil, err
	}
	return &types.Stat_t{
		Mode: st.Mode,
		Uid:  st.Uid,
		Gid:  st.Gid,
		Size: st.Size,
		Mtim: types.Timespec{
			Sec:  int64(st.Mtim.Sec),
			Nsec: int64(st.Mtim.Nsec),
		},
	}, nil
}

func (h Local) ReadDir(ctx context.Context, name string) (<-chan types.DirEntResult, func()) {
	return lib.LocalReadDir(ctx, name)
}

// Mkdir sets mode exactly, regardless of umask.
func (h Local) Mkdir(ctx context.Context, name string, mode types.FileMode) error {
	return localOp("Mkdir", name, func() error {
		if err := unix.Mkdir(name, uint32(mode)); err != nil {
			return err
		}
		return unix.Chmod(name, uint32(mode))
	})
}

func (h Local) ReadFile(ctx context.Context, name string) (io.ReadCloser, error) {
	var file *os.File
	err := localOp("ReadFile", name, func() error {
		var err error
		file, err = os.Open(name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (h Local) Symlink(ctx context.Context, oldname, newname string) error {
	return localOp("Symlink", newname, func() error { return unix.Symlink(oldname, newname) })
}

func (h Local) Remove(ctx context.Context, name string) error {
	return localOp("Remove", name, func() error { return os.Remove(name) })
}

func (h Local) Run(ctx context.Context, cmd types.Cmd) (types.WaitStatus, error) {
	return lib.LocalRun(ctx, cmd)
}

// WriteFile sets mode exactly, regardless of umask.
func (h Local) WriteFile(ctx context.Context, name string, data io.Reader, mode types.FileMode) error {
	perm := uint32(mode & types.FileModeBitsMask)
	return localOp("WriteFile", name, func() error {
		file, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(perm))
		if err != nil {
			return err
		}
		if _, err := io.Copy(file, data); err != nil {
			return errors.Join(err, file.Close())
		}
		return errors.Join(unix.Chmod(name, perm), file.Close())
	})
}

func (h Local) String() string {
	return TypeLocal
}

func (h Local) Type() string {
	return TypeLocal
}

func (h Local) Close(ctx context.Context) error {
	return nil
}
