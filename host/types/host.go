package types

import (
	"context"
	"io"
)

// BaseHost can only run commands. RunHost builds a full Host on top of it.
type BaseHost interface {
	// Run runs cmd to completion. A command that ran and failed is not an error: check
	// the WaitStatus.
	Run(ctx context.Context, cmd Cmd) (WaitStatus, error)

	// String identifies the host within its Type, eg: user@host:port for ssh.
	String() string

	// Type is one of localhost, ssh or docker.
	Type() string

	Close(ctx context.Context) error
}

// Host is a BaseHost with file access. Every path must be absolute, and errors are
// *fs.PathError, so that errors.Is(err, fs.ErrNotExist) works regardless of the host.
type Host interface {
	BaseHost

	// Lstat does not follow symlinks.
	Lstat(ctx context.Context, name string) (*Stat_t, error)

	// ReadDir streams the entries of directory name. Calling cancel stops it early.
	ReadDir(ctx context.Context, name string) (dirEntResultCh <-chan DirEntResult, cancel func())

	// Mkdir creates a single directory with exactly mode.
	Mkdir(ctx context.Context, name string, mode FileMode) error

	// ReadFile opens name for reading. The caller closes it.
	ReadFile(ctx context.Context, name string) (io.ReadCloser, error)

	Symlink(ctx context.Context, oldname, newname string) error

	// Remove removes a file or an empty directory.
	Remove(ctx context.Context, name string) error

	// WriteFile replaces the content of name with data, setting exactly mode.
	WriteFile(ctx context.Context, name string, data io.Reader, mode FileMode) error
}
