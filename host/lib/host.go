package lib

// This lib package contains common functions used at various places.
// These can't live at the host package, because if the agent imports the host package, its size
// baloons, so we have just a handful of functions at lib.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/fornellas/roam/host/types"
)

// SimpleRun starts the specified command and waits for it to complete.
// Returns WaitStatus, stdout and stderr.
func SimpleRun(ctx context.Context, hst types.BaseHost, cmd types.Cmd) (types.WaitStatus, string, string, error) {
	if cmd.Stdout != nil {
		panic(fmt.Errorf("can not set Cmd.Stdout: %s", cmd))
	}
	stdoutBuffer := bytes.Buffer{}
	cmd.Stdout = &stdoutBuffer

	if cmd.Stderr != nil {
		panic(fmt.Errorf("can not set Cmd.Stderr: %s", cmd))
	}
	stderrBuffer := bytes.Buffer{}
	cmd.Stderr = &stderrBuffer

	waitStatus, err := hst.Run(ctx, cmd)
	return waitStatus, stdoutBuffer.String(), stderrBuffer.String(), err
}

// MkdirAll wraps Host.Mkdir and behavess similar to os.MkdirAll.
func MkdirAll(ctx context.Context, hst types.Host, name string, mode types.FileMode) error {
	stat_t, err := hst.Lstat(ctx, name)
	if err == nil {
		if stat_t.IsDir() {
			return nil
		}
		return &fs.PathError{
			Op:   "MkdirAll",
			Path: name,
			Err:  syscall.ENOTDIR,
		}
	}

	name = filepath.Clean(name)
	parent := filepath.Dir(name)

	if parent != name {
		if err := MkdirAll(ctx, hst, parent, mode); err != nil {
			return err
		}
	}

	if err := hst.Mkdir(ctx, name, mode); err != nil {
		// Someone else may have created it between Lstat and Mkdir.
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return err
	}

	return nil
}

// RemoveAll wraps Host.Remove and Host.ReadDir and behaves similar to os.RemoveAll.
func RemoveAll(ctx context.Context, hst types.Host, name string) error {
	stat_t, err := hst.Lstat(ctx, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	if stat_t.IsDir() {
		dirEntResultCh, cancel := hst.ReadDir(ctx, name)
		var names []string
		for dirEntResult := range dirEntResultCh {
			if dirEntResult.Error != nil {
				cancel()
				return dirEntResult.Error
			}
			names = append(names, dirEntResult.DirEnt.Name)
		}
		cancel()
		for _, entry := range names {
			if err := RemoveAll(ctx, hst, filepath.Join(name, entry)); err != nil {
				return err
			}
		}
	}

	return hst.Remove(ctx, name)
}
