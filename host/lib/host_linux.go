package lib

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/fornellas/roam/host/types"
)

// Implements Host.Run for Linux localhost.
func LocalRun(ctx context.Context, cmd types.Cmd) (types.WaitStatus, error) {
	execCmd := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	if len(cmd.Env) == 0 {
		execCmd.Env = types.DefaultEnv
	} else {
		execCmd.Env = cmd.Env
	}

	if cmd.Dir == "" {
		cmd.Dir = "/tmp"
	}
	if !filepath.IsAbs(cmd.Dir) {
		return types.WaitStatus{}, &fs.PathError{
			Op:   "Run",
			Path: cmd.Dir,
			Err:  errors.New("path must be absolute"),
		}
	}
	execCmd.Dir = cmd.Dir

	execCmd.Stdin = cmd.Stdin
	execCmd.Stdout = cmd.Stdout
	execCmd.Stderr = cmd.Stderr

	err := execCmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return types.WaitStatus{}, err
		}
	}

	waitStatus := types.WaitStatus{}
	waitStatus.ExitCode = execCmd.ProcessState.ExitCode()
	waitStatus.Exited = execCmd.ProcessState.Exited()
	signal := execCmd.ProcessState.Sys().(syscall.WaitStatus).Signal()
	if signal > 0 {
		waitStatus.Signal = signal.String()
	}
	return waitStatus, nil
}

func sendReadDirError(ctx context.Context, dirEntResultCh chan<- types.DirEntResult, name string, err error) {
	select {
	case dirEntResultCh <- types.DirEntResult{
		Error: &fs.PathError{
			Op:   "ReadDir",
			Path: name,
			Err:  err,
		},
	}:
	case <-ctx.Done():
	}
}

// Implements Host.ReadDir for Linux localhost.
func LocalReadDir(ctx context.Context, name string) (<-chan types.DirEntResult, func()) {
	ctx, cancel := context.WithCancel(ctx)

	dirEntResultCh := make(chan types.DirEntResult, 100)

	go func() {
		defer close(dirEntResultCh)

		if !filepath.IsAbs(name) {
			sendReadDirError(ctx, dirEntResultCh, name, errors.New("path must be absolute"))
			return
		}

		fd, err := unix.Open(name, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
		if err != nil {
			sendReadDirError(ctx, dirEntResultCh, name, err)
			return
		}
		defer unix.Close(fd)

		buf := make([]byte, 8192)

		for {
			// Getdents avoids the extra stat calls os.ReadDir does.
			n, err := unix.Getdents(fd, buf)
			if err != nil {
				sendReadDirError(ctx, dirEntResultCh, name, err)
				return
			}
			if n == 0 {
				return
			}

			for offset := 0; offset < n; {
				dirent := (*unix.Dirent)(unsafe.Pointer(&buf[offset]))
				offset += int(dirent.Reclen)

				nameBytes := make([]byte, 0, len(dirent.Name))
				for _, c := range dirent.Name {
					if c == 0 {
						break
					}
					nameBytes = append(nameBytes, byte(c))
				}
				entName := string(nameBytes)
				if entName == "." || entName == ".." {
					continue
				}

				select {
				case dirEntResultCh <- types.DirEntResult{DirEnt: types.DirEnt{
					Ino:  dirent.Ino,
					Type: dirent.Type,
					Name: entName,
				}}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return dirEntResultCh, cancel
}
