package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"al.essio.dev/pkg/shellescape"

	"github.com/fornellas/roam/host/lib"
	"github.com/fornellas/roam/host/types"
)

// RunHost implements the full Host interface over a BaseHost, by running
// standard GNU coreutils commands on it.
type RunHost struct {
	types.BaseHost
}

// NewRunHost wraps a BaseHost as a Host.
func NewRunHost(baseHost types.BaseHost) RunHost {
	return RunHost{BaseHost: baseHost}
}

func runHostError(op, name, stderr string, fallback error) error {
	var err error
	switch {
	case strings.Contains(stderr, "Permission denied"),
		strings.Contains(stderr, "Operation not permitted"):
		err = os.ErrPermission
	case strings.Contains(stderr, "File exists"):
		err = os.ErrExist
	case strings.Contains(stderr, "No such file or directory"),
		strings.Contains(stderr, "Directory nonexistent"):
		err = os.ErrNotExist
	case strings.Contains(stderr, "Is a directory"):
		err = syscall.EISDIR
	case strings.Contains(stderr, "Not a directory"):
		err = syscall.ENOTDIR
	case strings.Contains(stderr, "Directory not empty"):
		err = syscall.ENOTEMPTY
	default:
		err = fallback
	}
	return &fs.PathError{Op: op, Path: name, Err: err}
}

func (h RunHost) run(ctx context.Context, op, name string, cmd types.Cmd) (string, error) {
	if !filepath.IsAbs(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fmt.Errorf("path must be absolute")}
	}
	waitStatus, stdout, stderr, err := lib.SimpleRun(ctx, h.BaseHost, cmd)
	if err != nil {
		return "", err
	}
	if !waitStatus.Success() {
		return "", runHostError(op, name, stderr, fmt.Errorf(
			"failed to run %s: %s\nstdout:\n%s\nstderr:\n%s",
			cmd, waitStatus.String(), stdout, stderr,
		))
	}
	return stdout, nil
}

func (h RunHost) Lstat(ctx context.Context, name string) (*types.Stat_t, error) {
	stdout, err := h.run(ctx, "Lstat", name, types.Cmd{
		Path: "stat",
		Args: []string{"--format=%f,%u,%g,%s,%Y", name},
	})
	if err != nil {
		return nil, err
	}

	tokens := strings.Split(strings.TrimRight(stdout, "\n"), ",")
	if len(tokens) != 5 {
		return nil, fmt.Errorf("unable to parse stat output: %#v", stdout)
	}

	mode, err := strconv.ParseUint(tokens[0], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("unable to parse mode: %s", tokens[0])
	}
	uid, err := strconv.ParseUint(tokens[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("unable to parse uid: %s", tokens[1])
	}
	gid, err := strconv.ParseUint(tokens[2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("unable to parse gid: %s", tokens[2])
	}
	size, err := strconv.ParseInt(tokens[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("unable to parse size: %s", tokens[3])
	}
	mtime, err := strconv.ParseInt(tokens[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("unable to parse mtime: %s", tokens[4])
	}

	return &types.Stat_t{
		Mode: uint32(mode),
		Uid:  uint32(uid),
		Gid:  uint32(gid),
		Size: size,
		Mtim: types.Timespec{Sec: mtime},
	}, nil
}

var findTypeToDirEntType = map[string]uint8{
	"b": syscall.DT_BLK,
	"c": syscall.DT_CHR,
	"d": syscall.DT_DIR,
	"p": syscall.DT_FIFO,
	"f": syscall.DT_REG,
	"l": syscall.DT_LNK,
	"s": syscall.DT_SOCK,
}

func (h RunHost) ReadDir(ctx context.Context, name string) (<-chan types.DirEntResult, func()) {
	ctx, cancel := context.WithCancel(ctx)
	dirEntResultCh := make(chan types.DirEntResult, 100)

	go func() {
		defer close(dirEntResultCh)

		send := func(dirEntResult types.DirEntResult) bool {
			select {
			case dirEntResultCh <- dirEntResult:
				return true
			case <-ctx.Done():
				return false
			}
		}

		stdout, err := h.run(ctx, "ReadDir", name, types.Cmd{
			Path: "find",
			Args: []string{name, "-mindepth", "1", "-maxdepth", "1", "-printf", `%i %y %f\0`},
		})
		if err != nil {
			send(types.DirEntResult{Error: err})
			return
		}

		for entry := range strings.SplitSeq(stdout, "\x00") {
			if entry == "" {
				continue
			}
			fields := strings.SplitN(entry, " ", 3)
			if len(fields) != 3 {
				send(types.DirEntResult{Error: fmt.Errorf("unable to parse find output: %#v", entry)})
				return
			}
			ino, err := strconv.ParseUint(fields[0], 10, 64)
			if err != nil {
				send(types.DirEntResult{Error: fmt.Errorf("unable to parse inode: %s", fields[0])})
				return
			}
			dirEntType, ok := findTypeToDirEntType[fields[1]]
			if !ok {
				dirEntType = syscall.DT_UNKNOWN
			}
			if !send(types.DirEntResult{DirEnt: types.DirEnt{
				Ino:  ino,
				Type: dirEntType,
				Name: fields[2],
			}}) {
				return
			}
		}
	}()

	return dirEntResultCh, cancel
}

func (h RunHost) chmod(ctx context.Context, op, name string, mode types.FileMode) error {
	_, err := h.run(ctx, op, name, types.Cmd{
		Path: "chmod",
		Args: []string{fmt.Sprintf("%o", uint32(mode&types.FileModeBitsMask)), name},
	})
	return err
}

func (h RunHost) Mkdir(ctx context.Context, name string, mode types.FileMode) error {
	if _, err := h.run(ctx, "Mkdir", name, types.Cmd{
		Path: "mkdir",
		Args: []string{name},
	}); err != nil {
		return err
	}
	return h.chmod(ctx, "Mkdir", name, mode)
}

func (h RunHost) ReadFile(ctx context.Context, name string) (io.ReadCloser, error) {
	stdout, err := h.run(ctx, "ReadFile", name, types.Cmd{
		Path: "cat",
		Args: []string{name},
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(stdout)), nil
}

func (h RunHost) Symlink(ctx context.Context, oldname, newname string) error {
	_, err := h.run(ctx, "Symlink", newname, types.Cmd{
		Path: "ln",
		Args: []string{"-s", oldname, newname},
	})
	return err
}

func (h RunHost) Remove(ctx context.Context, name string) error {
	_, err := h.run(ctx, "Remove", name, types.Cmd{
		Path: "rm",
		Args: []string{name},
	})
	if errors.Is(err, syscall.EISDIR) {
		_, err = h.run(ctx, "Remove", name, types.Cmd{
			Path: "rmdir",
			Args: []string{name},
		})
	}
	return err
}

func (h RunHost) WriteFile(ctx context.Context, name string, data io.Reader, mode types.FileMode) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return &fs.PathError{Op: "WriteFile", Path: name, Err: err}
	}
	if _, err := h.run(ctx, "WriteFile", name, types.Cmd{
		Path:  "sh",
		Args:  []string{"-c", fmt.Sprintf("cat > %s", shellescape.Quote(name))},
		Stdin: &buf,
	}); err != nil {
		return err
	}
	return h.chmod(ctx, "WriteFile", name, mode)
}
