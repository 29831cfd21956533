package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"al.essio.dev/pkg/shellescape"

	"github.com/fornellas/roam/host/types"
)

// Docker uses docker exec to target a running container.
type Docker struct {
	// User/group and container in the format "[<name|uid>[:<group|gid>]@]<container>" (eg: root@ubuntu)
	ConnectionString string
	user             string
	container        string
}

func NewDocker(ctx context.Context, connection string) (*Docker, error) {
	dockerHst := &Docker{
		ConnectionString: connection,
	}
	parts := strings.Split(connection, "@")
	switch len(parts) {
	case 1:
		dockerHst.user = "0:0"
		dockerHst.container = parts[0]
	case 2:
		dockerHst.user = parts[0]
		dockerHst.container = parts[1]
	default:
		return nil, fmt.Errorf("invalid connection string format: %s", connection)
	}
	if dockerHst.user == "" || dockerHst.container == "" {
		return nil, fmt.Errorf("invalid connection string format: %s", connection)
	}
	return dockerHst, nil
}

func (h *Docker) Run(ctx context.Context, cmd types.Cmd) (types.WaitStatus, error) {
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

	if len(cmd.Env) == 0 {
		cmd.Env = types.DefaultEnv
	}

	args := []string{"exec"}
	if cmd.Stdin != nil {
		args = append(args, "--interactive")
	}
	args = append(args, "--user", h.user, "--workdir", cmd.Dir, h.container)

	shellWords := []string{"exec", "env", "-i"}
	for _, env := range cmd.Env {
		shellWords = append(shellWords, shellescape.Quote(env))
	}
	shellWords = append(shellWords, shellescape.Quote(cmd.Path))
	for _, arg := range cmd.Args {
		shellWords = append(shellWords, shellescape.Quote(arg))
	}
	args = append(args, "sh", "-c", strings.Join(shellWords, " "))

	execCmd := exec.CommandContext(ctx, "docker", args...)
	execCmd.Stdin = cmd.Stdin
	execCmd.Stdout = cmd.Stdout
	execCmd.Stderr = cmd.Stderr

	if err := execCmd.Run(); err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			return types.WaitStatus{}, err
		}
	}

	waitStatus := types.WaitStatus{
		ExitCode: execCmd.ProcessState.ExitCode(),
		Exited:   execCmd.ProcessState.Exited(),
	}
	if signal := execCmd.ProcessState.Sys().(syscall.WaitStatus).Signal(); signal > 0 {
		waitStatus.Signal = signal.String()
	}
	return checkCommandNotFound(cmd, waitStatus)
}

func (h *Docker) String() string {
	return h.ConnectionString
}

func (h *Docker) Type() string {
	return "docker"
}

func (h *Docker) Close(ctx context.Context) error {
	return nil
}
