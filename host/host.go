package host

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/fornellas/roam/host/types"
)

// Supported host types, as accepted by New.
const (
	TypeLocal  = "localhost"
	TypeSsh    = "ssh"
	TypeDocker = "docker"
)

// New connects to a host of the given type. target is ignored for TypeLocal,
// is an SSH authority for TypeSsh and a docker exec connection string for
// TypeDocker. The returned Host is wrapped by LoggingWrapper.
func New(ctx context.Context, hostType, target string, sshClientConfig SshClientConfig) (types.Host, error) {
	var hst types.Host
	switch hostType {
	case "", TypeLocal:
		hst = Local{}
	case TypeSsh:
		sshHost, err := NewSshAuthority(ctx, target, sshClientConfig)
		if err != nil {
			return nil, err
		}
		hst = sshHost
	case TypeDocker:
		dockerHost, err := NewDocker(ctx, target)
		if err != nil {
			return nil, err
		}
		hst = NewRunHost(dockerHost)
	default:
		return nil, fmt.Errorf("unknown host type %#v", hostType)
	}
	return NewLoggingWrapper(hst), nil
}

// Remote hosts run commands through env(1) or sh(1), which exit with 127 when
// the command can not be found.
func checkCommandNotFound(cmd types.Cmd, waitStatus types.WaitStatus) (types.WaitStatus, error) {
	if waitStatus.Exited && waitStatus.ExitCode == 127 {
		return types.WaitStatus{}, &fs.PathError{
			Op:   "Run",
			Path: cmd.Path,
			Err:  os.ErrNotExist,
		}
	}
	return waitStatus, nil
}
