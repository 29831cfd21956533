package packages

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/host/lib"
	"github.com/fornellas/roam/host/types"
)

// HostInstaller runs commands at a host.
type HostInstaller struct {
	Host types.BaseHost
	// Prefix is prepended to every command, eg: to activate an environment.
	Prefix []string
	// Env holds variables set on top of types.DefaultEnv.
	Env map[string]string
	// Dir is the working directory.
	Dir string
}

func (i HostInstaller) environ() []string {
	if len(i.Env) == 0 {
		return nil
	}
	environ := []string{}
	overridden := map[string]bool{}
	for key := range i.Env {
		overridden[key] = true
	}
	for _, kv := range types.DefaultEnv {
		key, _, _ := strings.Cut(kv, "=")
		if !overridden[key] {
			environ = append(environ, kv)
		}
	}
	for _, key := range slices.Sorted(maps.Keys(i.Env)) {
		environ = append(environ, key+"="+i.Env[key])
	}
	return environ
}

// RunCommand runs args after Prefix, and returns its exit code. Output is logged.
func (i HostInstaller) RunCommand(ctx context.Context, args []string) (int, error) {
	args = append(append([]string{}, i.Prefix...), args...)
	logger := log.MustLogger(ctx)
	logger.Info("Running", "cmd", shellquote.Join(args...))

	cmd := types.Cmd{
		Path: args[0],
		Args: args[1:],
		Env:  i.environ(),
		Dir:  i.Dir,
	}
	waitStatus, stdout, stderr, err := lib.SimpleRun(ctx, i.Host, cmd)
	if err != nil {
		return -1, err
	}
	if !waitStatus.Success() {
		logger.Warn("Command failed", "status", waitStatus.String(), "stdout", stdout, "stderr", stderr)
	} else {
		logger.Debug("Output", "stdout", stdout, "stderr", stderr)
	}
	return waitStatus.ExitCode, nil
}
