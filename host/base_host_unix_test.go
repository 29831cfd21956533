package host

import (
	"context"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/roam/host/lib"
	"github.com/fornellas/roam/host/types"
)

type runCase struct {
	name     string
	cmd      types.Cmd
	exitCode int
	stdout   string
	// stderr must contain it.
	stderr string
}

var runCases = []runCase{
	{
		name:     "args and failure",
		cmd:      types.Cmd{Path: "ls", Args: []string{"-d", "../tmp", "/non-existent"}},
		exitCode: 2,
		stdout:   "../tmp\n",
		stderr:   "/non-existent",
	},
	{
		name:   "env",
		cmd:    types.Cmd{Path: "/usr/bin/env", Env: []string{"FOO=bar"}},
		stdout: "FOO=bar\n",
	},
	{
		name:   "dir",
		cmd:    types.Cmd{Path: "pwd", Dir: "/"},
		stdout: "/\n",
	},
	{
		name: "stdin",
		// the trailing read only exits on stdin EOF
		cmd: types.Cmd{
			Path:  "sh",
			Args:  []string{"-c", "read v && echo =$v= && read foo || true"},
			Stdin: strings.NewReader("hello\n"),
		},
		stdout: "=hello=\n",
	},
}

// testBaseHost checks baseHost runs commands like a local shell would.
func testBaseHost(
	t *testing.T,
	ctx context.Context,
	baseHost types.BaseHost,
	baseHostString,
	baseHostType string,
) {
	for _, c := range runCases {
		t.Run(c.name, func(t *testing.T) {
			waitStatus, stdout, stderr, err := lib.SimpleRun(ctx, baseHost, c.cmd)
			require.NoError(t, err)
			require.True(t, waitStatus.Exited)
			require.Empty(t, waitStatus.Signal)
			require.Equal(t, c.exitCode, waitStatus.ExitCode, "stderr: %s", stderr)
			require.Equal(t, c.stdout, stdout)
			if c.stderr == "" {
				require.Empty(t, stderr)
			} else {
				require.Contains(t, stderr, c.stderr)
			}
		})
	}

	t.Run("default env", func(t *testing.T) {
		waitStatus, stdout, _, err := lib.SimpleRun(ctx, baseHost, types.Cmd{Path: "env"})
		require.NoError(t, err)
		require.True(t, waitStatus.Success())
		env := slices.DeleteFunc(strings.Split(stdout, "\n"), func(s string) bool { return s == "" })
		slices.Sort(env)
		require.Equal(t, types.DefaultEnv, env)
	})

	t.Run("bad path", func(t *testing.T) {
		waitStatus, _, _, err := lib.SimpleRun(ctx, baseHost, types.Cmd{Path: "/bad-path"})
		require.ErrorIs(t, err, os.ErrNotExist)
		require.False(t, waitStatus.Success())
	})

	t.Run("relative dir", func(t *testing.T) {
		_, _, _, err := lib.SimpleRun(ctx, baseHost, types.Cmd{Path: "pwd", Dir: "foo/bar"})
		require.ErrorContains(t, err, "path must be absolute")
	})

	require.Equal(t, baseHostString, baseHost.String())
	require.Equal(t, baseHostType, baseHost.Type())
}
