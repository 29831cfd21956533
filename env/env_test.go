package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/cluster"
	"github.com/fornellas/roam/host"
	"github.com/fornellas/roam/host/types"
	"github.com/fornellas/roam/install"
	"github.com/fornellas/roam/location"
	"github.com/fornellas/roam/packages"
)

type recordingHost struct {
	mu        sync.Mutex
	cmds      []types.Cmd
	exitCodes map[string]int
}

func (h *recordingHost) Run(ctx context.Context, cmd types.Cmd) (types.WaitStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd)
	return types.WaitStatus{Exited: true, ExitCode: h.exitCodes[cmd.String()]}, nil
}

func (h *recordingHost) String() string { return "recording" }

func (h *recordingHost) Type() string { return "recording" }

func (h *recordingHost) Close(ctx context.Context) error { return nil }

func (h *recordingHost) commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	cmds := []string{}
	for _, cmd := range h.cmds {
		cmds = append(cmds, cmd.String())
	}
	return cmds
}

func TestFingerprint(t *testing.T) {
	a := New("a", []string{"numpy", "conda:pytorch"}, []string{"echo a"}, map[string]string{"FOO": "bar"}, "")
	b := New("b", []string{"numpy", "conda:pytorch"}, []string{"echo a"}, map[string]string{"FOO": "bar"}, "")
	unnamed := New("", []string{"numpy", "conda:pytorch"}, []string{"echo a"}, map[string]string{"FOO": "bar"}, "")

	fingerprintA, err := a.Fingerprint()
	require.NoError(t, err)
	fingerprintB, err := b.Fingerprint()
	require.NoError(t, err)
	fingerprintUnnamed, err := unnamed.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, fingerprintA, fingerprintB)
	require.Equal(t, fingerprintA, fingerprintUnnamed)

	for _, other := range []*Env{
		New("a", []string{"numpy"}, []string{"echo a"}, map[string]string{"FOO": "bar"}, ""),
		New("a", []string{"numpy", "conda:pytorch"}, []string{"echo b"}, map[string]string{"FOO": "bar"}, ""),
		New("a", []string{"numpy", "conda:pytorch"}, []string{"echo a"}, map[string]string{"FOO": "baz"}, ""),
		New("a", []string{"numpy", "conda:pytorch"}, []string{"echo a"}, map[string]string{"FOO": "bar"}, "/src"),
		NewConda("a", "a", []string{"numpy", "conda:pytorch"}, []string{"echo a"}, map[string]string{"FOO": "bar"}, ""),
	} {
		fingerprint, err := other.Fingerprint()
		require.NoError(t, err)
		require.NotEqual(t, fingerprintA, fingerprint)
	}
}

func TestRequirements(t *testing.T) {
	dir := t.TempDir()
	e := New("e", []string{"numpy", dir}, nil, nil, "./")
	reqs := e.Requirements()
	require.Len(t, reqs, 3)
	require.Equal(t, StringSpec, reqs[0].Kind)
	require.Equal(t, LocalSource, reqs[1].Kind)
	require.Equal(t, LocalSource, reqs[2].Kind)
	require.Equal(t, "./", reqs[2].Spec)
	require.Len(t, e.Reqs, 2)
}

func TestParseRequirement(t *testing.T) {
	t.Chdir(t.TempDir())

	req := ParseRequirement("mylib")
	require.Equal(t, StringSpec, req.Kind)
	require.NoError(t, os.Mkdir("mylib", 0700))

	pkg, err := req.Resolve()
	require.NoError(t, err)
	require.Equal(t, packages.MethodPip, pkg.Method)
	require.Equal(t, "mylib", pkg.Spec)

	req = ParseRequirement("mylib")
	require.Equal(t, LocalSource, req.Kind)
	pkg, err = req.Resolve()
	require.NoError(t, err)
	require.Equal(t, packages.MethodLocal, pkg.Method)
}

func TestConfig(t *testing.T) {
	for _, e := range []*Env{
		New("e", []string{"numpy", "./src"}, []string{"echo a"}, map[string]string{"FOO": "bar"}, "/work"),
		NewConda("c", "base", nil, nil, nil, ""),
		New("", nil, nil, nil, ""),
	} {
		t.Run(e.String(), func(t *testing.T) {
			loaded, err := FromConfig(e.Config(), false)
			require.NoError(t, err)
			require.Equal(t, e.Config(), loaded.Config())
		})
	}

	t.Run("structured package", func(t *testing.T) {
		e := New("e", nil, nil, nil, "")
		e.Reqs = append(e.Reqs, PackageRequirement(packages.FromString("local:"+t.TempDir())))
		loaded, err := FromConfig(e.Config(), false)
		require.NoError(t, err)
		require.Equal(t, StructuredPackage, loaded.Reqs[0].Kind)
		require.Equal(t, e.Reqs[0].Package.String(), loaded.Reqs[0].Package.String())
	})

	t.Run("unknown subtype", func(t *testing.T) {
		config := New("e", nil, nil, nil, "").Config()
		config["resource_subtype"] = "Foo"
		_, err := FromConfig(config, false)
		require.ErrorContains(t, err, "unknown env subtype")
	})
}

func TestInstall(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())

	t.Run("idempotence", func(t *testing.T) {
		hst := &recordingHost{exitCodes: map[string]int{"echo b": 2}}
		record := install.NewRecord()
		e := New("e", []string{"numpy"}, []string{"echo a", "echo b"}, nil, "")

		exitCodes, err := e.Install(ctx, hst, record, false)
		require.NoError(t, err)
		require.Equal(t, []int{0, 2}, exitCodes)
		require.Equal(t, []string{"pip install numpy", "echo a", "echo b"}, hst.commands())

		exitCodes, err = e.Install(ctx, hst, record, false)
		require.NoError(t, err)
		require.Nil(t, exitCodes)
		require.Len(t, hst.commands(), 3)

		renamed := New("renamed", []string{"numpy"}, []string{"echo a", "echo b"}, nil, "")
		_, err = renamed.Install(ctx, hst, record, false)
		require.NoError(t, err)
		require.Len(t, hst.commands(), 3)

		exitCodes, err = e.Install(ctx, hst, record, true)
		require.NoError(t, err)
		require.Equal(t, []int{0, 2}, exitCodes)
		require.Len(t, hst.commands(), 6)

		fingerprint, err := e.Fingerprint()
		require.NoError(t, err)
		name, ok := record.Lookup(fingerprint)
		require.True(t, ok)
		require.Equal(t, "e", name)
	})

	t.Run("without setup commands", func(t *testing.T) {
		e := New("e", nil, nil, nil, "")
		exitCodes, err := e.Install(ctx, &recordingHost{}, install.NewRecord(), false)
		require.NoError(t, err)
		require.Equal(t, []int{}, exitCodes)
	})

	t.Run("concurrent", func(t *testing.T) {
		hst := &recordingHost{}
		record := install.NewRecord()
		var wg sync.WaitGroup
		for i := range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e := New(fmt.Sprintf("e%d", i), nil, []string{"echo a"}, nil, "")
				if _, err := e.Install(ctx, hst, record, false); err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, []string{"echo a"}, hst.commands())
	})

	t.Run("invalid requirement", func(t *testing.T) {
		hst := &recordingHost{}
		record := install.NewRecord()
		e := New("e", nil, []string{"echo a"}, nil, "")
		e.Reqs = []Requirement{{Kind: StructuredPackage}}
		_, err := e.Install(ctx, hst, record, false)
		require.ErrorIs(t, err, packages.ErrInvalidRequirement)
		require.Empty(t, hst.commands())
		require.Zero(t, record.Len())
	})

	t.Run("does not change the env", func(t *testing.T) {
		e := New("e", []string{"numpy"}, []string{"echo a"}, map[string]string{"FOO": "bar"}, "")
		before := e.Config()
		_, err := e.Install(ctx, &recordingHost{}, install.NewRecord(), false)
		require.NoError(t, err)
		require.Equal(t, before, e.Config())
	})
}

func TestRun(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())

	t.Run("conda prefix", func(t *testing.T) {
		hst := &recordingHost{exitCodes: map[string]int{"conda run -n myenv cmd1 --flag": 3}}
		e := NewConda("e", "myenv", nil, nil, nil, "")
		exitCodes, err := e.Run(ctx, hst, []string{"cmd1 --flag", "cmd2"})
		require.NoError(t, err)
		require.Equal(t, []int{3, 0}, exitCodes)
		require.Equal(t, []string{
			"conda run -n myenv cmd1 --flag",
			"conda run -n myenv cmd2",
		}, hst.commands())
	})

	t.Run("conda name defaults to env name", func(t *testing.T) {
		hst := &recordingHost{}
		e := NewConda("e", "", nil, nil, nil, "")
		_, err := e.Run(ctx, hst, []string{"cmd"})
		require.NoError(t, err)
		require.Equal(t, []string{"conda run -n e cmd"}, hst.commands())
	})

	t.Run("env vars", func(t *testing.T) {
		hst := &recordingHost{}
		e := New("e", nil, nil, map[string]string{"FOO": "bar", "LANG": "C"}, "")
		_, err := e.Run(ctx, hst, []string{"env"})
		require.NoError(t, err)
		require.Len(t, hst.cmds, 1)
		require.Contains(t, hst.cmds[0].Env, "FOO=bar")
		require.Contains(t, hst.cmds[0].Env, "LANG=C")
		require.NotContains(t, hst.cmds[0].Env, "LANG=en_US.UTF-8")
		require.Contains(t, hst.cmds[0].Env, types.DefaultEnv[1])
	})

	t.Run("quoting", func(t *testing.T) {
		hst := &recordingHost{}
		e := New("e", nil, nil, nil, "")
		_, err := e.Run(ctx, hst, []string{`sh -c "echo a b"`})
		require.NoError(t, err)
		require.Equal(t, []string{"-c", "echo a b"}, hst.cmds[0].Args)
	})

	t.Run("local host", func(t *testing.T) {
		e := New("e", nil, nil, map[string]string{"FOO": "bar"}, "")
		exitCodes, err := e.Run(ctx, host.Local{}, []string{"true", "false", `sh -c "test $FOO = bar"`})
		require.NoError(t, err)
		require.Equal(t, []int{0, 1, 0}, exitCodes)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	hclPath := filepath.Join(dir, "envs.hcl")
	require.NoError(t, os.WriteFile(hclPath, []byte(`
env "train" {
  reqs       = ["numpy", "conda:pytorch"]
  setup_cmds = ["echo ready"]
  env_vars   = { MODE = "train" }
}

env "conda" {
  conda_env_name = "base"
}
`), 0600))
	jsonPath := filepath.Join(dir, "envs.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"env": {"serve": {"setup_cmds": ["echo serve"]}}}`), 0600))

	envs, err := Load([]string{hclPath, jsonPath})
	require.NoError(t, err)
	require.Len(t, envs, 3)

	require.Equal(t, "conda", envs[0].Name)
	require.Equal(t, SubtypeConda, envs[0].Subtype)
	require.Equal(t, "base", envs[0].CondaEnvName)

	require.Equal(t, "serve", envs[1].Name)
	require.Equal(t, []string{"echo serve"}, envs[1].SetupCmds)

	require.Equal(t, "train", envs[2].Name)
	require.Equal(t, SubtypeEnv, envs[2].Subtype)
	require.Equal(t, []string{"echo ready"}, envs[2].SetupCmds)
	require.Equal(t, map[string]string{"MODE": "train"}, envs[2].EnvVars)
	require.Len(t, envs[2].Reqs, 2)

	t.Run("duplicate", func(t *testing.T) {
		_, err := Load([]string{hclPath, hclPath})
		require.ErrorContains(t, err, "declared more than once")
	})

	t.Run("invalid", func(t *testing.T) {
		badPath := filepath.Join(dir, "bad.hcl")
		require.NoError(t, os.WriteFile(badPath, []byte(`env "x" { foo = 1 }`), 0600))
		_, err := Load([]string{badPath})
		require.ErrorContains(t, err, "HCL parsing errors")
	})
}

func newSourceTree(t *testing.T) string {
	src := filepath.Join(t.TempDir(), "project")
	require.NoError(t, os.MkdirAll(src, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(src, "main.py"), []byte("print(1)"), 0600))
	return src
}

func TestTo(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	src := newSourceTree(t)
	e := New("e", []string{"numpy", src}, []string{"echo a"}, nil, src)
	before := e.Config()

	dest := t.TempDir()
	newEnv, err := e.To(ctx, location.SystemFile, ToOptions{Path: dest})
	require.NoError(t, err)
	require.Equal(t, before, e.Config())

	require.Len(t, newEnv.Reqs, 2)
	require.Equal(t, StringSpec, newEnv.Reqs[0].Kind)
	require.Equal(t, StructuredPackage, newEnv.Reqs[1].Kind)
	require.Equal(t, filepath.Join(dest, "project"), newEnv.Reqs[1].Package.Target.Path())
	require.NotNil(t, newEnv.WorkingDir)
	require.Equal(t, filepath.Join(dest, "project"), newEnv.WorkingDir.Package.Target.Path())

	data, err := os.ReadFile(filepath.Join(dest, "project", "main.py"))
	require.NoError(t, err)
	require.Equal(t, []byte("print(1)"), data)

	newEnv.SetupCmds[0] = "echo changed"
	require.Equal(t, "echo a", e.SetupCmds[0])
}

func TestToCluster(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	src := newSourceTree(t)
	counter := filepath.Join(t.TempDir(), "counter")

	c := cluster.NewHostCluster("local", host.Local{}, filepath.Join(t.TempDir(), "store", "blobs"))
	defer func() { require.NoError(t, c.Close(ctx)) }()

	e := New("", nil, []string{fmt.Sprintf(`sh -c "echo x >> %s"`, counter)}, nil, src)

	countRuns := func() int {
		data, err := os.ReadFile(counter)
		require.NoError(t, err)
		return strings.Count(string(data), "x")
	}

	newEnv, err := e.ToCluster(ctx, c, ToOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, countRuns())
	require.Equal(t, location.SystemFile, newEnv.WorkingDir.Package.Target.System())
	packagesDir := filepath.Join(filepath.Dir(c.DefaultStorePath()), "packages")
	require.Equal(t, filepath.Join(packagesDir, "project"), newEnv.WorkingDir.Package.Target.Path())
	_, err = os.Stat(filepath.Join(packagesDir, "project", "main.py"))
	require.NoError(t, err)

	_, err = e.ToCluster(ctx, c, ToOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, countRuns())
	require.Equal(t, 1, c.Record().Len())

	_, err = e.ToCluster(ctx, c, ToOptions{ForceInstall: true})
	require.NoError(t, err)
	require.Equal(t, 2, countRuns())

	t.Run("here", func(t *testing.T) {
		_, err := e.To(cluster.WithCurrent(ctx, c), "here", ToOptions{})
		require.NoError(t, err)
		require.Equal(t, 2, countRuns())
	})

	t.Run("mount", func(t *testing.T) {
		mountDir := filepath.Join(t.TempDir(), "mounted")
		_, err := e.ToCluster(ctx, c, ToOptions{Path: mountDir, Mount: true})
		require.NoError(t, err)
		target, err := os.Readlink(filepath.Join(mountDir, "project"))
		require.NoError(t, err)
		require.Equal(t, src, target)
	})
}

func TestHandler(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	c := cluster.NewHostCluster("local", host.Local{}, t.TempDir())
	e := New("e", nil, nil, map[string]string{"FOO": "bar"}, "")
	key, err := c.PutResource(ctx, e.Config())
	require.NoError(t, err)
	require.Equal(t, "e", key)

	result, err := c.CallMethod(ctx, key, "run", map[string]any{"cmds": []any{"true", `sh -c "test $FOO = baz"`}})
	require.NoError(t, err)
	require.Equal(t, []any{0, 1}, result)

	fingerprint, err := e.Fingerprint()
	require.NoError(t, err)
	result, err = c.CallMethod(ctx, key, "fingerprint", nil)
	require.NoError(t, err)
	require.Equal(t, fingerprint, result)

	_, err = c.CallMethod(ctx, key, "foo", nil)
	require.ErrorContains(t, err, "no method")
}

// remoteHost is a Host of another type, whose files are local but commands are recorded
// instead of run.
type remoteHost struct {
	host.Local
	mu   sync.Mutex
	cmds []string
}

func (h *remoteHost) Run(ctx context.Context, cmd types.Cmd) (types.WaitStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd.String())
	return types.WaitStatus{Exited: true}, nil
}

func (h *remoteHost) Type() string { return host.TypeSsh }

func (h *remoteHost) String() string { return "remote" }

func (h *remoteHost) commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.cmds)
}

func TestToRemoteCluster(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	src := newSourceTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(src, "requirements.txt"), []byte("numpy\n"), 0600))

	hst := &remoteHost{}
	storePath := filepath.Join(t.TempDir(), "store", "blobs")
	c := cluster.NewHostCluster("remote", hst, storePath)
	defer func() { require.NoError(t, c.Close(ctx)) }()

	e := New("e", []string{"numpy"}, []string{"echo done"}, nil, src)
	newEnv, err := e.ToCluster(ctx, c, ToOptions{Mount: true})
	require.NoError(t, err)

	project := filepath.Join(filepath.Dir(storePath), "packages", "project")
	require.Equal(t, project, newEnv.WorkingDir.Package.Target.Path())
	_, err = os.Stat(filepath.Join(project, "requirements.txt"))
	require.NoError(t, err)
	require.Equal(t, []string{
		"pip install numpy",
		"pip install -r " + filepath.Join(project, "requirements.txt"),
		"echo done",
	}, hst.commands())

	_, err = e.ToCluster(ctx, c, ToOptions{})
	require.NoError(t, err)
	require.Len(t, hst.commands(), 3)
}

var errClosed = errors.New("use of closed connection")

// closableBackend fails once closed, as a network connection would.
type closableBackend struct {
	*location.HostBackend
	closed bool
}

func (b *closableBackend) Stat(ctx context.Context, name string) (location.Entry, error) {
	if b.closed {
		return location.Entry{}, errClosed
	}
	return b.HostBackend.Stat(ctx, name)
}

func (b *closableBackend) Close(ctx context.Context) error {
	b.closed = true
	return nil
}

func TestToSystem(t *testing.T) {
	ctx := log.WithTestLogger(t.Context())
	src := newSourceTree(t)
	e := New("e", nil, nil, nil, src)

	t.Run("remote system", func(t *testing.T) {
		location.RegisterSystem("closable", func(ctx context.Context, options location.Options) (location.Backend, error) {
			return &closableBackend{HostBackend: location.NewHostBackend(host.Local{})}, nil
		})
		dest := t.TempDir()
		newEnv, err := e.To(ctx, "closable", ToOptions{Path: dest})
		require.NoError(t, err)

		target := newEnv.WorkingDir.Package.Target
		require.Equal(t, "closable", target.System())
		require.Equal(t, filepath.Join(dest, "project"), target.Path())
		exists, err := target.Exists(ctx, "main.py")
		require.NoError(t, err)
		require.True(t, exists)
		require.NoError(t, target.Close(ctx))
	})

	t.Run("here without cluster", func(t *testing.T) {
		cacheDir := t.TempDir()
		t.Setenv("XDG_CACHE_HOME", cacheDir)
		t.Setenv(cluster.ConfigEnvVar, "")

		newEnv, err := e.To(ctx, "here", ToOptions{})
		require.NoError(t, err)
		target := newEnv.WorkingDir.Package.Target
		require.Equal(t, location.SystemFile, target.System())
		project := filepath.Join(cacheDir, "roam", "packages", "project")
		require.Equal(t, project, target.Path())
		data, err := os.ReadFile(filepath.Join(project, "main.py"))
		require.NoError(t, err)
		require.Equal(t, []byte("print(1)"), data)
	})
}
