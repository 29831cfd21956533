// Package env declares execution environments and provisions them idempotently.
package env

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"path"
	"slices"

	"github.com/kballard/go-shellquote"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/cluster"
	"github.com/fornellas/roam/host/types"
	"github.com/fornellas/roam/install"
	"github.com/fornellas/roam/location"
	"github.com/fornellas/roam/packages"
	"github.com/fornellas/roam/resource"
)

// ResourceType is the resource type of Env configs.
const ResourceType = "env"

// Env subtypes.
const (
	SubtypeEnv   = "Env"
	SubtypeConda = "CondaEnv"
)

// Env is a declared execution environment: requirements to install, setup commands to run
// after them and variables for every command run within it.
type Env struct {
	resource.Resource
	Reqs []Requirement
	// WorkingDir is installed after Reqs, when set.
	WorkingDir *Requirement
	SetupCmds  []string
	EnvVars    map[string]string
	// CondaEnvName is the conda environment commands run within, for SubtypeConda. Defaults
	// to Name.
	CondaEnvName string
}

// New creates an Env of SubtypeEnv.
func New(name string, reqs []string, setupCmds []string, envVars map[string]string, workingDir string) *Env {
	e := &Env{
		Resource: resource.Resource{
			Name:    name,
			Type:    ResourceType,
			Subtype: SubtypeEnv,
		},
		SetupCmds: setupCmds,
		EnvVars:   envVars,
	}
	for _, req := range reqs {
		e.Reqs = append(e.Reqs, ParseRequirement(req))
	}
	if workingDir != "" {
		req := ParseRequirement(workingDir)
		e.WorkingDir = &req
	}
	return e
}

// NewConda creates an Env of SubtypeConda, running commands within conda environment
// condaEnvName.
func NewConda(
	name, condaEnvName string, reqs []string, setupCmds []string, envVars map[string]string, workingDir string,
) *Env {
	e := New(name, reqs, setupCmds, envVars, workingDir)
	e.Subtype = SubtypeConda
	e.CondaEnvName = condaEnvName
	return e
}

// Requirements returns all requirements, with WorkingDir last.
func (e *Env) Requirements() []Requirement {
	reqs := slices.Clone(e.Reqs)
	if e.WorkingDir != nil {
		reqs = append(reqs, *e.WorkingDir)
	}
	return reqs
}

// Config returns the persistable configuration.
func (e *Env) Config() resource.Config {
	config := e.Resource.Config()
	reqs := []any{}
	for _, req := range e.Reqs {
		reqs = append(reqs, req.config())
	}
	config["reqs"] = reqs
	setupCmds := []any{}
	for _, cmd := range e.SetupCmds {
		setupCmds = append(setupCmds, cmd)
	}
	config["setup_cmds"] = setupCmds
	envVars := map[string]any{}
	for k, v := range e.EnvVars {
		envVars[k] = v
	}
	config["env_vars"] = envVars
	if e.WorkingDir != nil {
		config["working_dir"] = e.WorkingDir.config()
	} else {
		config["working_dir"] = nil
	}
	if e.Subtype == SubtypeConda {
		config["conda_env_name"] = e.CondaEnvName
	}
	return config
}

// FromConfig loads an Env from its Config.
func FromConfig(config resource.Config, dryrun bool) (*Env, error) {
	e := &Env{
		Resource: resource.FromConfig(config, dryrun),
	}
	if e.Type == "" {
		e.Type = ResourceType
	}
	switch e.Subtype {
	case "":
		e.Subtype = SubtypeEnv
	case SubtypeEnv:
	case SubtypeConda:
		e.CondaEnvName = config.String("conda_env_name")
	default:
		return nil, fmt.Errorf("unknown env subtype %#v", e.Subtype)
	}

	reqs, ok := config["reqs"].([]any)
	if !ok && config["reqs"] != nil {
		strs, err := config.Strings("reqs")
		if err != nil {
			return nil, err
		}
		for _, s := range strs {
			reqs = append(reqs, s)
		}
	}
	for _, value := range reqs {
		req, err := requirementFromConfig(value)
		if err != nil {
			return nil, err
		}
		e.Reqs = append(e.Reqs, req)
	}

	if workingDir := config["working_dir"]; workingDir != nil {
		req, err := requirementFromConfig(workingDir)
		if err != nil {
			return nil, err
		}
		e.WorkingDir = &req
	}

	var err error
	if e.SetupCmds, err = config.Strings("setup_cmds"); err != nil {
		return nil, err
	}
	if e.EnvVars, err = config.StringMap("env_vars"); err != nil {
		return nil, err
	}
	return e, nil
}

// Fingerprint is a hash of the Env content. It does not depend on Name.
func (e *Env) Fingerprint() (string, error) {
	data, err := json.Marshal(e.Config().Without(resource.KeyName))
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (e *Env) condaEnvName() string {
	if e.CondaEnvName != "" {
		return e.CondaEnvName
	}
	return e.Name
}

// Prefix returns the command that runs its arguments within the Env.
func (e *Env) Prefix() []string {
	if e.Subtype == SubtypeConda {
		return []string{"conda", "run", "-n", e.condaEnvName()}
	}
	return nil
}

// Installer runs commands within the Env at target.
func (e *Env) Installer(target types.BaseHost) packages.HostInstaller {
	return packages.HostInstaller{
		Host:   target,
		Prefix: e.Prefix(),
		Env:    maps.Clone(e.EnvVars),
	}
}

// Run runs each command within the Env at target, one after the other, and returns their
// exit codes. Failed commands do not stop the following ones.
func (e *Env) Run(ctx context.Context, target types.BaseHost, cmds []string) ([]int, error) {
	ctx, _ = log.MustWithGroupAttrs(ctx, "📦 Env", "env", e.String())
	installer := e.Installer(target)
	exitCodes := []int{}
	for _, cmd := range cmds {
		args, err := shellquote.Split(cmd)
		if err != nil {
			return exitCodes, fmt.Errorf("%#v: %w", cmd, err)
		}
		if len(args) == 0 {
			return exitCodes, fmt.Errorf("empty command")
		}
		exitCode, err := installer.RunCommand(ctx, args)
		if err != nil {
			return exitCodes, err
		}
		exitCodes = append(exitCodes, exitCode)
	}
	return exitCodes, nil
}

// sourceAt returns pkg reading its file system source tree through target, when target
// is a full Host: paths are at the host where the Env is installed.
func sourceAt(pkg *packages.Package, target types.BaseHost) *packages.Package {
	hst, ok := target.(types.Host)
	if !ok || pkg.Target == nil || pkg.Target.System() != location.SystemFile {
		return pkg
	}
	return pkg.WithTarget(location.NewHostLocation(hst, pkg.Target.Path()))
}

// Install installs all requirements at target, in order, then runs the setup commands,
// returning their exit codes. When record already has the Env fingerprint and force is
// false, nothing is done and nil is returned. The Env itself is never changed.
func (e *Env) Install(ctx context.Context, target types.BaseHost, record *install.Record, force bool) ([]int, error) {
	fingerprint, err := e.Fingerprint()
	if err != nil {
		return nil, err
	}
	ctx, logger := log.MustWithGroupAttrs(ctx, "📦 Env", "env", e.String(), "fingerprint", fingerprint[:12])
	logger.Info("Install", "force", force)

	var exitCodes []int
	_, err = record.Do(ctx, fingerprint, e.Name, force, func(ctx context.Context) error {
		installer := e.Installer(target)
		for _, req := range e.Requirements() {
			pkg, err := req.Resolve()
			if err != nil {
				return err
			}
			if err := sourceAt(pkg, target).Install(ctx, installer); err != nil {
				return err
			}
		}
		var err error
		exitCodes, err = e.Run(ctx, target, e.SetupCmds)
		return err
	})
	if err != nil {
		return nil, err
	}
	return exitCodes, nil
}

// copy is an independent snapshot, sharing no mutable state with e.
func (e *Env) copy() *Env {
	c := &Env{
		Resource:     e.Resource,
		Reqs:         slices.Clone(e.Reqs),
		SetupCmds:    slices.Clone(e.SetupCmds),
		EnvVars:      maps.Clone(e.EnvVars),
		CondaEnvName: e.CondaEnvName,
	}
	if e.WorkingDir != nil {
		workingDir := *e.WorkingDir
		c.WorkingDir = &workingDir
	}
	return c
}

// ToOptions control Env relocation.
type ToOptions struct {
	// Path is the directory source trees are copied into. Defaults to a "packages" directory
	// next to the default store path.
	Path string
	// Options for the destination system.
	Options location.Options
	// Mount source trees instead of copying them, when the destination supports it.
	Mount bool
	// ForceInstall reinstalls at a Cluster even when already installed.
	ForceInstall bool
}

func packagesPath(storePath string) string {
	return path.Join(path.Dir(storePath), "packages")
}

// reqsTo relocates every requirement with a source tree into dest, keeping order.
func (e *Env) reqsTo(
	ctx context.Context, dest *location.Location, mounter packages.Mounter, rebase func(*location.Location) *location.Location,
) ([]Requirement, *Requirement, error) {
	var relocated []Requirement
	for _, req := range e.Requirements() {
		if !req.HasSource() {
			relocated = append(relocated, req)
			continue
		}
		pkg, err := req.Package.Relocate(ctx, dest, mounter)
		if err != nil {
			return nil, nil, err
		}
		if rebase != nil {
			pkg = pkg.WithTarget(rebase(pkg.Target))
		}
		relocated = append(relocated, PackageRequirement(pkg))
	}
	if e.WorkingDir != nil {
		workingDir := relocated[len(relocated)-1]
		return relocated[:len(relocated)-1], &workingDir, nil
	}
	return relocated, nil, nil
}

// To returns a copy of the Env with its source trees copied to system. System "here" is
// the current Cluster when there is one, else the local file system. The original Env is
// never changed, and only relocation to a Cluster installs.
func (e *Env) To(ctx context.Context, system string, opts ToOptions) (*Env, error) {
	if system == "here" {
		c, err := cluster.Current(ctx)
		if err != nil {
			return nil, err
		}
		if c != nil {
			return e.ToCluster(ctx, c, opts)
		}
		system = location.SystemFile
	}

	destPath := opts.Path
	if destPath == "" {
		destPath = packagesPath(location.DefaultPath(system, opts.Options))
	}
	dest := location.New(system, destPath, opts.Options)
	defer func() { _ = dest.Close(ctx) }()

	newEnv := e.copy()
	var err error
	newEnv.Reqs, newEnv.WorkingDir, err = e.reqsTo(ctx, dest, nil, nil)
	if err != nil {
		return nil, err
	}
	return newEnv, nil
}

// ToCluster returns a copy of the Env with its source trees at the Cluster host, registers
// it at the Cluster and installs it there.
func (e *Env) ToCluster(ctx context.Context, c cluster.Cluster, opts ToOptions) (*Env, error) {
	ctx, logger := log.MustWithGroupAttrs(ctx, "📦 Env", "env", e.String(), "cluster", c.Name())

	destPath := opts.Path
	if destPath == "" {
		destPath = packagesPath(c.DefaultStorePath())
	}
	dest := location.NewHostLocation(c.Host(), destPath)

	var mounter packages.Mounter
	if opts.Mount {
		if m, ok := c.(packages.Mounter); ok {
			mounter = m
		} else {
			logger.Warn("Cluster does not support mounting, copying instead")
		}
	}

	// Relocated trees are file system paths at the cluster host, where Install reads them.
	rebase := func(l *location.Location) *location.Location {
		return location.New(location.SystemFile, l.Path(), nil)
	}

	newEnv := e.copy()
	var err error
	newEnv.Reqs, newEnv.WorkingDir, err = e.reqsTo(ctx, dest, mounter, rebase)
	if err != nil {
		return nil, err
	}

	key, err := c.PutResource(ctx, newEnv.Config())
	if err != nil {
		return nil, err
	}
	if _, err := c.CallMethod(ctx, key, "install", map[string]any{"force": opts.ForceInstall}); err != nil {
		return nil, err
	}
	return newEnv, nil
}
