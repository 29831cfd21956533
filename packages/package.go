// Package packages describes software requirements of an Env and how to install them.
package packages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/location"
	"github.com/fornellas/roam/resource"
)

var (
	ErrInvalidRequirement = errors.New("invalid requirement")
	ErrMountUnsupported   = errors.New("mount unsupported")
)

// Install methods.
const (
	MethodPip   = "pip"
	MethodConda = "conda"
	MethodApt   = "apt"
	MethodReqs  = "reqs"
	MethodLocal = "local"
)

// ResourceType is the resource type of a Package Config.
const ResourceType = "package"

// Installer runs the commands that install packages.
type Installer interface {
	// RunCommand runs args, returning its exit code.
	RunCommand(ctx context.Context, args []string) (int, error)
}

// Mounter makes a source tree available at a path without copying it.
type Mounter interface {
	// Mount makes src available at dest. Returns ErrMountUnsupported when src can not be
	// mounted.
	Mount(ctx context.Context, src *location.Location, dest string) error
}

// Package is a requirement that can be installed. Either Spec or Target is set, depending
// on Method.
type Package struct {
	Method string
	// Spec for pip, conda and apt, eg: "numpy==1.26".
	Spec string
	// Target is the source tree for reqs and local.
	Target *location.Location
}

func isSpecMethod(method string) bool {
	switch method {
	case MethodPip, MethodConda, MethodApt:
		return true
	}
	return false
}

func isTargetMethod(method string) bool {
	switch method {
	case MethodReqs, MethodLocal:
		return true
	}
	return false
}

// IsLocalPath reports whether s names a local source tree: it either looks like a path or
// is an existing directory.
func IsLocalPath(s string) bool {
	if s == "." || s == ".." {
		return true
	}
	for _, prefix := range []string{"./", "../", "/", "~/"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	fileInfo, err := os.Stat(s)
	return err == nil && fileInfo.IsDir()
}

// FromString parses "method:spec" strings, eg: "conda:numpy" or "local:./src". Strings
// without a known method are local source trees when IsLocalPath, else pip specs.
func FromString(s string) *Package {
	if method, rest, ok := strings.Cut(s, ":"); ok {
		switch {
		case isSpecMethod(method):
			return &Package{Method: method, Spec: rest}
		case isTargetMethod(method):
			return &Package{Method: method, Target: location.New(location.SystemFile, rest, nil)}
		}
	}
	if IsLocalPath(s) {
		return &Package{Method: MethodLocal, Target: location.New(location.SystemFile, s, nil)}
	}
	return &Package{Method: MethodPip, Spec: s}
}

// FromConfig loads a Package from its Config.
func FromConfig(config resource.Config) (*Package, error) {
	method := config.String("install_method")
	switch target := config["install_target"].(type) {
	case string:
		if !isSpecMethod(method) {
			return nil, fmt.Errorf("%w: install method %#v requires a location", ErrInvalidRequirement, method)
		}
		return &Package{Method: method, Spec: target}, nil
	case map[string]any:
		if !isTargetMethod(method) {
			return nil, fmt.Errorf("%w: install method %#v requires a spec", ErrInvalidRequirement, method)
		}
		targetLocation, err := location.FromConfig(resource.Config(target))
		if err != nil {
			return nil, err
		}
		return &Package{Method: method, Target: targetLocation}, nil
	default:
		return nil, fmt.Errorf("%w: bad install_target %T", ErrInvalidRequirement, target)
	}
}

// Config returns the persistable configuration.
func (p *Package) Config() resource.Config {
	config := resource.Config{
		resource.KeyType: ResourceType,
		"install_method":  p.Method,
	}
	if p.Target != nil {
		config["install_target"] = map[string]any(p.Target.Config())
	} else {
		config["install_target"] = p.Spec
	}
	return config
}

func (p *Package) String() string {
	if p.Target != nil {
		return fmt.Sprintf("%s:%s", p.Method, p.Target.Path())
	}
	return fmt.Sprintf("%s:%s", p.Method, p.Spec)
}

// WithTarget returns a copy of the Package installing from target.
func (p *Package) WithTarget(target *location.Location) *Package {
	return &Package{Method: p.Method, Spec: p.Spec, Target: target}
}

func run(ctx context.Context, installer Installer, args ...string) error {
	exitCode, err := installer.RunCommand(ctx, args)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("%s: exited with %d", shellquote.Join(args...), exitCode)
	}
	return nil
}

func (p *Package) installTarget(ctx context.Context, installer Installer) error {
	hasRequirements, err := p.Target.Exists(ctx, "requirements.txt")
	if err != nil {
		return err
	}
	if hasRequirements {
		if err := run(ctx, installer, "pip", "install", "-r", p.Target.Join("requirements.txt")); err != nil {
			return err
		}
	}
	if p.Method != MethodLocal {
		return nil
	}
	for _, name := range []string{"setup.py", "pyproject.toml"} {
		exists, err := p.Target.Exists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			return run(ctx, installer, "pip", "install", p.Target.Path())
		}
	}
	return nil
}

// Install installs the package with installer.
func (p *Package) Install(ctx context.Context, installer Installer) error {
	ctx, _ = log.MustWithGroupAttrs(ctx, "📦 Package", "package", p.String())
	if isTargetMethod(p.Method) {
		if p.Target == nil {
			return fmt.Errorf("%w: %s has no install target", ErrInvalidRequirement, p)
		}
		return p.installTarget(ctx, installer)
	}
	if !isSpecMethod(p.Method) {
		return fmt.Errorf("%w: unknown install method %#v", ErrInvalidRequirement, p.Method)
	}
	specArgs, err := shellquote.Split(p.Spec)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRequirement, p, err)
	}
	if len(specArgs) == 0 {
		return fmt.Errorf("%w: %s: empty spec", ErrInvalidRequirement, p)
	}
	switch p.Method {
	case MethodPip:
		return run(ctx, installer, append([]string{"pip", "install"}, specArgs...)...)
	case MethodConda:
		return run(ctx, installer, append([]string{"conda", "install", "-y"}, specArgs...)...)
	default:
		return run(ctx, installer, append([]string{"apt-get", "install", "-y"}, specArgs...)...)
	}
}

// Relocate makes the install target available within dest, under the same base name, and
// returns a Package installing from there. When mounter is given, mounting is tried first,
// falling back to a copy if unsupported. Packages without a target are returned unchanged.
func (p *Package) Relocate(ctx context.Context, dest *location.Location, mounter Mounter) (*Package, error) {
	if p.Target == nil {
		return p, nil
	}
	ctx, logger := log.MustWithGroupAttrs(ctx, "📦 Package", "package", p.String())
	name := path.Base(p.Target.Path())

	if mounter != nil {
		err := mounter.Mount(ctx, p.Target, dest.Join(name))
		if err == nil {
			logger.Debug("Mounted", "dest", dest.Join(name))
			return p.WithTarget(dest.Sub(name)), nil
		}
		if !errors.Is(err, ErrMountUnsupported) {
			return nil, err
		}
	}

	if err := p.Target.CopyEntryTo(ctx, "", dest, name); err != nil {
		return nil, err
	}
	logger.Debug("Copied", "dest", dest.Join(name))
	return p.WithTarget(dest.Sub(name)), nil
}
