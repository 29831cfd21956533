// Package location names where bytes live, as a (system, path, options) triple, and moves
// them between systems.
package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fornellas/roam/host"
	"github.com/fornellas/roam/host/types"
	"github.com/fornellas/roam/resource"
)

// Options are system specific settings, eg: the ssh host or the s3 region.
type Options map[string]string

// Clone returns an independent copy.
func (o Options) Clone() Options {
	if o == nil {
		return Options{}
	}
	return maps.Clone(o)
}

// Location is a directory at a system. Its Backend is connected on first use, and
// changing system, path or options drops it.
type Location struct {
	system      string
	path        string
	options     Options
	backend     Backend
	ownsBackend bool
}

func normalizePath(system, p string) string {
	if system == SystemFile {
		if home, err := os.UserHomeDir(); err == nil && (p == "~" || strings.HasPrefix(p, "~/")) {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
		if !filepath.IsAbs(p) {
			if abs, err := filepath.Abs(p); err == nil {
				p = abs
			}
		}
	}
	if p == "" {
		return ""
	}
	if !path.IsAbs(p) {
		p = "/" + p
	}
	return path.Clean(p)
}

// New creates a Location. An empty path uses DefaultPath. Relative paths for the file
// system are relative to the current directory.
func New(system, p string, options Options) *Location {
	if system == "" {
		system = SystemFile
	}
	options = options.Clone()
	if p == "" {
		p = DefaultPath(system, options)
	}
	return &Location{
		system:  system,
		path:    normalizePath(system, p),
		options: options,
	}
}

// HostSystem maps a host type to the Location system that reaches it.
func HostSystem(hst types.Host) string {
	switch hst.Type() {
	case host.TypeSsh:
		return SystemSsh
	case host.TypeDocker:
		return SystemDocker
	default:
		return SystemFile
	}
}

// NewHostLocation creates a Location at an already connected Host. The host is not
// closed by Close.
func NewHostLocation(hst types.Host, p string) *Location {
	system := HostSystem(hst)
	options := Options{}
	switch system {
	case SystemSsh:
		options["host"] = hst.String()
	case SystemDocker:
		options["container"] = hst.String()
	}
	return &Location{
		system:  system,
		path:    path.Clean(p),
		options: options,
		backend: NewHostBackend(hst),
	}
}

// FromConfig creates a Location from a persisted configuration.
func FromConfig(config resource.Config) (*Location, error) {
	options := Options{}
	switch value := config["options"].(type) {
	case nil:
	case map[string]string:
		options = value
	default:
		m, err := config.StringMap("options")
		if err != nil {
			return nil, err
		}
		options = m
	}
	return New(config.String("system"), config.String("path"), options), nil
}

// Config returns the persistable configuration.
func (l *Location) Config() resource.Config {
	options := map[string]any{}
	for k, v := range l.options {
		options[k] = v
	}
	return resource.Config{
		"system":  l.system,
		"path":    l.path,
		"options": options,
	}
}

func (l *Location) System() string {
	return l.system
}

func (l *Location) Path() string {
	return l.path
}

// Options returns a copy of the options.
func (l *Location) Options() Options {
	return l.options.Clone()
}

func (l *Location) drop() {
	l.backend = nil
	l.ownsBackend = false
}

func (l *Location) SetSystem(system string) {
	l.system = system
	l.drop()
}

func (l *Location) SetPath(p string) {
	l.path = normalizePath(l.system, p)
}

func (l *Location) SetOptions(options Options) {
	l.options = options.Clone()
	l.drop()
}

func (l *Location) String() string {
	return fmt.Sprintf("%s://%s", l.system, l.path)
}

// Join returns the full path for name within the Location.
func (l *Location) Join(name string) string {
	return path.Join(l.path, name)
}

// Sub returns the Location for directory name within this one. A Backend bound by
// NewHostLocation is shared, as its Host outlives both. A Backend connected by l is not, so
// Sub stays usable after l is closed: it connects on its own first use.
func (l *Location) Sub(name string) *Location {
	sub := &Location{
		system:  l.system,
		path:    l.Join(name),
		options: l.options.Clone(),
	}
	if !l.ownsBackend {
		sub.backend = l.backend
	}
	return sub
}

// Backend returns the connected Backend, connecting on first use.
func (l *Location) Backend(ctx context.Context) (Backend, error) {
	if l.backend != nil {
		return l.backend, nil
	}
	backend, err := open(ctx, l.system, l.options)
	if err != nil {
		return nil, err
	}
	l.backend = backend
	l.ownsBackend = true
	return backend, nil
}

// Read returns the full content of name.
func (l *Location) Read(ctx context.Context, name string) (data []byte, err error) {
	readCloser, err := l.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, readCloser.Close()) }()
	return io.ReadAll(readCloser)
}

// Open opens name for reading. The caller must close it.
func (l *Location) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	backend, err := l.Backend(ctx)
	if err != nil {
		return nil, err
	}
	return backend.Open(ctx, l.Join(name))
}

// Create opens name for writing. Content is only committed when the writer is closed
// without error.
func (l *Location) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	backend, err := l.Backend(ctx)
	if err != nil {
		return nil, err
	}
	return backend.Create(ctx, l.Join(name))
}

// Mkdir creates the Location, if it does not exist.
func (l *Location) Mkdir(ctx context.Context) error {
	backend, err := l.Backend(ctx)
	if err != nil {
		return err
	}
	return backend.MkdirAll(ctx, l.path)
}

// Remove removes the given entries. Without names, the Location itself is removed.
func (l *Location) Remove(ctx context.Context, names []string, recursive bool) error {
	backend, err := l.Backend(ctx)
	if err != nil {
		return err
	}
	paths := []string{}
	for _, name := range names {
		paths = append(paths, l.Join(name))
	}
	if len(names) == 0 {
		paths = append(paths, l.path)
	}
	var errs []error
	for _, p := range paths {
		if recursive {
			errs = append(errs, backend.RemoveAll(ctx, p))
		} else {
			errs = append(errs, backend.Remove(ctx, p))
		}
	}
	return errors.Join(errs...)
}

// Exists reports whether name exists. An empty name checks the Location itself.
func (l *Location) Exists(ctx context.Context, name string) (bool, error) {
	backend, err := l.Backend(ctx)
	if err != nil {
		return false, err
	}
	if _, err := backend.Stat(ctx, l.Join(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns the direct children of the Location.
func (l *Location) List(ctx context.Context) ([]Entry, error) {
	backend, err := l.Backend(ctx)
	if err != nil {
		return nil, err
	}
	return backend.List(ctx, l.path)
}

// Close releases the Backend, if this Location connected it.
func (l *Location) Close(ctx context.Context) error {
	var err error
	if l.backend != nil && l.ownsBackend {
		err = l.backend.Close(ctx)
	}
	l.drop()
	return err
}
