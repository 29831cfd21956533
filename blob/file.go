// Package blob implements File, a named blob of bytes at a Location, which can be relocated
// across systems and clusters.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/cluster"
	"github.com/fornellas/roam/codec"
	"github.com/fornellas/roam/host/types"
	"github.com/fornellas/roam/location"
	"github.com/fornellas/roam/resource"
)

// ResourceType and subtype of File configs.
const (
	ResourceType = "blob"
	SubtypeFile  = "file"
)

// SystemHere is the current Cluster, if any, else the local file system.
const SystemHere = "here"

// ErrTypeMismatch is returned when writing data other than []byte without serialization.
var ErrTypeMismatch = errors.New("data must be []byte when not serializing")

// Config describes a File to create.
type Config struct {
	Name string
	// System defaults to location.SystemFile.
	System string
	// Path is the full path to the file. When empty, the file is at location.DefaultPath,
	// named after Name, or a generated name.
	Path    string
	Options location.Options
	// Codec defaults to codec.Default.
	Codec  codec.Codec
	Dryrun bool
}

// File is a leaf filename at a Location. Each File owns its Location, which is never shared
// with another File.
type File struct {
	resource.Resource
	location *location.Location
	filename string
	codec    codec.Codec
	cached   any
}

func newResource(name string, dryrun bool) resource.Resource {
	return resource.Resource{
		Name:    name,
		Dryrun:  dryrun,
		Type:    ResourceType,
		Subtype: SubtypeFile,
	}
}

// New creates a File. No I/O is done.
func New(config Config) *File {
	f := &File{
		Resource: newResource(config.Name, config.Dryrun),
		codec:    config.Codec,
	}
	if f.codec == nil {
		f.codec = codec.Default
	}
	if config.Path == "" {
		f.location = location.New(config.System, "", config.Options)
		f.filename = f.NameOrGenerate(SubtypeFile)
	} else {
		f.location = location.New(config.System, "/", config.Options)
		f.SetPath(config.Path)
	}
	return f
}

// NewAtHost creates a File named filename in dir at an already connected Host.
func NewAtHost(name string, hst types.Host, dir, filename string, c codec.Codec) *File {
	if c == nil {
		c = codec.Default
	}
	return &File{
		Resource: newResource(name, false),
		location: location.NewHostLocation(hst, dir),
		filename: filename,
		codec:    c,
	}
}

// FromConfig loads a File from its Config.
func FromConfig(config resource.Config, dryrun bool) (*File, error) {
	c, err := codec.Get(config.String("codec"))
	if err != nil {
		return nil, err
	}
	options, err := config.StringMap("options")
	if err != nil {
		return nil, err
	}
	p := config.String("path")
	if p == "" {
		return nil, fmt.Errorf("file config without path")
	}
	return New(Config{
		Name:    config.Name(),
		System:  config.String("system"),
		Path:    p,
		Options: options,
		Codec:   c,
		Dryrun:  dryrun,
	}), nil
}

// Config returns the persistable configuration.
func (f *File) Config() resource.Config {
	config := f.Resource.Config()
	options := map[string]any{}
	for k, v := range f.location.Options() {
		options[k] = v
	}
	config["system"] = f.location.System()
	config["path"] = f.Path()
	config["options"] = options
	config["codec"] = f.codec.Name()
	return config
}

// System returns the system where the File is.
func (f *File) System() string {
	return f.location.System()
}

// Location returns the directory the File is at.
func (f *File) Location() *location.Location {
	return f.location
}

// Filename returns the leaf name of the File.
func (f *File) Filename() string {
	return f.filename
}

// Path returns the full path to the File.
func (f *File) Path() string {
	return path.Join(f.location.Path(), f.filename)
}

// SetPath moves the File to a new path. No I/O is done. Paths relative to the file system
// are relative to the current directory.
func (f *File) SetPath(p string) {
	dir, filename := path.Split(path.Clean(p))
	if dir == "" {
		dir = "."
	}
	f.location.SetPath(dir)
	f.filename = filename
}

func (f *File) String() string {
	return fmt.Sprintf("%s(%s:%s)", f.Resource.String(), f.location.System(), f.Path())
}

// Cached returns the value from the last Fetch or FetchDecoded. It is not refreshed when
// the File changes at its system.
func (f *File) Cached() any {
	return f.cached
}

// OpenReader opens the File for reading. The caller must close it.
func (f *File) OpenReader(ctx context.Context) (io.ReadCloser, error) {
	return f.location.Open(ctx, f.filename)
}

// OpenWriter opens the File for writing, replacing its content once closed. The caller must
// close it.
func (f *File) OpenWriter(ctx context.Context) (io.WriteCloser, error) {
	return f.location.Create(ctx, f.filename)
}

// WithReader calls fn with the File open for reading, closing it when fn returns.
func (f *File) WithReader(ctx context.Context, fn func(io.Reader) error) (err error) {
	readCloser, err := f.OpenReader(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, readCloser.Close()) }()
	return fn(readCloser)
}

// WithWriter calls fn with the File open for writing, closing it when fn returns.
func (f *File) WithWriter(ctx context.Context, fn func(io.Writer) error) (err error) {
	writeCloser, err := f.OpenWriter(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, writeCloser.Close()) }()
	return fn(writeCloser)
}

// Fetch reads the full content of the File.
func (f *File) Fetch(ctx context.Context) ([]byte, error) {
	data, err := f.location.Read(ctx, f.filename)
	if err != nil {
		return nil, err
	}
	f.cached = data
	return data, nil
}

// FetchDecoded reads the File and decodes it with its codec into v.
func (f *File) FetchDecoded(ctx context.Context, v any) error {
	data, err := f.Fetch(ctx)
	if err != nil {
		return err
	}
	if err := f.codec.Decode(data, v); err != nil {
		return err
	}
	f.cached = v
	return nil
}

// Write replaces the File content with data, creating its directory if needed. When
// serialize is set, data is encoded with the codec, else it must be []byte.
func (f *File) Write(ctx context.Context, data any, serialize bool) (*File, error) {
	var payload []byte
	if serialize {
		var err error
		if payload, err = f.codec.Encode(data); err != nil {
			return nil, err
		}
	} else {
		var ok bool
		if payload, ok = data.([]byte); !ok {
			return nil, fmt.Errorf("%w: got %T", ErrTypeMismatch, data)
		}
	}

	if err := f.location.Mkdir(ctx); err != nil {
		return nil, err
	}

	if err := f.WithWriter(ctx, func(w io.Writer) error {
		_, err := w.Write(payload)
		return err
	}); err != nil {
		return nil, err
	}
	return f, nil
}

// Rm removes the File. Its directory is kept.
func (f *File) Rm(ctx context.Context) error {
	return f.location.Remove(ctx, []string{f.filename}, false)
}

// ExistsInSystem reports whether the File exists. The result may be stale by the time it
// is used.
func (f *File) ExistsInSystem(ctx context.Context) (bool, error) {
	return f.location.Exists(ctx, f.filename)
}

// Close releases the connection to the File system, if any.
func (f *File) Close(ctx context.Context) error {
	return f.location.Close(ctx)
}

// To returns a copy of the File at system. An empty p places it at location.DefaultPath,
// named after Name (or a generated name), else p is the destination directory, keeping
// the filename. Options default to the File options when the system is unchanged. The
// original File is untouched.
//
// System SystemHere with an empty p is the current Cluster (see ToCluster), or the local
// file system without one. With a non empty p, it is the local file system.
func (f *File) To(ctx context.Context, system, p string, options location.Options) (*File, error) {
	if system == SystemHere {
		if p == "" {
			c, err := cluster.Current(ctx)
			if err != nil {
				return nil, err
			}
			if c != nil {
				return f.ToCluster(ctx, c, "")
			}
		}
		system = location.SystemFile
	}

	if options == nil && system == f.location.System() {
		options = f.location.Options()
	}

	name := f.Name
	dir := p
	filename := f.filename
	if p == "" {
		name = f.NameOrGenerate(SubtypeFile)
		dir = location.DefaultPath(system, options)
		filename = name
	}

	ctx, logger := log.MustWithGroupAttrs(ctx, "📄 File", "file", f.String())
	dest := location.New(system, dir, options)
	if err := f.location.CopyEntryTo(ctx, f.filename, dest, filename); err != nil {
		return nil, errors.Join(err, dest.Close(ctx))
	}
	newFile := &File{
		Resource: f.Resource,
		location: dest,
		filename: filename,
		codec:    f.codec,
	}
	newFile.Name = name
	logger.Info("Copied", "to", newFile.String())
	return newFile, nil
}

// ToCluster returns a copy of the File at the Cluster host. With an empty p, the content is
// fetched and written to the Cluster default store path, named after Name (or a generated
// name). Else p is the destination directory, keeping the filename.
func (f *File) ToCluster(ctx context.Context, c cluster.Cluster, p string) (*File, error) {
	ctx, logger := log.MustWithGroupAttrs(ctx, "📄 File", "file", f.String(), "cluster", c.Name())

	if p == "" {
		data, err := f.location.Read(ctx, f.filename)
		if err != nil {
			return nil, err
		}
		name := f.NameOrGenerate(SubtypeFile)
		newFile := NewAtHost(name, c.Host(), c.DefaultStorePath(), name, f.codec)
		if _, err := newFile.Write(ctx, data, false); err != nil {
			return nil, err
		}
		logger.Info("Written", "to", newFile.String())
		return newFile, nil
	}

	newFile := NewAtHost(f.Name, c.Host(), p, f.filename, f.codec)
	if err := f.location.CopyEntryTo(ctx, f.filename, newFile.location, f.filename); err != nil {
		return nil, err
	}
	logger.Info("Copied", "to", newFile.String())
	return newFile, nil
}
