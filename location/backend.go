package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
)

// Built in systems.
const (
	SystemFile   = "file"
	SystemSsh    = "ssh"
	SystemDocker = "docker"
	SystemS3     = "s3"
)

var ErrUnknownSystem = errors.New("unknown system")

// Entry is a direct child of a Location.
type Entry struct {
	Name  string
	IsDir bool
}

// Backend performs I/O for a system. All names are absolute, slash separated paths.
type Backend interface {
	// Open opens the named file for reading. Returns an error wrapping fs.ErrNotExist when
	// it does not exist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create opens the named file for writing, replacing any previous content once the
	// returned writer is closed.
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	// MkdirAll creates the named directory and any missing parents. It is not an error if
	// it already exists.
	MkdirAll(ctx context.Context, name string) error
	// Remove removes a single file or empty directory.
	Remove(ctx context.Context, name string) error
	// RemoveAll removes name and any children it contains.
	RemoveAll(ctx context.Context, name string) error
	// Stat returns the Entry for name, or an error wrapping fs.ErrNotExist.
	Stat(ctx context.Context, name string) (Entry, error)
	// List returns the direct children of the named directory.
	List(ctx context.Context, name string) ([]Entry, error)
	String() string
	// Close releases any connections held by the Backend.
	Close(ctx context.Context) error
}

// Opener connects to a system, given its options.
type Opener func(ctx context.Context, options Options) (Backend, error)

var (
	openersMu sync.RWMutex
	openers   = map[string]Opener{}
)

// RegisterSystem makes a system available to all Locations. Registering an already
// registered system replaces it.
func RegisterSystem(system string, opener Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[system] = opener
}

// Systems returns the sorted names of all registered systems.
func Systems() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	systems := make([]string, 0, len(openers))
	for system := range openers {
		systems = append(systems, system)
	}
	sort.Strings(systems)
	return systems
}

func open(ctx context.Context, system string, options Options) (Backend, error) {
	openersMu.RLock()
	opener, ok := openers[system]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %#v, valid options: %v", ErrUnknownSystem, system, Systems())
	}
	return opener(ctx, options)
}

// DefaultPath returns the directory where resources without an explicit path are stored
// for the given system.
func DefaultPath(system string, options Options) string {
	switch system {
	case SystemFile:
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = os.TempDir()
		}
		return filepath.Join(cacheDir, "roam", "blobs")
	case SystemS3:
		bucket := options["bucket"]
		if bucket == "" {
			bucket = "roam"
		}
		return path.Join("/", bucket, "blobs")
	default:
		return "/tmp/roam/blobs"
	}
}
