package location

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"

	"github.com/fornellas/roam/host"
	"github.com/fornellas/roam/host/lib"
	"github.com/fornellas/roam/host/types"
)

const (
	hostDirMode  types.FileMode = 0755
	hostFileMode types.FileMode = 0644
)

// HostBackend is a Backend over any types.Host.
type HostBackend struct {
	Host types.Host
	// When set, Close also closes Host.
	OwnsHost bool
}

// NewHostBackend creates a Backend over hst. The host is not closed by Close.
func NewHostBackend(hst types.Host) *HostBackend {
	return &HostBackend{Host: hst}
}

func (b *HostBackend) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return b.Host.ReadFile(ctx, name)
}

func (b *HostBackend) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	return lib.NewHostFileWriter(ctx, b.Host, name, hostFileMode), nil
}

func (b *HostBackend) MkdirAll(ctx context.Context, name string) error {
	return lib.MkdirAll(ctx, b.Host, name, hostDirMode)
}

func (b *HostBackend) Remove(ctx context.Context, name string) error {
	return b.Host.Remove(ctx, name)
}

func (b *HostBackend) RemoveAll(ctx context.Context, name string) error {
	return lib.RemoveAll(ctx, b.Host, name)
}

func (b *HostBackend) Stat(ctx context.Context, name string) (Entry, error) {
	stat_t, err := b.Host.Lstat(ctx, name)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Name: name, IsDir: stat_t.IsDir()}, nil
}

func (b *HostBackend) List(ctx context.Context, name string) ([]Entry, error) {
	dirEntResultCh, cancel := b.Host.ReadDir(ctx, name)
	defer cancel()
	entries := []Entry{}
	for dirEntResult := range dirEntResultCh {
		if dirEntResult.Error != nil {
			return nil, dirEntResult.Error
		}
		entries = append(entries, Entry{
			Name:  dirEntResult.DirEnt.Name,
			IsDir: dirEntResult.DirEnt.IsDirectory(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (b *HostBackend) String() string {
	return fmt.Sprintf("%s:%s", b.Host.Type(), b.Host.String())
}

func (b *HostBackend) Close(ctx context.Context) error {
	if b.OwnsHost {
		return b.Host.Close(ctx)
	}
	return nil
}

func hostOpener(hostType, optionKey string) Opener {
	return func(ctx context.Context, options Options) (Backend, error) {
		target := ""
		if optionKey != "" {
			target = options[optionKey]
			if target == "" {
				return nil, &fs.PathError{
					Op:   "open",
					Path: hostType,
					Err:  fmt.Errorf("missing %#v option", optionKey),
				}
			}
		}
		hst, err := host.New(ctx, hostType, target, host.SshClientConfig{})
		if err != nil {
			return nil, err
		}
		return &HostBackend{Host: hst, OwnsHost: true}, nil
	}
}

func init() {
	RegisterSystem(SystemFile, hostOpener(host.TypeLocal, ""))
	RegisterSystem(SystemSsh, hostOpener(host.TypeSsh, "host"))
	RegisterSystem(SystemDocker, hostOpener(host.TypeDocker, "container"))
}
