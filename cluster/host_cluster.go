package cluster

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"sync"

	"github.com/kballard/go-shellquote"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/host"
	"github.com/fornellas/roam/host/lib"
	"github.com/fornellas/roam/host/types"
	"github.com/fornellas/roam/install"
	"github.com/fornellas/roam/location"
	"github.com/fornellas/roam/packages"
	"github.com/fornellas/roam/resource"
)

// KindHost is the cluster kind of HostCluster.
const KindHost = "host"

// HostCluster is a Cluster running in the current process, installing at a Host. Each
// HostCluster has its own install.Record.
type HostCluster struct {
	name      string
	host      types.Host
	target    string
	storePath string
	ownsHost  bool
	record    *install.Record

	mu        sync.Mutex
	resources map[string]resource.Config
}

// NewHostCluster creates a HostCluster at an already connected host, which is not closed by
// Close. An empty storePath uses location.DefaultPath for the host.
func NewHostCluster(name string, hst types.Host, storePath string) *HostCluster {
	if storePath == "" {
		storePath = location.DefaultPath(location.HostSystem(hst), nil)
	}
	return &HostCluster{
		name:      name,
		host:      hst,
		target:    hst.String(),
		storePath: storePath,
		record:    install.NewRecord(),
		resources: map[string]resource.Config{},
	}
}

// ConnectHostCluster connects to a host, as host.New, and creates a HostCluster there.
func ConnectHostCluster(ctx context.Context, name, hostType, target, storePath string) (*HostCluster, error) {
	hst, err := host.New(ctx, hostType, target, host.SshClientConfig{})
	if err != nil {
		return nil, err
	}
	c := NewHostCluster(name, hst, storePath)
	c.target = target
	c.ownsHost = true
	return c, nil
}

func (c *HostCluster) Name() string {
	return c.name
}

func (c *HostCluster) Host() types.Host {
	return c.host
}

func (c *HostCluster) DefaultStorePath() string {
	return c.storePath
}

// Record holds what was installed at this HostCluster.
func (c *HostCluster) Record() *install.Record {
	return c.record
}

// Installer runs install commands at the host.
func (c *HostCluster) Installer() packages.HostInstaller {
	return packages.HostInstaller{Host: c.host}
}

func (c *HostCluster) PutResource(ctx context.Context, config resource.Config) (string, error) {
	if config.Type() == "" {
		return "", fmt.Errorf("resource config without %s", resource.KeyType)
	}
	key := config.Name()
	if key == "" {
		key = resource.GenerateName(config.Type())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resources[key] = maps.Clone(config)
	return key, nil
}

// Resource returns the config registered as key.
func (c *HostCluster) Resource(key string) (resource.Config, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	config, ok := c.resources[key]
	if !ok {
		return nil, false
	}
	return maps.Clone(config), true
}

func (c *HostCluster) CallMethod(ctx context.Context, key, method string, args map[string]any) (any, error) {
	config, ok := c.Resource(key)
	if !ok {
		return nil, fmt.Errorf("no resource registered as %#v", key)
	}
	handler, err := getHandler(config.Type())
	if err != nil {
		return nil, err
	}
	ctx, logger := log.MustWithGroupAttrs(ctx, "🖧 Cluster", "name", c.name, "key", key)
	logger.Debug("CallMethod", "method", method, "args", args)
	return handler(ctx, c, config, method, args)
}

func (c *HostCluster) InstallPackages(ctx context.Context, specs []string) error {
	ctx, _ = log.MustWithGroupAttrs(ctx, "🖧 Cluster", "name", c.name)
	for _, spec := range specs {
		if err := packages.FromString(spec).Install(ctx, c.Installer()); err != nil {
			return err
		}
	}
	return nil
}

func (c *HostCluster) Run(ctx context.Context, cmds []string) ([]int, error) {
	ctx, _ = log.MustWithGroupAttrs(ctx, "🖧 Cluster", "name", c.name)
	exitCodes := []int{}
	for _, cmd := range cmds {
		args, err := shellquote.Split(cmd)
		if err != nil {
			return exitCodes, fmt.Errorf("%#v: %w", cmd, err)
		}
		if len(args) == 0 {
			return exitCodes, fmt.Errorf("empty command")
		}
		exitCode, err := c.Installer().RunCommand(ctx, args)
		if err != nil {
			return exitCodes, err
		}
		exitCodes = append(exitCodes, exitCode)
	}
	return exitCodes, nil
}

// Mount symlinks dest to src. Only local sources at a local host can be mounted, else
// returns packages.ErrMountUnsupported.
func (c *HostCluster) Mount(ctx context.Context, src *location.Location, dest string) error {
	if src.System() != location.SystemFile || c.host.Type() != host.TypeLocal {
		return fmt.Errorf("%w: %s at %s host", packages.ErrMountUnsupported, src, c.host.Type())
	}
	if err := lib.MkdirAll(ctx, c.host, filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return c.host.Symlink(ctx, src.Path(), dest)
}

func (c *HostCluster) Config() resource.Config {
	return resource.Config{
		resource.KeyType:    ResourceType,
		resource.KeySubtype: KindHost,
		resource.KeyName:    c.name,
		"host_type":         c.host.Type(),
		"host_target":       c.target,
		"store_path":        c.storePath,
	}
}

func (c *HostCluster) Close(ctx context.Context) error {
	if c.ownsHost {
		return c.host.Close(ctx)
	}
	return nil
}

func openHostCluster(ctx context.Context, config resource.Config) (Cluster, error) {
	return ConnectHostCluster(
		ctx,
		config.Name(),
		config.String("host_type"),
		config.String("host_target"),
		config.String("store_path"),
	)
}

func init() {
	RegisterKind(KindHost, openHostCluster)
}
