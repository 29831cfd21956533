// Package cluster defines compute contexts, where resources are registered and installed.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fornellas/roam/host/types"
	"github.com/fornellas/roam/resource"
	"github.com/fornellas/roam/store"
)

// ResourceType is the resource type of a Cluster Config.
const ResourceType = "cluster"

// ConfigEnvVar names a YAML file with the Config of the current Cluster.
const ConfigEnvVar = "ROAM_CLUSTER_CONFIG"

// Cluster is a compute context: resources can be registered with it, have their methods
// called there, and commands can run at its host.
type Cluster interface {
	Name() string
	// Host where the Cluster installs and stores data.
	Host() types.Host
	// DefaultStorePath is the directory, at Host, where data without an explicit path is stored.
	DefaultStorePath() string
	// PutResource registers a resource by its config, returning the key to refer to it.
	PutResource(ctx context.Context, config resource.Config) (string, error)
	// CallMethod calls method of the resource registered as key.
	CallMethod(ctx context.Context, key, method string, args map[string]any) (any, error)
	// InstallPackages installs the packages given as strings, as accepted by packages.FromString.
	InstallPackages(ctx context.Context, specs []string) error
	// Run runs each command, in order, returning their exit codes.
	Run(ctx context.Context, cmds []string) ([]int, error)
	// Config returns the Config that FromConfig can reconnect with.
	Config() resource.Config
	Close(ctx context.Context) error
}

// Opener connects to a Cluster of a given kind from its Config.
type Opener func(ctx context.Context, config resource.Config) (Cluster, error)

var (
	openersMu sync.RWMutex
	openers   = map[string]Opener{}
)

// RegisterKind makes a cluster kind available to FromConfig.
func RegisterKind(kind string, opener Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[kind] = opener
}

// Kinds returns the sorted registered cluster kinds.
func Kinds() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	kinds := make([]string, 0, len(openers))
	for kind := range openers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// FromConfig reconnects to a Cluster from its Config.
func FromConfig(ctx context.Context, config resource.Config) (Cluster, error) {
	if resourceType := config.Type(); resourceType != ResourceType {
		return nil, fmt.Errorf("not a cluster config: resource_type is %#v", resourceType)
	}
	kind := config.String(resource.KeySubtype)
	if kind == "" {
		kind = KindHost
	}
	openersMu.RLock()
	opener, ok := openers[kind]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cluster kind %#v, valid options: %v", kind, Kinds())
	}
	return opener(ctx, config)
}

// Save persists the Cluster Config, so it can be loaded with Load.
func Save(ctx context.Context, s store.Store, c Cluster) error {
	return s.Save(ctx, ResourceType, c.Name(), c.Config())
}

// Load reconnects to a Cluster previously persisted with Save.
func Load(ctx context.Context, s store.Store, name string) (Cluster, error) {
	config, err := s.Load(ctx, ResourceType, name)
	if err != nil {
		return nil, err
	}
	return FromConfig(ctx, config)
}

type currentKey struct{}

// WithCurrent returns a context where c is the current Cluster.
func WithCurrent(ctx context.Context, c Cluster) context.Context {
	return context.WithValue(ctx, currentKey{}, c)
}

// Current returns the Cluster set with WithCurrent. Else, if ConfigEnvVar is set, connects
// to the Cluster described by its file. Returns nil when there is no current Cluster.
func Current(ctx context.Context) (Cluster, error) {
	if c, ok := ctx.Value(currentKey{}).(Cluster); ok {
		return c, nil
	}
	path := os.Getenv(ConfigEnvVar)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ConfigEnvVar, err)
	}
	config := resource.Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Join(fmt.Errorf("%s: failed to decode %s", ConfigEnvVar, path), err)
	}
	return FromConfig(ctx, config)
}
