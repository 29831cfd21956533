package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/diff"
	"github.com/fornellas/roam/host/lib"
	"github.com/fornellas/roam/host/types"
	"github.com/fornellas/roam/resource"
)

// Implementation of Store that persists configs as YAML files at a Host at Path.
type HostStore struct {
	Host types.Host
	path string
}

// NewHostStore creates a new HostStore for given Host.
func NewHostStore(host types.Host, path string) *HostStore {
	return &HostStore{
		Host: host,
		path: filepath.Join(path, "v1"),
	}
}

func (s *HostStore) configPath(kind, name string) (string, error) {
	for _, value := range []string{kind, name} {
		if value == "" || value == "." || value == ".." || strings.ContainsRune(value, '/') {
			return "", fmt.Errorf("invalid store key %#v", value)
		}
	}
	return filepath.Join(s.path, kind, name+".yaml"), nil
}

func (s *HostStore) read(ctx context.Context, path string) (resource.Config, error) {
	readCloser, err := s.Host.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(readCloser)
	if err = errors.Join(err, readCloser.Close()); err != nil {
		return nil, err
	}
	config := resource.Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return config, nil
}

func (s *HostStore) Save(ctx context.Context, kind, name string, config resource.Config) error {
	logger := log.MustLogger(ctx)

	path, err := s.configPath(kind, name)
	if err != nil {
		return err
	}

	previous, err := s.read(ctx, path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	var buff bytes.Buffer
	encoder := yaml.NewEncoder(&buff)
	if err := encoder.Encode(config); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}

	if previous != nil {
		chunks := diff.DiffAsYaml(map[string]any(previous), map[string]any(config))
		if !chunks.HasChanges() {
			logger.Debug("Unchanged", "kind", kind, "name", name)
			return nil
		}
		logger.Info("Updated", "kind", kind, "name", name, "diff", chunks.TerminalString())
	}

	if err := lib.MkdirAll(ctx, s.Host, filepath.Dir(path), 0700); err != nil {
		return err
	}
	return s.Host.WriteFile(ctx, path, &buff, 0600)
}

func (s *HostStore) Load(ctx context.Context, kind, name string) (resource.Config, error) {
	path, err := s.configPath(kind, name)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, path)
}

func (s *HostStore) Delete(ctx context.Context, kind, name string) error {
	path, err := s.configPath(kind, name)
	if err != nil {
		return err
	}
	return s.Host.Remove(ctx, path)
}

func (s *HostStore) List(ctx context.Context, kind string) ([]string, error) {
	dirEntResultCh, cancel := s.Host.ReadDir(ctx, filepath.Join(s.path, kind))
	defer cancel()

	names := []string{}
	for dirEntResult := range dirEntResultCh {
		if dirEntResult.Error != nil {
			if errors.Is(dirEntResult.Error, fs.ErrNotExist) {
				return names, nil
			}
			return nil, dirEntResult.Error
		}
		if name, ok := strings.CutSuffix(dirEntResult.DirEnt.Name, ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
