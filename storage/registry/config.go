package registry

import (
	"errors"
	"fmt"

	"xdao.co/modelsync/storage"
)

// Config describes how to open one or more registries.
//
// WritePolicy values:
//   - "first" (default): upload only to the first backend; downloads fall back in order
//   - "all": upload to all backends and require identical commits (see storage.Replicating)
//
// Example (YAML):
//
//	write_policy: all
//	backends:
//	  - name: dir
//	    config: {dir: /var/lib/modelsync/registry}
//	  - name: ipfs
//	    config: {ipfs-path: /var/lib/ipfs}
type Config struct {
	WritePolicy string          `yaml:"write_policy" json:"write_policy,omitempty"`
	Backends    []BackendConfig `yaml:"backends" json:"backends"`
}

type BackendConfig struct {
	// Name is the registered backend name (e.g. "dir", "grpc", "ipfs").
	Name string `yaml:"name" json:"name"`
	// ID is an optional alias used in logs and commit maps. Defaults to Name.
	ID     string            `yaml:"id" json:"id,omitempty"`
	Config map[string]string `yaml:"config" json:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("registry: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("registry: backend name is required")
		}
		if _, ok := seen[b.id()]; ok {
			return fmt.Errorf("registry: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("registry: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens every configured backend and combines them per WritePolicy.
func (c Config) Open(usage Usage) (storage.RemoteStore, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	named := make([]storage.NamedStore, 0, len(c.Backends))
	closers := make([]func() error, 0, len(c.Backends))
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, b := range c.Backends {
		s, closeFn, err := Open(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("open %s: %w", b.id(), err)
		}
		named = append(named, storage.NamedStore{Name: b.id(), Store: s})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].Store, closeAll, nil
	}
	if c.WritePolicy == "all" {
		return storage.Replicating{Stores: named}, closeAll, nil
	}
	stores := make([]storage.RemoteStore, 0, len(named))
	for _, n := range named {
		stores = append(stores, n.Store)
	}
	return storage.Fallback{Stores: stores}, closeAll, nil
}
