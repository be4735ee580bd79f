// Package registry selects a remote artifact store by name at runtime.
//
// Backends are linked at build time: each backend package registers itself
// in init(), and a binary enables it by importing the package (usually as a
// blank import).
package registry

import (
	"flag"
	"fmt"
	"sort"
	"sync"

	"xdao.co/modelsync/storage"
)

// Usage restricts which programs should accept a given backend.
type Usage uint8

const (
	// UsageClient marks backends usable by processes that consume a registry
	// (the sync daemon, the CLI).
	UsageClient Usage = 1 << iota
	// UsageServer marks backends that can back a registry daemon.
	UsageServer
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }

// Backend is a build-time plugin that opens a storage.RemoteStore.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// Keys documents the accepted config keys (key -> help text).
	Keys map[string]string

	// Open constructs the store from backend-specific config values.
	// It returns an optional close function.
	Open func(cfg map[string]string) (storage.RemoteStore, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("registry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("registry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("registry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("registry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage, cfg map[string]string) (storage.RemoteStore, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("backend %q not supported in this binary", name)
	}
	for k := range cfg {
		if _, known := b.Keys[k]; !known {
			return nil, nil, fmt.Errorf("backend %q: unknown config key %q", name, k)
		}
	}
	return b.Open(cfg)
}

// FlagValues holds the flag destinations created by RegisterFlags.
type FlagValues map[string]map[string]*string

// RegisterFlags adds one --<backend>-<key> flag per config key of every
// backend matching usage, so a binary can parse all of them in one pass.
func RegisterFlags(fs *flag.FlagSet, usage Usage) FlagValues {
	v := FlagValues{}
	for _, b := range List(usage) {
		keys := make([]string, 0, len(b.Keys))
		for k := range b.Keys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		v[b.Name] = map[string]*string{}
		for _, k := range keys {
			v[b.Name][k] = fs.String(b.Name+"-"+k, "", b.Keys[k]+" (for --backend="+b.Name+")")
		}
	}
	return v
}

// Config returns the non-empty flag values set for backend name.
func (v FlagValues) Config(name string) map[string]string {
	out := map[string]string{}
	for k, p := range v[name] {
		if p != nil && *p != "" {
			out[k] = *p
		}
	}
	return out
}
