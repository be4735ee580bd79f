package dirstore

import (
	"fmt"

	"xdao.co/modelsync/storage"
	"xdao.co/modelsync/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "dir",
		Description: "Filesystem artifact registry (directory)",
		Usage:       registry.UsageClient | registry.UsageServer,
		Keys:        map[string]string{"dir": "Registry root directory"},
		Open: func(cfg map[string]string) (storage.RemoteStore, func() error, error) {
			if cfg["dir"] == "" {
				return nil, nil, fmt.Errorf("dir backend: missing dir")
			}
			s, err := New(cfg["dir"])
			return s, nil, err
		},
	})
}
