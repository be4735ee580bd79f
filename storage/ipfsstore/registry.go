package ipfsstore

import (
	"os"

	"xdao.co/modelsync/storage"
	"xdao.co/modelsync/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "ipfs",
		Description: "Kubo CLI block store (local repo, offline)",
		Usage:       registry.UsageClient | registry.UsageServer,
		Keys: map[string]string{
			"ipfs-bin":  "Path to the ipfs binary",
			"ipfs-path": "IPFS_PATH for the Kubo repo",
			"pin":       "Pin uploaded blocks (true/false)",
		},
		Open: func(cfg map[string]string) (storage.RemoteStore, func() error, error) {
			opts := Options{Bin: cfg["ipfs-bin"], Pin: cfg["pin"] == "true"}
			if p := cfg["ipfs-path"]; p != "" {
				opts.Env = append(os.Environ(), "IPFS_PATH="+p)
			}
			return New(opts), nil, nil
		},
	})
}
