package grpcstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/modelsync/storage"
	"xdao.co/modelsync/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "grpc",
		Description: "gRPC registry client (talks to artifact-registryd)",
		Usage:       registry.UsageClient,
		Keys: map[string]string{
			"target":        "gRPC target host:port",
			"dial-timeout":  "Dial timeout (Go duration)",
			"timeout":       "Per-RPC timeout (Go duration)",
			"max-msg-bytes": "Max gRPC message size in bytes (send+recv); empty uses grpc defaults",
		},
		Open: func(cfg map[string]string) (storage.RemoteStore, func() error, error) {
			target := strings.TrimSpace(cfg["target"])
			if target == "" {
				return nil, nil, fmt.Errorf("grpc backend: missing target")
			}
			dialTimeout, err := duration(cfg, "dial-timeout", 5*time.Second)
			if err != nil {
				return nil, nil, err
			}
			timeout, err := duration(cfg, "timeout", 0)
			if err != nil {
				return nil, nil, err
			}
			maxMsg := 0
			if v := cfg["max-msg-bytes"]; v != "" {
				if maxMsg, err = strconv.Atoi(v); err != nil {
					return nil, nil, fmt.Errorf("grpc backend: max-msg-bytes: %w", err)
				}
			}
			client, err := Dial(target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = timeout
			return client, client.Close, nil
		},
	})
}

func duration(cfg map[string]string, key string, def time.Duration) (time.Duration, error) {
	v := cfg[key]
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("grpc backend: %s: %w", key, err)
	}
	return d, nil
}
