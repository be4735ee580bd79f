package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_MissingConfig(t *testing.T) {
	var errOut bytes.Buffer
	code := run(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "config")
}

func TestRun_StopsOnCancel(t *testing.T) {
	root := t.TempDir()
	body := fmt.Sprintf(`
cache: {dir: %[1]s/cache}
state: {path: %[1]s/tracker.json}
sync: {interval: 50ms}
eviction: {interval: 50ms}
oracle: {backend: memory}
log: {level: error, output_paths: [stderr]}
metrics: {enabled: true, addr: "127.0.0.1:0"}
remote:
  backends:
    - name: dir
      config: {dir: %[1]s/registry}
`, root)
	cfgPath := filepath.Join(root, "modelsyncd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var errOut bytes.Buffer
	code := run(ctx, []string{"--config", cfgPath}, &errOut)
	assert.Equal(t, 0, code, errOut.String())

	_, err := os.Stat(filepath.Join(root, "tracker.json"))
	assert.NoError(t, err, "sync cycle persists tracker state")
}

func TestRun_CorruptStateIsFatal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "tracker.json"), []byte("{not json"), 0o600))
	body := fmt.Sprintf(`
cache: {dir: %[1]s/cache}
state: {path: %[1]s/tracker.json}
oracle: {backend: memory}
log: {level: error, output_paths: [stderr]}
metrics: {enabled: false}
remote:
  backends:
    - name: dir
      config: {dir: %[1]s/registry}
`, root)
	cfgPath := filepath.Join(root, "modelsyncd.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	var errOut bytes.Buffer
	code := run(context.Background(), []string{"--config", cfgPath}, &errOut)
	assert.Equal(t, 1, code)
}
