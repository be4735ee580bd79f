package tracker

import (
	"encoding/json"
	"fmt"
	"os"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/internal/fsutil"
)

// stateVersion guards against restoring a file written by an incompatible build.
const stateVersion = 1

type stateFile struct {
	Version int                               `json:"version"`
	Records map[string]artifact.PublishRecord `json:"records"`
}

// Persist writes the full publisher -> record map to path atomically.
// The format is private to this package.
func (t *Tracker) Persist(path string) error {
	state := stateFile{Version: stateVersion, Records: t.Snapshot()}
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("tracker: encode state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, b, 0o600); err != nil {
		return fmt.Errorf("tracker: write state: %w", err)
	}
	return nil
}

// Restore replaces the tracked map with the contents of path. On any error
// the current map is left untouched.
func (t *Tracker) Restore(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tracker: read state: %w", err)
	}
	var state stateFile
	if err := json.Unmarshal(b, &state); err != nil {
		return fmt.Errorf("tracker: decode state: %w", err)
	}
	if state.Version != stateVersion {
		return fmt.Errorf("tracker: unsupported state version %d", state.Version)
	}
	if state.Records == nil {
		state.Records = map[string]artifact.PublishRecord{}
	}

	t.mu.Lock()
	t.records = state.Records
	t.mu.Unlock()
	return nil
}
