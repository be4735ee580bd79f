package diskcache

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/internal/fsutil"
)

// Stats summarises one eviction sweep.
type Stats struct {
	Kept    int // in the retention set
	Recent  int // not retained but written after the cutoff
	Removed int
	Failed  int
}

// Evict deletes every entry whose (publisher, identity) is not in retain and
// whose local write time is not after cutoff. Entries in retain are kept
// regardless of age. Undecodable entries and abandoned temp files are treated
// as unretained.
//
// Failures on individual entries are logged and counted; only an unreadable
// cache root aborts the sweep.
func (c *Cache) Evict(retain artifact.RetentionSet, cutoff time.Time) (Stats, error) {
	var st Stats
	dirs, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, err
	}

	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		dir := filepath.Join(c.root, d.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			c.logger.Warn("evict: read publisher dir", zap.String("dir", dir), zap.Error(err))
			st.Failed++
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			c.sweepEntry(filepath.Join(dir, e.Name()), e, retain, cutoff, &st)
		}
		// Fails harmlessly while the directory still has entries.
		_ = os.Remove(dir)
	}

	c.logger.Info("eviction sweep done",
		zap.Int("kept", st.Kept),
		zap.Int("recent", st.Recent),
		zap.Int("removed", st.Removed),
		zap.Int("failed", st.Failed),
	)
	return st, nil
}

func (c *Cache) sweepEntry(path string, e os.DirEntry, retain artifact.RetentionSet, cutoff time.Time, st *Stats) {
	name := e.Name()
	isTemp := strings.HasPrefix(name, fsutil.TempPrefix)
	if !isTemp && !strings.HasSuffix(name, entryExt) {
		return
	}

	if !isTemp {
		key, err := readKey(path)
		if err == nil && c.located(path, key) && retain.Has(key.Publisher, key.Identity) {
			st.Kept++
			return
		}
	}

	info, err := e.Info()
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		c.logger.Warn("evict: stat entry", zap.String("path", path), zap.Error(err))
		st.Failed++
		return
	}
	if info.ModTime().After(cutoff) {
		st.Recent++
		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("evict: remove entry", zap.String("path", path), zap.Error(err))
		st.Failed++
		return
	}
	c.logger.Debug("evicted", zap.String("path", path))
	st.Removed++
}

// located reports whether the entry at path sits where key would be stored.
func (c *Cache) located(path string, key artifact.Key) bool {
	want, err := c.pathFor(key.Publisher, key.Identity)
	return err == nil && want == path
}
