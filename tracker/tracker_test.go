package tracker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/modelsync/artifact"
)

func rec(name string, height uint64) artifact.PublishRecord {
	id := artifact.NewIdentity("ns", name, []byte(name)).WithCommit("commit-" + name)
	return artifact.PublishRecord{Identity: id, Height: height}
}

func set(publishers ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(publishers))
	for _, p := range publishers {
		out[p] = struct{}{}
	}
	return out
}

func TestGet_AbsentAndPresent(t *testing.T) {
	tr := New(nil)
	_, ok := tr.Get("m1")
	assert.False(t, ok)

	tr.RecordUpdate("m1", rec("a", 10))
	got, ok := tr.Get("m1")
	require.True(t, ok)
	assert.Equal(t, rec("a", 10), got)
}

func TestRecordUpdate_Overwrites(t *testing.T) {
	tr := New(nil)
	tr.RecordUpdate("m1", rec("a", 10))
	tr.RecordUpdate("m1", rec("b", 11))

	got, _ := tr.Get("m1")
	assert.Equal(t, rec("b", 11), got)
	assert.Equal(t, 1, tr.Len())
}

func TestSnapshot_IsIndependent(t *testing.T) {
	tr := New(nil)
	tr.RecordUpdate("m1", rec("a", 10))

	snap := tr.Snapshot()
	snap["m1"] = rec("evil", 99)
	snap["m2"] = rec("b", 1)
	delete(snap, "m1")

	got, ok := tr.Get("m1")
	require.True(t, ok)
	assert.Equal(t, rec("a", 10), got)
	assert.Equal(t, 1, tr.Len())
}

func TestReconcileTrackedSet_KeepsIntersection(t *testing.T) {
	tr := New(nil)
	tr.RecordUpdate("m1", rec("a", 1))
	tr.RecordUpdate("m2", rec("b", 2))
	tr.RecordUpdate("m3", rec("c", 3))

	tr.ReconcileTrackedSet(set("m1", "m3", "m4"))

	snap := tr.Snapshot()
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, "m1")
	assert.Contains(t, snap, "m3")
	assert.NotContains(t, snap, "m4", "new publishers are not added")

	// Idempotent.
	tr.ReconcileTrackedSet(set("m1", "m3", "m4"))
	assert.Equal(t, snap, tr.Snapshot())
}

func TestRetentionSet(t *testing.T) {
	tr := New(nil)
	tr.RecordUpdate("m1", rec("a", 1))
	tr.RecordUpdate("m2", rec("b", 2))

	rs := tr.RetentionSet()
	assert.Equal(t, 2, rs.Len())
	assert.True(t, rs.Has("m1", rec("a", 1).Identity))
	assert.False(t, rs.Has("m1", rec("b", 2).Identity))
}

func TestPersistRestore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "tracker.json")
	tr := New(nil)
	tr.RecordUpdate("m1", rec("a", 10))
	tr.RecordUpdate("ed25519:key/with+chars=", rec("b", 11))
	require.NoError(t, tr.Persist(path))

	restored := New(nil)
	restored.RecordUpdate("stale", rec("z", 1))
	require.NoError(t, restored.Restore(path))
	assert.Equal(t, tr.Snapshot(), restored.Snapshot())
}

func TestRestore_ErrorsLeaveStateUntouched(t *testing.T) {
	dir := t.TempDir()
	tr := New(nil)
	tr.RecordUpdate("m1", rec("a", 10))
	before := tr.Snapshot()

	err := tr.Restore(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	require.Error(t, tr.Restore(bad))

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"version":99,"records":{}}`), 0o600))
	require.Error(t, tr.Restore(future))

	assert.Equal(t, before, tr.Snapshot())
}

func TestConcurrentAccess(t *testing.T) {
	tr := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			publisher := fmt.Sprintf("m%d", i)
			for h := uint64(0); h < 100; h++ {
				tr.RecordUpdate(publisher, rec("x", h))
				_, _ = tr.Get(publisher)
				_ = tr.Snapshot()
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			tr.ReconcileTrackedSet(set("m0", "m1", "m2", "m3", "m4", "m5", "m6", "m7"))
		}
	}()
	wg.Wait()

	assert.Equal(t, 8, tr.Len())
	for i := 0; i < 8; i++ {
		got, ok := tr.Get(fmt.Sprintf("m%d", i))
		require.True(t, ok)
		assert.Equal(t, uint64(99), got.Height)
	}
}
