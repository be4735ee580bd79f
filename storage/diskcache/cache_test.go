package diskcache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/internal/fsutil"
	"xdao.co/modelsync/storage"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	require.NoError(t, err)
	return c
}

func ident(data string) artifact.Identity {
	return artifact.NewIdentity("ns", "model", []byte(data)).WithCommit("c-" + data)
}

func age(t *testing.T, c *Cache, publisher string, id artifact.Identity, d time.Duration) {
	t.Helper()
	path, err := c.pathFor(publisher, id)
	require.NoError(t, err)
	old := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestStoreRetrieve_RoundTrip(t *testing.T) {
	c := newCache(t)
	id := ident("weights")

	require.NoError(t, c.Store("m1", id, []byte("weights")))
	assert.True(t, c.Has("m1", id))

	got, err := c.Retrieve("m1", id)
	require.NoError(t, err)
	assert.Equal(t, []byte("weights"), got)
}

func TestRetrieve_ReturnsIndependentCopies(t *testing.T) {
	c := newCache(t)
	id := ident("weights")
	require.NoError(t, c.Store("m1", id, []byte("weights")))

	a, err := c.Retrieve("m1", id)
	require.NoError(t, err)
	a[0] = 'X'
	b, err := c.Retrieve("m1", id)
	require.NoError(t, err)
	assert.Equal(t, []byte("weights"), b)
}

func TestRetrieve_NotFound(t *testing.T) {
	c := newCache(t)
	_, err := c.Retrieve("m1", ident("absent"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, c.Has("m1", ident("absent")))
}

func TestStore_RejectsUnverifiedBytes(t *testing.T) {
	c := newCache(t)
	id := ident("claimed")

	err := c.Store("m1", id, []byte("actual"))
	require.ErrorIs(t, err, artifact.ErrHashMismatch)
	assert.False(t, c.Has("m1", id))

	_, err = c.Retrieve("m1", id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_KeysArePerPublisherAndIdentity(t *testing.T) {
	c := newCache(t)
	a, b := ident("a"), ident("b")
	require.NoError(t, c.Store("m1", a, []byte("a")))
	require.NoError(t, c.Store("m1", b, []byte("b")))
	require.NoError(t, c.Store("m2", a, []byte("a")))

	// Overwriting one key leaves the others alone.
	require.NoError(t, c.Store("m1", a, []byte("a")))

	for _, k := range []artifact.Key{{Publisher: "m1", Identity: a}, {Publisher: "m1", Identity: b}, {Publisher: "m2", Identity: a}} {
		assert.True(t, c.Has(k.Publisher, k.Identity), "missing %v", k)
	}
	assert.False(t, c.Has("m2", b))
}

func TestStore_PathUnsafePublisher(t *testing.T) {
	c := newCache(t)
	id := ident("x")
	publisher := "ed25519:ab/cd+ef=="
	require.NoError(t, c.Store(publisher, id, []byte("x")))

	got, err := c.Retrieve(publisher, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	entries, err := os.ReadDir(c.Root())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")
}

func TestRetrieve_Corrupt(t *testing.T) {
	c := newCache(t)
	id := ident("weights")
	require.NoError(t, c.Store("m1", id, []byte("weights")))
	path, err := c.pathFor("m1", id)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	t.Run("Truncated", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, b[:len(b)-2], 0o644))
		_, err := c.Retrieve("m1", id)
		assert.ErrorIs(t, err, storage.ErrCorrupt)
	})

	t.Run("BadMagic", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("garbage-bytes-here"), 0o644))
		_, err := c.Retrieve("m1", id)
		assert.ErrorIs(t, err, storage.ErrCorrupt)
	})
}

func TestTouch(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c, err := New(t.TempDir(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	id := ident("x")

	assert.ErrorIs(t, c.Touch("m1", id), storage.ErrNotFound)

	require.NoError(t, c.Store("m1", id, []byte("x")))
	age(t, c, "m1", id, time.Hour)
	require.NoError(t, c.Touch("m1", id))

	path, err := c.pathFor("m1", id)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(now))
}

func TestEvict_RetentionAndCutoff(t *testing.T) {
	c := newCache(t)
	keep, stale, fresh := ident("keep"), ident("stale"), ident("fresh")
	require.NoError(t, c.Store("m1", keep, []byte("keep")))
	require.NoError(t, c.Store("m1", stale, []byte("stale")))
	require.NoError(t, c.Store("m2", fresh, []byte("fresh")))

	age(t, c, "m1", keep, 48*time.Hour)
	age(t, c, "m1", stale, 48*time.Hour)

	retain := artifact.RetentionSet{}
	retain.Add("m1", keep)

	st, err := c.Evict(retain, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, Stats{Kept: 1, Recent: 1, Removed: 1}, st)
	assert.True(t, c.Has("m1", keep), "retained entry must survive regardless of age")
	assert.False(t, c.Has("m1", stale))
	assert.True(t, c.Has("m2", fresh), "recent entry is inside the grace window")
}

func TestEvict_EmptyRetentionRemovesEverythingOld(t *testing.T) {
	c := newCache(t)
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, c.Store("m-"+s, ident(s), []byte(s)))
	}

	st, err := c.Evict(artifact.RetentionSet{}, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, st.Removed)

	entries, err := os.ReadDir(c.Root())
	require.NoError(t, err)
	assert.Empty(t, entries, "empty publisher directories are removed")
}

func TestEvict_RetentionIsPerPublisher(t *testing.T) {
	c := newCache(t)
	id := ident("shared")
	require.NoError(t, c.Store("m1", id, []byte("shared")))
	require.NoError(t, c.Store("m2", id, []byte("shared")))

	retain := artifact.RetentionSet{}
	retain.Add("m1", id)

	_, err := c.Evict(retain, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, c.Has("m1", id))
	assert.False(t, c.Has("m2", id))
}

func TestEvict_CorruptAndTempFiles(t *testing.T) {
	c := newCache(t)
	id := ident("x")
	require.NoError(t, c.Store("m1", id, []byte("x")))
	path, err := c.pathFor("m1", id)
	require.NoError(t, err)

	// A corrupt entry cannot prove it is retained.
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0o644))
	tmp := filepath.Join(filepath.Dir(path), fsutil.TempPrefix+"abandoned")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	retain := artifact.RetentionSet{}
	retain.Add("m1", id)
	st, err := c.Evict(retain, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, st.Removed)

	_, err = os.Stat(tmp)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEvict_MissingRoot(t *testing.T) {
	c := newCache(t)
	require.NoError(t, os.RemoveAll(c.Root()))
	st, err := c.Evict(artifact.RetentionSet{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
}

func TestConcurrentStoreRetrieve_NeverPartial(t *testing.T) {
	c := newCache(t)
	payload := strings.Repeat("w", 64*1024)
	id := ident(payload)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, c.Store("m1", id, []byte(payload)))
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				got, err := c.Retrieve("m1", id)
				if errors.Is(err, storage.ErrNotFound) {
					continue
				}
				if assert.NoError(t, err) {
					assert.Equal(t, len(payload), len(got))
				}
			}
		}()
	}
	wg.Wait()
}
