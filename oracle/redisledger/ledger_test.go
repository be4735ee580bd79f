package redisledger

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/keys"
	"xdao.co/modelsync/oracle"
	"xdao.co/modelsync/storage"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Ledger) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	l, err := Open(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.Close()
		mr.Close()
	})
	return mr, l
}

func newSigner(t *testing.T, b byte) keys.Signer {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	seed[31] = b
	s, err := keys.NewEd25519Signer(seed)
	require.NoError(t, err)
	return s
}

func commit(t *testing.T, s keys.Signer, data string) oracle.Commitment {
	t.Helper()
	id := artifact.NewIdentity("ns", "model", []byte(data)).WithCommit("c-" + data)
	c, err := oracle.Sign(s, id)
	require.NoError(t, err)
	return c
}

func TestLedger_AppendAndRecord(t *testing.T) {
	_, l := setupTestRedis(t)
	ctx := context.Background()
	s := newSigner(t, 1)

	_, ok, err := l.Record(ctx, s.PublisherKey())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Append(ctx, commit(t, s, "v1"), 3))
	latest := commit(t, s, "v2")
	require.NoError(t, l.Append(ctx, latest, 7))

	rec, ok, err := l.Record(ctx, s.PublisherKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, artifact.PublishRecord{Identity: latest.Identity, Height: 7}, rec)

	pubs, err := l.Publishers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{s.PublisherKey()}, pubs)
}

func TestLedger_RejectsForgery(t *testing.T) {
	mr, l := setupTestRedis(t)
	c := commit(t, newSigner(t, 1), "v1")
	c.Publisher = newSigner(t, 2).PublisherKey()

	require.ErrorIs(t, l.Append(context.Background(), c, 1), oracle.ErrUnauthorized)
	assert.False(t, mr.Exists(l.publisherKey(c.Publisher)))
}

func TestLedger_CorruptEntry(t *testing.T) {
	mr, l := setupTestRedis(t)
	_, err := mr.Push(l.publisherKey("m1"), "not json")
	require.NoError(t, err)

	_, _, err = l.Record(context.Background(), "m1")
	assert.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestLedger_ServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	l := New(client, "test:")
	defer l.Close()
	mr.Close()

	_, _, err = l.Record(context.Background(), "m1")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestLedger_KeyPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	l := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "custom:")
	defer l.Close()

	s := newSigner(t, 4)
	require.NoError(t, l.Append(context.Background(), commit(t, s, "v"), 1))
	assert.True(t, mr.Exists("custom:pub:"+s.PublisherKey()))
	ok, err := mr.SIsMember("custom:publishers", s.PublisherKey())
	require.NoError(t, err)
	assert.True(t, ok)
}
