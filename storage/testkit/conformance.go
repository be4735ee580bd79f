package testkit

import (
	"bytes"
	"context"
	"testing"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/storage"
)

// NewStore constructs a fresh, empty RemoteStore for a test.
// The returned store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.RemoteStore

func RunRemoteConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("UploadDownloadRoundTrip", func(t *testing.T) {
		s := newStore(t)
		want := []byte("hello, model registry")
		id := artifact.NewIdentity("ns", "model", want)

		got, err := s.Upload(ctx, id, want)
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		if got.Commit == "" {
			t.Fatalf("Upload returned empty commit")
		}
		if got.WithCommit("") != id {
			t.Fatalf("Upload changed identity fields: got %v want %v", got, id)
		}

		b, err := s.Download(ctx, got)
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		if !bytes.Equal(b, want) {
			t.Fatalf("Download bytes mismatch")
		}
		if err := got.Verify(b); err != nil {
			t.Fatalf("downloaded bytes do not verify: %v", err)
		}
	})

	t.Run("UploadIdempotent", func(t *testing.T) {
		s := newStore(t)
		b := []byte("same bytes")
		id := artifact.NewIdentity("ns", "model", b)

		id1, err := s.Upload(ctx, id, b)
		if err != nil {
			t.Fatalf("Upload(1) failed: %v", err)
		}
		id2, err := s.Upload(ctx, id, b)
		if err != nil {
			t.Fatalf("Upload(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Upload not idempotent: %v vs %v", id1, id2)
		}
	})

	t.Run("MissingCommit", func(t *testing.T) {
		s := newStore(t)
		id := artifact.NewIdentity("ns", "model", []byte("x"))
		if _, err := s.Download(ctx, id); err != storage.ErrInvalidCommit {
			t.Fatalf("Download without commit: got %v want ErrInvalidCommit", err)
		}
	})

	t.Run("UnknownCommit", func(t *testing.T) {
		s := newStore(t)
		b := []byte("never uploaded")
		id := artifact.NewIdentity("ns", "model", b).WithCommit(artifact.NewIdentity("", "", b).ContentHash)
		if _, err := s.Download(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("Download unknown commit: got %v want ErrNotFound", err)
		}
	})
}
