package dirstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/cidutil"
	"xdao.co/modelsync/internal/fsutil"
	"xdao.co/modelsync/storage"
	"xdao.co/modelsync/storage/registry"
	"xdao.co/modelsync/storage/testkit"
)

func TestDirStore_Conformance(t *testing.T) {
	testkit.RunRemoteConformance(t, func(t *testing.T) storage.RemoteStore {
		t.Helper()
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	})
}

func TestDirStore_DetectsTampering(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := s.Upload(context.Background(), artifact.NewIdentity("ns", "m", orig), orig)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	// Corrupt the stored object out-of-band.
	path, _ := s.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := s.Download(context.Background(), id); !errors.Is(err, storage.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	// Re-uploading the original bytes must not silently repair the object.
	if _, err := s.Upload(context.Background(), id, orig); !errors.Is(err, ErrImmutable) {
		t.Fatalf("expected ErrImmutable, got %v", err)
	}
}

func TestDirStore_RejectsUnsafeNames(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data := []byte("x")
	for _, id := range []artifact.Identity{
		artifact.NewIdentity("..", "m", data),
		artifact.NewIdentity("ns", "a/b", data),
	} {
		if _, err := s.Upload(context.Background(), id, data); !errors.Is(err, artifact.ErrInvalidIdentity) {
			t.Fatalf("expected ErrInvalidIdentity for %v, got %v", id, err)
		}
	}
}

func TestDirStore_GarbageCommitIsNotFound(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	id := artifact.NewIdentity("ns", "m", []byte("x")).WithCommit("not-a-cid")
	if _, err := s.Download(context.Background(), id); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDirStore_Has(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	data := []byte("present")
	id, err := s.Upload(context.Background(), artifact.NewIdentity("ns", "m", data), data)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if !s.Has(id) {
		t.Fatalf("expected Has after Upload")
	}
	if s.Has(id.WithCommit("")) {
		t.Fatalf("expected Has false for empty commit")
	}
}

func TestDirStore_Registered(t *testing.T) {
	if _, _, err := registry.Open("dir", registry.UsageServer, nil); err == nil {
		t.Fatalf("expected error without dir")
	}
	s, _, err := registry.Open("dir", registry.UsageClient, map[string]string{"dir": t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*Store); !ok {
		t.Fatalf("expected *Store, got %T", s)
	}
}

func TestDirStore_InterruptedWriteDoesNotPoisonCommit(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	data := []byte("complete payload")
	id := artifact.NewIdentity("ns", "m", data)
	path, err := s.pathFor(id.WithCommit(cidutil.CIDv1RawSHA256(data)))
	if err != nil {
		t.Fatal(err)
	}

	// A writer that died mid-upload leaves only a partial temp file.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	stray := filepath.Join(filepath.Dir(path), fsutil.TempPrefix+filepath.Base(path)+".crashed")
	if err := os.WriteFile(stray, data[:4], 0o644); err != nil {
		t.Fatal(err)
	}
	if s.Has(id.WithCommit(cidutil.CIDv1RawSHA256(data))) {
		t.Fatal("partial write must not be visible as the object")
	}

	stored, err := s.Upload(context.Background(), id, data)
	if err != nil {
		t.Fatalf("Upload after interrupted write: %v", err)
	}
	got, err := s.Download(context.Background(), stored)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q want %q", got, data)
	}

	// Re-uploading the same bytes stays idempotent.
	if _, err := s.Upload(context.Background(), id, data); err != nil {
		t.Fatalf("second Upload: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	temps := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), fsutil.TempPrefix) {
			temps++
		}
	}
	if temps != 1 {
		t.Fatalf("found %d temp files, want only the crashed one", temps)
	}
}
