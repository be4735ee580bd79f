package bundle_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/storage/bundle"
	"xdao.co/modelsync/storage/dirstore"
	"xdao.co/modelsync/storage/testkit"
)

func upload(t *testing.T, r *testkit.Remote, ns, name string, data []byte) artifact.Identity {
	t.Helper()
	id, err := r.Upload(context.Background(), artifact.NewIdentity(ns, name, data), data)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	src := testkit.NewRemote()
	id1 := upload(t, src, "acme", "a", []byte("hello"))
	id2 := upload(t, src, "acme", "b", []byte("world"))

	var outA bytes.Buffer
	if err := bundle.Export(ctx, &outA, src, []artifact.Identity{id2, id1, id2}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	var outB bytes.Buffer
	if err := bundle.Export(ctx, &outB, src, []artifact.Identity{id1, id2}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic bundle bytes")
	}
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := testkit.NewRemote()
	payload := []byte("payload")
	id := upload(t, src, "acme", "tiny", payload)

	var buf bytes.Buffer
	if err := bundle.Export(ctx, &buf, src, []artifact.Identity{id}, bundle.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	dst, err := dirstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	got, err := bundle.Import(ctx, bytes.NewReader(buf.Bytes()), dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("imported %d artifacts, want 1", len(got))
	}
	if got[0].Repo() != id.Repo() || got[0].ContentHash != id.ContentHash || got[0].Commit == "" {
		t.Fatalf("unexpected imported identity %v", got[0])
	}

	b, err := dst.Download(ctx, got[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestBundle_ExportRejectsTamperedSource(t *testing.T) {
	src := testkit.NewRemote()
	id := artifact.NewIdentity("acme", "tiny", []byte("good")).WithCommit("c1")
	src.Put(id, []byte("evil"))

	var buf bytes.Buffer
	err := bundle.Export(context.Background(), &buf, src, []artifact.Identity{id}, bundle.ExportOptions{})
	if !errors.Is(err, artifact.ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
}

func TestBundle_ImportRejectsHashMismatch(t *testing.T) {
	other := artifact.NewIdentity("acme", "tiny", []byte("other"))

	// Path names the hash of "other" but the bytes are "good".
	bundleBytes := makeDeterministicTar(t, "artifacts/acme/tiny/"+other.ContentHash, []byte("good"))

	dst := testkit.NewRemote()
	_, err := bundle.Import(context.Background(), bytes.NewReader(bundleBytes), dst)
	if !errors.Is(err, artifact.ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
	if dst.Uploads() != 0 {
		t.Fatalf("mismatched payload was uploaded")
	}
}

func TestBundle_ImportUnknownEntries(t *testing.T) {
	bundleBytes := makeDeterministicTar(t, "notes/readme.txt", []byte("hi"))

	if _, err := bundle.Import(context.Background(), bytes.NewReader(bundleBytes), testkit.NewRemote()); err == nil {
		t.Fatal("expected unknown entry to fail closed")
	}
	got, err := bundle.ImportWithOptions(context.Background(), bytes.NewReader(bundleBytes), testkit.NewRemote(), bundle.ImportOptions{IgnoreUnknown: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("imported %d artifacts from a bundle with none", len(got))
	}
}

func TestBundle_ImportRejectsTraversal(t *testing.T) {
	bundleBytes := makeDeterministicTar(t, "artifacts/../../etc/passwd", []byte("x"))
	if _, err := bundle.Import(context.Background(), bytes.NewReader(bundleBytes), testkit.NewRemote()); err == nil {
		t.Fatal("expected traversal path to be rejected")
	}
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(h); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
