package testkit

import (
	"context"
	"errors"
	"testing"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/storage"
)

func TestRemote_Conformance(t *testing.T) {
	RunRemoteConformance(t, func(t *testing.T) storage.RemoteStore {
		t.Helper()
		return NewRemote()
	})
}

func TestRemote_FailWith(t *testing.T) {
	r := NewRemote()
	id, err := r.Upload(context.Background(), artifact.NewIdentity("ns", "m", []byte("x")), []byte("x"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	r.FailWith(id, storage.ErrUnavailable)
	if _, err := r.Download(context.Background(), id); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("got %v want ErrUnavailable", err)
	}
	if r.Downloads() != 1 {
		t.Fatalf("Downloads: got %d want 1", r.Downloads())
	}
}
