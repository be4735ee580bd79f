package storage

import (
	"context"
	"fmt"

	"xdao.co/modelsync/artifact"
)

// NamedStore associates a RemoteStore with a stable backend name.
type NamedStore struct {
	Name  string
	Store RemoteStore
}

// Replicating uploads to every configured registry.
//
// Downloads fall back in order. Uploads go to all registries and require the
// returned commit tokens to agree, so only backends that derive the token
// from the bytes (dir, ipfs) can be combined this way.
type Replicating struct {
	Stores []NamedStore
}

var _ RemoteStore = Replicating{}

// UploadAll writes data to every registry and returns the per-backend commits.
// A disagreeing commit yields ErrInvalidCommit along with the partial map.
func (r Replicating) UploadAll(ctx context.Context, id artifact.Identity, data []byte) (artifact.Identity, map[string]string, error) {
	if len(r.Stores) == 0 {
		return artifact.Identity{}, nil, fmt.Errorf("storage: Replicating has no stores")
	}

	out := make(map[string]string, len(r.Stores))
	var first artifact.Identity
	for i, s := range r.Stores {
		if s.Store == nil {
			return artifact.Identity{}, nil, fmt.Errorf("storage: nil store for backend %q", s.Name)
		}
		got, err := s.Store.Upload(ctx, id, data)
		if err != nil {
			return artifact.Identity{}, out, fmt.Errorf("upload to %s: %w", s.Name, err)
		}
		out[s.Name] = got.Commit
		if i == 0 {
			first = got
			continue
		}
		if got.Commit != first.Commit {
			return artifact.Identity{}, out, fmt.Errorf("%w: %s returned %q, %s returned %q",
				ErrInvalidCommit, r.Stores[0].Name, first.Commit, s.Name, got.Commit)
		}
	}
	return first, out, nil
}

func (r Replicating) Upload(ctx context.Context, id artifact.Identity, data []byte) (artifact.Identity, error) {
	got, _, err := r.UploadAll(ctx, id, data)
	return got, err
}

func (r Replicating) Download(ctx context.Context, id artifact.Identity) ([]byte, error) {
	stores := make([]RemoteStore, 0, len(r.Stores))
	for _, s := range r.Stores {
		if s.Store != nil {
			stores = append(stores, s.Store)
		}
	}
	return Fallback{Stores: stores}.Download(ctx, id)
}
