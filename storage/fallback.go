package storage

import (
	"context"
	"errors"

	"xdao.co/modelsync/artifact"
)

// Fallback provides deterministic, ordered fallback across several registries.
//
// Download order is the slice order in Stores; callers MUST supply a fixed order.
// Only ErrNotFound moves on to the next store; any other failure is returned
// as-is so transport problems are not masked by a later miss.
//
// Upload is defined to write only to the first store.
type Fallback struct {
	Stores []RemoteStore
}

var _ RemoteStore = Fallback{}

func (f Fallback) Upload(ctx context.Context, id artifact.Identity, data []byte) (artifact.Identity, error) {
	if len(f.Stores) == 0 {
		return artifact.Identity{}, errors.New("storage: Fallback has no stores")
	}
	return f.Stores[0].Upload(ctx, id, data)
}

func (f Fallback) Download(ctx context.Context, id artifact.Identity) ([]byte, error) {
	if id.Commit == "" {
		return nil, ErrInvalidCommit
	}
	for _, s := range f.Stores {
		b, err := s.Download(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}
