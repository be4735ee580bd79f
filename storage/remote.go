package storage

import (
	"context"

	"xdao.co/modelsync/artifact"
)

// RemoteStore is the registry holding published artifact bytes.
//
// Contract:
//   - Download MUST return ErrInvalidCommit when id.Commit is empty.
//   - Download MUST return ErrNotFound when the commit cannot be resolved.
//   - Download does not vouch for id.ContentHash; callers verify the bytes.
//   - Upload returns id with Commit set to the token of the stored revision.
type RemoteStore interface {
	Download(ctx context.Context, id artifact.Identity) ([]byte, error)
	Upload(ctx context.Context, id artifact.Identity, data []byte) (artifact.Identity, error)
}
