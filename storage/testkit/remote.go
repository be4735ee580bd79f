package testkit

import (
	"context"
	"sync"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/cidutil"
	"xdao.co/modelsync/storage"
)

// Remote is an in-memory storage.RemoteStore for tests.
//
// Commit tokens are the CIDv1 of the uploaded bytes, so the same bytes under
// the same repo always map to the same commit. Failures and tampered payloads
// can be injected per commit.
type Remote struct {
	mu        sync.Mutex
	objects   map[string][]byte // repo + "@" + commit
	fail      map[string]error
	downloads int
	uploads   int
}

var _ storage.RemoteStore = (*Remote)(nil)

func NewRemote() *Remote {
	return &Remote{objects: map[string][]byte{}, fail: map[string]error{}}
}

func objectKey(id artifact.Identity) string { return id.Repo() + "@" + id.Commit }

func (r *Remote) Upload(ctx context.Context, id artifact.Identity, data []byte) (artifact.Identity, error) {
	if err := ctx.Err(); err != nil {
		return artifact.Identity{}, storage.FromContext(err)
	}
	id = id.WithCommit(cidutil.CIDv1RawSHA256(data))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads++
	r.objects[objectKey(id)] = append([]byte(nil), data...)
	return id, nil
}

func (r *Remote) Download(ctx context.Context, id artifact.Identity) ([]byte, error) {
	if id.Commit == "" {
		return nil, storage.ErrInvalidCommit
	}
	if err := ctx.Err(); err != nil {
		return nil, storage.FromContext(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloads++
	if err, ok := r.fail[objectKey(id)]; ok {
		return nil, err
	}
	b, ok := r.objects[objectKey(id)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

// Put stores data under an explicit commit without deriving it from the bytes.
// Use it to serve bytes that do not match the identity's content hash.
func (r *Remote) Put(id artifact.Identity, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[objectKey(id)] = append([]byte(nil), data...)
}

// FailWith makes every download of id return err.
func (r *Remote) FailWith(id artifact.Identity, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[objectKey(id)] = err
}

func (r *Remote) Downloads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downloads
}

func (r *Remote) Uploads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploads
}
