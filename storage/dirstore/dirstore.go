// Package dirstore is a filesystem-backed artifact registry.
//
// Objects are stored immutably under
// <root>/<namespace>/<name>/<commit[:2]>/<commit>, where the commit token is
// the CIDv1 (raw, sha2-256) of the uploaded bytes. The store never uses the
// network and never depends on wall-clock time.
package dirstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/cidutil"
	"xdao.co/modelsync/internal/fsutil"
	"xdao.co/modelsync/storage"
)

// ErrImmutable is returned when an upload would change an existing object.
var ErrImmutable = errors.New("dirstore: object already exists with different bytes")

type Store struct {
	root string
}

var _ storage.RemoteStore = (*Store)(nil)

// New constructs a store rooted at root. The directory is created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("dirstore: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Upload(ctx context.Context, id artifact.Identity, data []byte) (artifact.Identity, error) {
	if err := ctx.Err(); err != nil {
		return artifact.Identity{}, storage.FromContext(err)
	}
	commit := cidutil.CIDv1RawSHA256(data)
	id = id.WithCommit(commit)
	path, err := s.pathFor(id)
	if err != nil {
		return artifact.Identity{}, err
	}
	// The object is linked into place complete, so a crash mid-write leaves
	// at most a temp file and never a truncated commit.
	err = fsutil.CreateNew(path, data, 0o444)
	if errors.Is(err, fs.ErrExist) {
		existing, rerr := os.ReadFile(path)
		// An unreadable or different object is an immutability violation.
		if rerr != nil || !bytes.Equal(existing, data) {
			return artifact.Identity{}, ErrImmutable
		}
		return id, nil
	}
	if err != nil {
		return artifact.Identity{}, err
	}
	return id, nil
}

func (s *Store) Download(ctx context.Context, id artifact.Identity) ([]byte, error) {
	if id.Commit == "" {
		return nil, storage.ErrInvalidCommit
	}
	if err := ctx.Err(); err != nil {
		return nil, storage.FromContext(err)
	}
	// A token that is not a CID cannot name anything here.
	if _, err := cid.Decode(id.Commit); err != nil {
		return nil, storage.ErrNotFound
	}
	path, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(b, id.Commit); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrCorrupt, path, err)
	}
	return b, nil
}

// Has reports whether the object named by id is present.
func (s *Store) Has(id artifact.Identity) bool {
	if id.Commit == "" {
		return false
	}
	path, err := s.pathFor(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (s *Store) pathFor(id artifact.Identity) (string, error) {
	for _, part := range []string{id.Namespace, id.Name, id.Commit} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("%w: unsafe path component %q", artifact.ErrInvalidIdentity, part)
		}
	}
	c := id.Commit
	if len(c) < 2 {
		return filepath.Join(s.root, id.Namespace, id.Name, c), nil
	}
	return filepath.Join(s.root, id.Namespace, id.Name, c[:2], c), nil
}
