package artifact

import (
	"errors"
	"fmt"

	"xdao.co/modelsync/cidutil"
)

var (
	ErrHashMismatch    = errors.New("artifact: content hash mismatch")
	ErrInvalidHash     = errors.New("artifact: invalid content hash")
	ErrInvalidIdentity = errors.New("artifact: invalid identity")
)

// Identity names one immutable artifact version.
//
// Equality is structural; two identities are the same version only if every
// field matches.
type Identity struct {
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	ContentHash string `json:"content_hash"`
	// Commit is the registry token pointing at the exact uploaded revision.
	// It is empty until the artifact has been uploaded.
	Commit string `json:"commit,omitempty"`
}

// NewIdentity builds an identity for data with a CIDv1 raw sha2-256 content hash.
func NewIdentity(namespace, name string, data []byte) Identity {
	return Identity{
		Namespace:   namespace,
		Name:        name,
		ContentHash: cidutil.CIDv1RawSHA256(data),
	}
}

// Repo returns the "namespace/name" path of the artifact in a registry.
func (id Identity) Repo() string {
	return id.Namespace + "/" + id.Name
}

func (id Identity) String() string {
	if id.Commit == "" {
		return fmt.Sprintf("%s@%s", id.Repo(), id.ContentHash)
	}
	return fmt.Sprintf("%s@%s#%s", id.Repo(), id.ContentHash, id.Commit)
}

// WithCommit returns a copy of id pointing at commit.
func (id Identity) WithCommit(commit string) Identity {
	id.Commit = commit
	return id
}

func (id Identity) Validate() error {
	switch {
	case id.Namespace == "":
		return fmt.Errorf("%w: missing namespace", ErrInvalidIdentity)
	case id.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidIdentity)
	case id.ContentHash == "":
		return fmt.Errorf("%w: missing content hash", ErrInvalidIdentity)
	}
	return nil
}

// Verify checks data against the claimed content hash.
func (id Identity) Verify(data []byte) error {
	switch err := cidutil.Verify(data, id.ContentHash); {
	case err == nil:
		return nil
	case errors.Is(err, cidutil.ErrMismatch):
		return fmt.Errorf("%w: %s", ErrHashMismatch, id)
	default:
		return fmt.Errorf("%w: %s: %v", ErrInvalidHash, id, err)
	}
}
