// Package oracle defines the metadata oracle: the append-only ledger that
// maps each publisher to the artifact it currently claims and the height at
// which the claim was made.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/keys"
)

// ErrUnauthorized is returned when a commitment is not signed by its publisher.
var ErrUnauthorized = errors.New("oracle: commitment not signed by publisher")

// Oracle answers "what does publisher currently claim?".
//
// A publisher with no record is reported as (zero, false, nil). Transport
// failures wrap storage.ErrUnavailable, expired deadlines storage.ErrTimeout.
type Oracle interface {
	Record(ctx context.Context, publisher string) (artifact.PublishRecord, bool, error)
}

// Lister enumerates every publisher known to the ledger.
type Lister interface {
	Publishers(ctx context.Context) ([]string, error)
}

// Appender accepts new signed commitments.
type Appender interface {
	Append(ctx context.Context, c Commitment, height uint64) error
}

// Ledger is a full read/write oracle backend.
type Ledger interface {
	Oracle
	Lister
	Appender
}

// Commitment is a publisher's signed claim of an artifact identity.
type Commitment struct {
	Publisher string            `json:"publisher"`
	Identity  artifact.Identity `json:"identity"`
	HashAlg   string            `json:"hash_alg"`
	Signature string            `json:"signature"`
}

// Message returns the canonical bytes covered by the signature.
func (c Commitment) Message() []byte {
	var b strings.Builder
	b.WriteString("modelsync-commitment-v1\n")
	for _, kv := range [][2]string{
		{"publisher", c.Publisher},
		{"namespace", c.Identity.Namespace},
		{"name", c.Identity.Name},
		{"content-hash", c.Identity.ContentHash},
		{"commit", c.Identity.Commit},
	} {
		b.WriteString(kv[0])
		b.WriteByte(':')
		b.WriteString(kv[1])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Verify checks that the commitment is well formed and signed by its publisher.
func (c Commitment) Verify() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.Identity.Commit == "" {
		return fmt.Errorf("%w: missing commit", artifact.ErrInvalidIdentity)
	}
	if err := keys.Verify(c.Publisher, c.HashAlg, c.Message(), c.Signature); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// Sign builds a commitment for id signed by s.
func Sign(s keys.Signer, id artifact.Identity) (Commitment, error) {
	c := Commitment{Publisher: s.PublisherKey(), Identity: id}
	alg, sig, err := s.Sign(c.Message())
	if err != nil {
		return Commitment{}, err
	}
	c.HashAlg, c.Signature = alg, sig
	return c, nil
}
