package keys

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Signer signs on behalf of one publisher key.
type Signer interface {
	// PublisherKey returns the "<alg>:<base64>" key the signatures verify under.
	PublisherKey() string
	// Sign returns the hash algorithm used and a base64 signature over message.
	Sign(message []byte) (hashAlg string, sigB64 string, err error)
}

// Ed25519Signer signs with an Ed25519 key derived from a seed.
type Ed25519Signer struct {
	priv    ed25519.PrivateKey
	HashAlg string
}

func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{priv: ed25519.NewKeyFromSeed(seed), HashAlg: "sha256"}, nil
}

func (s *Ed25519Signer) PublisherKey() string {
	key, _ := PublisherKeyFromPublicKey(s.priv.Public().(ed25519.PublicKey))
	return key
}

func (s *Ed25519Signer) Sign(message []byte) (string, string, error) {
	sig, err := SignEd25519(message, s.HashAlg, s.priv)
	return s.HashAlg, sig, err
}

// Dilithium3Signer signs with a post-quantum Dilithium3 key.
type Dilithium3Signer struct {
	pub     *mode3.PublicKey
	priv    *mode3.PrivateKey
	HashAlg string
}

func NewDilithium3Signer(pub *mode3.PublicKey, priv *mode3.PrivateKey) (*Dilithium3Signer, error) {
	if pub == nil || priv == nil {
		return nil, fmt.Errorf("missing dilithium3 keypair")
	}
	return &Dilithium3Signer{pub: pub, priv: priv, HashAlg: "sha3-256"}, nil
}

func (s *Dilithium3Signer) PublisherKey() string {
	key, _ := PublisherKeyFromDilithium3(s.pub)
	return key
}

func (s *Dilithium3Signer) Sign(message []byte) (string, string, error) {
	sig, err := SignDilithium3(message, s.HashAlg, s.priv)
	return s.HashAlg, sig, err
}
