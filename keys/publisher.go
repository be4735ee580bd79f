package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

var ErrInvalidKey = errors.New("keys: invalid publisher key")

// PublisherKeyFromSeed returns the publisher key string for an Ed25519 seed.
func PublisherKeyFromSeed(seed []byte) string {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return AlgEd25519 + ":" + base64.StdEncoding.EncodeToString(pub)
}

// PublisherKeyFromPublicKey encodes an Ed25519 public key as a publisher key.
func PublisherKeyFromPublicKey(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return AlgEd25519 + ":" + base64.StdEncoding.EncodeToString(pub), nil
}

// PublisherKeyFromDilithium3 encodes a Dilithium3 public key as a publisher key.
func PublisherKeyFromDilithium3(pub *mode3.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("%w: nil dilithium3 key", ErrInvalidKey)
	}
	b, err := pub.MarshalBinary()
	if err != nil {
		return "", err
	}
	return AlgDilithium3 + ":" + base64.StdEncoding.EncodeToString(b), nil
}

// ParsePublisherKey splits a publisher key into its algorithm and raw public key bytes.
func ParsePublisherKey(publisher string) (alg string, pub []byte, err error) {
	alg, enc, ok := strings.Cut(publisher, ":")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing algorithm prefix", ErrInvalidKey)
	}
	pub, err = decodeBase64(enc)
	if err != nil {
		return "", nil, fmt.Errorf("%w: base64: %v", ErrInvalidKey, err)
	}
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return "", nil, fmt.Errorf("%w: ed25519 key length %d", ErrInvalidKey, len(pub))
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return "", nil, fmt.Errorf("%w: dilithium3: %v", ErrInvalidKey, err)
		}
	default:
		return "", nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidKey, alg)
	}
	return alg, pub, nil
}

func decodeBase64(s string) ([]byte, error) {
	// Prefer standard padded encoding, but accept raw encoding too.
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
