package cidutil

import (
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	// ErrMalformed is returned when a claimed CID cannot be decoded.
	ErrMalformed = errors.New("cidutil: malformed cid")
	// ErrMismatch is returned when bytes do not hash to the claimed CID.
	ErrMismatch = errors.New("cidutil: cid mismatch")
	// ErrUnsupportedHash is returned for multihash functions we refuse to verify with.
	ErrUnsupportedHash = errors.New("cidutil: unsupported hash function")
)

// Accepted lists the multihash functions a content hash may use.
var Accepted = map[uint64]string{
	multihash.SHA2_256: "sha2-256",
	multihash.SHA2_512: "sha2-512",
	multihash.SHA3_256: "sha3-256",
}

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	return CIDv1Raw(data, multihash.SHA2_256)
}

// CIDv1Raw returns a CIDv1 raw CID over data using the multihash function code.
func CIDv1Raw(data []byte, code uint64) (cid.Cid, error) {
	if _, ok := Accepted[code]; !ok {
		return cid.Undef, ErrUnsupportedHash
	}
	sum, err := multihash.Sum(data, code, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Verify recomputes the digest of data with the hash function named by the
// claimed CID and compares the full multihash.
//
// The claim is untrusted input: any decode failure is reported as ErrMalformed.
func Verify(data []byte, claimed string) error {
	want, err := cid.Decode(claimed)
	if err != nil || !want.Defined() {
		return ErrMalformed
	}
	dec, err := multihash.Decode(want.Hash())
	if err != nil {
		return ErrMalformed
	}
	if _, ok := Accepted[dec.Code]; !ok {
		return ErrUnsupportedHash
	}
	sum, err := multihash.Sum(data, dec.Code, dec.Length)
	if err != nil {
		return ErrMalformed
	}
	got := cid.NewCidV1(want.Type(), sum)
	if !got.Equals(want) {
		return ErrMismatch
	}
	return nil
}
