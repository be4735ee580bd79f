// Package keys provides publisher key helpers.
//
// A publisher is identified by its public key, encoded as "<alg>:<base64>"
// with alg one of ed25519 or dilithium3. Ledgers accept a commitment for a
// publisher only when it is signed by that key.
//
// The filesystem KeyStore is a local-first convenience for the CLI and is not
// part of the ledger contract.
package keys
