// Package storage defines the remote artifact registry contract and the
// error taxonomy shared by every storage backend.
//
// Backends live in sub-packages: diskcache (local cache of verified bytes),
// dirstore (filesystem registry), grpcstore (gRPC transport), ipfsstore
// (Kubo CLI) and testkit (in-memory fake plus conformance tests).
package storage
