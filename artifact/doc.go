// Package artifact defines the identity of a published artifact version and
// the record a publisher commits to the metadata oracle.
//
// Identities are plain comparable values. The content hash carried by an
// Identity is a claim made by the publisher; it becomes trustworthy only
// after Verify succeeds against the bytes actually obtained.
package artifact
