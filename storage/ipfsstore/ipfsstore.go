// Package ipfsstore is a remote artifact store backed by the local Kubo
// "ipfs" CLI.
//
// Artifacts are stored as raw blocks (CIDv1, sha2-256); the commit token is
// the block CID, so downloads are verified without trusting the node.
// The adapter operates on the local IPFS repo and does not need a daemon.
package ipfsstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/cidutil"
	"xdao.co/modelsync/storage"
)

type Store struct {
	bin string
	env []string
	pin bool
}

var _ storage.RemoteStore = (*Store)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
	// Pin pins uploaded blocks so repo GC keeps them.
	Pin bool
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &Store{bin: bin, env: opts.Env, pin: opts.Pin}
}

func (s *Store) Upload(ctx context.Context, id artifact.Identity, data []byte) (artifact.Identity, error) {
	want := cidutil.CIDv1RawSHA256(data)

	args := []string{
		"block", "put",
		"--quiet",
		"--format=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"--cid-version=1",
	}
	if s.pin {
		args = append(args, "--pin=true")
	}
	out, err := s.run(ctx, data, append(args, "/dev/stdin")...)
	if err != nil {
		return artifact.Identity{}, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return artifact.Identity{}, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if got.String() != want {
		return artifact.Identity{}, fmt.Errorf("%w: ipfs returned %s, expected %s", storage.ErrInvalidCommit, got, want)
	}
	return id.WithCommit(want), nil
}

func (s *Store) Download(ctx context.Context, id artifact.Identity) ([]byte, error) {
	if id.Commit == "" {
		return nil, storage.ErrInvalidCommit
	}
	c, err := cid.Decode(id.Commit)
	if err != nil || !c.Defined() {
		return nil, storage.ErrNotFound
	}

	out, err := s.run(ctx, nil, "block", "get", c.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(out, id.Commit); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	return out, nil
}

func (s *Store) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	if cerr := storage.FromContext(ctx.Err()); cerr != nil {
		return nil, fmt.Errorf("%w: ipfs %s", cerr, args[0])
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.TrimSpace(string(ee.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", msg)
	}
	// The binary could not be started at all.
	return nil, fmt.Errorf("%w: ipfs: %v", storage.ErrUnavailable, err)
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block not found")
}
