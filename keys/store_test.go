package keys

import (
	"os"
	"testing"
)

func TestKeyStore_InitDeriveLoad(t *testing.T) {
	ks, err := OpenKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenKeyStore: %v", err)
	}

	root := seed(3)
	key, path, err := ks.Init("alice", root, false)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if key != PublisherKeyFromSeed(root) {
		t.Fatalf("unexpected publisher key %q", key)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected key file mode %v", info.Mode().Perm())
	}

	if _, _, err := ks.Init("alice", root, false); err == nil {
		t.Fatalf("expected Init without overwrite to fail")
	}

	derivedKey, _, err := ks.Derive("alice", "hot-1", false)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	derivedSeed, err := ks.Load("alice", "hot-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if PublisherKeyFromSeed(derivedSeed) != derivedKey {
		t.Fatalf("derived key does not match loaded seed")
	}

	names, err := ks.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 1 || names[0] != "alice" {
		t.Fatalf("Names: got %v", names)
	}
}

func TestKeyStore_RejectsBadNames(t *testing.T) {
	ks := &KeyStore{Directory: t.TempDir()}
	if _, _, err := ks.Init("../escape", seed(1), false); err == nil {
		t.Fatalf("expected invalid name error")
	}
	if _, err := ks.Load("alice", "a/b"); err == nil {
		t.Fatalf("expected invalid label error")
	}
}
