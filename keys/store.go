package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore keeps publisher seeds on the local filesystem:
//
//	<Directory>/<name>/root.key
//	<Directory>/<name>/derived/<label>.key
//
// Seeds are hex encoded, one per file, mode 0600.
type KeyStore struct {
	Directory string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".modelsync", "keys"), nil
}

func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootPath(name string) string {
	return filepath.Join(ks.Directory, name, "root.key")
}

func (ks *KeyStore) derivedPath(name, label string) string {
	return filepath.Join(ks.Directory, name, "derived", label+".key")
}

// CheckName accepts [A-Za-z0-9_-]+ so names are safe as path elements.
func CheckName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in name", char)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func saveSeed(path string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func loadSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// Init stores seed as the root key of name and returns its publisher key.
func (ks *KeyStore) Init(name string, seed []byte, overwrite bool) (publisherKey, path string, err error) {
	if err := CheckName(name); err != nil {
		return "", "", err
	}
	path = ks.rootPath(name)
	if err := saveSeed(path, seed, overwrite); err != nil {
		return "", "", err
	}
	return PublisherKeyFromSeed(seed), path, nil
}

// Derive stores a labelled key derived from the root key of name.
func (ks *KeyStore) Derive(name, label string, overwrite bool) (publisherKey, path string, err error) {
	if err := CheckName(name); err != nil {
		return "", "", err
	}
	root, err := loadSeed(ks.rootPath(name))
	if err != nil {
		return "", "", err
	}
	seed, err := DeriveSeed(root, label)
	if err != nil {
		return "", "", err
	}
	path = ks.derivedPath(name, label)
	if err := saveSeed(path, seed, overwrite); err != nil {
		return "", "", err
	}
	return PublisherKeyFromSeed(seed), path, nil
}

// Load returns the seed of name, or of its derived key when label is set.
func (ks *KeyStore) Load(name, label string) ([]byte, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	if label == "" {
		return loadSeed(ks.rootPath(name))
	}
	if err := CheckName(label); err != nil {
		return nil, err
	}
	return loadSeed(ks.derivedPath(name, label))
}

// Names lists stored key names, sorted.
func (ks *KeyStore) Names() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
