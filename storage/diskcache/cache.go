package diskcache

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/multiformats/go-multibase"
	"go.uber.org/zap"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/cidutil"
	"xdao.co/modelsync/internal/fsutil"
	"xdao.co/modelsync/storage"
)

const entryExt = ".art"

// Cache is a local directory of verified artifact bytes keyed by
// (publisher, identity).
//
// Entries are immutable once published: Store writes a temp file and renames
// it into place, so a concurrent Retrieve never observes a partial entry.
// Evict is the only operation that deletes entries.
type Cache struct {
	root   string
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Cache)

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the clock used for manifests and Touch.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a disk cache rooted at root. The directory will be created if needed.
func New(root string, opts ...Option) (*Cache, error) {
	if root == "" {
		return nil, errors.New("diskcache: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	c := &Cache{root: root, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "diskcache"))
	return c, nil
}

func (c *Cache) Root() string { return c.root }

// Store verifies data against id and publishes it under (publisher, id),
// replacing any previous content at that key.
func (c *Cache) Store(publisher string, id artifact.Identity, data []byte) error {
	path, err := c.pathFor(publisher, id)
	if err != nil {
		return err
	}
	if err := id.Verify(data); err != nil {
		return err
	}
	m := manifest{
		Publisher: publisher,
		Identity:  id,
		Size:      int64(len(data)),
		StoredAt:  c.now().UTC(),
	}
	write := func(w io.Writer) error { return writeEnvelope(w, m, data) }

	err = fsutil.WriteAtomic(path, 0o644, write)
	if errors.Is(err, fs.ErrNotExist) {
		// A concurrent Evict removed the (then empty) publisher directory.
		err = fsutil.WriteAtomic(path, 0o644, write)
	}
	if err != nil {
		return fmt.Errorf("diskcache: store %s: %w", id, err)
	}
	return nil
}

// Retrieve returns the payload stored under (publisher, id).
//
// It returns storage.ErrNotFound when no entry exists and storage.ErrCorrupt
// when the entry cannot be decoded or belongs to a different key. The content
// hash is not re-checked here.
func (c *Cache) Retrieve(publisher string, id artifact.Identity) ([]byte, error) {
	path, err := c.pathFor(publisher, id)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	r := bytes.NewReader(b)
	m, err := readManifest(r)
	if err != nil {
		return nil, err
	}
	if m.Publisher != publisher || m.Identity != id {
		return nil, fmt.Errorf("%w: entry belongs to %s/%s", storage.ErrCorrupt, m.Publisher, m.Identity)
	}
	payload := b[len(b)-r.Len():]
	if int64(len(payload)) != m.Size {
		return nil, fmt.Errorf("%w: payload is %d bytes, manifest says %d", storage.ErrCorrupt, len(payload), m.Size)
	}
	return append([]byte(nil), payload...), nil
}

func (c *Cache) Has(publisher string, id artifact.Identity) bool {
	path, err := c.pathFor(publisher, id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Touch marks an existing entry as freshly written, so it falls inside the
// eviction grace window again.
func (c *Cache) Touch(publisher string, id artifact.Identity) error {
	path, err := c.pathFor(publisher, id)
	if err != nil {
		return err
	}
	now := c.now()
	if err := os.Chtimes(path, now, now); err != nil {
		if os.IsNotExist(err) {
			return storage.ErrNotFound
		}
		return err
	}
	return nil
}

func (c *Cache) pathFor(publisher string, id artifact.Identity) (string, error) {
	if publisher == "" {
		return "", errors.New("diskcache: publisher is required")
	}
	if err := id.Validate(); err != nil {
		return "", err
	}
	dir, err := publisherDir(publisher)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.root, dir, entryName(id)), nil
}

// publisherDir returns a path-safe directory name for an arbitrary publisher key.
func publisherDir(publisher string) (string, error) {
	return multibase.Encode(multibase.Base32, []byte(publisher))
}

func entryName(id artifact.Identity) string {
	// Identity is a flat struct of strings; its JSON encoding is stable.
	b, _ := json.Marshal(id)
	return cidutil.CIDv1RawSHA256(b) + entryExt
}

// readKey decodes only the manifest of the entry at path.
func readKey(path string) (artifact.Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return artifact.Key{}, err
	}
	defer f.Close()
	m, err := readManifest(bufio.NewReader(f))
	if err != nil {
		return artifact.Key{}, err
	}
	return artifact.Key{Publisher: m.Publisher, Identity: m.Identity}, nil
}
