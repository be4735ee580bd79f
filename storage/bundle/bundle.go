// Package bundle moves artifacts between registries as a single TAR file, for
// seeding a registry that has no route to the original one.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export downloads each identity from src and writes a deterministic TAR
// bundle holding one artifacts/<namespace>/<name>/<content-hash> entry per
// distinct artifact.
//
// Entry order is lexicographic and TAR headers are normalized, so the same
// input set always yields the same bytes. Every payload is verified against
// its content hash before it is written.
func Export(ctx context.Context, w io.Writer, src storage.RemoteStore, ids []artifact.Identity, opts ExportOptions) error {
	if src == nil {
		return fmt.Errorf("bundle: nil store")
	}

	uniq := make(map[string]artifact.Identity, len(ids))
	for _, id := range ids {
		if err := id.Validate(); err != nil {
			return err
		}
		p, err := entryPath(id)
		if err != nil {
			return err
		}
		uniq[p] = id
	}

	paths := make([]string, 0, len(uniq))
	for p := range uniq {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	tw := tar.NewWriter(w)

	entries := make([]indexEntry, 0, len(paths))
	for _, p := range paths {
		id := uniq[p]
		b, err := src.Download(ctx, id)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("bundle: download %s: %w", id, err)
		}
		if err := id.Verify(b); err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, p, b); err != nil {
			_ = tw.Close()
			return err
		}
		entries = append(entries, indexEntry{
			Namespace:   id.Namespace,
			Name:        id.Name,
			ContentHash: id.ContentHash,
			Size:        len(b),
		})
	}

	if opts.IncludeIndex {
		b, err := marshalIndex(indexJSON{Version: FormatVersion, Artifacts: entries})
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Import reads a bundle from r and uploads every artifact into dst. It returns
// the identities as dst committed them, sorted by entry path.
func Import(ctx context.Context, r io.Reader, dst storage.RemoteStore) ([]artifact.Identity, error) {
	return ImportWithOptions(ctx, r, dst, ImportOptions{})
}

// ImportWithOptions is Import with explicit options. Payloads are checked
// against the content hash named by their entry path before upload; the
// first failure aborts the import.
func ImportWithOptions(ctx context.Context, r io.Reader, dst storage.RemoteStore, opts ImportOptions) ([]artifact.Identity, error) {
	if dst == nil {
		return nil, fmt.Errorf("bundle: nil store")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var out []artifact.Identity

	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
			return out, nil
		}
		if err != nil {
			return out, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return out, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return out, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		id, ok := identityFromPath(name)
		if !ok {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return out, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		if _, dup := seen[name]; dup {
			return out, fmt.Errorf("bundle: duplicate artifact entry: %s", name)
		}
		seen[name] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return out, err
		}
		if err := id.Verify(payload); err != nil {
			return out, err
		}

		stored, err := dst.Upload(ctx, id, payload)
		if err != nil {
			return out, fmt.Errorf("bundle: upload %s: %w", id, err)
		}
		out = append(out, stored)
	}
}

type indexJSON struct {
	Version   int          `json:"version"`
	Artifacts []indexEntry `json:"artifacts"`
}

type indexEntry struct {
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	ContentHash string `json:"content_hash"`
	Size        int    `json:"size"`
}

func marshalIndex(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json will be deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func entryPath(id artifact.Identity) (string, error) {
	for _, part := range []string{id.Namespace, id.Name, id.ContentHash} {
		if part == "." || part == ".." || strings.ContainsAny(part, "/\\") {
			return "", fmt.Errorf("%w: unsafe path component %q", artifact.ErrInvalidIdentity, part)
		}
	}
	return "artifacts/" + id.Namespace + "/" + id.Name + "/" + id.ContentHash, nil
}

func identityFromPath(name string) (artifact.Identity, bool) {
	parts := strings.Split(name, "/")
	if len(parts) != 4 || parts[0] != "artifacts" {
		return artifact.Identity{}, false
	}
	return artifact.Identity{Namespace: parts[1], Name: parts[2], ContentHash: parts[3]}, true
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
