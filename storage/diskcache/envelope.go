package diskcache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/storage"
)

// On-disk entry layout:
//
//	magic (8 bytes) | manifest length (uint32 BE) | manifest JSON | payload
const (
	magic           = "MSART001"
	headerSize      = len(magic) + 4
	maxManifestSize = 1 << 20
)

type manifest struct {
	Publisher string            `json:"publisher"`
	Identity  artifact.Identity `json:"identity"`
	Size      int64             `json:"size"`
	StoredAt  time.Time         `json:"stored_at"`
}

func writeEnvelope(w io.Writer, m manifest, payload []byte) error {
	mb, err := json.Marshal(m)
	if err != nil {
		return err
	}
	var hdr [headerSize]byte
	copy(hdr[:], magic)
	binary.BigEndian.PutUint32(hdr[len(magic):], uint32(len(mb)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(mb); err != nil {
		return err
	}
	_, err = io.Copy(w, bytes.NewReader(payload))
	return err
}

// readManifest decodes the header and manifest, leaving r positioned at the payload.
func readManifest(r io.Reader) (manifest, error) {
	var m manifest
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return m, fmt.Errorf("%w: short header: %v", storage.ErrCorrupt, err)
	}
	if string(hdr[:len(magic)]) != magic {
		return m, fmt.Errorf("%w: bad magic", storage.ErrCorrupt)
	}
	n := binary.BigEndian.Uint32(hdr[len(magic):])
	if n == 0 || n > maxManifestSize {
		return m, fmt.Errorf("%w: manifest length %d", storage.ErrCorrupt, n)
	}
	mb := make([]byte, n)
	if _, err := io.ReadFull(r, mb); err != nil {
		return m, fmt.Errorf("%w: short manifest: %v", storage.ErrCorrupt, err)
	}
	if err := json.Unmarshal(mb, &m); err != nil {
		return m, fmt.Errorf("%w: manifest: %v", storage.ErrCorrupt, err)
	}
	return m, nil
}
