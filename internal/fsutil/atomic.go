// Package fsutil holds the durable file-write helpers shared by the tracker
// state file and the disk cache.
package fsutil

import (
	"io"
	"os"
	"path/filepath"
)

// TempPrefix marks files that are still being written.
const TempPrefix = ".tmp-"

// WriteFileAtomic writes data to path so that readers observe either the old
// content or the complete new content (temp file + fsync + rename + dir fsync).
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomic is WriteFileAtomic with the content produced by write.
func WriteAtomic(path string, perm os.FileMode, write func(w io.Writer) error) error {
	return publish(path, perm, write, os.Rename)
}

// CreateNew publishes data at path only if nothing exists there yet. The
// object appears whole or not at all; an existing path yields an error
// matching fs.ErrExist and is left untouched.
func CreateNew(path string, data []byte, perm os.FileMode) error {
	write := func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}
	return publish(path, perm, write, os.Link)
}

// publish writes a synced temp file next to path and hands it to place.
// The temp file never survives the call.
func publish(path string, perm os.FileMode, write func(w io.Writer) error, place func(oldpath, newpath string) error) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+base+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := place(tmpName, path); err != nil {
		return err
	}
	return SyncDir(dir)
}

// SyncDir fsyncs a directory so a preceding rename is durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
