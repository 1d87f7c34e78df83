package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// tempSuffix marks in-flight files so interrupted writes are
// recognizable and cleanable.
const tempSuffix = ".replx.tmp"

// AtomicWriter replaces file contents through a sibling temp file,
// fsync and atomic rename. Durability is non-negotiable here: both
// the journal checkpoint and every content edit go through it.
type AtomicWriter struct {
	fsync bool
}

// NewAtomicWriter returns a writer with fsync enabled.
func NewAtomicWriter() *AtomicWriter {
	return &AtomicWriter{fsync: true}
}

// WriteFile atomically replaces path with data, preserving the
// original permissions when the file exists.
func (aw *AtomicWriter) WriteFile(path string, data []byte) error {
	var mode os.FileMode = 0o644
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
		if mode == 0 {
			mode = 0o644
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+tempSuffix+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("setting temp file mode: %w", err)
	}
	if aw.fsync {
		if err := tmp.Sync(); err != nil {
			cleanup()
			return fmt.Errorf("syncing temp file: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installing %s: %w", path, err)
	}

	if aw.fsync {
		syncDir(filepath.Dir(path))
	}
	return nil
}

// syncDir flushes the directory entry after a rename; best effort on
// filesystems that refuse directory fsync.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
