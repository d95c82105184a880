// Package atomicfile writes files with crash-safe replace semantics: the
// payload lands in a sibling temporary file first and is renamed over the
// destination only once it has been fully written.
package atomicfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// tempSuffix is appended to the destination path to form the temporary path.
const tempSuffix = ".temp"

// filePerm is the mode used for newly created files.
const filePerm = 0o644

// tempPath returns the temporary sibling used while writing path.
func tempPath(path string) string {
	return path + tempSuffix
}

// Write atomically replaces path with data.
func Write(path string, data []byte) error {
	_, err := WriteReader(path, bytes.NewReader(data))
	return err
}

// WriteReader atomically replaces path with everything read from r and
// returns the number of bytes written.
//
// A leftover temporary file from an earlier crash is removed first. If the
// process dies mid-write, path is untouched and only the temporary file may
// remain until the next successful call.
func WriteReader(path string, r io.Reader) (int64, error) {
	tmp := tempPath(path)

	if err := removeIfExists(tmp); err != nil {
		return 0, fmt.Errorf("atomicfile: removing stale %s: %w", tmp, err)
	}

	n, err := writeTemp(tmp, r)
	if err != nil {
		return n, err
	}

	if err := removeIfExists(path); err != nil {
		return n, fmt.Errorf("atomicfile: removing previous %s: %w", path, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return n, fmt.Errorf("atomicfile: renaming %s to %s: %w", tmp, path, err)
	}
	return n, nil
}

func writeTemp(tmp string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return 0, fmt.Errorf("atomicfile: creating %s: %w", tmp, err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return n, fmt.Errorf("atomicfile: writing %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return n, fmt.Errorf("atomicfile: syncing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("atomicfile: closing %s: %w", tmp, err)
	}
	return n, nil
}

// removeIfExists deletes path. A missing file is not an error; anything
// else is returned unchanged.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
