package atomicfile

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWrite_CreatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "repo.zip")
	if err := Write(path, []byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("content = %q, want %q", got, "payload")
	}
}

func TestWrite_TwiceKeepsOnlyLastPayload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "repo.zip")
	if err := Write(path, []byte("first, and longer than the second")); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if err := Write(path, []byte("second")); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}
	if _, err := os.Stat(tempPath(path)); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("temp file should not remain, stat err = %v", err)
	}
}

func TestWrite_RemovesStaleTemp(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gschmarri.bkp")
	if err := os.WriteFile(tempPath(path), []byte("half-written garbage"), 0o644); err != nil {
		t.Fatalf("seeding stale temp: %v", err)
	}

	if err := Write(path, []byte("{}")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "{}" {
		t.Errorf("content = %q, want %q", got, "{}")
	}
	if _, err := os.Stat(tempPath(path)); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("stale temp file should be gone, stat err = %v", err)
	}
}

// failingReader returns some bytes and then an error, simulating a dropped
// download mid-stream.
type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestWriteReader_FailureLeavesDestinationUntouched(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "repo.zip")
	if err := Write(path, []byte("good copy")); err != nil {
		t.Fatalf("seeding destination: %v", err)
	}

	_, err := WriteReader(path, &failingReader{})
	if err == nil {
		t.Fatal("expected error from failing reader")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("error should wrap the reader error: %v", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "good copy" {
		t.Errorf("destination changed to %q after failed write", got)
	}
}

func TestWriteReader_ReturnsByteCount(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "repo.zip")
	n, err := WriteReader(path, strings.NewReader("0123456789"))
	if err != nil {
		t.Fatalf("WriteReader: %v", err)
	}
	if n != 10 {
		t.Errorf("n = %d, want 10", n)
	}
}

func TestWrite_MissingDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "does-not-exist", "repo.zip")
	if err := Write(path, []byte("x")); err == nil {
		t.Fatal("expected error when parent directory is missing")
	}
}
