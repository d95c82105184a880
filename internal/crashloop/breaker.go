// Package crashloop provides a durable counter of consecutive failed runs.
// The counter survives process restarts and is used at startup to decide
// whether the process should keep trying or back off.
package crashloop

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/flemzord/ghbkp/internal/atomicfile"
)

// FileName is the counter file created inside the output directory.
const FileName = "crash_counter"

// Breaker counts failed runs and persists the count as decimal text.
type Breaker struct {
	path      string
	threshold int
	logger    *slog.Logger

	mu    sync.Mutex
	count int
}

// PathIn returns the counter file location inside dir.
func PathIn(dir string) string {
	return filepath.Join(dir, FileName)
}

// Open loads the counter stored at path.
//
// A missing file or unparseable content counts as zero and is persisted
// immediately. Any other read error, and any write error, is returned.
func Open(path string, threshold int, logger *slog.Logger) (*Breaker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Breaker{
		path:      path,
		threshold: threshold,
		logger:    logger,
	}

	count, err := b.load()
	if err == nil {
		b.count = count
		return b, nil
	}

	var numErr *strconv.NumError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("crashloop: no counter file, starting at zero", "path", path)
	case errors.As(err, &numErr):
		logger.Warn("crashloop: corrupt counter file, resetting", "path", path, "error", err)
	default:
		return nil, fmt.Errorf("crashloop: reading %s: %w", path, err)
	}

	b.count = 0
	if err := b.save(); err != nil {
		return nil, err
	}
	return b, nil
}

// Detected reports whether more than threshold consecutive failures have
// been recorded.
func (b *Breaker) Detected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > b.threshold
}

// Count returns the current number of recorded failures.
func (b *Breaker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Threshold returns the configured threshold.
func (b *Breaker) Threshold() int {
	return b.threshold
}

// RecordFailure increments the counter and persists it.
func (b *Breaker) RecordFailure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	return b.save()
}

// Reset zeroes the counter and persists it.
func (b *Breaker) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = 0
	return b.save()
}

func (b *Breaker) load() (int, error) {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &strconv.NumError{Func: "Atoi", Num: string(raw), Err: strconv.ErrRange}
	}
	return n, nil
}

// save must be called with mu held (or before b is shared).
func (b *Breaker) save() error {
	if err := atomicfile.Write(b.path, []byte(strconv.Itoa(b.count))); err != nil {
		return fmt.Errorf("crashloop: persisting counter: %w", err)
	}
	return nil
}
