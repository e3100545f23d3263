// Package runlock serializes runs that share an output directory. A
// second run against the same directory would race on the output pair
// and the journal, so each run takes an advisory file lock first.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked reports that another run already holds the directory.
var ErrLocked = errors.New("output directory locked by another run")

// Lock is an advisory lock on an output directory.
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire takes the lock for the given output directory. It fails with
// ErrLocked when another process holds it.
func Acquire(outputDir string) (*Lock, error) {
	if outputDir == "" {
		return nil, errors.New("output directory required")
	}
	if info, err := os.Stat(outputDir); err != nil {
		return nil, fmt.Errorf("stat output directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("output path %q is not a directory", outputDir)
	}

	path := filepath.Join(outputDir, ".georeg.lock")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &Lock{path: path, lock: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the lock file. Safe to call more
// than once.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	l.lock = nil
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
