package shared

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ProcessLock is an advisory file lock that keeps two plexsync processes from syncing the same
// catalog at once. Within a process the scheduler's run flag does the same job.
type ProcessLock struct {
	path string
	lock *flock.Flock
}

// AcquireLock takes the lock file at path without blocking.
//
// Returns [ErrLocked] when another process already holds it.
func AcquireLock(path string) (*ProcessLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &ProcessLock{path: path, lock: fl}, nil
}

// Path returns the lock file location.
func (l *ProcessLock) Path() string { return l.path }

// Release unlocks the file. Safe to call more than once.
func (l *ProcessLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
