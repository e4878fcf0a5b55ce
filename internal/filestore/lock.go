package filestore

import (
	"errors"
	"os"
	"time"

	"ytarchive/storage"
)

// ErrLockTimeout is returned when another process holds the data root.
var ErrLockTimeout = errors.New("filestore: data directory is locked by another process")

// RunLock is an advisory lock on a data root. It keeps two sync runs from
// writing the same tree at once; it does not serialise individual files.
type RunLock struct {
	path string
	file *os.File
}

// NewRunLock creates a lock backed by path. The lock is not acquired
// until Lock is called.
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path}
}

// Lock acquires the lock, polling until timeout elapses.
func (l *RunLock) Lock(timeout time.Duration) error {
	var err error
	l.file, err = os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return &storage.StorageError{Op: "lock", Entity: "root", ID: l.path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		if err = lockFile(l.file); err == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	l.file.Close()
	l.file = nil
	return ErrLockTimeout
}

// Unlock releases the lock and removes the lock file.
func (l *RunLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	unlockFile(l.file)
	l.file.Close()
	os.Remove(l.path)
	l.file = nil
	return nil
}
