// Package lock guards a channel database against a second bus host. The
// lock lives next to the database file; worker processes attaching to the
// channel do not take it.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Lock is a single-instance lock implemented via a PID file + flock(2).
// Keep the lock alive by keeping the file descriptor open.
type Lock struct {
	path string
	f    *os.File
}

// Acquire takes an exclusive non-blocking lock at lockPath and writes the
// current PID into the file. Release the returned handle on shutdown.
func Acquire(lockPath string) (*Lock, error) {
	if lockPath == "" {
		return nil, fmt.Errorf("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("another host holds %s: %w", lockPath, err)
	}

	if err := f.Truncate(0); err != nil {
		return nil, releaseOnError(f, fmt.Errorf("truncate lock file: %w", err))
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, releaseOnError(f, fmt.Errorf("seek lock file: %w", err))
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return nil, releaseOnError(f, fmt.Errorf("write pid: %w", err))
	}
	if err := f.Sync(); err != nil {
		return nil, releaseOnError(f, fmt.Errorf("sync lock file: %w", err))
	}

	return &Lock{path: lockPath, f: f}, nil
}

func releaseOnError(f *os.File, err error) error {
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
	return err
}

func (l *Lock) Path() string { return l.path }

func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}
