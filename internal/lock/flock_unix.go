//go:build !windows

package lock

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// FileLock is a non-blocking flock(2) lock on a file that records its Holder.
type FileLock struct {
	path   string
	holder Holder
	file   *os.File
}

// NewFileLock creates a FileLock for the given path.
func NewFileLock(path string, h Holder) *FileLock {
	return &FileLock{path: path, holder: h}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	// A holder unlinks the file before releasing it, so a lock won on an
	// inode that is no longer at path is worthless; reopen and try again.
	for range 3 {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return false, fmt.Errorf("open lock file: %w", err)
		}
		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, syscall.EWOULDBLOCK) {
				return false, nil
			}
			return false, fmt.Errorf("flock %s: %w", l.path, err)
		}
		if !sameFile(f, l.path) {
			_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
			f.Close()
			continue
		}
		if err := f.Truncate(0); err == nil {
			_, _ = f.WriteAt(encodeHolder(l.holder), 0)
		}
		l.file = f
		return true, nil
	}
	return false, nil
}

// Unlock removes the lock file while still holding it, then releases it.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	rmErr := os.Remove(l.path)
	if errors.Is(rmErr, os.ErrNotExist) {
		rmErr = nil
	}
	unErr := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	f.Close()
	return errors.Join(rmErr, unErr)
}

func sameFile(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}

// probeHeld asks for a shared lock; it conflicts only with a live holder.
func probeHeld(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB); err != nil {
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return true, nil
		}
		return false, fmt.Errorf("probe %s: %w", path, err)
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false, nil
}
