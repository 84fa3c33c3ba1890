//go:build windows

package lock

import (
	"errors"
	"os"
)

// FileLock is an exclusive-create lock file that records its Holder.
type FileLock struct {
	path   string
	holder Holder
	locked bool
}

// NewFileLock creates a FileLock for the given path.
func NewFileLock(path string, h Holder) *FileLock {
	return &FileLock{path: path, holder: h}
}

// TryLock attempts to acquire the lock without blocking. A file left by a
// process that has exited is removed and the create retried once.
func (l *FileLock) TryLock() (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
		if err != nil {
			if !errors.Is(err, os.ErrExist) {
				return false, err
			}
			if held, _ := probeHeld(l.path); held {
				return false, nil
			}
			_ = os.Remove(l.path)
			continue
		}
		_, _ = f.Write(encodeHolder(l.holder))
		if err := f.Close(); err != nil {
			_ = os.Remove(l.path)
			return false, err
		}
		l.locked = true
		return true, nil
	}
	return false, nil
}

// Unlock releases the lock and removes the lock file.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// probeHeld treats the lock as held while its recorded process exists.
func probeHeld(path string) (bool, error) {
	h, err := ReadHolder(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		// Unreadable holder: assume a writer is mid-create.
		return true, nil
	}
	p, err := os.FindProcess(h.PID)
	if err != nil {
		return false, nil
	}
	_ = p.Release()
	return true, nil
}
