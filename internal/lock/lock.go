// Package lock guards a .taskpath directory against a second watcher.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// FileLock is an exclusive, non-blocking flock(2) on a file that records the
// holder's PID.
type FileLock struct {
	path string
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (fl *FileLock) Path() string {
	return fl.path
}

func (fl *FileLock) TryLock() error {
	if fl.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if pid, ok := readPID(fl.path); ok {
				return fmt.Errorf("%w (pid %d)", ErrLocked, pid)
			}
			return ErrLocked
		}
		return fmt.Errorf("acquire lock: %w", err)
	}

	release := func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = f.Close()
	}
	if err := f.Truncate(0); err != nil {
		release()
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		release()
		return fmt.Errorf("write PID to lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		release()
		return fmt.Errorf("sync lock file: %w", err)
	}

	fl.file = f
	return nil
}

// Unlock releases the lock and removes the file. Safe to call twice.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	f := fl.file
	fl.file = nil

	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		_ = f.Close()
		return fmt.Errorf("release lock: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}
	_ = os.Remove(fl.path)
	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
