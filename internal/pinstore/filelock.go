package pinstore

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/shog-ai/shoggoth/internal/errs"
)

// DirLock serializes concurrent tarball build/extract against the
// same resource directory. spec.md's glossary recommends a native
// flock/LockFileEx primitive over the reference's lock-file polling
// (which it calls "tolerable but racy"); this uses flock(2) directly
// instead, with a poll only for the acquire-with-timeout wait since
// Linux flock has no blocking-with-deadline call.
type DirLock struct {
	path string
	f    *os.File
}

// NewDirLock returns a lock guarding path (e.g. a pin directory);
// the lock file itself lives alongside it as path+".lock".
func NewDirLock(path string) *DirLock {
	return &DirLock{path: path + ".lock"}
}

// Acquire blocks until the lock is held or ctx is done, polling at
// the given interval. Returns an errs.ValidationError ("timed out
// waiting for directory lock") if ctx expires first.
func (l *DirLock) Acquire(ctx context.Context, pollInterval time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return errs.IOError("create lock directory", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errs.IOError("open lock file", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.f = f
			return nil
		}

		select {
		case <-ctx.Done():
			f.Close()
			return errs.ValidationError("timed out waiting for directory lock")
		case <-ticker.C:
		}
	}
}

// Release unlocks and closes the lock file.
func (l *DirLock) Release() error {
	if l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return errs.IOError("unlock directory lock", err)
	}
	if closeErr != nil {
		return errs.IOError("close directory lock file", closeErr)
	}
	return nil
}
