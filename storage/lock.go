package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const lockFileName = ".scgraph.lock"

// ErrLocked is returned when another process holds the store directory.
var ErrLocked = errors.New("storage: directory locked by another process")

// DirLock is an exclusive advisory lock on a store directory.
type DirLock struct {
	f     *os.File
	Owner string
}

// LockDir acquires the directory lock, retrying until timeout elapses.
// A zero timeout tries once.
func LockDir(dir string, timeout time.Duration) (*DirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "lock: mkdir")
	}
	f, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "lock: open")
	}
	deadline := time.Now().Add(timeout)
	for {
		err = tryLockExclusive(f)
		if err == nil {
			break
		}
		if !errors.Is(err, errWouldBlock) || !time.Now().Before(deadline) {
			_ = f.Close()
			if errors.Is(err, errWouldBlock) {
				return nil, ErrLocked
			}
			return nil, errors.Wrap(err, "lock: flock")
		}
		time.Sleep(25 * time.Millisecond)
	}
	lock := &DirLock{f: f, Owner: uuid.NewString()}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(fmt.Sprintf("%s %d\n", lock.Owner, os.Getpid())), 0)
	}
	return lock, nil
}

// Unlock releases the lock.
func (l *DirLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = l.f.Truncate(0)
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
