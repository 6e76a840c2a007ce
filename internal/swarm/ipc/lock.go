package ipc

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Lock is a named, file-based advisory lock. No cross-platform
// advisory-flock library appears anywhere in the retrieved corpus (see
// DESIGN.md), so this is intentionally carried on the standard library:
// acquisition is an O_CREATE|O_EXCL spin-retry against a lock file, release
// is removing it.
type Lock struct {
	path string
}

// NewLock names a lock file at path. The caller is responsible for ensuring
// the parent directory exists.
func NewLock(path string) *Lock {
	return &Lock{path: path}
}

const lockRetryInterval = 10 * time.Millisecond

// Acquire blocks, retrying at lockRetryInterval, until the lock file is
// created or ctx is done. A stale lock file older than staleAfter is treated
// as abandoned (the owning process died mid-write) and is stolen.
func (l *Lock) Acquire(ctx context.Context, staleAfter time.Duration) (func(), error) {
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(l.path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock %s: %w", l.path, err)
		}
		if staleAfter > 0 {
			if info, statErr := os.Stat(l.path); statErr == nil {
				if time.Since(info.ModTime()) > staleAfter {
					os.Remove(l.path)
					continue
				}
			}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", l.path, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}
}

// WithLock acquires the lock for the duration of fn, guaranteeing release on
// every exit path including a panic inside fn.
func WithLock(ctx context.Context, path string, staleAfter time.Duration, fn func() error) error {
	release, err := NewLock(path).Acquire(ctx, staleAfter)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
