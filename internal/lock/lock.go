// Package lock serialises collector management per host identity on one
// machine using advisory file locks.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTimeout is returned when a lock could not be taken before the timeout.
var ErrTimeout = errors.New("timeout acquiring lock")

const pollInterval = 200 * time.Millisecond

// Locker hands out exclusive locks stored under dir.
type Locker struct {
	dir     string
	timeout time.Duration
}

func New(dir string, timeout time.Duration) *Locker {
	return &Locker{dir: dir, timeout: timeout}
}

// Lock is a held lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire blocks until the lock for key is held, ctx is done or the timeout
// elapses.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	path := filepath.Join(l.dir, fileName(key))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(l.timeout)
	for {
		err := tryLock(file)
		if err == nil {
			_ = file.Truncate(0)
			_, _ = file.Seek(0, 0)
			_, _ = fmt.Fprintf(file, "%d\n", os.Getpid())
			return &Lock{file: file, path: path}, nil
		}
		if !errors.Is(err, errWouldBlock) {
			file.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if !time.Now().Before(deadline) {
			file.Close()
			holder, _ := os.ReadFile(path)
			return nil, fmt.Errorf("%w %s (held by pid %s)", ErrTimeout, path, strings.TrimSpace(string(holder)))
		}

		select {
		case <-ctx.Done():
			file.Close()
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release drops the lock. The lock file is left in place.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlock(l.file)
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil
	return err
}

func fileName(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String() + ".lock"
}
