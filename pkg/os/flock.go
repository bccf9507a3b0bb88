package os

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Flock guards against a second gateway instance on the same host:
// the presence registry is in-process, so two instances would split it.
type Flock struct {
	f *flock.Flock
}

func NewFileLock(path string) (*Flock, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "liveclass_gateway.lock")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, err
	}
	return &Flock{f: flock.New(path)}, nil
}

// TryLock reports false when another process already holds the lock.
func (f *Flock) TryLock() (bool, error) { return f.f.TryLock() }
func (f *Flock) Unlock() error          { return f.f.Unlock() }
