package store

import (
	"github.com/cockroachdb/errors"
	"github.com/gofrs/flock"
)

// acquireLock takes the advisory lock guarding path against a second writer
// or a concurrent repair.
func acquireLock(path string) (*flock.Flock, error) {
	lock := flock.New(path + lockSuffix)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "lock %s", lock.Path())
	}
	if !locked {
		return nil, errors.Wrapf(ErrLocked, "%s", path)
	}
	return lock, nil
}
