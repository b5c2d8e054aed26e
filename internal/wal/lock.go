package wal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"koru-delta/internal/kerr"
)

// LockFile is the sentinel `<root>/lock` file described in spec.md §4.1.
// Its presence at startup means the previous process did not shut down
// cleanly; the store still replays the WAL and proceeds, but a
// diagnostic is logged.
type LockFile struct {
	path string
}

// AcquireLock creates the lock file if absent, reporting whether it was
// already present (a prior-crash signal) before creation.
func AcquireLock(root string) (lf *LockFile, preexisting bool, err error) {
	path := filepath.Join(root, "lock")

	_, statErr := os.Stat(path)
	preexisting = statErr == nil

	if preexisting {
		log.Printf("wal: lock file present at startup — prior shutdown was not clean, replaying before accepting writes")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, preexisting, fmt.Errorf("%w: create lock file: %v", kerr.StorageFailure, err)
	}
	f.Close()

	return &LockFile{path: path}, preexisting, nil
}

// Release removes the lock file on clean shutdown.
func (lf *LockFile) Release() error {
	if err := os.Remove(lf.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove lock file: %v", kerr.StorageFailure, err)
	}
	return nil
}
