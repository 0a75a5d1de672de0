package main

import (
	"fmt"
	"os"
	"path/filepath"

	kserrors "github.com/alexjbarnes/keepsync/internal/errors"
	"github.com/gofrs/flock"
)

// acquireLock takes an exclusive advisory lock on path without waiting.
// The returned func releases it.
func acquireLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}

	if !locked {
		return nil, fmt.Errorf("%w: %s", kserrors.ErrLocked, path)
	}

	return func() { _ = fl.Unlock() }, nil
}
