package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// localFilePerm is used when creating a file that did not exist. The
// synced file is typically a credentials database, so it stays private.
const localFilePerm = fs.FileMode(0o600)

// LocalFile is an Endpoint backed by a path on the local filesystem.
type LocalFile struct {
	path string
}

// NewLocalFile returns an endpoint for path. The file need not exist.
func NewLocalFile(path string) (*LocalFile, error) {
	if path == "" {
		return nil, fmt.Errorf("local file name must not be empty")
	}

	return &LocalFile{path: path}, nil
}

func (f *LocalFile) Key() string {
	return identityKey(BackendLocal, f.path)
}

func (f *LocalFile) Name() string {
	return f.path
}

func (f *LocalFile) Backend() string {
	return BackendLocal
}

// Acquire is a no-op for local files.
func (f *LocalFile) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, f.fail("acquire", err)
	}

	return func() {}, nil
}

func (f *LocalFile) Exists(ctx context.Context) (bool, error) {
	_, ok, err := f.LastModified(ctx)
	return ok, err
}

func (f *LocalFile) LastModified(ctx context.Context) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, f.fail("stat", err)
	}

	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}

	if err != nil {
		return time.Time{}, false, f.fail("stat", err)
	}

	return info.ModTime().Truncate(time.Second), true, nil
}

func (f *LocalFile) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, f.fail("read", err)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, f.fail("read", err)
	}

	return data, nil
}

func (f *LocalFile) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return f.fail("write", err)
	}

	if err := os.WriteFile(f.path, data, localFilePerm); err != nil {
		return f.fail("write", err)
	}

	return nil
}

func (f *LocalFile) Rename(ctx context.Context, newName string) error {
	if err := ctx.Err(); err != nil {
		return f.fail("rename", err)
	}

	if err := os.Rename(f.path, newName); err != nil {
		return f.fail("rename", fmt.Errorf("to %s: %w", newName, err))
	}

	f.path = newName

	return nil
}

func (f *LocalFile) Copy(ctx context.Context, newName string) (Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, f.fail("copy", err)
	}

	if err := copyLocal(f.path, newName); err != nil {
		return nil, f.fail("copy", fmt.Errorf("to %s: %w", newName, err))
	}

	return &LocalFile{path: newName}, nil
}

func (f *LocalFile) fail(op string, err error) error {
	return storageErr(BackendLocal, op, f.path, err)
}

func copyLocal(src, dst string) (err error) {
	in, err := os.Open(src) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, localFilePerm) //nolint:gosec // G304: derived from operator config
	if err != nil {
		return err
	}

	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)

	return err
}
