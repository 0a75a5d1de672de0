// Package storage provides the file endpoints that keepsync reconciles:
// a path on the local filesystem and a path on an SFTP server. Both
// satisfy Endpoint so the hash cache and syncer never see which backend
// they are talking to.
package storage

//go:generate mockgen -destination=mock_endpoint.go -package=storage . Endpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	kserrors "github.com/alexjbarnes/keepsync/internal/errors"
	"golang.org/x/text/unicode/norm"
)

// Backend names used as the first segment of identity keys.
const (
	BackendLocal = "local"
	BackendSFTP  = "SFTP"
)

// keySep separates the segments of an identity key.
const keySep = "|"

// Endpoint is one side of a synchronized file. All methods return a
// *Error on failure.
type Endpoint interface {
	// Key identifies the logical file across invocations. It differs
	// whenever backend, path or (for remote backends) user differs.
	Key() string

	// Name is the path of the file within its backend.
	Name() string

	// Backend is BackendLocal or BackendSFTP.
	Backend() string

	Exists(ctx context.Context) (bool, error)

	// LastModified returns the modification time truncated to the
	// second. ok is false when the file does not exist.
	LastModified(ctx context.Context) (mtime time.Time, ok bool, err error)

	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error

	// Rename moves the file and repoints the endpoint at newName.
	Rename(ctx context.Context, newName string) error

	// Copy duplicates the file to newName on the same backend and
	// returns an endpoint for the copy.
	Copy(ctx context.Context, newName string) (Endpoint, error)

	// Acquire opens a scope in which consecutive operations share
	// backend resources. The returned release func must be called
	// exactly once; calling it more than once is a no-op.
	Acquire(ctx context.Context) (release func(), err error)
}

// Error reports a failed endpoint operation. It matches
// errors.ErrStorage via errors.Is.
type Error struct {
	Backend string
	Op      string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Backend, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the generic storage failure sentinel.
func (e *Error) Is(target error) bool {
	return target == kserrors.ErrStorage
}

// WithScope runs fn inside an Acquire/release pair on ep. Release
// happens on every return path, including panics.
func WithScope(ctx context.Context, ep Endpoint, fn func() error) error {
	release, err := ep.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn()
}

// identityKey joins the key segments. Paths are normalized to NFC so
// that a file reached through an NFD filesystem (macOS) and one typed
// in a config file hash to the same record.
func identityKey(backend, path string, extra ...string) string {
	parts := append([]string{backend, norm.NFC.String(path)}, extra...)
	return strings.Join(parts, keySep)
}

func storageErr(backend, op, path string, err error) error {
	return &Error{Backend: backend, Op: op, Path: path, Err: err}
}
