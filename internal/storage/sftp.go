package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pkg/sftp"
)

// DialFunc opens an SFTP session. The returned closer, if non-nil, is
// closed after the client when the session ends (typically the
// underlying SSH connection).
type DialFunc func(ctx context.Context) (*sftp.Client, io.Closer, error)

// SFTPConn manages a lazily opened SFTP session shared by every
// SFTPFile created from it. The session is opened by the first Acquire
// and closed when the matching release brings the reference count back
// to zero.
type SFTPConn struct {
	dial   DialFunc
	logger *slog.Logger

	mu     sync.Mutex
	refs   int
	client *sftp.Client
	closer io.Closer
}

// NewSFTPConn returns a connection manager that uses dial to open
// sessions on demand.
func NewSFTPConn(dial DialFunc, logger *slog.Logger) *SFTPConn {
	if logger == nil {
		logger = slog.Default()
	}

	return &SFTPConn{dial: dial, logger: logger}
}

// Acquire returns the live client, dialing if no scope is open. The
// release func drops the reference; it is safe to call more than once.
func (c *SFTPConn) Acquire(ctx context.Context) (*sftp.Client, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		client, closer, err := c.dial(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to SFTP: %w", err)
		}

		c.logger.Debug("sftp session opened")
		c.client = client
		c.closer = closer
	}

	c.refs++
	client := c.client

	var once sync.Once

	release := func() {
		once.Do(c.release)
	}

	return client, release, nil
}

// Refs reports the number of open scopes.
func (c *SFTPConn) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.refs
}

func (c *SFTPConn) release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.refs--
	if c.refs > 0 {
		return
	}

	c.refs = 0

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.logger.Debug("closing sftp client", slog.String("error", err.Error()))
		}
	}

	if c.closer != nil {
		if err := c.closer.Close(); err != nil {
			c.logger.Debug("closing sftp transport", slog.String("error", err.Error()))
		}
	}

	c.client = nil
	c.closer = nil
	c.logger.Debug("sftp session closed")
}

// SFTPFile is an Endpoint backed by a path on an SFTP server.
type SFTPFile struct {
	conn *SFTPConn
	path string
	user string
}

// NewSFTPFile returns an endpoint for path reached through conn. user
// scopes the identity key so that two accounts on one host never share
// cache records.
func NewSFTPFile(conn *SFTPConn, path, user string) (*SFTPFile, error) {
	if path == "" {
		return nil, fmt.Errorf("remote file name must not be empty")
	}

	if conn == nil {
		return nil, fmt.Errorf("sftp connection must not be nil")
	}

	return &SFTPFile{conn: conn, path: path, user: user}, nil
}

func (f *SFTPFile) Key() string {
	return identityKey(BackendSFTP, f.path, f.user)
}

func (f *SFTPFile) Name() string {
	return f.path
}

func (f *SFTPFile) Backend() string {
	return BackendSFTP
}

func (f *SFTPFile) Acquire(ctx context.Context) (func(), error) {
	_, release, err := f.conn.Acquire(ctx)
	if err != nil {
		return nil, f.fail("connect", err)
	}

	return release, nil
}

func (f *SFTPFile) Exists(ctx context.Context) (bool, error) {
	_, ok, err := f.LastModified(ctx)
	return ok, err
}

func (f *SFTPFile) LastModified(ctx context.Context) (mtime time.Time, ok bool, err error) {
	err = f.with(ctx, "stat", func(client *sftp.Client) error {
		info, err := client.Stat(f.path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		if err != nil {
			return err
		}

		mtime = info.ModTime().Truncate(time.Second)
		ok = true

		return nil
	})

	return mtime, ok, err
}

func (f *SFTPFile) Read(ctx context.Context) (data []byte, err error) {
	err = f.with(ctx, "read", func(client *sftp.Client) error {
		data, err = readRemote(client, f.path)
		return err
	})

	return data, err
}

func (f *SFTPFile) Write(ctx context.Context, data []byte) error {
	return f.with(ctx, "write", func(client *sftp.Client) error {
		return writeRemote(client, f.path, data)
	})
}

func (f *SFTPFile) Rename(ctx context.Context, newName string) error {
	err := f.with(ctx, "rename", func(client *sftp.Client) error {
		if err := client.Rename(f.path, newName); err != nil {
			return fmt.Errorf("to %s: %w", newName, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	f.path = newName

	return nil
}

// Copy reads the file through the client and writes it back under
// newName. SFTP has no server-side copy.
func (f *SFTPFile) Copy(ctx context.Context, newName string) (Endpoint, error) {
	err := f.with(ctx, "copy", func(client *sftp.Client) error {
		data, err := readRemote(client, f.path)
		if err != nil {
			return err
		}

		if err := writeRemote(client, newName, data); err != nil {
			return fmt.Errorf("to %s: %w", newName, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &SFTPFile{conn: f.conn, path: newName, user: f.user}, nil
}

// with runs fn in its own scope. Nested inside an outer Acquire the
// existing session is reused.
func (f *SFTPFile) with(ctx context.Context, op string, fn func(*sftp.Client) error) error {
	client, release, err := f.conn.Acquire(ctx)
	if err != nil {
		return f.fail(op, err)
	}
	defer release()

	if err := fn(client); err != nil {
		return f.fail(op, err)
	}

	return nil
}

func (f *SFTPFile) fail(op string, err error) error {
	return storageErr(BackendSFTP, op, f.path, err)
}

func readRemote(client *sftp.Client, path string) ([]byte, error) {
	rf, err := client.Open(path)
	if err != nil {
		return nil, err
	}
	defer rf.Close()

	return io.ReadAll(rf)
}

func writeRemote(client *sftp.Client, path string, data []byte) (err error) {
	wf, err := client.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := wf.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = wf.Write(data)

	return err
}
