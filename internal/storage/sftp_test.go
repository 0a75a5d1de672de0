package storage

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	kserrors "github.com/alexjbarnes/keepsync/internal/errors"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSFTP serves an in-memory filesystem shared by every session it
// dials, and counts the dials.
type memSFTP struct {
	handlers sftp.Handlers
	dials    int
	fail     error
}

func newMemSFTP() *memSFTP {
	return &memSFTP{handlers: sftp.InMemHandler()}
}

func (m *memSFTP) dial(ctx context.Context) (*sftp.Client, io.Closer, error) {
	m.dials++
	if m.fail != nil {
		return nil, nil, m.fail
	}

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, m.handlers)

	go server.Serve() //nolint:errcheck // ends when the pipe closes

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		server.Close()
		return nil, nil, err
	}

	return client, server, nil
}

func testSFTP(t *testing.T, mem *memSFTP, path string) (*SFTPFile, *SFTPConn) {
	t.Helper()
	conn := NewSFTPConn(mem.dial, nil)
	f, err := NewSFTPFile(conn, path, "alex")
	require.NoError(t, err)
	return f, conn
}

func TestNewSFTPFile_Validation(t *testing.T) {
	conn := NewSFTPConn(newMemSFTP().dial, nil)

	_, err := NewSFTPFile(conn, "", "alex")
	assert.Error(t, err)

	_, err = NewSFTPFile(nil, "/db.kdbx", "alex")
	assert.Error(t, err)
}

func TestSFTPFile_Key(t *testing.T) {
	f, _ := testSFTP(t, newMemSFTP(), "/db.kdbx")
	assert.Equal(t, "SFTP|/db.kdbx|alex", f.Key())
	assert.Equal(t, BackendSFTP, f.Backend())

	other, err := NewSFTPFile(f.conn, "/db.kdbx", "sam")
	require.NoError(t, err)
	assert.NotEqual(t, f.Key(), other.Key(), "user must scope the key")
}

func TestSFTPFile_MissingFile(t *testing.T) {
	ctx := context.Background()
	f, conn := testSFTP(t, newMemSFTP(), "/missing.kdbx")

	_, ok, err := f.LastModified(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := f.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 0, conn.Refs())
}

func TestSFTPFile_WriteReadStat(t *testing.T) {
	ctx := context.Background()
	f, _ := testSFTP(t, newMemSFTP(), "/db.kdbx")

	require.NoError(t, f.Write(ctx, []byte("remote secret")))

	data, err := f.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("remote secret"), data)

	mtime, ok, err := f.LastModified(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, mtime.Nanosecond())
}

func TestSFTPFile_ReadMissing(t *testing.T) {
	f, conn := testSFTP(t, newMemSFTP(), "/missing.kdbx")

	_, err := f.Read(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kserrors.ErrStorage)

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, BackendSFTP, serr.Backend)
	assert.Equal(t, "read", serr.Op)
	assert.Equal(t, 0, conn.Refs(), "release must run on the error path")
}

func TestSFTPFile_DialFailure(t *testing.T) {
	mem := newMemSFTP()
	mem.fail = errors.New("connection refused")
	f, _ := testSFTP(t, mem, "/db.kdbx")

	_, _, err := f.LastModified(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kserrors.ErrStorage)
	assert.ErrorContains(t, err, "connection refused")

	_, err = f.Acquire(context.Background())
	assert.ErrorIs(t, err, kserrors.ErrStorage)
}

func TestSFTPFile_ScopeReusesSession(t *testing.T) {
	ctx := context.Background()
	mem := newMemSFTP()
	f, conn := testSFTP(t, mem, "/db.kdbx")

	release, err := f.Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, f.Write(ctx, []byte("one")))
	_, err = f.Read(ctx)
	require.NoError(t, err)
	_, _, err = f.LastModified(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, mem.dials, "operations inside a scope share one session")
	assert.Equal(t, 1, conn.Refs())

	release()
	release()
	assert.Equal(t, 0, conn.Refs(), "double release must not underflow")

	_, err = f.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mem.dials, "a new scope dials again")
}

func TestSFTPFile_NestedScopes(t *testing.T) {
	ctx := context.Background()
	mem := newMemSFTP()
	f, conn := testSFTP(t, mem, "/db.kdbx")

	err := WithScope(ctx, f, func() error {
		return WithScope(ctx, f, func() error {
			assert.Equal(t, 2, conn.Refs())
			return f.Write(ctx, []byte("nested"))
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 0, conn.Refs())
	assert.Equal(t, 1, mem.dials)
}

func TestSFTPFile_Rename(t *testing.T) {
	ctx := context.Background()
	f, _ := testSFTP(t, newMemSFTP(), "/db.kdbx")
	require.NoError(t, f.Write(ctx, []byte("data")))

	require.NoError(t, f.Rename(ctx, "/moved.kdbx"))
	assert.Equal(t, "/moved.kdbx", f.Name())

	data, err := f.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	old, err := NewSFTPFile(f.conn, "/db.kdbx", "alex")
	require.NoError(t, err)
	exists, err := old.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSFTPFile_Copy(t *testing.T) {
	ctx := context.Background()
	f, conn := testSFTP(t, newMemSFTP(), "/db.kdbx")
	require.NoError(t, f.Write(ctx, []byte("payload")))

	cp, err := f.Copy(ctx, "/db.kdbx.bak")
	require.NoError(t, err)
	assert.Equal(t, "SFTP|/db.kdbx.bak|alex", cp.Key())

	data, err := cp.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, 0, conn.Refs())
}

func TestSFTPFile_CopyMissing(t *testing.T) {
	f, _ := testSFTP(t, newMemSFTP(), "/missing.kdbx")

	_, err := f.Copy(context.Background(), "/missing.kdbx.bak")
	assert.ErrorIs(t, err, kserrors.ErrStorage)
}

func TestSSHConfig_Addr(t *testing.T) {
	cfg := SSHConfig{Host: "example.com", Port: 2222}
	assert.Equal(t, "example.com:2222", cfg.Addr())

	v6 := SSHConfig{Host: "::1", Port: 22}
	assert.Equal(t, "[::1]:22", v6.Addr())
}

func TestSSHConfig_RequiresAuth(t *testing.T) {
	cfg := SSHConfig{Host: "localhost", Port: 22, User: "alex", InsecureIgnoreHostKey: true}

	_, _, err := DialSSH(cfg)(context.Background())
	assert.ErrorContains(t, err, "no SSH authentication method")
}

func TestSSHConfig_RequiresKnownHosts(t *testing.T) {
	cfg := SSHConfig{Host: "localhost", Port: 22, User: "alex", Password: "pw"}

	_, _, err := DialSSH(cfg)(context.Background())
	assert.ErrorContains(t, err, "known hosts")
}

func TestSSHConfig_BadKeyFile(t *testing.T) {
	cfg := SSHConfig{Host: "localhost", Port: 22, User: "alex", KeyFile: "/nonexistent/id_ed25519", InsecureIgnoreHostKey: true}

	_, _, err := DialSSH(cfg)(context.Background())
	assert.ErrorContains(t, err, "reading private key")
}
