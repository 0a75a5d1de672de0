package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig describes how to reach an SFTP server over SSH. At least
// one of Password or KeyFile must be set.
type SSHConfig struct {
	Host     string
	Port     int
	User     string
	Password string

	KeyFile       string
	KeyPassphrase string

	// KnownHostsFile is consulted for host key verification unless
	// InsecureIgnoreHostKey is set.
	KnownHostsFile        string
	InsecureIgnoreHostKey bool

	Timeout time.Duration
}

// Addr returns host:port.
func (c SSHConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DialSSH returns a DialFunc that opens an SSH connection and starts
// the sftp subsystem on it. Configuration errors surface on first dial.
func DialSSH(cfg SSHConfig) DialFunc {
	return func(ctx context.Context) (*sftp.Client, io.Closer, error) {
		clientCfg, err := cfg.clientConfig()
		if err != nil {
			return nil, nil, err
		}

		dialer := net.Dialer{Timeout: cfg.Timeout}

		netConn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
		if err != nil {
			return nil, nil, fmt.Errorf("dialing %s: %w", cfg.Addr(), err)
		}

		if cfg.Timeout > 0 {
			_ = netConn.SetDeadline(time.Now().Add(cfg.Timeout))
		}

		sshConn, chans, reqs, err := ssh.NewClientConn(netConn, cfg.Addr(), clientCfg)
		if err != nil {
			netConn.Close()
			return nil, nil, fmt.Errorf("ssh handshake with %s: %w", cfg.Addr(), err)
		}

		// The deadline only bounds the handshake.
		_ = netConn.SetDeadline(time.Time{})

		sshClient := ssh.NewClient(sshConn, chans, reqs)

		client, err := sftp.NewClient(sshClient)
		if err != nil {
			sshClient.Close()
			return nil, nil, fmt.Errorf("starting sftp subsystem: %w", err)
		}

		return client, sshClient, nil
	}
}

func (c SSHConfig) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.Timeout,
	}, nil
}

func (c SSHConfig) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.KeyFile != "" {
		signer, err := loadSigner(c.KeyFile, c.KeyPassphrase)
		if err != nil {
			return nil, err
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH authentication method configured")
	}

	return methods, nil
}

func (c SSHConfig) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // G106: explicit operator opt-in
	}

	if c.KnownHostsFile == "" {
		return nil, fmt.Errorf("known hosts file is required for host key verification")
	}

	cb, err := knownhosts.New(c.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("loading known hosts %s: %w", c.KnownHostsFile, err)
	}

	return cb, nil
}

func loadSigner(path, passphrase string) (ssh.Signer, error) {
	pem, err := os.ReadFile(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}

	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", path, err)
	}

	return signer, nil
}
