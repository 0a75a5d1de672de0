package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/alexjbarnes/keepsync/internal/storage"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for keepsync. It is
// built once in main and passed down; no other package reads the
// environment.
type Config struct {
	// Files to keep in sync.
	LocalFile  string `env:"KEEPSYNC_LOCAL_FILE"`
	RemoteFile string `env:"KEEPSYNC_REMOTE_FILE"`

	// Hash cache and run history locations. A leading ~ is expanded.
	CacheFile string `env:"KEEPSYNC_CACHE_FILE" envDefault:"~/.keepsync/cache.json"`
	StateDB   string `env:"KEEPSYNC_STATE_DB" envDefault:"~/.keepsync/state.db"`

	// SFTP server
	HostName string `env:"KEEPSYNC_SFTP_HOST_NAME" envDefault:"localhost"`
	HostPort int    `env:"KEEPSYNC_SFTP_HOST_PORT" envDefault:"22"`
	UserName string `env:"KEEPSYNC_SFTP_USER_NAME"`
	Password string `env:"KEEPSYNC_SFTP_PASSWORD"`

	KeyFile       string `env:"KEEPSYNC_SFTP_KEY_FILE"`
	KeyPassphrase string `env:"KEEPSYNC_SFTP_KEY_PASSPHRASE"`

	KnownHostsFile        string        `env:"KEEPSYNC_SFTP_KNOWN_HOSTS" envDefault:"~/.ssh/known_hosts"`
	InsecureIgnoreHostKey bool          `env:"KEEPSYNC_SFTP_INSECURE_IGNORE_HOST_KEY" envDefault:"false"`
	Timeout               time.Duration `env:"KEEPSYNC_SFTP_TIMEOUT" envDefault:"30s"`

	// Shell command run after the remote copy replaced the local file.
	OnUpdateCommand string `env:"KEEPSYNC_ON_UPDATE_COMMAND"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. It may hold the SFTP password.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.LocalFile == "" {
		return fmt.Errorf("KEEPSYNC_LOCAL_FILE is required")
	}

	if c.RemoteFile == "" {
		return fmt.Errorf("KEEPSYNC_REMOTE_FILE is required")
	}

	if c.CacheFile == "" {
		return fmt.Errorf("KEEPSYNC_CACHE_FILE must not be empty")
	}

	if c.HostName == "" {
		return fmt.Errorf("KEEPSYNC_SFTP_HOST_NAME must not be empty")
	}

	if c.HostPort < 1 || c.HostPort > 65535 {
		return fmt.Errorf("KEEPSYNC_SFTP_HOST_PORT must be between 1 and 65535, got %d", c.HostPort)
	}

	if c.UserName == "" {
		return fmt.Errorf("KEEPSYNC_SFTP_USER_NAME is required")
	}

	if c.Password == "" && c.KeyFile == "" {
		return fmt.Errorf("one of KEEPSYNC_SFTP_PASSWORD or KEEPSYNC_SFTP_KEY_FILE is required")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("KEEPSYNC_SFTP_TIMEOUT must not be negative")
	}

	return nil
}

// expandPaths resolves ~ and relative paths for every local path. The
// hash cache keys on the local path, so it must not depend on the
// working directory of the invocation.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LocalFile, &c.CacheFile, &c.StateDB, &c.KeyFile, &c.KnownHostsFile} {
		if *p == "" {
			continue
		}

		expanded, err := ExpandPath(*p)
		if err != nil {
			return err
		}

		*p = expanded
	}

	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory and
// makes the result absolute.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("determining home directory: %w", err)
		}

		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolving %s to absolute path: %w", p, err)
	}

	return abs, nil
}

// LockFile returns the path of the advisory lock that keeps two syncs
// from running against the same cache.
func (c *Config) LockFile() string {
	return c.CacheFile + ".lock"
}

// SSH returns the transport settings for the SFTP endpoint.
func (c *Config) SSH() storage.SSHConfig {
	return storage.SSHConfig{
		Host:                  c.HostName,
		Port:                  c.HostPort,
		User:                  c.UserName,
		Password:              c.Password,
		KeyFile:               c.KeyFile,
		KeyPassphrase:         c.KeyPassphrase,
		KnownHostsFile:        c.KnownHostsFile,
		InsecureIgnoreHostKey: c.InsecureIgnoreHostKey,
		Timeout:               c.Timeout,
	}
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
