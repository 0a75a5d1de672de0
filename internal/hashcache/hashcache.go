// Package hashcache remembers, per endpoint, the modification time and
// content hash last observed. A file is only re-read and re-hashed when
// its modification time moves, so repeated syncs of an unchanged file
// cost one stat per side.
package hashcache

import (
	"context"
	"crypto/md5" //nolint:gosec // G501: content fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	kserrors "github.com/alexjbarnes/keepsync/internal/errors"
	"github.com/alexjbarnes/keepsync/internal/storage"
	"github.com/goccy/go-json"
)

const (
	// TimeLayout is the on-disk format of Record.LastChanged.
	TimeLayout = "2006-01-02 15:04:05"

	// cacheDirPerm applies when the cache directory has to be created.
	// The temp file written by save is already 0600.
	cacheDirPerm = fs.FileMode(0o700)
)

// Record is the persisted state of one endpoint. FileHash is only ever
// written together with LastChanged.
type Record struct {
	LastChanged string `json:"last_changed"`
	FileHash    string `json:"file_hash"`
}

// Snapshot describes an endpoint's current state relative to what the
// cache held before the call.
type Snapshot struct {
	LastChanged  time.Time
	Hash         string
	PreviousHash string

	// Created is set when no record existed for the endpoint.
	Created bool
	// Calculated is set when the content was re-read and hashed.
	Calculated bool
	// Updated is set when a record existed and its hash changed.
	Updated bool
}

// Fresh reports whether the endpoint was written since the cache last
// saw it.
func (s *Snapshot) Fresh() bool {
	return s.Created || s.Updated
}

// Cache is a JSON-file backed map of identity key to Record. The whole
// file is rewritten after every mutation.
type Cache struct {
	path    string
	records map[string]Record
	logger  *slog.Logger
}

// Open loads the cache at path. A missing file yields an empty cache.
// A file that is present but not valid JSON returns ErrCacheInvalid.
// Any other read failure is logged and treated as empty.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		path:    path,
		records: make(map[string]Record),
		logger:  logger,
	}

	if err := c.load(); err != nil {
		return nil, err
	}

	return c, nil
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Len returns the number of records held.
func (c *Cache) Len() int {
	return len(c.records)
}

// Record returns the stored record for key.
func (c *Cache) Record(key string) (Record, bool) {
	r, ok := c.records[key]
	return r, ok
}

// Get returns the endpoint's snapshot, recomputing and persisting the
// hash when the modification time differs from the cached one. It
// returns nil, nil when the endpoint does not exist. Endpoint errors are
// returned as is.
func (c *Cache) Get(ctx context.Context, ep storage.Endpoint) (*Snapshot, error) {
	return c.get(ctx, ep, false)
}

// Refresh is Get without the mtime gate: the content is always re-read
// and the record rewritten. Callers use it right after writing ep, when
// the new mtime may fall in the same second as the stored one.
func (c *Cache) Refresh(ctx context.Context, ep storage.Endpoint) (*Snapshot, error) {
	return c.get(ctx, ep, true)
}

func (c *Cache) get(ctx context.Context, ep storage.Endpoint, force bool) (*Snapshot, error) {
	var snap *Snapshot

	err := storage.WithScope(ctx, ep, func() error {
		mtime, ok, err := ep.LastModified(ctx)
		if err != nil {
			return err
		}

		c.logger.Debug("endpoint state",
			slog.String("key", ep.Key()),
			slog.Bool("exists", ok),
			slog.Time("last_changed", mtime),
		)

		if !ok {
			return nil
		}

		snap, err = c.readOrCalculate(ctx, ep, mtime, force)

		return err
	})
	if err != nil {
		return nil, err
	}

	return snap, nil
}

func (c *Cache) readOrCalculate(ctx context.Context, ep storage.Endpoint, mtime time.Time, force bool) (*Snapshot, error) {
	key := ep.Key()
	lastChanged := mtime.UTC().Truncate(time.Second)
	stamp := lastChanged.Format(TimeLayout)

	prev, found := c.records[key]

	snap := &Snapshot{
		LastChanged:  lastChanged,
		Hash:         prev.FileHash,
		PreviousHash: prev.FileHash,
		Created:      !found,
	}

	if !force && found && prev.LastChanged == stamp {
		return snap, nil
	}

	data, err := ep.Read(ctx)
	if err != nil {
		return nil, err
	}

	hash := Hash(data)
	c.records[key] = Record{LastChanged: stamp, FileHash: hash}

	if err := c.save(); err != nil {
		if found {
			c.records[key] = prev
		} else {
			delete(c.records, key)
		}

		return nil, err
	}

	snap.Hash = hash
	snap.Calculated = true
	snap.Updated = found && prev.FileHash != hash

	c.logger.Debug("hash calculated",
		slog.String("key", key),
		slog.String("hash", hash),
		slog.Bool("updated", snap.Updated),
	)

	return snap, nil
}

// Hash returns the hex MD5 digest of data.
func Hash(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // G401: see import
	return hex.EncodeToString(sum[:])
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		c.logger.Warn("unable to load hash cache file",
			slog.String("path", c.path),
			slog.String("error", err.Error()),
		)

		return nil
	}

	records := make(map[string]Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: %s: %w", kserrors.ErrCacheInvalid, c.path, err)
	}

	if records != nil {
		c.records = records
	}

	return nil
}

// save writes the whole store to a temp file and renames it over the
// cache, so a crash never leaves a truncated cache behind.
func (c *Cache) save() error {
	data, err := json.Marshal(c.records)
	if err != nil {
		return fmt.Errorf("encoding hash cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, cacheDirPerm); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("saving hash cache: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("saving hash cache: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("saving hash cache: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("saving hash cache: %w", err)
	}

	return nil
}
