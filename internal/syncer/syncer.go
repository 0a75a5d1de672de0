// Package syncer reconciles one local file with one remote file. It
// asks the hash cache for the state of each side, decides which copy is
// authoritative and overwrites the other, backing up the local file
// first when both sides changed independently.
package syncer

//go:generate mockgen -destination=mock_hasher_test.go -package=syncer . Hasher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	kserrors "github.com/alexjbarnes/keepsync/internal/errors"
	"github.com/alexjbarnes/keepsync/internal/hashcache"
	"github.com/alexjbarnes/keepsync/internal/storage"
)

const (
	// ConflictSuffix is appended to conflict backup names.
	ConflictSuffix = "_conflict"

	// backupTimeLayout formats the UTC timestamp in backup names.
	backupTimeLayout = "20060102_150405"
)

// Hasher returns an endpoint's snapshot, or nil when it does not exist.
// Refresh rehashes unconditionally. *hashcache.Cache implements it.
type Hasher interface {
	Get(ctx context.Context, ep storage.Endpoint) (*hashcache.Snapshot, error)
	Refresh(ctx context.Context, ep storage.Endpoint) (*hashcache.Snapshot, error)
}

// LocalUpdateFunc is called after the remote file has been copied over
// the local one. Hosts use it to reload whatever holds the local file
// open.
type LocalUpdateFunc func(ctx context.Context, local storage.Endpoint) error

// Syncer runs one reconciliation per Sync call. It keeps no state
// between calls.
type Syncer struct {
	cache         Hasher
	onLocalUpdate LocalUpdateFunc
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a Syncer. onLocalUpdate may be nil.
func New(cache Hasher, onLocalUpdate LocalUpdateFunc, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Syncer{
		cache:         cache,
		onLocalUpdate: onLocalUpdate,
		logger:        logger,
		now:           time.Now,
	}
}

// Sync brings local and remote to the same content. A nil endpoint is
// treated as missing.
//
// Errors wrap one of ErrLocalFile, ErrRemoteFile, ErrNothingToSync,
// ErrCopy, ErrBackup or ErrHook. Nothing is written before both sides
// have been inspected. A hook failure is reported together with the
// outcome, because the copy has already happened by then.
func (s *Syncer) Sync(ctx context.Context, local, remote storage.Endpoint) (Outcome, error) {
	infoLocal, err := s.snapshot(ctx, local)
	if err != nil {
		return "", fmt.Errorf("%w: %w", kserrors.ErrLocalFile, err)
	}

	infoRemote, err := s.snapshot(ctx, remote)
	if err != nil {
		return "", fmt.Errorf("%w: %w", kserrors.ErrRemoteFile, err)
	}

	s.logSnapshot("local", infoLocal)
	s.logSnapshot("remote", infoRemote)

	plan, err := Decide(infoLocal, infoRemote)
	if err != nil {
		return "", err
	}

	s.logger.Debug("sync plan",
		slog.String("direction", plan.Direction.String()),
		slog.Bool("backup", plan.Backup),
	)

	if plan.Backup {
		s.logger.Warn("local and remote files have both been modified, creating backup")

		if err := s.backupConflict(ctx, local); err != nil {
			return "", err
		}
	}

	switch plan.Direction {
	case DirectionToLocal:
		if err := s.copyFile(ctx, remote, local); err != nil {
			return "", err
		}

		if s.onLocalUpdate != nil {
			if err := s.onLocalUpdate(ctx, local); err != nil {
				return plan.Outcome, fmt.Errorf("%w: %w", kserrors.ErrHook, err)
			}
		}

	case DirectionToRemote:
		if err := s.copyFile(ctx, local, remote); err != nil {
			return "", err
		}
	}

	return plan.Outcome, nil
}

func (s *Syncer) snapshot(ctx context.Context, ep storage.Endpoint) (*hashcache.Snapshot, error) {
	if ep == nil {
		return nil, nil
	}

	return s.cache.Get(ctx, ep)
}

// copyFile overwrites dst with src and refreshes dst's cache record so
// the next sync sees the new state without re-hashing.
func (s *Syncer) copyFile(ctx context.Context, src, dst storage.Endpoint) error {
	if src == nil || dst == nil {
		return fmt.Errorf("%w: endpoint not supplied", kserrors.ErrCopy)
	}

	s.logger.Info("copying file",
		slog.String("from", src.Key()),
		slog.String("to", dst.Key()),
	)

	err := storage.WithScope(ctx, src, func() error {
		return storage.WithScope(ctx, dst, func() error {
			data, err := src.Read(ctx)
			if err != nil {
				return err
			}

			if err := dst.Write(ctx, data); err != nil {
				return err
			}

			_, err = s.cache.Refresh(ctx, dst)

			return err
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %w", kserrors.ErrCopy, err)
	}

	return nil
}

// backupConflict copies ep to <name>.<UTC timestamp>_conflict alongside it.
func (s *Syncer) backupConflict(ctx context.Context, ep storage.Endpoint) error {
	if ep == nil {
		return fmt.Errorf("%w: endpoint not supplied", kserrors.ErrBackup)
	}

	name := BackupName(ep.Name(), s.now(), true)
	s.logger.Info("creating backup", slog.String("name", name))

	if _, err := ep.Copy(ctx, name); err != nil {
		return fmt.Errorf("%w: %w", kserrors.ErrBackup, err)
	}

	return nil
}

// BackupName returns the backup path for name taken at t.
func BackupName(name string, t time.Time, conflict bool) string {
	out := name + "." + t.UTC().Format(backupTimeLayout)
	if conflict {
		out += ConflictSuffix
	}

	return out
}

func (s *Syncer) logSnapshot(side string, snap *hashcache.Snapshot) {
	if snap == nil {
		s.logger.Debug("file info", slog.String("side", side), slog.Bool("exists", false))
		return
	}

	s.logger.Debug("file info",
		slog.String("side", side),
		slog.Time("last_changed", snap.LastChanged),
		slog.String("hash", snap.Hash),
		slog.String("previous_hash", snap.PreviousHash),
		slog.Bool("created", snap.Created),
		slog.Bool("calculated", snap.Calculated),
		slog.Bool("updated", snap.Updated),
	)
}
