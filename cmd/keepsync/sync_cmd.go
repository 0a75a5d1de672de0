package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alexjbarnes/keepsync/internal/config"
	"github.com/alexjbarnes/keepsync/internal/hashcache"
	"github.com/alexjbarnes/keepsync/internal/logging"
	"github.com/alexjbarnes/keepsync/internal/models"
	"github.com/alexjbarnes/keepsync/internal/state"
	"github.com/alexjbarnes/keepsync/internal/storage"
	"github.com/alexjbarnes/keepsync/internal/syncer"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local and remote file once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return syncCommand(cmd)
		},
	}
}

func syncCommand(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.IsProduction(), cmd.ErrOrStderr())
	logger.Debug("keepsync starting", slog.String("version", Version))

	return runSync(cmd.Context(), cfg, logger, cmd.OutOrStdout())
}

// runSync performs one reconciliation and appends it to the run
// history. The outcome line is the only thing written to out.
func runSync(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	unlock, err := acquireLock(cfg.LockFile())
	if err != nil {
		return err
	}
	defer unlock()

	history, err := state.LoadAt(cfg.StateDB)
	if err != nil {
		return fmt.Errorf("loading run history: %w", err)
	}
	defer history.Close()

	cache, err := hashcache.Open(cfg.CacheFile, logger)
	if err != nil {
		return err
	}

	logger.Debug("hash cache loaded",
		slog.String("path", cache.Path()),
		slog.Int("records", cache.Len()),
	)

	local, err := storage.NewLocalFile(cfg.LocalFile)
	if err != nil {
		return err
	}

	conn := storage.NewSFTPConn(dialSFTP(cfg.SSH()), logger)

	remote, err := storage.NewSFTPFile(conn, cfg.RemoteFile, cfg.UserName)
	if err != nil {
		return err
	}

	s := syncer.New(cache, shellHook(cfg.OnUpdateCommand, logger), logger)

	started := time.Now()
	outcome, syncErr := s.Sync(ctx, local, remote)

	if refs := conn.Refs(); refs != 0 {
		logger.Warn("sftp session left open after sync", slog.Int("refs", refs))
	}

	run := models.Run{
		StartedAt:  started.UTC(),
		DurationMS: time.Since(started).Milliseconds(),
		LocalKey:   local.Key(),
		RemoteKey:  remote.Key(),
		Outcome:    string(outcome),
	}
	if syncErr != nil {
		run.Error = syncErr.Error()
	}

	if _, err := history.RecordRun(run); err != nil {
		logger.Warn("failed to record run", slog.String("error", err.Error()))
	}

	if outcome != "" {
		fmt.Fprintln(out, outcome)
	}

	return syncErr
}
