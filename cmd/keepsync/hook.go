package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/alexjbarnes/keepsync/internal/storage"
	"github.com/alexjbarnes/keepsync/internal/syncer"
)

// updatedFileEnv names the variable carrying the local path to the hook.
const updatedFileEnv = "KEEPSYNC_UPDATED_FILE"

// shellHook returns a LocalUpdateFunc that runs command through sh, or
// nil when command is empty.
func shellHook(command string, logger *slog.Logger) syncer.LocalUpdateFunc {
	if command == "" {
		return nil
	}

	return func(ctx context.Context, local storage.Endpoint) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // G204: command comes from the user's own config
		cmd.Env = append(os.Environ(), updatedFileEnv+"="+local.Name())

		output, err := cmd.CombinedOutput()
		out := strings.TrimSpace(string(output))

		if err != nil {
			if out != "" {
				return fmt.Errorf("running %q: %w: %s", command, err, out)
			}

			return fmt.Errorf("running %q: %w", command, err)
		}

		logger.Info("update hook ran",
			slog.String("file", local.Name()),
			slog.String("output", out),
		)

		return nil
	}
}
