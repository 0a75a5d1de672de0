package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/keepsync/internal/storage"
	"github.com/spf13/cobra"
)

var Version = "dev"

// dialSFTP builds the remote transport from the SSH settings.
var dialSFTP = storage.DialSSH

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

// newRootCmd builds the command tree. Running keepsync without a
// subcommand performs a sync.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "keepsync",
		Short:         "Keep a local file and its copy on an SFTP server in sync",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return syncCommand(cmd)
		},
	}

	root.AddCommand(newSyncCmd(), newHistoryCmd(), newVersionCmd())

	return root
}
