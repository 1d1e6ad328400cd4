package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fundi",
		Short:         "Books weekly classes at La Fundi the moment their booking window opens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default ./fundi.yaml or ./config/fundi.yaml)")
	root.PersistentFlags().Bool("dry-run", false, "do everything except confirming and recording reservations")

	root.AddCommand(newRunCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newProbeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
