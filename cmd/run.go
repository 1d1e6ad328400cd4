package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fundi-booker/config"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one booking pass: pick the next class, wait for its window, book it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, config.RunKeys...)
			if err != nil {
				return err
			}
			defer a.log.Sync()

			ctx := cmd.Context()
			ledger, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := ledger.Close(context.Background()); err != nil {
					a.log.Warn("closing ledger", zap.Error(err))
				}
			}()

			_, err = a.runOnce(ctx, ledger, cmd.OutOrStdout())
			return err
		},
	}
}
