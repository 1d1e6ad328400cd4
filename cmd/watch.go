package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fundi-booker/client"
	"fundi-booker/config"
)

func newWatchCmd() *cobra.Command {
	var schedule string

	c := &cobra.Command{
		Use:   "watch",
		Short: "Keep running booking passes on a cron schedule until interrupted",
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
			defer ledger.Close(context.Background())

			cl := cronLogger{s: a.log.Named("cron").Sugar()}
			sched := cron.New(
				cron.WithLocation(a.loc),
				cron.WithLogger(cl),
				cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			)

			// A blocked portal or rejected credentials stop the watch; any
			// other failure waits for the next tick with a fresh session.
			fatal := make(chan error, 1)
			_, err = sched.AddFunc(schedule, func() {
				res, err := a.runOnce(ctx, ledger, cmd.OutOrStdout())
				switch {
				case err == nil:
				case errors.Is(err, context.Canceled):
				case errors.Is(err, client.ErrBlocked), errors.Is(err, client.ErrLoginFailed):
					select {
					case fatal <- err:
					default:
					}
				default:
					a.log.Error("run failed", zap.String("run_id", res.RunID), zap.Error(err))
				}
			})
			if err != nil {
				return fmt.Errorf("bad --cron %q: %w", schedule, err)
			}

			a.log.Info("watching", zap.String("cron", schedule), zap.String("timezone", a.loc.String()))
			sched.Start()
			defer func() { <-sched.Stop().Done() }()

			select {
			case <-ctx.Done():
				return nil
			case err := <-fatal:
				return err
			}
		},
	}
	c.Flags().StringVar(&schedule, "cron", "*/30 * * * *", "standard 5-field cron spec, in the configured timezone")
	return c
}
