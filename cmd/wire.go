package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fundi-booker/booking"
	"fundi-booker/client"
	"fundi-booker/config"
	"fundi-booker/store"
)

// app is what every command needs after configuration is loaded.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	loc      *time.Location
	schedule []booking.ClassDefinition
}

func loadApp(cmd *cobra.Command, required ...string) (*app, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}
	if err := cfg.Validate(required...); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	schedule, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:      cfg,
		log:      newLogger(cfg.Env),
		loc:      loc,
		schedule: schedule,
	}, nil
}

func (a *app) now() time.Time {
	return time.Now().In(a.loc)
}

func (a *app) openLedger(ctx context.Context) (store.Ledger, error) {
	ledger, err := store.Open(ctx, a.cfg.MongoURL, a.log.Named("ledger"))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return ledger, nil
}

func (a *app) newClient() (*client.Client, error) {
	return client.New(a.cfg.Site(), a.cfg.ClientOptions(), a.log.Named("portal"))
}

// runOnce performs one booking run against a fresh portal session and
// reports it.
func (a *app) runOnce(ctx context.Context, ledger store.Ledger, out io.Writer) (booking.RunResult, error) {
	portal, err := a.newClient()
	if err != nil {
		return booking.RunResult{}, err
	}
	r := &booking.Runner{
		Classes:  a.schedule,
		Ledger:   ledger,
		Portal:   portal,
		Waiter:   client.NewScheduler(),
		Creds:    a.cfg.Credentials(),
		Profile:  a.cfg.Profile(),
		Policy:   a.cfg.Policy(),
		Location: a.loc,
		Log:      a.log,
	}

	res, err := r.Run(ctx)
	booking.PrintRunReport(out, res)
	if a.cfg.ReportFile != "" {
		if werr := booking.WriteStructuredLog(res, a.cfg.ReportFile); werr != nil {
			a.log.Warn("could not write run report", zap.String("file", a.cfg.ReportFile), zap.Error(werr))
		}
	}
	return res, err
}
