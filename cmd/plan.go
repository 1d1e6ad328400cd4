package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fundi-booker/booking"
	"fundi-booker/store"
)

func newPlanCmd() *cobra.Command {
	var offline bool

	c := &cobra.Command{
		Use:   "plan",
		Short: "Show the next occurrence and booking window of every class, without touching the portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.log.Sync()

			ctx := cmd.Context()
			now := a.now()
			policy := a.cfg.Policy()

			var records []store.Record
			if !offline && a.cfg.MongoURL != "" {
				ledger, err := a.openLedger(ctx)
				if err != nil {
					return err
				}
				defer ledger.Close(context.Background())
				if records, err = ledger.Recent(ctx, now.Add(-policy.History)); err != nil {
					return err
				}
			}

			booked := booking.NewBookedSet(records)
			candidates := booking.Candidates(a.schedule, records, now, policy.WindowOffset)
			objective := ""
			if len(candidates) > 0 {
				objective = candidates[0].String()
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\tCLASS\tDATE\tTIME\tWINDOW OPENS\tSTATUS")
			for _, def := range a.schedule {
				occ := booking.Plan(def, now, policy.WindowOffset)
				mark := ""
				if occ.String() == objective {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					mark, def.Name, occ.Date(), def.Clock(),
					occ.WindowOpen.Format("Mon 02/01 15:04"), planStatus(occ, booked, now, policy.MaxWait))
			}
			return w.Flush()
		},
	}
	c.Flags().BoolVar(&offline, "offline", false, "do not read the ledger")
	return c
}

func planStatus(occ booking.Occurrence, booked booking.BookedSet, now time.Time, maxWait time.Duration) string {
	switch {
	case booked.Has(occ):
		return "booked"
	case occ.IsOpen(now):
		return "open"
	case occ.WaitFrom(now) <= maxWait:
		return "opens in " + occ.WaitFrom(now).Round(time.Second).String()
	default:
		return "opens in " + occ.WaitFrom(now).Round(time.Minute).String()
	}
}
