package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var days int

	c := &cobra.Command{
		Use:   "history",
		Short: "List reservations recorded in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, "MONGO_URL")
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

			since := a.now().Add(-time.Duration(days) * 24 * time.Hour)
			records, err := ledger.Recent(ctx, since)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no reservations since %s\n", since.Format("2006-01-02"))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tDAY\tTIME\tCLASS")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Date, r.Weekday, r.Time, r.Name)
			}
			return w.Flush()
		},
	}
	c.Flags().IntVar(&days, "days", 7, "how many days back to list")
	return c
}
