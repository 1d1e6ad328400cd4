package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	var day string

	c := &cobra.Command{
		Use:   "probe",
		Short: "Log in, show the session tokens and one day's listing; books nothing",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, "EMAIL", "PASSWORD")
			if err != nil {
				return err
			}
			defer a.log.Sync()

			date := a.now()
			if day != "" {
				if date, err = time.ParseInLocation("2006-01-02", day, a.loc); err != nil {
					return fmt.Errorf("invalid --day (want YYYY-MM-DD): %w", err)
				}
			}

			portal, err := a.newClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			step := color.New(color.FgHiCyan, color.Bold).SprintFunc()

			fmt.Fprintln(out, step("Step 1: Login"))
			st, err := portal.Open(ctx, a.cfg.Credentials())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  page        : %s\n", st.PagePath)
			fmt.Fprintf(out, "  nav token   : %s\n", abbreviate(st.NavToken))
			fmt.Fprintf(out, "  viewstate   : %d bytes\n", len(st.ViewState))
			fmt.Fprintf(out, "  validation  : %s\n", abbreviate(st.EventValidation))
			fmt.Fprintf(out, "  cookies     : %d\n", len(portal.DebugCookies()))

			fmt.Fprintln(out, step("Step 2: Listing for "+date.Format("Monday 02/01/2006")))
			listing, _, err := portal.Listing(ctx, st, date)
			if err != nil {
				return err
			}
			if listing.Alert != "" {
				fmt.Fprintf(out, "  alert: %s\n", listing.Alert)
			}
			if len(listing.Slots) == 0 {
				fmt.Fprintln(out, "  no sessions listed")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "  TIME\tCLASS\tSEATS\tCODE")
			for _, s := range listing.Slots {
				seats := "?"
				if s.Seats >= 0 {
					seats = fmt.Sprint(s.Seats)
				}
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", s.Time, s.Name, seats, s.Code)
			}
			return w.Flush()
		},
	}
	c.Flags().StringVar(&day, "day", "", "day to list, YYYY-MM-DD (default today)")
	return c
}

func abbreviate(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + "…" + s[len(s)-4:]
}
