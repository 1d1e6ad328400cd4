package booking

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// PrintRunReport writes the human summary of a run.
func PrintRunReport(w io.Writer, r RunResult) {
	header := color.New(color.FgHiCyan, color.Bold).SprintFunc()
	section := color.New(color.FgHiYellow).SprintFunc()
	label := color.New(color.FgWhite).SprintFunc()
	value := color.New(color.FgHiWhite).SprintFunc()
	success := color.New(color.FgGreen, color.Bold).SprintFunc()
	failure := color.New(color.FgRed, color.Bold).SprintFunc()
	muted := color.New(color.FgHiBlack).SprintFunc()

	rule := section("--------------------------------------------------")

	fmt.Fprintln(w, "\n"+header("[Fundi Booking Run]"))
	fmt.Fprintf(w, "%s   : %s\n", label("Run ID"), value(r.RunID))
	fmt.Fprintf(w, "%s  : %s\n", label("Started"), value(r.Started.Format("2006-01-02 15:04:05 MST")))
	fmt.Fprintf(w, "%s : %s\n", label("Duration"), value(r.Finished.Sub(r.Started).Round(time.Millisecond)))
	if r.DryRun {
		fmt.Fprintf(w, "%s     : %s\n", label("Mode"), value("dry run"))
	}

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, section("[1] Candidates"))
	fmt.Fprintln(w, rule)
	if len(r.Candidates) == 0 {
		fmt.Fprintln(w, muted("  none, every planned class is already booked"))
	}
	for i, c := range r.Candidates {
		mark := " "
		if i == 0 {
			mark = "*"
		}
		fmt.Fprintf(w, " %s [%d] %-40s window %s\n", mark, i+1, c.String(), c.WindowOpen.Format("Mon 02/01 15:04"))
	}

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, section("[2] Attempts"))
	fmt.Fprintln(w, rule)
	if len(r.Attempts) == 0 {
		fmt.Fprintln(w, muted("  no attempt made"))
	}
	for _, a := range r.Attempts {
		outcome := a.Outcome.String()
		if a.Expired {
			outcome += " (deadline)"
		}
		colored := failure(outcome)
		if a.Outcome == Reserved || a.Outcome == AlreadyHeld {
			colored = success(outcome)
		}
		fmt.Fprintf(w, "  %-40s tries %-3d %s\n", a.Occurrence.String(), a.Attempts, colored)
		if a.Alert != "" {
			fmt.Fprintf(w, "  %s %s\n", label("alert:"), value(a.Alert))
		}
		if a.LastError != "" {
			fmt.Fprintf(w, "  %s %s\n", label("last error:"), muted(a.LastError))
		}
	}

	fmt.Fprintln(w, "\n"+rule)
	fmt.Fprintln(w, section("[3] Result"))
	fmt.Fprintln(w, rule)
	stop := r.Stop.String()
	switch r.Stop {
	case StopObjectiveAchieved, StopAlreadyHeld, StopNoCandidates:
		fmt.Fprintf(w, "%s : %s\n", label("Stop"), success(stop))
	default:
		fmt.Fprintf(w, "%s : %s\n", label("Stop"), failure(stop))
	}
	if r.Err != nil {
		fmt.Fprintf(w, "%s: %s\n", label("Error"), failure(r.Err.Error()))
	}
}

type reportLine struct {
	RunID      string          `json:"run_id"`
	Started    time.Time       `json:"started"`
	Finished   time.Time       `json:"finished"`
	DryRun     bool            `json:"dry_run,omitempty"`
	Objective  string          `json:"objective,omitempty"`
	Candidates int             `json:"candidates"`
	Attempts   []attemptReport `json:"attempts,omitempty"`
	Stop       string          `json:"stop"`
	Error      string          `json:"error,omitempty"`
}

type attemptReport struct {
	Class    string `json:"class"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
	Expired  bool   `json:"expired,omitempty"`
	Alert    string `json:"alert,omitempty"`
	Recorded bool   `json:"recorded,omitempty"`
}

// WriteStructuredLog appends the run as one JSON line to filename.
func WriteStructuredLog(r RunResult, filename string) error {
	line := reportLine{
		RunID:      r.RunID,
		Started:    r.Started,
		Finished:   r.Finished,
		DryRun:     r.DryRun,
		Candidates: len(r.Candidates),
		Stop:       r.Stop.String(),
	}
	if o, ok := r.Objective(); ok {
		line.Objective = o.String()
	}
	if r.Err != nil {
		line.Error = r.Err.Error()
	}
	for _, a := range r.Attempts {
		line.Attempts = append(line.Attempts, attemptReport{
			Class:    a.Occurrence.Class.Name,
			Date:     a.Occurrence.Date(),
			Time:     a.Occurrence.Class.Clock(),
			Outcome:  a.Outcome.String(),
			Attempts: a.Attempts,
			Expired:  a.Expired,
			Alert:    a.Alert,
			Recorded: a.Recorded,
		})
	}

	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}
