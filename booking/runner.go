package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fundi-booker/client"
	"fundi-booker/store"
)

// StopReason says why a run ended.
type StopReason int

const (
	StopNoCandidates StopReason = iota
	StopObjectiveAchieved
	StopAlreadyHeld
	StopWaitTooLong
	StopExhausted
	StopBudgetExceeded
	StopAborted
)

func (r StopReason) String() string {
	switch r {
	case StopNoCandidates:
		return "NO_CANDIDATES"
	case StopObjectiveAchieved:
		return "OBJECTIVE_ACHIEVED"
	case StopAlreadyHeld:
		return "ALREADY_HELD"
	case StopWaitTooLong:
		return "WAIT_TOO_LONG"
	case StopExhausted:
		return "EXHAUSTED"
	case StopBudgetExceeded:
		return "BUDGET_EXCEEDED"
	default:
		return "ABORTED"
	}
}

// Policy holds the knobs of a run.
type Policy struct {
	WindowOffset    time.Duration // window opens this long before class start
	AttemptDeadline time.Duration // per-class retry budget
	RetryInterval   time.Duration // fixed backoff between attempts
	MaxWait         time.Duration // longest wait for a window before giving up
	LoginLead       time.Duration // log in this long before a waited-for window
	StopAfterFirst  bool
	RunBudget       time.Duration // wall clock from the first attempt when not stopping after first
	RecordHeld      bool          // write ALREADY_HELD occurrences to the ledger
	History         time.Duration // ledger look-back
	DryRun          bool
}

func DefaultPolicy() Policy {
	return Policy{
		WindowOffset:    DefaultWindowOffset,
		AttemptDeadline: 90 * time.Second,
		RetryInterval:   time.Second,
		MaxWait:         45 * time.Minute,
		LoginLead:       30 * time.Second,
		StopAfterFirst:  true,
		RunBudget:       2 * time.Minute,
		RecordHeld:      true,
		History:         7 * 24 * time.Hour,
	}
}

// Ledger is the subset of store.Ledger the runner needs.
type Ledger interface {
	Recent(ctx context.Context, since time.Time) ([]store.Record, error)
	InsertIfAbsent(ctx context.Context, r store.Record) (bool, error)
}

// Waiter blocks until a window opens and reports how late it woke.
type Waiter interface {
	SleepUntil(ctx context.Context, t time.Time) (time.Duration, error)
}

// RunResult summarises one invocation.
type RunResult struct {
	RunID      string
	Started    time.Time
	Finished   time.Time
	Candidates []Occurrence
	Attempts   []AttemptResult
	Stop       StopReason
	DryRun     bool
	Err        error
}

// Objective is the first candidate, if there was one.
func (r RunResult) Objective() (Occurrence, bool) {
	if len(r.Candidates) == 0 {
		return Occurrence{}, false
	}
	return r.Candidates[0], true
}

// Reserved counts occurrences booked in this run.
func (r RunResult) Reserved() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Outcome == Reserved {
			n++
		}
	}
	return n
}

// Runner executes one booking run: plan, wait for windows, attempt, record.
type Runner struct {
	Classes  []ClassDefinition
	Ledger   Ledger
	Portal   Portal
	Waiter   Waiter
	Creds    client.Credentials
	Profile  client.Profile
	Policy   Policy
	Location *time.Location
	Now      func() time.Time
	Log      *zap.Logger
}

func (r *Runner) Run(ctx context.Context) (RunResult, error) {
	now := r.now()
	res := RunResult{RunID: uuid.NewString(), Started: now, DryRun: r.Policy.DryRun}
	log := r.logger().With(zap.String("run_id", res.RunID))

	finish := func(reason StopReason, err error) (RunResult, error) {
		res.Stop = reason
		res.Err = err
		res.Finished = r.now()
		log.Info("run finished",
			zap.Stringer("stop", reason),
			zap.Int("reserved", res.Reserved()),
			zap.Duration("elapsed", res.Finished.Sub(res.Started)),
			zap.Error(err))
		return res, err
	}

	records, err := r.Ledger.Recent(ctx, now.Add(-r.Policy.History))
	if err != nil {
		return finish(StopAborted, fmt.Errorf("load ledger: %w", err))
	}
	res.Candidates = Candidates(r.Classes, records, now, r.Policy.WindowOffset)
	if len(res.Candidates) == 0 {
		log.Info("nothing to book", zap.Int("ledger_records", len(records)))
		return finish(StopNoCandidates, nil)
	}
	objective := res.Candidates[0]
	log.Info("objective selected",
		zap.Stringer("class", objective),
		zap.Time("window_open", objective.WindowOpen),
		zap.Int("candidates", len(res.Candidates)))

	attempter := &Attempter{
		Portal:   r.Portal,
		Profile:  r.Profile,
		Deadline: r.Policy.AttemptDeadline,
		Interval: r.Policy.RetryInterval,
		Log:      log,
	}

	// The run budget only bounds keep-going runs. It starts with the first
	// attempt and covers later waits and attempts.
	budgeted := !r.Policy.StopAfterFirst && r.Policy.RunBudget > 0
	var (
		st        client.SessionState
		opened    bool
		budgetEnd time.Time
	)
	open := func() error {
		if opened {
			return nil
		}
		s, err := r.Portal.Open(ctx, r.Creds)
		if err != nil {
			return fmt.Errorf("open portal session: %w", err)
		}
		st, opened = s, true
		return nil
	}

	for _, occ := range res.Candidates {
		clog := log.With(zap.Stringer("class", occ))

		if !budgetEnd.IsZero() && !r.now().Before(budgetEnd) {
			clog.Info("run budget spent", zap.Duration("budget", r.Policy.RunBudget))
			return finish(StopBudgetExceeded, nil)
		}

		if now := r.now(); !occ.IsOpen(now) {
			wait := occ.WaitFrom(now)
			if !budgetEnd.IsZero() && occ.WindowOpen.After(budgetEnd) {
				clog.Info("window opens after the run budget",
					zap.Time("window_open", occ.WindowOpen),
					zap.Time("budget_end", budgetEnd))
				return finish(StopBudgetExceeded, nil)
			}
			if wait > r.Policy.MaxWait {
				clog.Info("window opens too far ahead",
					zap.Duration("wait", wait),
					zap.Duration("max_wait", r.Policy.MaxWait))
				return finish(StopWaitTooLong, nil)
			}
			if !opened {
				if lead := occ.WindowOpen.Add(-r.Policy.LoginLead); lead.After(now) {
					clog.Info("waiting to log in", zap.Time("at", lead))
					if _, err := r.Waiter.SleepUntil(ctx, lead); err != nil {
						return finish(StopAborted, err)
					}
				}
				if err := open(); err != nil {
					return finish(StopAborted, err)
				}
			}
			clog.Info("waiting for window", zap.Time("window_open", occ.WindowOpen))
			drift, err := r.Waiter.SleepUntil(ctx, occ.WindowOpen)
			if err != nil {
				return finish(StopAborted, err)
			}
			clog.Info("window open", zap.Duration("drift", drift))
		}

		if err := open(); err != nil {
			return finish(StopAborted, err)
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if budgeted {
			now := r.now()
			if budgetEnd.IsZero() {
				budgetEnd = now.Add(r.Policy.RunBudget)
			}
			remaining := budgetEnd.Sub(now)
			if remaining <= 0 {
				clog.Info("run budget spent", zap.Duration("budget", r.Policy.RunBudget))
				return finish(StopBudgetExceeded, nil)
			}
			attemptCtx, cancel = context.WithTimeout(ctx, remaining)
		}

		ar, next, err := attempter.Attempt(attemptCtx, st, occ)
		cancel()
		st = next
		if err != nil {
			res.Attempts = append(res.Attempts, ar)
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				clog.Info("run budget spent during attempt", zap.Duration("budget", r.Policy.RunBudget))
				return finish(StopBudgetExceeded, nil)
			}
			return finish(StopAborted, err)
		}

		switch ar.Outcome {
		case Reserved:
			ar.Recorded = r.record(ctx, clog, occ)
			res.Attempts = append(res.Attempts, ar)
			if r.Policy.StopAfterFirst {
				return finish(StopObjectiveAchieved, nil)
			}
		case AlreadyHeld:
			if r.Policy.RecordHeld {
				ar.Recorded = r.record(ctx, clog, occ)
			}
			res.Attempts = append(res.Attempts, ar)
			return finish(StopAlreadyHeld, nil)
		default:
			res.Attempts = append(res.Attempts, ar)
			clog.Info("class dropped for this run",
				zap.Stringer("outcome", ar.Outcome),
				zap.Bool("expired", ar.Expired))
		}
	}
	return finish(StopExhausted, nil)
}

// record writes the occurrence to the ledger. A failed write is logged but
// does not undo the booking.
func (r *Runner) record(ctx context.Context, log *zap.Logger, occ Occurrence) bool {
	if r.Policy.DryRun {
		log.Info("dry run, ledger not updated")
		return false
	}
	inserted, err := r.Ledger.InsertIfAbsent(ctx, NewRecord(occ, r.now()))
	if err != nil {
		log.Error("could not record reservation", zap.Error(err))
		return false
	}
	return inserted
}

func (r *Runner) now() time.Time {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	if r.Location != nil {
		now = now.In(r.Location)
	}
	return now
}

func (r *Runner) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
