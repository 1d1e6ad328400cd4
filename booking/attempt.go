package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"fundi-booker/client"
)

// Portal is the part of the portal client the booking logic drives. Every
// call takes the current session state and returns its replacement.
type Portal interface {
	Open(ctx context.Context, creds client.Credentials) (client.SessionState, error)
	Listing(ctx context.Context, st client.SessionState, day time.Time) (client.Listing, client.SessionState, error)
	Reserve(ctx context.Context, st client.SessionState, slot client.Slot) (client.Reply, client.SessionState, error)
	Confirm(ctx context.Context, st client.SessionState, p client.Profile) (client.Reply, client.SessionState, error)
}

// IsFatal reports whether err ends the whole run rather than one attempt.
func IsFatal(err error) bool {
	return errors.Is(err, client.ErrSessionExpired) ||
		errors.Is(err, client.ErrBlocked) ||
		errors.Is(err, client.ErrLoginFailed)
}

// AttemptResult is how the attempt loop for one occurrence ended.
type AttemptResult struct {
	Occurrence Occurrence
	Outcome    Outcome
	Attempts   int
	// Expired is set when the deadline passed without a terminal outcome.
	Expired   bool
	Alert     string
	LastError string
	Recorded  bool
	Started   time.Time
	Finished  time.Time
}

// Attempter runs the list -> reserve -> confirm sequence for an occurrence,
// retrying on a fixed interval until a terminal outcome or the deadline.
type Attempter struct {
	Portal   Portal
	Profile  client.Profile
	Deadline time.Duration
	Interval time.Duration
	Log      *zap.Logger
}

func (a *Attempter) Attempt(ctx context.Context, st client.SessionState, occ Occurrence) (AttemptResult, client.SessionState, error) {
	log := a.logger().With(zap.Stringer("class", occ))
	res := AttemptResult{Occurrence: occ, Started: time.Now()}

	deadline := a.deadline()
	attemptCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	backoff := retry.WithMaxDuration(deadline, retry.NewConstant(a.interval()))
	cur := st
	var fatal error

	err := retry.Do(attemptCtx, backoff, func(ctx context.Context) error {
		res.Attempts++
		outcome, alert, next, err := a.once(ctx, cur, occ)
		cur = next
		if err != nil {
			if IsFatal(err) {
				fatal = err
				return err
			}
			res.LastError = err.Error()
			log.Warn("attempt failed", zap.Int("attempt", res.Attempts), zap.Error(err))
			return retry.RetryableError(err)
		}

		res.Outcome = outcome
		res.Alert = alert
		log.Info("attempt classified",
			zap.Int("attempt", res.Attempts),
			zap.Stringer("outcome", outcome),
			zap.String("alert", alert))
		if outcome.Terminal() {
			return nil
		}
		return retry.RetryableError(fmt.Errorf("outcome %s", outcome))
	})
	res.Finished = time.Now()

	switch {
	case fatal != nil:
		return res, cur, fatal
	case ctx.Err() != nil:
		return res, cur, ctx.Err()
	case err == nil && res.Outcome.Terminal():
		return res, cur, nil
	}

	res.Expired = true
	log.Warn("attempt deadline passed",
		zap.Duration("deadline", deadline),
		zap.Int("attempts", res.Attempts),
		zap.Stringer("last_outcome", res.Outcome))
	return res, cur, nil
}

// once performs a single pass and classifies what the portal answered.
func (a *Attempter) once(ctx context.Context, st client.SessionState, occ Occurrence) (Outcome, string, client.SessionState, error) {
	listing, st, err := a.Portal.Listing(ctx, st, occ.At)
	if err != nil {
		return Unknown, "", st, fmt.Errorf("list %s: %w", occ.Date(), err)
	}

	slot, found := listing.Find(occ.Class.Name, occ.Class.Clock())
	if !found {
		return Classify(Signal{SlotFound: false, Seats: -1}), listing.Alert, st, nil
	}
	if out := Classify(Signal{SlotFound: true, Seats: slot.Seats}); out == SoldOut {
		return out, "", st, nil
	}

	reply, st, err := a.Portal.Reserve(ctx, st, slot)
	if err != nil {
		return Unknown, "", st, fmt.Errorf("reserve: %w", err)
	}
	if reply.Alert != "" {
		return Classify(Signal{SlotFound: true, Seats: slot.Seats, Alert: reply.Alert}), reply.Alert, st, nil
	}
	if !reply.CartReady {
		a.logger().Debug("cart button not seen after reservation, confirming anyway")
	}

	confirm, st, err := a.Portal.Confirm(ctx, st, a.Profile)
	if err != nil {
		return Unknown, "", st, fmt.Errorf("confirm: %w", err)
	}
	return Classify(Signal{
		SlotFound: true,
		Seats:     slot.Seats,
		Alert:     confirm.Alert,
		Confirmed: confirm.Confirmed,
	}), confirm.Alert, st, nil
}

func (a *Attempter) deadline() time.Duration {
	if a.Deadline <= 0 {
		return DefaultPolicy().AttemptDeadline
	}
	return a.Deadline
}

func (a *Attempter) interval() time.Duration {
	if a.Interval <= 0 {
		return DefaultPolicy().RetryInterval
	}
	return a.Interval
}

func (a *Attempter) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}
