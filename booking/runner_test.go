package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fundi-booker/client"
	"fundi-booker/store"
)

func testPolicy() Policy {
	p := DefaultPolicy()
	p.AttemptDeadline = time.Second
	p.RetryInterval = time.Millisecond
	return p
}

func newRunner(t *testing.T, p *fakePortal, ledger Ledger, now time.Time) (*Runner, *fakeWaiter) {
	w := &fakeWaiter{}
	return &Runner{
		Classes: []ClassDefinition{
			mondayFitness,
			{Weekday: time.Monday, Hour: 17, Minute: 30, Name: "Entrenamiento en suspensión"},
		},
		Ledger:   ledger,
		Portal:   p,
		Waiter:   w,
		Creds:    client.Credentials{Email: "user@example.com", Password: "secret"},
		Policy:   testPolicy(),
		Location: cet,
		Now:      func() time.Time { return now },
		Log:      zaptest.NewLogger(t),
	}, w
}

func TestRunNoCandidates(t *testing.T) {
	ledger := store.NewMemoryLedger(
		store.Record{Name: "Fitness", Time: "16:30", Date: "2026-10-19"},
		store.Record{Name: "Entrenamiento en suspensión", Time: "17:30", Date: "2026-10-19"},
	)
	p := &fakePortal{}
	r, _ := newRunner(t, p, ledger, at(2026, 10, 18, 10, 0))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopNoCandidates, res.Stop)
	assert.Zero(t, p.opens, "no network without candidates")
	assert.NotEmpty(t, res.RunID)
}

func TestRunObjectiveAchieved(t *testing.T) {
	ledger := store.NewMemoryLedger()
	p := &fakePortal{passes: []pass{booked}}
	r, w := newRunner(t, p, ledger, at(2026, 10, 18, 10, 0))

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopObjectiveAchieved, res.Stop)
	assert.Equal(t, 1, p.opens)
	assert.Empty(t, w.targets, "window already open, no wait")
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].Recorded)
	assert.Equal(t, 1, res.Reserved())

	records := ledger.All()
	require.Len(t, records, 1)
	assert.Equal(t, store.Record{
		Name: "Fitness", Time: "16:30", Weekday: "lunes", Date: "2026-10-19",
		InsertedAt: records[0].InsertedAt,
	}, records[0])
}

func TestRunWaitTooLong(t *testing.T) {
	p := &fakePortal{passes: []pass{booked}}
	r, w := newRunner(t, p, store.NewMemoryLedger(), at(2026, 10, 21, 12, 0))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopWaitTooLong, res.Stop)
	assert.Zero(t, p.opens)
	assert.Empty(t, w.targets)
	assert.Empty(t, res.Attempts)
}

func TestRunWaitsForWindow(t *testing.T) {
	// Ten minutes before Monday 16:30 Fitness opens on Saturday 15:30.
	now := at(2026, 10, 17, 15, 20)
	p := &fakePortal{passes: []pass{booked}}
	r, w := newRunner(t, p, store.NewMemoryLedger(), now)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopObjectiveAchieved, res.Stop)
	require.Len(t, w.targets, 2)
	assert.True(t, at(2026, 10, 17, 15, 29).Add(30*time.Second).Equal(w.targets[0]), "log in ahead of the window")
	assert.True(t, at(2026, 10, 17, 15, 30).Equal(w.targets[1]))
	assert.Equal(t, []string{"open", "listing", "reserve", "confirm"}, p.calls)
}

func TestRunAlreadyHeld(t *testing.T) {
	for _, recordHeld := range []bool{true, false} {
		ledger := store.NewMemoryLedger()
		p := &fakePortal{passes: []pass{held}}
		r, _ := newRunner(t, p, ledger, at(2026, 10, 18, 10, 0))
		r.Policy.RecordHeld = recordHeld

		res, err := r.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StopAlreadyHeld, res.Stop)
		assert.Len(t, res.Attempts, 1, "never tries the next class")
		if recordHeld {
			assert.Len(t, ledger.All(), 1)
		} else {
			assert.Empty(t, ledger.All())
		}
	}
}

func TestRunSoldOutMovesOn(t *testing.T) {
	both := pass{
		listing: listingWith(slot("Fitness", "16:30", 0), slot("Entrenamiento en suspensión", "17:30", 3)),
		reserve: client.Reply{CartReady: true},
		confirm: client.Reply{Confirmed: true},
	}
	ledger := store.NewMemoryLedger()
	p := &fakePortal{passes: []pass{both}}
	r, _ := newRunner(t, p, ledger, at(2026, 10, 18, 10, 0))

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopObjectiveAchieved, res.Stop)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, SoldOut, res.Attempts[0].Outcome)
	assert.Equal(t, Reserved, res.Attempts[1].Outcome)
	assert.Equal(t, 1, p.opens, "one session for the whole run")
	require.Len(t, ledger.All(), 1)
	assert.Equal(t, "Entrenamiento en suspensión", ledger.All()[0].Name)
}

func TestRunExhausted(t *testing.T) {
	p := &fakePortal{passes: []pass{soldOut}}
	r, _ := newRunner(t, p, store.NewMemoryLedger(), at(2026, 10, 18, 10, 0))
	r.Policy.AttemptDeadline = 30 * time.Millisecond

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopExhausted, res.Stop)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, SoldOut, res.Attempts[0].Outcome)
	assert.True(t, res.Attempts[1].Expired, "second class is never listed")
}

func TestRunDryRunLeavesLedgerAlone(t *testing.T) {
	ledger := store.NewMemoryLedger()
	p := &fakePortal{passes: []pass{booked}}
	r, _ := newRunner(t, p, ledger, at(2026, 10, 18, 10, 0))
	r.Policy.DryRun = true

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopObjectiveAchieved, res.Stop)
	assert.True(t, res.DryRun)
	assert.False(t, res.Attempts[0].Recorded)
	assert.Empty(t, ledger.All())
}

func TestRunKeepsGoingWhenNotStoppingAfterFirst(t *testing.T) {
	both := pass{
		listing: listingWith(slot("Fitness", "16:30", 2), slot("Entrenamiento en suspensión", "17:30", 3)),
		reserve: client.Reply{CartReady: true},
		confirm: client.Reply{Confirmed: true},
	}
	ledger := store.NewMemoryLedger()
	p := &fakePortal{passes: []pass{both}}
	r, _ := newRunner(t, p, ledger, at(2026, 10, 18, 10, 0))
	r.Policy.StopAfterFirst = false

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopExhausted, res.Stop)
	assert.Equal(t, 2, res.Reserved())
	assert.Len(t, ledger.All(), 2)
}

func TestRunBudgetExceeded(t *testing.T) {
	both := pass{
		listing: listingWith(slot("Fitness", "16:30", 2), slot("Entrenamiento en suspensión", "17:30", 3)),
		reserve: client.Reply{CartReady: true},
		confirm: client.Reply{Confirmed: true},
	}
	p := &fakePortal{passes: []pass{both}}
	r, _ := newRunner(t, p, store.NewMemoryLedger(), at(2026, 10, 18, 10, 0))
	r.Policy.StopAfterFirst = false
	r.Policy.RunBudget = 30 * time.Second

	var mu sync.Mutex
	clock := at(2026, 10, 18, 10, 0)
	r.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopBudgetExceeded, res.Stop)
	assert.Len(t, res.Attempts, 1)
}

func TestRunBudgetCoversLaterWindows(t *testing.T) {
	both := pass{
		listing: listingWith(slot("Fitness", "16:30", 2), slot("Fuerza CORE", "17:00", 3)),
		reserve: client.Reply{CartReady: true},
		confirm: client.Reply{Confirmed: true},
	}
	// Saturday 15:30: Fitness is open, Fuerza CORE opens at 16:00.
	p := &fakePortal{passes: []pass{both}}
	r, w := newRunner(t, p, store.NewMemoryLedger(), at(2026, 10, 17, 15, 30))
	r.Classes = []ClassDefinition{
		mondayFitness,
		{Weekday: time.Monday, Hour: 17, Minute: 0, Name: "Fuerza CORE"},
	}
	r.Policy.StopAfterFirst = false
	r.Policy.RunBudget = 2 * time.Minute

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopBudgetExceeded, res.Stop)
	assert.Empty(t, w.targets, "never waits past the budget")
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, 1, res.Reserved())
}

func TestRunBudgetCapsAttempt(t *testing.T) {
	p := &fakePortal{passes: []pass{notYet}}
	r, _ := newRunner(t, p, store.NewMemoryLedger(), at(2026, 10, 18, 10, 0))
	r.Policy.StopAfterFirst = false
	r.Policy.AttemptDeadline = time.Minute
	r.Policy.RunBudget = 50 * time.Millisecond

	start := time.Now()
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, StopBudgetExceeded, res.Stop)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, NotYetOpen, res.Attempts[0].Outcome)
}

func TestRunBudgetIgnoredWhenStoppingAfterFirst(t *testing.T) {
	both := pass{
		listing: listingWith(slot("Fitness", "16:30", 0), slot("Fuerza CORE", "17:00", 3)),
		reserve: client.Reply{CartReady: true},
		confirm: client.Reply{Confirmed: true},
	}
	p := &fakePortal{passes: []pass{both}}
	r, w := newRunner(t, p, store.NewMemoryLedger(), at(2026, 10, 17, 15, 30))
	r.Classes = []ClassDefinition{
		mondayFitness,
		{Weekday: time.Monday, Hour: 17, Minute: 0, Name: "Fuerza CORE"},
	}
	r.Policy.RunBudget = time.Minute

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopObjectiveAchieved, res.Stop)
	require.Len(t, w.targets, 1)
	assert.True(t, at(2026, 10, 17, 16, 0).Equal(w.targets[0]))
}

func TestRunAbortsOnLoginFailure(t *testing.T) {
	p := &fakePortal{passes: []pass{booked}, openErr: client.ErrLoginFailed}
	r, _ := newRunner(t, p, store.NewMemoryLedger(), at(2026, 10, 18, 10, 0))

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, client.ErrLoginFailed)
	assert.Equal(t, StopAborted, res.Stop)
	assert.Equal(t, err, res.Err)
}

func TestRunAbortsWhenWaitIsInterrupted(t *testing.T) {
	p := &fakePortal{passes: []pass{booked}}
	r, w := newRunner(t, p, store.NewMemoryLedger(), at(2026, 10, 17, 15, 20))
	w.err = context.Canceled

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopAborted, res.Stop)
	assert.Zero(t, p.opens)
}
