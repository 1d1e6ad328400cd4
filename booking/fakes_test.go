package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fundi-booker/client"
)

// pass scripts what the portal answers during one list/reserve/confirm pass.
type pass struct {
	listing    client.Listing
	listErr    error
	reserve    client.Reply
	reserveErr error
	confirm    client.Reply
	confirmErr error
}

// fakePortal plays passes in order, repeating the last one. It hands out a
// new view state on every call and rejects stale ones, like the real site.
type fakePortal struct {
	mu       sync.Mutex
	passes   []pass
	current  int
	openErr  error
	opens    int
	calls    []string
	days     []time.Time
	reserved []client.Slot
	latest   string
	seq      int
}

func (f *fakePortal) advance(st client.SessionState) (client.SessionState, error) {
	if st.ViewState != f.latest {
		return st, fmt.Errorf("%w: got %q want %q", client.ErrSessionExpired, st.ViewState, f.latest)
	}
	f.seq++
	st.ViewState = fmt.Sprintf("vs-%d", f.seq)
	f.latest = st.ViewState
	return st, nil
}

func (f *fakePortal) step() pass {
	if len(f.passes) == 0 {
		return pass{}
	}
	i := f.current
	if i >= len(f.passes) {
		i = len(f.passes) - 1
	}
	return f.passes[i]
}

func (f *fakePortal) Open(_ context.Context, _ client.Credentials) (client.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.calls = append(f.calls, "open")
	if f.openErr != nil {
		return client.SessionState{}, f.openErr
	}
	f.seq++
	f.latest = fmt.Sprintf("vs-%d", f.seq)
	return client.SessionState{PagePath: "/DeportesWeb/Oferta", ViewState: f.latest}, nil
}

func (f *fakePortal) Listing(_ context.Context, st client.SessionState, day time.Time) (client.Listing, client.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "listing")
	f.days = append(f.days, day)
	p := f.step()
	f.current++

	next, err := f.advance(st)
	if err != nil {
		return client.Listing{}, st, err
	}
	if p.listErr != nil {
		return client.Listing{}, next, p.listErr
	}
	return p.listing, next, nil
}

func (f *fakePortal) Reserve(_ context.Context, st client.SessionState, slot client.Slot) (client.Reply, client.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "reserve")
	f.reserved = append(f.reserved, slot)
	p := f.passes[min(f.current, len(f.passes))-1]

	next, err := f.advance(st)
	if err != nil {
		return client.Reply{}, st, err
	}
	return p.reserve, next, p.reserveErr
}

func (f *fakePortal) Confirm(_ context.Context, st client.SessionState, _ client.Profile) (client.Reply, client.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "confirm")
	p := f.passes[min(f.current, len(f.passes))-1]

	next, err := f.advance(st)
	if err != nil {
		return client.Reply{}, st, err
	}
	return p.confirm, next, p.confirmErr
}

func (f *fakePortal) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

// fakeWaiter returns immediately and remembers what it was asked to wait for.
type fakeWaiter struct {
	targets []time.Time
	err     error
}

func (w *fakeWaiter) SleepUntil(_ context.Context, t time.Time) (time.Duration, error) {
	w.targets = append(w.targets, t)
	return 0, w.err
}

func listingWith(slots ...client.Slot) client.Listing {
	return client.Listing{Slots: slots}
}

func slot(name, hhmm string, seats int) client.Slot {
	return client.Slot{Name: name, Time: hhmm, Seats: seats, Code: "S-" + hhmm}
}

var (
	booked    = pass{listing: listingWith(slot("Fitness", "16:30", 5)), reserve: client.Reply{CartReady: true}, confirm: client.Reply{Confirmed: true}}
	notYet    = pass{listing: listingWith(slot("Fitness", "16:30", 5)), reserve: client.Reply{Alert: "La reserva estará disponible a las 15:30"}}
	held      = pass{listing: listingWith(slot("Fitness", "16:30", 5)), reserve: client.Reply{Alert: "No se permite más de 1 reserva"}}
	missing   = pass{listing: listingWith(slot("Pilates MesD", "15:30", 5))}
	soldOut   = pass{listing: listingWith(slot("Fitness", "16:30", 0))}
	transient = pass{listErr: fmt.Errorf("GET listing: connection reset by peer")}
)
