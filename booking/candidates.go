package booking

import (
	"sort"
	"time"

	"fundi-booker/store"
)

// BookedSet answers "is this occurrence already in the ledger".
type BookedSet map[string]struct{}

func NewBookedSet(records []store.Record) BookedSet {
	s := make(BookedSet, len(records))
	for _, r := range records {
		s[r.Key()] = struct{}{}
	}
	return s
}

func (s BookedSet) Has(o Occurrence) bool {
	_, ok := s[store.Key(o.Class.Name, o.Class.Clock(), o.Date())]
	return ok
}

// Candidates plans every class, drops occurrences already booked, and
// orders the rest by window opening (then start, then name). The first
// element is the objective class of the run.
func Candidates(defs []ClassDefinition, records []store.Record, now time.Time, offset time.Duration) []Occurrence {
	booked := NewBookedSet(records)
	out := make([]Occurrence, 0, len(defs))
	for _, def := range defs {
		// Plan never yields a past occurrence; one starting this second is kept.
		occ := Plan(def, now, offset)
		if booked.Has(occ) {
			continue
		}
		out = append(out, occ)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.WindowOpen.Equal(b.WindowOpen) {
			return a.WindowOpen.Before(b.WindowOpen)
		}
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		return a.Class.Name < b.Class.Name
	})
	return out
}

// NewRecord is the ledger entry for a booked occurrence.
func NewRecord(o Occurrence, now time.Time) store.Record {
	return store.Record{
		Name:       o.Class.Name,
		Time:       o.Class.Clock(),
		Weekday:    SpanishWeekday(o.At.Weekday()),
		Date:       o.Date(),
		InsertedAt: now.UTC(),
	}
}
