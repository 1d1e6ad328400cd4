package booking

import (
	"fmt"
	"time"
)

// DefaultWindowOffset is how long before a class its booking window opens.
const DefaultWindowOffset = 49 * time.Hour

// Occurrence is the next concrete datetime of a class and the moment its
// booking window opens. Computed once per run.
type Occurrence struct {
	Class      ClassDefinition
	At         time.Time
	WindowOpen time.Time
}

// Date is the occurrence day as YYYY-MM-DD.
func (o Occurrence) Date() string {
	return o.At.Format("2006-01-02")
}

// IsOpen reports whether the booking window has opened at now.
func (o Occurrence) IsOpen(now time.Time) bool {
	return !now.Before(o.WindowOpen)
}

// WaitFrom is how long from now until the window opens, zero if open.
func (o Occurrence) WaitFrom(now time.Time) time.Duration {
	if o.IsOpen(now) {
		return 0
	}
	return o.WindowOpen.Sub(now)
}

func (o Occurrence) String() string {
	return fmt.Sprintf("%s %s %s", o.Class.Name, o.Date(), o.Class.Clock())
}

// NextOccurrence returns the first datetime at or after now, in now's
// location, falling on def's weekday at def's time of day. An occurrence
// equal to now, to the second, counts as today.
func NextOccurrence(def ClassDefinition, now time.Time) time.Time {
	days := (int(def.Weekday) - int(now.Weekday()) + 7) % 7
	y, m, d := now.Date()
	at := time.Date(y, m, d+days, def.Hour, def.Minute, 0, 0, now.Location())
	if at.Before(now.Truncate(time.Second)) {
		at = time.Date(y, m, d+days+7, def.Hour, def.Minute, 0, 0, now.Location())
	}
	return at
}

// Plan computes the occurrence and its window for def.
func Plan(def ClassDefinition, now time.Time, offset time.Duration) Occurrence {
	at := NextOccurrence(def, now)
	return Occurrence{
		Class:      def,
		At:         at,
		WindowOpen: at.Add(-offset),
	}
}
