package booking

import "strings"

// Outcome is the classified result of a reservation step.
type Outcome int

const (
	Unknown Outcome = iota
	Reserved
	AlreadyHeld
	NotYetOpen
	SoldOut
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Reserved:
		return "RESERVED"
	case AlreadyHeld:
		return "ALREADY_HELD"
	case NotYetOpen:
		return "NOT_YET_OPEN"
	case SoldOut:
		return "SOLD_OUT"
	case NotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Terminal outcomes end the attempt loop for a class.
func (o Outcome) Terminal() bool {
	return o == Reserved || o == AlreadyHeld || o == SoldOut
}

// Retryable outcomes are tried again after the backoff, until the deadline.
func (o Outcome) Retryable() bool {
	return !o.Terminal()
}

// Signal is what the portal showed after a step.
type Signal struct {
	SlotFound bool
	Seats     int    // -1 when the counter was not readable
	Alert     string // danger alert text, empty when none
	Confirmed bool
}

// Phrases are stored folded (lowercase, no accents).
var (
	alreadyHeldPhrases = []string{
		"no permite mas de 1 reserva",
		"ya tiene una reserva",
		"ya estas inscrito",
	}
	notYetOpenPhrases = []string{
		"estara disponible a las",
		"todavia no esta disponible",
		"aun no se puede",
	}
	soldOutPhrases = []string{
		"no quedan plazas",
		"completo",
		"sin plazas",
	}
)

// Classify maps a Signal to an Outcome. It is the only place that knows the
// portal's wording.
func Classify(s Signal) Outcome {
	if !s.SlotFound {
		return NotFound
	}
	if s.Seats == 0 {
		return SoldOut
	}
	if s.Alert != "" {
		alert := fold(s.Alert)
		switch {
		case containsAny(alert, alreadyHeldPhrases):
			return AlreadyHeld
		case containsAny(alert, notYetOpenPhrases):
			return NotYetOpen
		case containsAny(alert, soldOutPhrases):
			return SoldOut
		}
		return Unknown
	}
	if s.Confirmed {
		return Reserved
	}
	return Unknown
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
