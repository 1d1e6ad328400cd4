package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClassDefinition is one weekly class the runner tries to book.
type ClassDefinition struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
	Name    string
}

// Clock returns the start time as HH:MM, the format the portal lists.
func (c ClassDefinition) Clock() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c ClassDefinition) String() string {
	return fmt.Sprintf("%s %s %s", SpanishWeekday(c.Weekday), c.Clock(), c.Name)
}

var spanishDays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// SpanishWeekday is the weekday name stored in reservation records.
func SpanishWeekday(d time.Weekday) string {
	return spanishDays[d]
}

var weekdayNames = map[string]time.Weekday{
	"domingo": time.Sunday, "sunday": time.Sunday, "sun": time.Sunday,
	"lunes": time.Monday, "monday": time.Monday, "mon": time.Monday,
	"martes": time.Tuesday, "tuesday": time.Tuesday, "tue": time.Tuesday,
	"miercoles": time.Wednesday, "wednesday": time.Wednesday, "wed": time.Wednesday,
	"jueves": time.Thursday, "thursday": time.Thursday, "thu": time.Thursday,
	"viernes": time.Friday, "friday": time.Friday, "fri": time.Friday,
	"sabado": time.Saturday, "saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts Spanish or English names, any case, accents optional.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayNames[fold(s)]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

// ParseClock parses "H:MM" or "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("bad time %q, want HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || len(m) != 2 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}

// NewClass builds a definition from its textual parts.
func NewClass(day, clock, name string) (ClassDefinition, error) {
	wd, err := ParseWeekday(day)
	if err != nil {
		return ClassDefinition{}, err
	}
	h, m, err := ParseClock(clock)
	if err != nil {
		return ClassDefinition{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ClassDefinition{}, fmt.Errorf("class on %s %s has no name", day, clock)
	}
	return ClassDefinition{Weekday: wd, Hour: h, Minute: m, Name: name}, nil
}

// DefaultSchedule is the weekly plan used when the config lists no classes.
func DefaultSchedule() []ClassDefinition {
	return []ClassDefinition{
		{time.Monday, 16, 30, "Fitness"},
		{time.Monday, 17, 30, "Entrenamiento en suspensión"},
		{time.Monday, 18, 30, "Fuerza CORE"},
		{time.Tuesday, 15, 45, "Fuerza en sala multitrabajo"},
		{time.Tuesday, 17, 30, "Fitness"},
		{time.Wednesday, 16, 30, "Fitness"},
		{time.Wednesday, 17, 30, "Entrenamiento en suspensión"},
		{time.Wednesday, 18, 30, "Fuerza CORE"},
		{time.Thursday, 15, 45, "Fuerza en sala multitrabajo"},
		{time.Thursday, 17, 30, "Fitness"},
		{time.Friday, 15, 30, "Pilates MesD"},
		{time.Friday, 16, 30, "Funcional MesD"},
	}
}
