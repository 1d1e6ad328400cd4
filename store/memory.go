package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger keeps records in process. Selected with a memory:// dsn,
// handy for dry runs and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryLedger(seed ...Record) *MemoryLedger {
	return &MemoryLedger{records: append([]Record(nil), seed...)}
}

func (l *MemoryLedger) Recent(_ context.Context, since time.Time) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := dateString(since)
	var out []Record
	for _, r := range l.records {
		if r.Date >= from {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (l *MemoryLedger) InsertIfAbsent(_ context.Context, r Record) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := r.Key()
	for _, existing := range l.records {
		if existing.Key() == key {
			return false, nil
		}
	}
	if r.InsertedAt.IsZero() {
		r.InsertedAt = time.Now().UTC()
	}
	l.records = append(l.records, r)
	return true, nil
}

func (l *MemoryLedger) Close(context.Context) error { return nil }

// All returns a copy of every record, oldest first.
func (l *MemoryLedger) All() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
}
