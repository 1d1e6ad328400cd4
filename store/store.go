// Package store keeps the ledger of classes already reserved, so repeated
// runs never attempt the same occurrence twice.
//
// Uniqueness on (name, time, date) is enforced by reading before writing,
// not by a storage constraint. Two processes writing at once can both
// insert; run one instance at a time.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Record is one reserved (or found already held) class occurrence.
type Record struct {
	Name       string    `bson:"nombre"`
	Time       string    `bson:"hora"`  // HH:MM
	Weekday    string    `bson:"dia"`   // Spanish weekday name
	Date       string    `bson:"fecha"` // YYYY-MM-DD
	InsertedAt time.Time `bson:"creado"`
}

// Key identifies the occurrence a record is about.
func (r Record) Key() string {
	return Key(r.Name, r.Time, r.Date)
}

// Key is the identity used for duplicate checks: class name ignoring case
// and extra whitespace, start time and date.
func Key(name, hhmm, date string) string {
	return NormalizeName(name) + "|" + hhmm + "|" + date
}

// NormalizeName lowercases name and collapses its whitespace. Every backend
// compares class names in this form.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Ledger is the persisted set of reservations.
type Ledger interface {
	// Recent returns records whose date is on or after since.
	Recent(ctx context.Context, since time.Time) ([]Record, error)
	// InsertIfAbsent stores r unless a record with the same name, time and
	// date exists. Reports whether it inserted.
	InsertIfAbsent(ctx context.Context, r Record) (bool, error)
	Close(ctx context.Context) error
}

// Open connects to the ledger named by dsn. The scheme picks the backend:
// mongodb:// and mongodb+srv:// for MongoDB, postgres:// and postgresql://
// for PostgreSQL, memory:// for a throwaway in-process ledger.
func Open(ctx context.Context, dsn string, log *zap.Logger) (Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	scheme, _, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("ledger dsn has no scheme")
	}
	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		return OpenMongo(ctx, dsn, log)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, dsn, log)
	case "memory":
		log.Warn("using in-memory ledger, reservations will not persist")
		return NewMemoryLedger(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger scheme %q", scheme)
	}
}

func dateString(t time.Time) string {
	return t.Format("2006-01-02")
}
