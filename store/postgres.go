package store

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresLedger keeps the same flat records in a single table.
type PostgresLedger struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func OpenPostgres(ctx context.Context, dsn string, log *zap.Logger) (*PostgresLedger, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("connected to ledger", zap.String("backend", "postgres"))
	return &PostgresLedger{pool: pool, log: log}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Recent(ctx context.Context, since time.Time) ([]Record, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT nombre, hora, dia, to_char(fecha, 'YYYY-MM-DD'), creado
		FROM clases_reservadas
		WHERE fecha >= $1::date
		ORDER BY fecha, hora`, dateString(since))
	if err != nil {
		return nil, fmt.Errorf("query recent reservations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Name, &r.Time, &r.Weekday, &r.Date, &r.InsertedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) InsertIfAbsent(ctx context.Context, r Record) (bool, error) {
	if r.InsertedAt.IsZero() {
		r.InsertedAt = time.Now().UTC()
	}
	tag, err := l.pool.Exec(ctx, `
		INSERT INTO clases_reservadas (nombre, hora, dia, fecha, creado)
		SELECT $1::text, $2::text, $3::text, $4::date, $5::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM clases_reservadas
			WHERE lower(regexp_replace(btrim(nombre), '\s+', ' ', 'g')) = $6::text
			  AND hora = $2::text AND fecha = $4::date
		)`, r.Name, r.Time, r.Weekday, r.Date, r.InsertedAt, NormalizeName(r.Name))
	if err != nil {
		return false, fmt.Errorf("insert reservation: %w", err)
	}
	inserted := tag.RowsAffected() == 1
	if inserted {
		l.log.Info("reservation recorded", zap.String("key", r.Key()))
	} else {
		l.log.Info("reservation already in ledger", zap.String("key", r.Key()))
	}
	return inserted, nil
}

func (l *PostgresLedger) Close(context.Context) error {
	l.pool.Close()
	return nil
}
