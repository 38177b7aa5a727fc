package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the correction_outcomes table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS correction_outcomes (
    cycle_id        TEXT PRIMARY KEY,
    recorded_at     TIMESTAMPTZ NOT NULL,
    app_id          TEXT NOT NULL DEFAULT '',
    kind            TEXT NOT NULL,
    reason          TEXT NOT NULL DEFAULT '',
    state           TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL DEFAULT '',
    strategy        TEXT NOT NULL DEFAULT '',
    backend         TEXT NOT NULL DEFAULT '',
    duration_ms     BIGINT NOT NULL DEFAULT 0,
    original_runes  INTEGER NOT NULL DEFAULT 0,
    corrected_runes INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_correction_outcomes_recorded_at ON correction_outcomes(recorded_at);
CREATE INDEX IF NOT EXISTS idx_correction_outcomes_app ON correction_outcomes(app_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ReasonCount is one row of [PostgresStore.CountByReason].
type ReasonCount struct {
	Kind   string
	Reason string
	Count  int64
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before recording.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Record inserts e. Recording the same cycle twice is a no-op.
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	if e.CycleID == "" {
		return errMissingCycleID
	}

	const query = `
		INSERT INTO correction_outcomes (
			cycle_id, recorded_at, app_id, kind, reason, state,
			source, strategy, backend, duration_ms, original_runes, corrected_runes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (cycle_id) DO NOTHING`

	_, err := s.db.Exec(ctx, query,
		e.CycleID, e.Timestamp, e.AppID, e.Kind, e.Reason, e.State,
		e.Source, e.Strategy, e.Backend, e.DurationMS, e.OriginalRunes, e.CorrectedRunes,
	)
	if err != nil {
		return fmt.Errorf("journal: record %q: %w", e.CycleID, err)
	}
	return nil
}

// CountByReason aggregates journaled outcomes by kind and reason.
func (s *PostgresStore) CountByReason(ctx context.Context) ([]ReasonCount, error) {
	const query = `
		SELECT kind, reason, COUNT(*)
		FROM correction_outcomes
		GROUP BY kind, reason
		ORDER BY kind, reason`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("journal: count: %w", err)
	}
	defer rows.Close()

	var out []ReasonCount
	for rows.Next() {
		var rc ReasonCount
		if err := rows.Scan(&rc.Kind, &rc.Reason, &rc.Count); err != nil {
			return nil, fmt.Errorf("journal: count: scan: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: count: %w", err)
	}
	return out, nil
}
