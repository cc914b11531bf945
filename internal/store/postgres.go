package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// DBPool abstracts the pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// schemaStatements are applied one by one at startup; every statement is
// idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS quota_state (
		id SMALLINT PRIMARY KEY CHECK (id = 1),
		date_key TEXT NOT NULL,
		count_today INTEGER NOT NULL,
		last_action_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS action_outcomes (
		id BIGSERIAL PRIMARY KEY,
		date_key TEXT NOT NULL,
		address TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		subject TEXT NOT NULL,
		is_fallback_content BOOLEAN NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		record JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS action_outcomes_day_idx ON action_outcomes (date_key, id)`,
	`CREATE TABLE IF NOT EXISTS session_reports (
		session_id TEXT PRIMARY KEY,
		date_key TEXT NOT NULL,
		outcome TEXT NOT NULL,
		report JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS session_reports_day_idx ON session_reports (date_key, created_at)`,
}

// PostgresStore persists quota state, outcome logs and session reports in
// PostgreSQL. Date keys are derived in the configured zone so they line up
// with the quota gate's calendar.
type PostgresStore struct {
	pool DBPool
	loc  *time.Location
	log  *zap.Logger
}

// NewPostgres verifies the connection and applies the schema.
func NewPostgres(ctx context.Context, pool DBPool, loc *time.Location, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}

	s := &PostgresStore{
		pool: pool,
		loc:  loc,
		log:  logger.Named("store.postgres"),
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply store schema: %w", err)
		}
	}
	s.log.Debug("Store schema ensured", zap.Int("statements", len(schemaStatements)))
	return nil
}

// LoadQuotaState returns the singleton quota row, or a zero state when none
// has been written yet.
func (s *PostgresStore) LoadQuotaState(ctx context.Context) (schemas.QuotaState, error) {
	const query = `SELECT date_key, count_today, last_action_at FROM quota_state WHERE id = 1`

	var state schemas.QuotaState
	err := s.pool.QueryRow(ctx, query).Scan(&state.DateKey, &state.CountToday, &state.LastActionAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.QuotaState{}, nil
	}
	if err != nil {
		return schemas.QuotaState{}, fmt.Errorf("failed to load quota state: %w", err)
	}
	return state, nil
}

// SaveQuotaState overwrites the singleton quota row.
func (s *PostgresStore) SaveQuotaState(ctx context.Context, state schemas.QuotaState) error {
	const query = `
        INSERT INTO quota_state (id, date_key, count_today, last_action_at)
        VALUES (1, $1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET
            date_key = EXCLUDED.date_key,
            count_today = EXCLUDED.count_today,
            last_action_at = EXCLUDED.last_action_at;
    `
	var last *time.Time
	if state.LastActionAt != nil {
		utc := state.LastActionAt.UTC()
		last = &utc
	}
	if _, err := s.pool.Exec(ctx, query, state.DateKey, state.CountToday, last); err != nil {
		return fmt.Errorf("failed to save quota state: %w", err)
	}
	return nil
}

// AppendActionOutcome writes one outcome row keyed to the calendar day of its
// timestamp.
func (s *PostgresStore) AppendActionOutcome(ctx context.Context, outcome schemas.ActionOutcome) error {
	const query = `
        INSERT INTO action_outcomes (date_key, address, success, subject, is_fallback_content, occurred_at, record)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
	record, err := jsonAPI.Marshal(outcome.Record)
	if err != nil {
		return fmt.Errorf("failed to encode outcome record: %w", err)
	}

	_, err = s.pool.Exec(ctx, query,
		schemas.DateKey(outcome.Timestamp, s.loc),
		outcome.Address,
		outcome.Success,
		outcome.Subject,
		outcome.IsFallbackContent,
		outcome.Timestamp.UTC(),
		record,
	)
	if err != nil {
		return fmt.Errorf("failed to append action outcome: %w", err)
	}
	return nil
}

// ActionOutcomesForDay returns the outcomes for one date key in append order.
func (s *PostgresStore) ActionOutcomesForDay(ctx context.Context, dateKey string) ([]schemas.ActionOutcome, error) {
	const query = `
        SELECT address, success, subject, is_fallback_content, occurred_at, record
        FROM action_outcomes
        WHERE date_key = $1
        ORDER BY id ASC;
    `
	rows, err := s.pool.Query(ctx, query, dateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query action outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []schemas.ActionOutcome
	for rows.Next() {
		var (
			o      schemas.ActionOutcome
			record []byte
		)
		if err := rows.Scan(&o.Address, &o.Success, &o.Subject, &o.IsFallbackContent, &o.Timestamp, &record); err != nil {
			return nil, fmt.Errorf("failed to scan action outcome row: %w", err)
		}
		if err := jsonAPI.Unmarshal(record, &o.Record); err != nil {
			return nil, fmt.Errorf("failed to decode outcome record: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during outcome row iteration: %w", err)
	}
	return outcomes, nil
}

// SaveSessionReport upserts a final report keyed by session ID. Rewriting the
// same report is a no-op, so a retried shutdown stays idempotent.
func (s *PostgresStore) SaveSessionReport(ctx context.Context, report schemas.SessionReport) error {
	const query = `
        INSERT INTO session_reports (session_id, date_key, outcome, report, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (session_id) DO UPDATE SET
            date_key = EXCLUDED.date_key,
            outcome = EXCLUDED.outcome,
            report = EXCLUDED.report,
            created_at = EXCLUDED.created_at;
    `
	payload, err := jsonAPI.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode session report: %w", err)
	}

	endedAt := report.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx, query,
		report.SessionID,
		schemas.DateKey(endedAt, s.loc),
		string(report.Outcome),
		payload,
		endedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session report: %w", err)
	}
	return nil
}

// SessionReportsForDay returns the reports written on one date key.
func (s *PostgresStore) SessionReportsForDay(ctx context.Context, dateKey string) ([]schemas.SessionReport, error) {
	const query = `
        SELECT report
        FROM session_reports
        WHERE date_key = $1
        ORDER BY created_at ASC;
    `
	rows, err := s.pool.Query(ctx, query, dateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query session reports: %w", err)
	}
	defer rows.Close()

	var reports []schemas.SessionReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan session report row: %w", err)
		}
		var report schemas.SessionReport
		if err := jsonAPI.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("failed to decode session report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during report row iteration: %w", err)
	}
	return reports, nil
}
