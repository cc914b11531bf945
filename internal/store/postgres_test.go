package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// newMockedStore builds a PostgresStore against a pgxmock pool with the ping
// and schema expectations already registered.
func newMockedStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	for _, stmt := range schemaStatements {
		mockPool.ExpectExec(flexibleSQLMatcher(stmt)).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	s, err := NewPostgres(context.Background(), mockPool, time.UTC, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

// -- Test Cases: Construction --

func TestNewPostgres(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgres(context.Background(), mockPool, time.UTC, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should apply every schema statement", func(t *testing.T) {
		_, mockPool := newMockedStore(t)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should return error if schema application fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		ddlErr := errors.New("permission denied")
		mockPool.ExpectPing()
		mockPool.ExpectExec(flexibleSQLMatcher(schemaStatements[0])).WillReturnError(ddlErr)

		_, err = NewPostgres(context.Background(), mockPool, time.UTC, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, ddlErr)
	})
}

// -- Test Cases: Quota State --

func TestPostgresQuotaState(t *testing.T) {
	ctx := context.Background()

	t.Run("should return zero state when no row exists", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT date_key, count_today, last_action_at FROM quota_state WHERE id = 1`)).
			WillReturnError(pgx.ErrNoRows)

		state, err := s.LoadQuotaState(ctx)
		require.NoError(t, err, "A missing row is a fresh install, not an error")
		assert.Equal(t, schemas.QuotaState{}, state)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should load persisted state including last action time", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		last := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
		rows := pgxmock.NewRows([]string{"date_key", "count_today", "last_action_at"}).
			AddRow("2026-03-15", 3, &last)
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT date_key, count_today, last_action_at FROM quota_state WHERE id = 1`)).
			WillReturnRows(rows)

		state, err := s.LoadQuotaState(ctx)
		require.NoError(t, err)
		assert.Equal(t, "2026-03-15", state.DateKey)
		assert.Equal(t, 3, state.CountToday)
		require.NotNil(t, state.LastActionAt)
		assert.True(t, state.LastActionAt.Equal(last))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should load state with null last action time", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		rows := pgxmock.NewRows([]string{"date_key", "count_today", "last_action_at"}).
			AddRow("2026-03-15", 0, nil)
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT date_key, count_today, last_action_at FROM quota_state WHERE id = 1`)).
			WillReturnRows(rows)

		state, err := s.LoadQuotaState(ctx)
		require.NoError(t, err)
		assert.Nil(t, state.LastActionAt)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should upsert state with UTC timestamps", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		lastLocal := time.Date(2026, 3, 15, 10, 0, 0, 0, loc)
		lastUTC := lastLocal.UTC()

		mockPool.ExpectExec(`INSERT INTO quota_state`).
			WithArgs("2026-03-15", 4, &lastUTC).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = s.SaveQuotaState(ctx, schemas.QuotaState{
			DateKey:      "2026-03-15",
			CountToday:   4,
			LastActionAt: &lastLocal,
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should surface save failures", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		writeErr := errors.New("disk full")
		mockPool.ExpectExec(`INSERT INTO quota_state`).
			WithArgs("2026-03-15", 1, (*time.Time)(nil)).
			WillReturnError(writeErr)

		err := s.SaveQuotaState(ctx, schemas.QuotaState{DateKey: "2026-03-15", CountToday: 1})
		require.Error(t, err)
		assert.ErrorIs(t, err, writeErr)
	})
}

// -- Test Cases: Action Outcomes --

func TestPostgresActionOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("should append outcome keyed to the day of its timestamp", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		ts := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
		outcome := schemas.ActionOutcome{
			Record: schemas.CandidateRecord{
				SourceKeyword:      "golang",
				RawContent:         "We are hiring",
				ExtractedAddresses: []string{"jobs@initech.example"},
			},
			Address:   "jobs@initech.example",
			Success:   true,
			Subject:   "Application: Backend Engineer",
			Timestamp: ts,
		}

		mockPool.ExpectExec(`INSERT INTO action_outcomes`).
			WithArgs("2026-03-15", "jobs@initech.example", true, "Application: Backend Engineer", false, ts.UTC(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.AppendActionOutcome(ctx, outcome))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should read a day of outcomes back in append order", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		ts := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
		record := []byte(`{"source_keyword":"golang","raw_content":"We are hiring","extracted_addresses":["jobs@initech.example"],"extracted_at":"0001-01-01T00:00:00Z"}`)
		rows := pgxmock.NewRows([]string{"address", "success", "subject", "is_fallback_content", "occurred_at", "record"}).
			AddRow("jobs@initech.example", true, "Application", false, ts, record).
			AddRow("talent@hooli.example", false, "Application", true, ts.Add(time.Hour), record)

		mockPool.ExpectQuery(`SELECT address, success, subject, is_fallback_content, occurred_at, record`).
			WithArgs("2026-03-15").
			WillReturnRows(rows)

		outcomes, err := s.ActionOutcomesForDay(ctx, "2026-03-15")
		require.NoError(t, err)
		require.Len(t, outcomes, 2)
		assert.Equal(t, "jobs@initech.example", outcomes[0].Address)
		assert.True(t, outcomes[0].Success)
		assert.Equal(t, "golang", outcomes[0].Record.SourceKeyword)
		assert.Equal(t, "talent@hooli.example", outcomes[1].Address)
		assert.True(t, outcomes[1].IsFallbackContent)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should return empty for a day with no outcomes", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		mockPool.ExpectQuery(`SELECT address, success, subject, is_fallback_content, occurred_at, record`).
			WithArgs("2026-01-01").
			WillReturnRows(pgxmock.NewRows([]string{"address", "success", "subject", "is_fallback_content", "occurred_at", "record"}))

		outcomes, err := s.ActionOutcomesForDay(ctx, "2026-01-01")
		require.NoError(t, err)
		assert.Empty(t, outcomes)
	})
}

// -- Test Cases: Session Reports --

func TestPostgresSessionReports(t *testing.T) {
	ctx := context.Background()

	t.Run("should upsert a report keyed by session id", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		ended := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)
		report := schemas.SessionReport{
			SessionID:   "11111111-2222-3333-4444-555555555555",
			Outcome:     schemas.OutcomeCompleted,
			StartedAt:   ended.Add(-time.Hour),
			EndedAt:     ended,
			Found:       7,
			Processed:   7,
			ActionsSent: 2,
			SuccessRate: 2.0 / 7.0,
		}

		mockPool.ExpectExec(`INSERT INTO session_reports`).
			WithArgs(report.SessionID, "2026-03-15", "COMPLETED", pgxmock.AnyArg(), ended.UTC()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.SaveSessionReport(ctx, report))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should read a day of reports back", func(t *testing.T) {
		s, mockPool := newMockedStore(t)

		payload := []byte(`{"session_id":"abc","outcome":"FAILED","failure_reason":"challenge unresolved","started_at":"2026-03-15T08:00:00Z","ended_at":"2026-03-15T08:10:00Z","found":0,"processed":0,"with_contacts":0,"actions_sent":0,"errors":1,"degraded_decisions":0,"success_rate":0}`)
		rows := pgxmock.NewRows([]string{"report"}).AddRow(payload)

		mockPool.ExpectQuery(`SELECT report\s+FROM session_reports`).
			WithArgs("2026-03-15").
			WillReturnRows(rows)

		reports, err := s.SessionReportsForDay(ctx, "2026-03-15")
		require.NoError(t, err)
		require.Len(t, reports, 1)
		assert.Equal(t, "abc", reports[0].SessionID)
		assert.Equal(t, schemas.OutcomeFailed, reports[0].Outcome)
		assert.Equal(t, "challenge unresolved", reports[0].FailureReason)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
