// -- cmd/report_test.go --
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"github.com/xkilldash9x/prospect-cli/internal/reporting"
	"github.com/xkilldash9x/prospect-cli/internal/service"
	"github.com/xkilldash9x/prospect-cli/internal/store"
)

// seedDay writes one session report and two outcomes stamped now into the
// configured file store and returns today's date key.
func seedDay(t *testing.T, cfg *config.Config) string {
	t.Helper()
	ctx := context.Background()

	st, release, err := service.InitializeStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(release)

	now := time.Now()
	require.NoError(t, st.SaveSessionReport(ctx, schemas.SessionReport{
		SessionID: "s-1",
		Outcome:   schemas.OutcomeCompleted,
		StartedAt: now.Add(-10 * time.Minute),
		EndedAt:   now,
		Found:     6, Processed: 4, WithContacts: 3, ActionsSent: 2,
		SuccessRate: 0.5,
	}))
	for _, address := range []string{"careers@initech.example", "jobs@hooli.example"} {
		require.NoError(t, st.AppendActionOutcome(ctx, schemas.ActionOutcome{
			Record: schemas.CandidateRecord{
				SourceKeyword:      "golang developer",
				RawContent:         "We are hiring, reach " + address,
				ExtractedAddresses: []string{address},
				ExtractedAt:        now,
			},
			Address:   address,
			Success:   true,
			Subject:   "Application",
			Timestamp: now,
		}))
	}

	return schemas.DateKey(now, cfg.Session.DateLocation())
}

func TestResolveDateKey(t *testing.T) {
	cfg := testConfig(t)

	key, err := resolveDateKey(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, schemas.DateKey(time.Now(), cfg.Session.DateLocation()), key)

	key, err = resolveDateKey(cfg, "2026-08-25")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-25", key)

	_, err = resolveDateKey(cfg, "Aug 25")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want YYYY-MM-DD")
}

func TestRunReport_JSONToFile(t *testing.T) {
	cfg := testConfig(t)
	dateKey := seedDay(t, cfg)
	outPath := filepath.Join(t.TempDir(), "day.json")

	require.NoError(t, runReport(context.Background(), zap.NewNop(), cfg, dateKey, "json", outPath))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var summary reporting.DaySummary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, dateKey, summary.DateKey)
	assert.Equal(t, 1, summary.Sessions)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 2, summary.SuccessfulSends)
	assert.Equal(t, 2, summary.DistinctAddresses)
	assert.Equal(t, map[string]int{"golang developer": 2}, summary.ActionsByKeyword)
}

func TestRunReport_TextToFile(t *testing.T) {
	cfg := testConfig(t)
	dateKey := seedDay(t, cfg)
	outPath := filepath.Join(t.TempDir(), "day.txt")

	require.NoError(t, runReport(context.Background(), zap.NewNop(), cfg, dateKey, "text", outPath))

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Session activity for "+dateKey)
	assert.Contains(t, string(raw), "golang developer")
}

func TestRunReport_UnsupportedFormat(t *testing.T) {
	cfg := testConfig(t)

	err := runReport(context.Background(), zap.NewNop(), cfg, "2026-08-25", "sarif", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestRunReport_StoreOpenFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "sqlite"

	err := runReport(context.Background(), zap.NewNop(), cfg, "2026-08-25", "text", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestFollowOutcomes_RequiresFileDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "postgres"

	err := followOutcomes(context.Background(), zap.NewNop(), cfg, "2026-08-25", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--follow requires the file store driver")
}

func TestFollowOutcomes_StreamsRecordedActions(t *testing.T) {
	cfg := testConfig(t)
	dateKey := seedDay(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- followOutcomes(ctx, zap.NewNop(), cfg, dateKey, out)
	}()

	// The seeded lines precede the tail, so they stream from the start of
	// the file.
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("jobs@hooli.example"))
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("followOutcomes did not stop on context cancel")
	}

	assert.Contains(t, out.String(), "sent")
	assert.Contains(t, out.String(), "careers@initech.example")
	assert.Contains(t, out.String(), "[golang developer]")
}

func TestPrintOutcomeLine(t *testing.T) {
	outcome := schemas.ActionOutcome{
		Record:    schemas.CandidateRecord{SourceKeyword: "golang developer"},
		Address:   "careers@initech.example",
		Success:   false,
		Subject:   "Application",
		Timestamp: time.Date(2026, time.August, 25, 9, 15, 0, 0, time.UTC),
	}
	line, err := jsonAPI.MarshalToString(outcome)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	printOutcomeLine(out, line)
	assert.Contains(t, out.String(), "09:15:00")
	assert.Contains(t, out.String(), "failed")
	assert.Contains(t, out.String(), "careers@initech.example")

	// Undecodable lines are echoed raw.
	out.Reset()
	printOutcomeLine(out, "not json")
	assert.Equal(t, "not json\n", out.String())
}

// OutcomesPath must agree with where the file store actually writes.
func TestFollowPathMatchesStoreLayout(t *testing.T) {
	cfg := testConfig(t)
	dateKey := seedDay(t, cfg)

	_, err := os.Stat(store.OutcomesPath(cfg.Store.DataDir, dateKey))
	assert.NoError(t, err)
}
