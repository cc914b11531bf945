// internal/quota/mocks_test.go
package quota

import (
	"context"
	"sync"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// mockStore implements schemas.Store in memory. Function overrides replace
// the default behavior when set, so tests can inject failures per call.
type mockStore struct {
	mu            sync.Mutex
	quotaState    schemas.QuotaState
	savedStates   []schemas.QuotaState
	outcomes      []schemas.ActionOutcome
	reports       []schemas.SessionReport
	MockLoadQuota func(ctx context.Context) (schemas.QuotaState, error)
	MockSaveQuota func(ctx context.Context, state schemas.QuotaState) error
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (m *mockStore) LoadQuotaState(ctx context.Context) (schemas.QuotaState, error) {
	if m.MockLoadQuota != nil {
		return m.MockLoadQuota(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quotaState, nil
}

func (m *mockStore) SaveQuotaState(ctx context.Context, state schemas.QuotaState) error {
	if m.MockSaveQuota != nil {
		return m.MockSaveQuota(ctx, state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotaState = state
	m.savedStates = append(m.savedStates, state)
	return nil
}

func (m *mockStore) AppendActionOutcome(ctx context.Context, outcome schemas.ActionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
	return nil
}

func (m *mockStore) ActionOutcomesForDay(ctx context.Context, dateKey string) ([]schemas.ActionOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.ActionOutcome(nil), m.outcomes...), nil
}

func (m *mockStore) SaveSessionReport(ctx context.Context, report schemas.SessionReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return nil
}

func (m *mockStore) SessionReportsForDay(ctx context.Context, dateKey string) ([]schemas.SessionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.SessionReport(nil), m.reports...), nil
}

func (m *mockStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.savedStates)
}
