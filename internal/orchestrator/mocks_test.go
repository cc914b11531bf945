// internal/orchestrator/mocks_test.go
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

var errElementMissing = errors.New("element not found")

// mockDriver implements schemas.BrowserDriver against a tiny in-memory
// "site". Defaults model a cooperative login flow: the logged-in marker
// appears once the submit selector is clicked. Function overrides replace
// individual methods when a test needs a misbehaving page.
type mockDriver struct {
	mu sync.Mutex

	currentURL string
	pageTitle  string

	// loggedIn gates the logged-in marker probe. loginOnSubmit flips it when
	// the submit selector is clicked.
	loggedIn      bool
	loginOnSubmit bool

	// resultsByURL maps a page URL to the units the scrape script returns.
	resultsByURL map[string][]scrapedUnit

	navigations []string
	typedInto   []string
	clicks      []string
	scrolls     []int
	closeCalls  int

	MockNavigate   func(ctx context.Context, url string) error
	MockWaitFor    func(ctx context.Context, selector string, timeout time.Duration) error
	MockEvaluate   func(ctx context.Context, script string, out interface{}) error
	MockCurrentURL func(ctx context.Context) (string, error)
	MockClose      func(ctx context.Context) error
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		pageTitle:     "Developer Jobs Board",
		loginOnSubmit: true,
		resultsByURL:  make(map[string][]scrapedUnit),
	}
}

func (m *mockDriver) Navigate(ctx context.Context, url string) error {
	if m.MockNavigate != nil {
		return m.MockNavigate(ctx, url)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigations = append(m.navigations, url)
	m.currentURL = url
	return nil
}

func (m *mockDriver) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	if m.MockWaitFor != nil {
		return m.MockWaitFor(ctx, selector, timeout)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if selector == testLoggedInSelector && !m.loggedIn {
		return errElementMissing
	}
	return nil
}

func (m *mockDriver) Click(ctx context.Context, selector string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks = append(m.clicks, selector)
	if m.loginOnSubmit && selector == testSubmitSelector {
		m.loggedIn = true
	}
	return nil
}

func (m *mockDriver) TypeText(ctx context.Context, selector string, plan []schemas.KeyPress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typedInto = append(m.typedInto, selector)
	return nil
}

func (m *mockDriver) ScrollBy(ctx context.Context, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scrolls = append(m.scrolls, amount)
	return nil
}

func (m *mockDriver) Evaluate(ctx context.Context, script string, out interface{}) error {
	if m.MockEvaluate != nil {
		return m.MockEvaluate(ctx, script, out)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if units, ok := out.(*[]scrapedUnit); ok {
		*units = append([]scrapedUnit(nil), m.resultsByURL[m.currentURL]...)
	}
	return nil
}

func (m *mockDriver) CurrentURL(ctx context.Context) (string, error) {
	if m.MockCurrentURL != nil {
		return m.MockCurrentURL(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentURL, nil
}

func (m *mockDriver) PageTitle(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageTitle, nil
}

func (m *mockDriver) TextContent(ctx context.Context, selector string) (string, error) {
	return "", nil
}

func (m *mockDriver) Close(ctx context.Context) error {
	if m.MockClose != nil {
		return m.MockClose(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

func (m *mockDriver) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

func (m *mockDriver) navigatedTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.navigations...)
}

func (m *mockDriver) typedSelectors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.typedInto...)
}

// mockClassifier implements schemas.Classifier, answering "legitimate,
// score 8" unless overridden.
type mockClassifier struct {
	mu           sync.Mutex
	contents     []string
	MockClassify func(ctx context.Context, rawContent string) (schemas.Classification, error)
}

func (m *mockClassifier) Classify(ctx context.Context, rawContent string) (schemas.Classification, error) {
	m.mu.Lock()
	m.contents = append(m.contents, rawContent)
	m.mu.Unlock()
	if m.MockClassify != nil {
		return m.MockClassify(ctx, rawContent)
	}
	return schemas.Classification{IsLegitimate: true, RelevanceScore: 8}, nil
}

func (m *mockClassifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contents)
}

// mockGenerator implements schemas.ContentGenerator.
type mockGenerator struct {
	mu          sync.Mutex
	records     []schemas.CandidateRecord
	MockCompose func(ctx context.Context, record schemas.CandidateRecord) (schemas.OutboundContent, error)
}

func (m *mockGenerator) GenerateApplicationContent(ctx context.Context, record schemas.CandidateRecord) (schemas.OutboundContent, error) {
	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
	if m.MockCompose != nil {
		return m.MockCompose(ctx, record)
	}
	return schemas.OutboundContent{Subject: "Application", Body: "Hello, I would like to apply."}, nil
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// mockSender implements schemas.Sender.
type sentMessage struct {
	Address string
	Subject string
}

type mockSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	MockSend func(ctx context.Context, address, subject, body string) error
}

func (m *mockSender) Send(ctx context.Context, address, subject, body string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMessage{Address: address, Subject: subject})
	m.mu.Unlock()
	if m.MockSend != nil {
		return m.MockSend(ctx, address, subject, body)
	}
	return nil
}

func (m *mockSender) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

// mockFeeds implements schemas.UnitSource.
type mockFeeds struct {
	mu        sync.Mutex
	keywords  []string
	MockFetch func(ctx context.Context, keyword string) ([]schemas.RawUnit, error)
}

func (m *mockFeeds) FetchUnits(ctx context.Context, keyword string) ([]schemas.RawUnit, error) {
	m.mu.Lock()
	m.keywords = append(m.keywords, keyword)
	m.mu.Unlock()
	if m.MockFetch != nil {
		return m.MockFetch(ctx, keyword)
	}
	return nil, nil
}

// mockEnricher implements schemas.Enricher.
type mockEnricher struct {
	mu         sync.Mutex
	enriched   []string
	MockEnrich func(ctx context.Context, record *schemas.CandidateRecord) error
}

func (m *mockEnricher) Enrich(ctx context.Context, record *schemas.CandidateRecord) error {
	m.mu.Lock()
	m.enriched = append(m.enriched, record.SourceKeyword)
	m.mu.Unlock()
	if m.MockEnrich != nil {
		return m.MockEnrich(ctx, record)
	}
	return nil
}

func (m *mockEnricher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enriched)
}

// mockStore implements schemas.Store in memory. Function overrides replace
// the default behavior when set, so tests can inject failures per call.
type mockStore struct {
	mu             sync.Mutex
	quotaState     schemas.QuotaState
	outcomes       []schemas.ActionOutcome
	reports        []schemas.SessionReport
	MockSaveReport func(ctx context.Context, report schemas.SessionReport) error
}

func newMockStore() *mockStore {
	return &mockStore{}
}

func (m *mockStore) LoadQuotaState(ctx context.Context) (schemas.QuotaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quotaState, nil
}

func (m *mockStore) SaveQuotaState(ctx context.Context, state schemas.QuotaState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotaState = state
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
	if m.MockSaveReport != nil {
		return m.MockSaveReport(ctx, report)
	}
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

func (m *mockStore) savedReports() []schemas.SessionReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.SessionReport(nil), m.reports...)
}

func (m *mockStore) savedOutcomes() []schemas.ActionOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.ActionOutcome(nil), m.outcomes...)
}

func (m *mockStore) lastQuotaState() schemas.QuotaState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quotaState
}
