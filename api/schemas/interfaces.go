package schemas

import (
	"context"
	"time"
)

// -- Browser Driver Interface --

// BrowserDriver is the narrow automation surface the orchestrator drives.
// The core depends only on these primitives, never on the shape of a
// specific automation library. All methods respect context cancellation;
// none are safe for concurrent use against the same session.
type BrowserDriver interface {
	// Navigate loads a URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error
	// WaitForElement blocks until the selector is present or the timeout
	// elapses.
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) error
	// Click performs a click on the first element matching the selector.
	Click(ctx context.Context, selector string) error
	// TypeText executes a typing plan against a focused element, including
	// any typo/correction sequences the plan carries.
	TypeText(ctx context.Context, selector string, plan []KeyPress) error
	// ScrollBy scrolls the viewport vertically by the given CSS pixel amount.
	ScrollBy(ctx context.Context, amount int) error
	// Evaluate runs a script in the page and unmarshals its result into out.
	// Pass a nil out to discard the result.
	Evaluate(ctx context.Context, script string, out interface{}) error
	// CurrentURL returns the location of the active document.
	CurrentURL(ctx context.Context) (string, error)
	// PageTitle returns the title of the active document.
	PageTitle(ctx context.Context) (string, error)
	// TextContent returns the visible text of the first element matching the
	// selector.
	TextContent(ctx context.Context, selector string) (string, error)
	// Close releases the browser session. Safe to call more than once.
	Close(ctx context.Context) error
}

// -- AI Capability Interfaces --

// Classifier produces a structured judgment of one scraped content block.
// Implementations may fail; callers are expected to degrade to the local
// fallback rather than treat a failure as fatal.
type Classifier interface {
	Classify(ctx context.Context, rawContent string) (Classification, error)
}

// ContentGenerator produces an outbound application message for a candidate.
// Implementations may fail; callers fall back to template substitution.
type ContentGenerator interface {
	GenerateApplicationContent(ctx context.Context, record CandidateRecord) (OutboundContent, error)
}

// -- Outbound Send Interface --

// Sender delivers one outbound message. The orchestrator calls it at most
// once per gate decision and records the outcome either way; a failed send
// followed by a later retry on another candidate is always safe.
type Sender interface {
	Send(ctx context.Context, address, subject, body string) error
}

// -- Persistence Interface --

// Store is the durable record store for quota state, the per-day action
// outcome log, and final session reports. Implementations: PostgreSQL and
// per-day JSONL files.
type Store interface {
	// LoadQuotaState returns the persisted quota state, or a zero state when
	// none has been written yet. Date rollover is the quota gate's concern,
	// not the store's.
	LoadQuotaState(ctx context.Context) (QuotaState, error)
	// SaveQuotaState overwrites the persisted quota state.
	SaveQuotaState(ctx context.Context, state QuotaState) error
	// AppendActionOutcome appends one outcome to the log for the day derived
	// from the outcome's timestamp.
	AppendActionOutcome(ctx context.Context, outcome ActionOutcome) error
	// ActionOutcomesForDay returns the append-ordered outcomes for one
	// YYYY-MM-DD date key.
	ActionOutcomesForDay(ctx context.Context, dateKey string) ([]ActionOutcome, error)
	// SaveSessionReport persists a final session report.
	SaveSessionReport(ctx context.Context, report SessionReport) error
	// SessionReportsForDay returns the reports written on one date key.
	SessionReportsForDay(ctx context.Context, dateKey string) ([]SessionReport, error)
}

// -- Supplemental Source Interfaces --

// UnitSource supplies raw units for a keyword from somewhere other than the
// browser surface (job feeds). Implementations may fetch concurrently
// internally; the orchestrator consumes results sequentially.
type UnitSource interface {
	FetchUnits(ctx context.Context, keyword string) ([]RawUnit, error)
}

// Enricher augments a classified candidate in place (public profile data,
// repository languages). Failures are logged and ignored; enrichment is
// never load-bearing.
type Enricher interface {
	Enrich(ctx context.Context, record *CandidateRecord) error
}

// SessionRunner drives one full unattended session from authentication
// through the final report. RequestStop may be called from any goroutine to
// wind the run down at the next safe boundary.
type SessionRunner interface {
	Run(ctx context.Context) (SessionReport, error)
	RequestStop()
	State() SessionState
}

// -- LLM Client Schemas & Interface --

// ModelTier selects a model by preference for speed versus capability.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, cheaper model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable model.
)

// GenerationOptions controls the text generation process.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts the underlying text-generation provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
