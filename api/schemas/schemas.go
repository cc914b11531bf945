package schemas

import "time"

// Phase identifies the orchestrator's position in the session lifecycle.
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhaseAuthenticating Phase = "AUTHENTICATING"
	PhaseRecovering     Phase = "RECOVERING"
	PhaseSearching      Phase = "SEARCHING"
	PhaseProcessing     Phase = "PROCESSING"
	PhaseReporting      Phase = "REPORTING"
	PhaseInterrupted    Phase = "INTERRUPTED"
	PhaseTerminated     Phase = "TERMINATED"
)

// Terminal reports whether the phase is an end state for the session.
func (p Phase) Terminal() bool {
	return p == PhaseTerminated
}

// SessionOutcome summarizes how a session ended.
type SessionOutcome string

const (
	OutcomeCompleted   SessionOutcome = "COMPLETED"
	OutcomeInterrupted SessionOutcome = "INTERRUPTED"
	OutcomeFailed      SessionOutcome = "FAILED"
)

// SessionState is the single mutable record describing one run. It is owned
// exclusively by the orchestrator and mutated only by state transitions.
type SessionState struct {
	SessionID  string    `json:"session_id"`
	Phase      Phase     `json:"phase"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	ShouldStop bool      `json:"should_stop"`
}

// RawUnit is one scraped content block before extraction: the free text (or
// HTML) of a single search result, plus whatever attribution the page offered.
type RawUnit struct {
	Content     string    `json:"content"`
	AuthorLabel string    `json:"author_label,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// CandidateRecord is a structured posting derived from one raw unit. After
// creation only the Classification pointer is added; everything else is fixed
// at extraction time. ExtractedAddresses holds only syntactically valid,
// deduplicated, non-automated-sender addresses.
type CandidateRecord struct {
	SourceKeyword        string    `json:"source_keyword"`
	RawContent           string    `json:"raw_content"`
	ExtractedAddresses   []string  `json:"extracted_addresses"`
	AuthorLabel          string    `json:"author_label,omitempty"`
	InferredOrganization string    `json:"inferred_organization,omitempty"`
	ExtractedAt          time.Time `json:"extracted_at"`

	// Classification is nil until the relevance filter has run.
	Classification *Classification `json:"classification,omitempty"`
}

// HasAddresses reports whether the record carries at least one usable
// contact address.
func (c *CandidateRecord) HasAddresses() bool {
	return len(c.ExtractedAddresses) > 0
}

// Classification is the enrichment produced by the AI collaborator (or its
// local fallback) for one candidate record.
type Classification struct {
	IsLegitimate   bool     `json:"is_legitimate"`
	RelevanceScore int      `json:"relevance_score"`
	Organization   string   `json:"organization,omitempty"`
	Position       string   `json:"position,omitempty"`
	Requirements   []string `json:"requirements,omitempty"`
	Technologies   []string `json:"technologies,omitempty"`

	// IsFallback marks a classification produced by the degraded local path
	// after an AI collaborator failure. Fallback decisions are counted in the
	// session report.
	IsFallback bool `json:"is_fallback,omitempty"`
}

// QuotaState is the persisted daily action counter. The quota gate is its
// single writer; CountToday resets when DateKey no longer matches the
// current date.
type QuotaState struct {
	DateKey      string     `json:"date_key"`
	CountToday   int        `json:"count_today"`
	LastActionAt *time.Time `json:"last_action_at,omitempty"`
}

// ActionOutcome is the append-only log record written once per attempted
// outbound action, successful or not.
type ActionOutcome struct {
	Record            CandidateRecord `json:"record"`
	Address           string          `json:"address"`
	Success           bool            `json:"success"`
	Subject           string          `json:"subject"`
	IsFallbackContent bool            `json:"is_fallback_content"`
	Timestamp         time.Time       `json:"timestamp"`
}

// OutboundContent is a generated application message. IsFallback marks
// content produced by the static template after an AI collaborator failure.
type OutboundContent struct {
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	IsFallback bool   `json:"is_fallback"`
}

// SessionReport is the aggregate summary produced exactly once at session
// end. It is never mutated after being written.
type SessionReport struct {
	SessionID     string         `json:"session_id"`
	Outcome       SessionOutcome `json:"outcome"`
	FailureReason string         `json:"failure_reason,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	EndedAt       time.Time      `json:"ended_at"`

	Found             int `json:"found"`
	Processed         int `json:"processed"`
	WithContacts      int `json:"with_contacts"`
	ActionsSent       int `json:"actions_sent"`
	Errors            int `json:"errors"`
	DegradedDecisions int `json:"degraded_decisions"`

	// SuccessRate is ActionsSent over Processed, zero when nothing was
	// processed.
	SuccessRate float64 `json:"success_rate"`
}
