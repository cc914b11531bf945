// -- internal/reporting/aggregate.go --
package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// DaySummary is the aggregate view of one local day: every session report
// filed under the day's date key folded together with that day's append-only
// action outcome log. Aggregation is pure, so rebuilding the summary from an
// unchanged log yields an identical value.
type DaySummary struct {
	DateKey string `json:"date_key"`

	// Session report rollup.
	Sessions    int `json:"sessions"`
	Completed   int `json:"completed"`
	Interrupted int `json:"interrupted"`
	Failed      int `json:"failed"`

	Found             int `json:"found"`
	Processed         int `json:"processed"`
	WithContacts      int `json:"with_contacts"`
	ActionsSent       int `json:"actions_sent"`
	Errors            int `json:"errors"`
	DegradedDecisions int `json:"degraded_decisions"`

	// SuccessRate is recomputed from the summed counters rather than averaged
	// across reports, so short sessions do not skew it.
	SuccessRate float64 `json:"success_rate"`

	// Action outcome log rollup.
	OutcomesRecorded  int `json:"outcomes_recorded"`
	SuccessfulSends   int `json:"successful_sends"`
	FailedSends       int `json:"failed_sends"`
	FallbackContent   int `json:"fallback_content"`
	DistinctAddresses int `json:"distinct_addresses"`

	// ActionsByKeyword counts delivered actions per originating search
	// keyword. Nil when the day saw no deliveries.
	ActionsByKeyword map[string]int `json:"actions_by_keyword,omitempty"`

	// FirstActionAt and LastActionAt bound the day's outcome log. Both are
	// zero when no actions were attempted.
	FirstActionAt time.Time `json:"first_action_at"`
	LastActionAt  time.Time `json:"last_action_at"`
}

// Aggregate folds one day's session reports and action outcomes into a
// DaySummary. Addresses are compared case-insensitively when counting
// distinct recipients.
func Aggregate(dateKey string, reports []schemas.SessionReport, outcomes []schemas.ActionOutcome) DaySummary {
	summary := DaySummary{DateKey: dateKey}

	for _, report := range reports {
		summary.Sessions++
		switch report.Outcome {
		case schemas.OutcomeCompleted:
			summary.Completed++
		case schemas.OutcomeInterrupted:
			summary.Interrupted++
		case schemas.OutcomeFailed:
			summary.Failed++
		}
		summary.Found += report.Found
		summary.Processed += report.Processed
		summary.WithContacts += report.WithContacts
		summary.ActionsSent += report.ActionsSent
		summary.Errors += report.Errors
		summary.DegradedDecisions += report.DegradedDecisions
	}
	if summary.Processed > 0 {
		summary.SuccessRate = float64(summary.ActionsSent) / float64(summary.Processed)
	}

	addresses := make(map[string]struct{})
	for _, outcome := range outcomes {
		summary.OutcomesRecorded++
		if outcome.IsFallbackContent {
			summary.FallbackContent++
		}
		if outcome.Success {
			summary.SuccessfulSends++
			addresses[strings.ToLower(outcome.Address)] = struct{}{}

			keyword := outcome.Record.SourceKeyword
			if keyword == "" {
				keyword = "(unknown)"
			}
			if summary.ActionsByKeyword == nil {
				summary.ActionsByKeyword = make(map[string]int)
			}
			summary.ActionsByKeyword[keyword]++
		} else {
			summary.FailedSends++
		}

		if summary.FirstActionAt.IsZero() || outcome.Timestamp.Before(summary.FirstActionAt) {
			summary.FirstActionAt = outcome.Timestamp
		}
		if outcome.Timestamp.After(summary.LastActionAt) {
			summary.LastActionAt = outcome.Timestamp
		}
	}
	summary.DistinctAddresses = len(addresses)

	return summary
}

// BuildDaySummary loads the stored reports and outcomes for dateKey and
// aggregates them.
func BuildDaySummary(ctx context.Context, st schemas.Store, dateKey string) (DaySummary, error) {
	reports, err := st.SessionReportsForDay(ctx, dateKey)
	if err != nil {
		return DaySummary{}, fmt.Errorf("loading session reports for %s: %w", dateKey, err)
	}
	outcomes, err := st.ActionOutcomesForDay(ctx, dateKey)
	if err != nil {
		return DaySummary{}, fmt.Errorf("loading action outcomes for %s: %w", dateKey, err)
	}
	return Aggregate(dateKey, reports, outcomes), nil
}
