// -- internal/reporting/text_reporter.go --
package reporting

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/internal/observability"
)

// TextReporter renders day summaries as plain aligned text for the console.
// It is thread safe, and its output is deterministic: keyword breakdowns are
// sorted before rendering.
type TextReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	mu     sync.Mutex
}

// NewTextReporter creates a reporter that writes human-readable text.
// It takes ownership of the writer.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{
		writer: writer,
		logger: observability.GetLogger().Named("text_reporter"),
	}
}

// Write renders the summary onto the output as one block.
func (r *TextReporter) Write(summary *DaySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "  %-20s %s\n", label, value)
	}
	countRow := func(label string, n int) {
		row(label, strconv.Itoa(n))
	}

	fmt.Fprintf(&b, "Session activity for %s\n\n", summary.DateKey)
	row("Sessions", fmt.Sprintf("%d (%d completed, %d interrupted, %d failed)",
		summary.Sessions, summary.Completed, summary.Interrupted, summary.Failed))
	countRow("Candidates found", summary.Found)
	countRow("Processed", summary.Processed)
	countRow("With contacts", summary.WithContacts)
	countRow("Actions sent", summary.ActionsSent)
	countRow("Errors", summary.Errors)
	countRow("Degraded decisions", summary.DegradedDecisions)
	row("Success rate", fmt.Sprintf("%.1f%%", summary.SuccessRate*100))

	b.WriteString("\nOutbound log\n")
	row("Recorded", fmt.Sprintf("%d (%d delivered, %d failed)",
		summary.OutcomesRecorded, summary.SuccessfulSends, summary.FailedSends))
	countRow("Fallback content", summary.FallbackContent)
	countRow("Distinct addresses", summary.DistinctAddresses)
	if !summary.FirstActionAt.IsZero() {
		row("First action", summary.FirstActionAt.Format(time.RFC3339))
	}
	if !summary.LastActionAt.IsZero() {
		row("Last action", summary.LastActionAt.Format(time.RFC3339))
	}

	if len(summary.ActionsByKeyword) > 0 {
		b.WriteString("\nActions by keyword\n")
		keywords := make([]string, 0, len(summary.ActionsByKeyword))
		for keyword := range summary.ActionsByKeyword {
			keywords = append(keywords, keyword)
		}
		sort.Strings(keywords)
		for _, keyword := range keywords {
			countRow(keyword, summary.ActionsByKeyword[keyword])
		}
	}
	b.WriteString("\n")

	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		r.logger.Error("Failed to write day summary", zap.Error(err))
		return fmt.Errorf("failed to write day summary: %w", err)
	}

	r.logger.Debug("Wrote day summary", zap.String("date_key", summary.DateKey))
	return nil
}

// Close releases the underlying writer.
func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}
