// -- internal/reporting/json_reporter.go --
package reporting

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/internal/observability"
)

// jsonAPI matches the codec the store uses for its records, so rendered
// summaries stay byte-compatible with the stored log format.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONReporter renders each day summary as one indented JSON document.
// It is thread safe.
type JSONReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	mu     sync.Mutex
}

// NewJSONReporter creates a reporter that writes indented JSON.
// It takes ownership of the writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
	}
}

// Write encodes the summary onto the output.
func (r *JSONReporter) Write(summary *DaySummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := jsonAPI.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		r.logger.Error("Failed to encode day summary", zap.Error(err))
		return fmt.Errorf("failed to encode day summary: %w", err)
	}

	r.logger.Debug("Wrote day summary", zap.String("date_key", summary.DateKey))
	return nil
}

// Close releases the underlying writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}
