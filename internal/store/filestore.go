package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

const (
	quotaStateFile = "quota_state.json"
	outcomesDir    = "outcomes"
	reportsDir     = "reports"

	// maxLineBytes bounds one JSONL record; raw content blocks can be large.
	maxLineBytes = 4 * 1024 * 1024
)

// OutcomesPath returns the file driver's JSONL log path for one day's action
// outcomes. Exposed so readers that follow the live log (the report command)
// agree with the writer on layout.
func OutcomesPath(dataDir, dateKey string) string {
	return filepath.Join(dataDir, outcomesDir, dateKey+".jsonl")
}

// FileStore keeps the durable records as files under a data directory:
// quota_state.json plus per-day JSONL logs for outcomes and reports. It is
// the default driver and needs no external service.
type FileStore struct {
	mu  sync.Mutex
	dir string
	loc *time.Location
	log *zap.Logger
}

// NewFileStore creates the data directory layout if needed.
func NewFileStore(dir string, loc *time.Location, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store requires a data directory")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, d := range []string{dir, filepath.Join(dir, outcomesDir), filepath.Join(dir, reportsDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", d, err)
		}
	}
	fs := &FileStore{
		dir: dir,
		loc: loc,
		log: logger.Named("store.file"),
	}
	fs.log.Debug("File store ready", zap.String("dir", dir))
	return fs, nil
}

// LoadQuotaState reads quota_state.json; a missing file is a zero state.
func (s *FileStore) LoadQuotaState(_ context.Context) (schemas.QuotaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, quotaStateFile))
	if os.IsNotExist(err) {
		return schemas.QuotaState{}, nil
	}
	if err != nil {
		return schemas.QuotaState{}, fmt.Errorf("failed to read quota state: %w", err)
	}

	var state schemas.QuotaState
	if err := jsonAPI.Unmarshal(data, &state); err != nil {
		return schemas.QuotaState{}, fmt.Errorf("failed to decode quota state: %w", err)
	}
	return state, nil
}

// SaveQuotaState writes the state to a temp file and renames it into place so
// a crash mid-write never leaves a torn file.
func (s *FileStore) SaveQuotaState(_ context.Context, state schemas.QuotaState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := jsonAPI.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode quota state: %w", err)
	}

	target := filepath.Join(s.dir, quotaStateFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write quota state: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace quota state: %w", err)
	}
	return nil
}

// AppendActionOutcome appends one JSONL line to the day file of the
// outcome's timestamp.
func (s *FileStore) AppendActionOutcome(_ context.Context, outcome schemas.ActionOutcome) error {
	key := schemas.DateKey(outcome.Timestamp, s.loc)
	return s.appendLine(OutcomesPath(s.dir, key), outcome)
}

// ActionOutcomesForDay reads the day file back in append order. A missing
// file means no outcomes that day.
func (s *FileStore) ActionOutcomesForDay(_ context.Context, dateKey string) ([]schemas.ActionOutcome, error) {
	path := OutcomesPath(s.dir, dateKey)

	var outcomes []schemas.ActionOutcome
	err := s.readLines(path, func(line []byte) error {
		var o schemas.ActionOutcome
		if err := jsonAPI.Unmarshal(line, &o); err != nil {
			return fmt.Errorf("failed to decode outcome line: %w", err)
		}
		outcomes = append(outcomes, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// SaveSessionReport appends the report to the day file of its end timestamp.
func (s *FileStore) SaveSessionReport(_ context.Context, report schemas.SessionReport) error {
	endedAt := report.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	key := schemas.DateKey(endedAt, s.loc)
	path := filepath.Join(s.dir, reportsDir, key+".jsonl")
	return s.appendLine(path, report)
}

// SessionReportsForDay reads the report day file back in append order.
func (s *FileStore) SessionReportsForDay(_ context.Context, dateKey string) ([]schemas.SessionReport, error) {
	path := filepath.Join(s.dir, reportsDir, dateKey+".jsonl")

	var reports []schemas.SessionReport
	err := s.readLines(path, func(line []byte) error {
		var r schemas.SessionReport
		if err := jsonAPI.Unmarshal(line, &r); err != nil {
			return fmt.Errorf("failed to decode report line: %w", err)
		}
		reports = append(reports, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func (s *FileStore) appendLine(path string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := jsonAPI.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *FileStore) readLines(path string, fn func(line []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return nil
}
