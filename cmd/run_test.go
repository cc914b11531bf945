// -- cmd/run_test.go --
package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"github.com/xkilldash9x/prospect-cli/internal/service"
)

// stubRunner satisfies schemas.SessionRunner with canned results.
type stubRunner struct {
	report schemas.SessionReport
	err    error

	mu        sync.Mutex
	stopCalls int
}

func (s *stubRunner) Run(context.Context) (schemas.SessionReport, error) {
	return s.report, s.err
}

func (s *stubRunner) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCalls++
}

func (s *stubRunner) State() schemas.SessionState {
	return schemas.SessionState{}
}

// blockingRunner completes only once a stop has been requested, mirroring a
// session draining at the next safe boundary.
type blockingRunner struct {
	stopped chan struct{}
	once    sync.Once
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{stopped: make(chan struct{})}
}

func (r *blockingRunner) Run(context.Context) (schemas.SessionReport, error) {
	select {
	case <-r.stopped:
		return schemas.SessionReport{SessionID: "s-3", Outcome: schemas.OutcomeInterrupted}, context.Canceled
	case <-time.After(5 * time.Second):
		return schemas.SessionReport{}, errors.New("stop was never requested")
	}
}

func (r *blockingRunner) RequestStop() {
	r.once.Do(func() { close(r.stopped) })
}

func (r *blockingRunner) State() schemas.SessionState {
	return schemas.SessionState{}
}

// stubFactory satisfies service.ComponentFactory without real dependencies.
type stubFactory struct {
	components *service.Components
	err        error
}

func (f *stubFactory) Create(context.Context, *config.Config, *zap.Logger) (*service.Components, error) {
	return f.components, f.err
}

func TestRunSession_Completed(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &stubRunner{report: schemas.SessionReport{
		SessionID: "s-1",
		Outcome:   schemas.OutcomeCompleted,
		Found:     5, Processed: 3, WithContacts: 2, ActionsSent: 1,
	}}
	factory := &stubFactory{components: &service.Components{Orchestrator: runner}}
	out := &bytes.Buffer{}

	err := runSession(context.Background(), zap.NewNop(), testConfig(t), factory, out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Session s-1 finished: COMPLETED")
	assert.Contains(t, out.String(), "actions sent 1")
	assert.Contains(t, out.String(), "prospect report")
	assert.NotContains(t, out.String(), "Failure reason")
}

func TestRunSession_FactoryError(t *testing.T) {
	factory := &stubFactory{err: errors.New("no browser")}

	err := runSession(context.Background(), zap.NewNop(), testConfig(t), factory, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize session components")
}

func TestRunSession_FailedSession(t *testing.T) {
	runner := &stubRunner{
		report: schemas.SessionReport{
			SessionID:     "s-2",
			Outcome:       schemas.OutcomeFailed,
			FailureReason: "authentication failed: login state never confirmed",
		},
		err: errors.New("authentication failed: login state never confirmed"),
	}
	factory := &stubFactory{components: &service.Components{Orchestrator: runner}}
	out := &bytes.Buffer{}

	err := runSession(context.Background(), zap.NewNop(), testConfig(t), factory, out)
	require.Error(t, err)

	assert.Contains(t, out.String(), "finished: FAILED")
	assert.Contains(t, out.String(), "Failure reason: authentication failed")
}

// A cancelled context must be relayed as a cooperative stop request so the
// session drains instead of being torn mid-candidate.
func TestRunSession_SignalRequestsStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := newBlockingRunner()
	factory := &stubFactory{components: &service.Components{Orchestrator: runner}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runSession(ctx, zap.NewNop(), testConfig(t), factory, io.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrintSessionSummary(t *testing.T) {
	out := &bytes.Buffer{}
	printSessionSummary(out, schemas.SessionReport{
		SessionID: "s-9",
		Outcome:   schemas.OutcomeInterrupted,
		Found:     4, Processed: 2, ActionsSent: 1, Errors: 1,
	})

	assert.Contains(t, out.String(), "Session s-9 finished: INTERRUPTED")
	assert.Contains(t, out.String(), "Found 4, processed 2")
	assert.Contains(t, out.String(), "errors 1")
}
