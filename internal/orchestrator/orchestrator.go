// File: internal/orchestrator/orchestrator.go
// Description: Drives the lifecycle of one unattended outreach session. The
// orchestrator is injected with fully configured collaborators via interfaces,
// making it decoupled and testable.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/behavior"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"github.com/xkilldash9x/prospect-cli/internal/quota"
)

const (
	// reportPersistTimeout bounds the detached context used to save the final
	// report. The run context is often already cancelled by the time the
	// report is written, and a stopped session must still leave one behind.
	reportPersistTimeout = 30 * time.Second

	// terminateTimeout bounds resource release once the session is over.
	terminateTimeout = 15 * time.Second
)

// Deps bundles the collaborators a session needs. Driver through Store are
// required; Feeds and Enricher are optional and skipped when nil.
type Deps struct {
	Driver     schemas.BrowserDriver
	Simulator  *behavior.Simulator
	Gate       *quota.Gate
	Classifier schemas.Classifier
	Generator  schemas.ContentGenerator
	Sender     schemas.Sender
	Store      schemas.Store
	Feeds      schemas.UnitSource
	Enricher   schemas.Enricher
}

// tally accumulates the counters that feed the final session report.
type tally struct {
	found        int
	processed    int
	withContacts int
	actionsSent  int
	errors       int
	degraded     int
}

// Orchestrator runs one session as a single cooperative sequence: no two
// operations ever run in parallel against the browser surface. It owns the
// SessionState and the candidate list exclusively.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger
	deps   Deps

	state      schemas.SessionState
	candidates []schemas.CandidateRecord
	counts     tally

	stopFlag    atomic.Bool
	releaseOnce sync.Once

	// loginWait bounds the post-submit watch for a success or challenge
	// signal. A field so tests can shorten it.
	loginWait time.Duration

	// now is a seam for tests; production uses time.Now.
	now func() time.Time
}

// New creates an Orchestrator with its collaborators provided as interfaces.
func New(cfg *config.Config, logger *zap.Logger, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("orchestrator requires a non-nil config")
	}
	if logger == nil {
		return nil, errors.New("orchestrator requires a non-nil logger")
	}
	if deps.Driver == nil {
		return nil, errors.New("orchestrator requires a browser driver")
	}
	if deps.Simulator == nil {
		return nil, errors.New("orchestrator requires a behavior simulator")
	}
	if deps.Gate == nil {
		return nil, errors.New("orchestrator requires a quota gate")
	}
	if deps.Classifier == nil {
		return nil, errors.New("orchestrator requires a classifier")
	}
	if deps.Generator == nil {
		return nil, errors.New("orchestrator requires a content generator")
	}
	if deps.Sender == nil {
		return nil, errors.New("orchestrator requires a sender")
	}
	if deps.Store == nil {
		return nil, errors.New("orchestrator requires a store")
	}
	return &Orchestrator{
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		deps:      deps,
		loginWait: loginOutcomeWait,
		now:       time.Now,
	}, nil
}

// RequestStop asks a running session to wind down at the next keyword or
// candidate boundary. Safe to call from any goroutine, any number of times.
func (o *Orchestrator) RequestStop() {
	o.stopFlag.Store(true)
}

// State returns a copy of the current session state.
func (o *Orchestrator) State() schemas.SessionState {
	return o.state
}

// Run executes one full session: authenticate, search, process, report. It
// always produces a session report and always releases the browser surface,
// whichever path the run takes. The returned error is the terminal failure;
// completed and interrupted sessions return nil. Run is single-shot.
func (o *Orchestrator) Run(ctx context.Context) (schemas.SessionReport, error) {
	o.state = schemas.SessionState{
		SessionID: uuid.New().String(),
		Phase:     schemas.PhaseIdle,
		StartedAt: o.now(),
	}
	o.logger = o.logger.With(zap.String("session_id", o.state.SessionID[:8]))
	o.logger.Info("Session starting",
		zap.Strings("keywords", o.cfg.Session.Keywords),
		zap.Int("daily_action_limit", o.cfg.Session.DailyActionLimit),
	)

	runErr := o.runPhases(ctx)

	o.transition(schemas.PhaseReporting)
	o.state.EndedAt = o.now()
	report := o.buildReport(runErr)
	if err := o.persistReport(report); err != nil {
		o.logger.Error("Failed to persist session report", zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("persisting session report: %w", err)
			report.Outcome = schemas.OutcomeFailed
			report.FailureReason = runErr.Error()
		}
	}

	o.terminate()

	o.logger.Info("Session finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("found", report.Found),
		zap.Int("processed", report.Processed),
		zap.Int("actions_sent", report.ActionsSent),
		zap.Int("errors", report.Errors),
		zap.Int("degraded_decisions", report.DegradedDecisions),
	)
	return report, runErr
}

// runPhases walks the forward transitions. Interruption is not an error:
// checkStop marks the state and the remaining phases drain without work.
func (o *Orchestrator) runPhases(ctx context.Context) error {
	o.transition(schemas.PhaseAuthenticating)
	if err := o.authenticate(ctx); err != nil {
		return err
	}

	o.transition(schemas.PhaseSearching)
	if err := o.search(ctx); err != nil {
		return err
	}

	o.transition(schemas.PhaseProcessing)
	return o.process(ctx)
}

// transition moves the session to the next phase, logging the edge. Repeated
// transitions to the current phase are no-ops.
func (o *Orchestrator) transition(next schemas.Phase) {
	if o.state.Phase == next {
		return
	}
	o.logger.Info("Phase transition",
		zap.String("from", string(o.state.Phase)),
		zap.String("to", string(next)),
	)
	o.state.Phase = next
}

// checkStop polls the cooperative stop flag and the run context at loop
// boundaries. The first positive observation moves the session into the
// interrupted state; callers break their loops and let the forward
// transitions drain to reporting.
func (o *Orchestrator) checkStop(ctx context.Context) bool {
	if !o.stopFlag.Load() && ctx.Err() == nil {
		return false
	}
	o.markInterrupted()
	return true
}

func (o *Orchestrator) markInterrupted() {
	if o.state.ShouldStop {
		return
	}
	o.state.ShouldStop = true
	o.logger.Warn("Stop requested, winding down session")
	o.transition(schemas.PhaseInterrupted)
}

// buildReport aggregates the session counters into the final report. The
// outcome classification puts domain failures ahead of context errors so an
// authentication failure that wraps a deadline still reads as FAILED.
func (o *Orchestrator) buildReport(runErr error) schemas.SessionReport {
	report := schemas.SessionReport{
		SessionID:         o.state.SessionID,
		StartedAt:         o.state.StartedAt,
		EndedAt:           o.state.EndedAt,
		Found:             o.counts.found,
		Processed:         o.counts.processed,
		WithContacts:      o.counts.withContacts,
		ActionsSent:       o.counts.actionsSent,
		Errors:            o.counts.errors,
		DegradedDecisions: o.counts.degraded,
	}
	if report.Processed > 0 {
		report.SuccessRate = float64(report.ActionsSent) / float64(report.Processed)
	}

	switch {
	case runErr == nil:
		if o.state.ShouldStop {
			report.Outcome = schemas.OutcomeInterrupted
		} else {
			report.Outcome = schemas.OutcomeCompleted
		}
	case errors.Is(runErr, ErrAuthenticationFailed) || errors.Is(runErr, ErrChallengeUnresolved):
		report.Outcome = schemas.OutcomeFailed
		report.FailureReason = runErr.Error()
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		report.Outcome = schemas.OutcomeInterrupted
	default:
		report.Outcome = schemas.OutcomeFailed
		report.FailureReason = runErr.Error()
	}
	return report
}

// persistReport writes the final report on its own bounded context so a
// cancelled run still records how it ended.
func (o *Orchestrator) persistReport(report schemas.SessionReport) error {
	persistCtx, cancel := context.WithTimeout(context.Background(), reportPersistTimeout)
	defer cancel()
	return o.deps.Store.SaveSessionReport(persistCtx, report)
}

// terminate releases the browsing surface exactly once, whichever path got
// here first. Later calls are no-ops.
func (o *Orchestrator) terminate() {
	o.releaseOnce.Do(func() {
		o.transition(schemas.PhaseTerminated)
		closeCtx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
		defer cancel()
		if err := o.deps.Driver.Close(closeCtx); err != nil {
			o.logger.Warn("Browser close failed during termination", zap.Error(err))
		}
	})
}
