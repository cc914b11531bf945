package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/extraction"
	"github.com/xkilldash9x/prospect-cli/internal/llmclient"
)

// actionPersistTimeout bounds the detached writes after a send. A cancel
// arriving mid-action must not lose the outcome record or the quota
// increment.
const actionPersistTimeout = 15 * time.Second

// process walks the session candidate list in extraction order. Only
// candidates with contact addresses are examined; the stop flag is polled
// before each one. Per-candidate errors are counted, never fatal.
func (o *Orchestrator) process(ctx context.Context) error {
	for i := range o.candidates {
		cand := &o.candidates[i]
		if !cand.HasAddresses() {
			continue
		}
		if o.checkStop(ctx) {
			return nil
		}
		if err := o.processCandidate(ctx, cand); err != nil {
			return err
		}
		o.idleBetweenCandidates(ctx)
	}
	return nil
}

// processCandidate runs one candidate through read, classify, gate, compose,
// send, record. The returned error is reserved for run-ending conditions;
// everything candidate-local is logged and counted instead.
func (o *Orchestrator) processCandidate(ctx context.Context, cand *schemas.CandidateRecord) error {
	log := o.logger.With(
		zap.String("keyword", cand.SourceKeyword),
		zap.String("organization", cand.InferredOrganization),
	)
	o.counts.processed++

	if err := o.readCandidate(ctx, cand); err != nil {
		return err
	}

	cls, err := o.deps.Classifier.Classify(ctx, cand.RawContent)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Classifier returned an error, using the local fallback", zap.Error(err))
		cls = llmclient.FallbackClassification()
	}
	cand.Classification = &cls
	if cls.IsFallback {
		o.counts.degraded++
	}

	if !extraction.IsActionable(*cand, o.cfg.Session.RelevanceThreshold) {
		log.Debug("Candidate not actionable",
			zap.Bool("legitimate", cls.IsLegitimate),
			zap.Int("score", cls.RelevanceScore),
		)
		return nil
	}

	now := o.now()
	if ok, reason := o.deps.Gate.CanAct(now); !ok {
		log.Info("Action deferred by quota gate",
			zap.String("reason", reason),
			zap.Time("next_eligible_at", o.deps.Gate.NextEligibleAt(now)),
		)
		return nil
	}

	if o.deps.Enricher != nil {
		if err := o.deps.Enricher.Enrich(ctx, cand); err != nil {
			log.Debug("Enrichment failed", zap.Error(err))
		}
	}

	content, err := o.deps.Generator.GenerateApplicationContent(ctx, *cand)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Content generation failed, skipping candidate", zap.Error(err))
		o.counts.errors++
		return nil
	}
	if content.IsFallback {
		o.counts.degraded++
	}

	address := cand.ExtractedAddresses[0]
	sendErr := o.deps.Sender.Send(ctx, address, content.Subject, content.Body)

	persistCtx, cancel := context.WithTimeout(context.Background(), actionPersistTimeout)
	defer cancel()

	if sendErr != nil {
		log.Warn("Outbound send failed", zap.String("address", address), zap.Error(sendErr))
		o.counts.errors++
	} else {
		o.counts.actionsSent++
		o.deps.Simulator.RecordAction()
		if err := o.deps.Gate.RecordAction(persistCtx, o.now()); err != nil {
			log.Error("Failed to record quota action", zap.Error(err))
			o.counts.errors++
		}
		log.Info("Outbound action sent",
			zap.String("address", address),
			zap.String("subject", content.Subject),
			zap.Bool("fallback_content", content.IsFallback),
		)
	}

	outcome := schemas.ActionOutcome{
		Record:            *cand,
		Address:           address,
		Success:           sendErr == nil,
		Subject:           content.Subject,
		IsFallbackContent: content.IsFallback,
		Timestamp:         o.now(),
	}
	if err := o.deps.Store.AppendActionOutcome(persistCtx, outcome); err != nil {
		log.Error("Failed to append action outcome", zap.Error(err))
		o.counts.errors++
	}
	return nil
}

// readCandidate pauses for a human-plausible reading of the posting before
// any judgment is made about it. The estimate is capped by configuration.
func (o *Orchestrator) readCandidate(ctx context.Context, cand *schemas.CandidateRecord) error {
	dwell := o.deps.Simulator.ReadingTime(cand.RawContent)
	if max := o.cfg.Session.MaxReading(); max > 0 && dwell > max {
		dwell = max
	}
	return o.deps.Simulator.Delay(ctx, dwell, dwell)
}

// idleBetweenCandidates spaces consecutive candidates apart and occasionally
// wanders the results page so inter-action gaps carry no fixed signature.
// Failures just cut the idle short; the next loop iteration polls for stop.
func (o *Orchestrator) idleBetweenCandidates(ctx context.Context) {
	if err := o.deps.Simulator.Delay(ctx, o.cfg.Session.DelayMin(), o.cfg.Session.DelayMax()); err != nil {
		return
	}
	if !o.deps.Simulator.Chance(o.cfg.Session.IdleActionRate) {
		return
	}
	for _, step := range o.deps.Simulator.ScrollPlan(2) {
		if err := o.deps.Driver.ScrollBy(ctx, step.DeltaY); err != nil {
			return
		}
		if err := o.deps.Simulator.Delay(ctx, step.Pause, step.Pause); err != nil {
			return
		}
	}
}
