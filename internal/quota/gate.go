// internal/quota/gate.go

// Package quota enforces the daily action budget and the cooldown between
// consecutive actions. One Gate instance is the single writer of quota state
// for the process; it loads persisted state at construction and writes every
// recorded action back through the store before returning.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"go.uber.org/zap"
)

// Deny reasons surfaced by CanAct, used in skip logs and report notes.
const (
	ReasonDailyLimit = "daily limit reached"
	ReasonCooldown   = "cooldown active"
)

// Gate tracks how many actions were taken today and when the last one
// happened. Calendar days roll over in the configured zone.
type Gate struct {
	mu       sync.Mutex
	store    schemas.Store
	logger   *zap.Logger
	limit    int
	cooldown time.Duration
	loc      *time.Location
	state    schemas.QuotaState
}

// NewGate restores quota state from the store. A store with no prior state
// yields a fresh gate.
func NewGate(ctx context.Context, store schemas.Store, cfg config.SessionConfig, logger *zap.Logger) (*Gate, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	state, err := store.LoadQuotaState(ctx)
	if err != nil {
		return nil, fmt.Errorf("quota: loading persisted state: %w", err)
	}

	g := &Gate{
		store:    store,
		logger:   logger.Named("quota"),
		limit:    cfg.DailyActionLimit,
		cooldown: cfg.Cooldown(),
		loc:      cfg.DateLocation(),
		state:    state,
	}

	if state.DateKey != "" {
		g.logger.Debug("Restored quota state",
			zap.String("date_key", state.DateKey),
			zap.Int("count_today", state.CountToday),
		)
	}
	return g, nil
}

// CanAct reports whether an action may be taken at the given instant. The
// daily limit is checked before the cooldown, so the returned reason names
// the binding constraint. It never mutates persisted counts.
func (g *Gate) CanAct(now time.Time) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)

	if g.state.CountToday >= g.limit {
		return false, ReasonDailyLimit
	}
	if g.state.LastActionAt != nil && now.Sub(*g.state.LastActionAt) < g.cooldown {
		return false, ReasonCooldown
	}
	return true, ""
}

// NextEligibleAt returns the earliest instant an action could be allowed. If
// the daily budget is exhausted that is the start of the next calendar day;
// inside the cooldown it is the end of the cooldown; otherwise now.
func (g *Gate) NextEligibleAt(now time.Time) time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)

	if g.state.CountToday >= g.limit {
		return startOfNextDay(now, g.loc)
	}
	if g.state.LastActionAt != nil {
		if eligible := g.state.LastActionAt.Add(g.cooldown); eligible.After(now) {
			return eligible
		}
	}
	return now
}

// RecordAction counts a completed action and persists the new state before
// returning. It is called only after the action actually happened, so the
// in-memory count survives even when persistence fails; the error tells the
// caller durability is degraded.
func (g *Gate) RecordAction(ctx context.Context, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)

	ts := now
	g.state.CountToday++
	g.state.LastActionAt = &ts

	if err := g.store.SaveQuotaState(ctx, g.state); err != nil {
		return fmt.Errorf("quota: persisting state after action %d on %s: %w",
			g.state.CountToday, g.state.DateKey, err)
	}

	g.logger.Info("Action recorded against quota",
		zap.Int("count_today", g.state.CountToday),
		zap.Int("daily_limit", g.limit),
	)
	return nil
}

// Remaining reports how many actions are left in today's budget.
func (g *Gate) Remaining(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)

	left := g.limit - g.state.CountToday
	if left < 0 {
		return 0
	}
	return left
}

// Snapshot returns the state as of now, with any pending day rollover
// applied. Used by the operator surface.
func (g *Gate) Snapshot(now time.Time) schemas.QuotaState {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)
	return g.state
}

// rolloverLocked resets the daily count when the calendar day changed. The
// last-action timestamp survives the rollover: a cooldown started before
// midnight still binds after it. Callers must hold mu.
func (g *Gate) rolloverLocked(now time.Time) {
	key := schemas.DateKey(now, g.loc)
	if g.state.DateKey == key {
		return
	}
	if g.state.DateKey != "" {
		g.logger.Debug("Quota day rolled over",
			zap.String("from", g.state.DateKey),
			zap.String("to", key),
			zap.Int("previous_count", g.state.CountToday),
		)
	}
	g.state.DateKey = key
	g.state.CountToday = 0
}

func startOfNextDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
