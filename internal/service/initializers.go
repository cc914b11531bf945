// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"github.com/xkilldash9x/prospect-cli/internal/quota"
	"github.com/xkilldash9x/prospect-cli/internal/store"
)

// InitializeStore opens the configured persistence driver on its own. This
// centralizes store initialization for commands that operate on recorded
// data without a full session ('report', 'quota'). The returned cleanup
// releases any connection pool and is never nil.
func InitializeStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.Store, func(), error) {
	st, release, err := store.Open(ctx, cfg.Store, cfg.Session.DateLocation(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open the store: %w", err)
	}
	logger.Debug("Store initialized (standalone).", zap.String("driver", cfg.Store.Driver))
	return st, release, nil
}

// InitializeGate restores the quota gate over an already opened store. Used
// by the 'quota' command to inspect budget state without starting a session.
func InitializeGate(ctx context.Context, st schemas.Store, cfg *config.Config, logger *zap.Logger) (*quota.Gate, error) {
	gate, err := quota.NewGate(ctx, st, cfg.Session, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to restore the quota gate: %w", err)
	}
	return gate, nil
}
