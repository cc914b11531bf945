// Package store persists the three durable record kinds the session driver
// produces: the quota counter, the per-day action outcome log, and final
// session reports. Two drivers implement schemas.Store: per-day JSONL files
// (the default) and PostgreSQL.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

// jsonAPI is the codec for every record either driver reads or writes.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Open builds the configured driver. The returned release func tears down
// any connection pool; for the file driver it is a no-op.
func Open(ctx context.Context, cfg config.StoreConfig, loc *time.Location, logger *zap.Logger) (schemas.Store, func(), error) {
	switch strings.ToLower(cfg.Driver) {
	case "file":
		fs, err := NewFileStore(cfg.DataDir, loc, logger)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil

	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres pool: %w", err)
		}
		ps, err := NewPostgres(ctx, pool, loc, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return ps, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
