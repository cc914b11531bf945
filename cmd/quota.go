// -- cmd/quota.go --
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/internal/config"
	"github.com/xkilldash9x/prospect-cli/internal/observability"
	"github.com/xkilldash9x/prospect-cli/internal/service"
)

// newQuotaCmd creates and configures the `quota` command.
func newQuotaCmd() *cobra.Command {
	quotaCmd := &cobra.Command{
		Use:   "quota",
		Short: "Show today's action budget and cooldown state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runQuota(cmd.Context(), observability.GetLogger(), cfg, cmd.OutOrStdout())
		},
	}
	return quotaCmd
}

// runQuota contains the core, testable logic for the quota command.
func runQuota(ctx context.Context, logger *zap.Logger, cfg *config.Config, out io.Writer) error {
	st, release, err := service.InitializeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	gate, err := service.InitializeGate(ctx, st, cfg, logger)
	if err != nil {
		return err
	}

	now := time.Now()
	snapshot := gate.Snapshot(now)

	fmt.Fprintf(out, "Day %s: %d of %d actions used, %d remaining\n",
		snapshot.DateKey, snapshot.CountToday, cfg.Session.DailyActionLimit, gate.Remaining(now))
	if snapshot.LastActionAt != nil {
		fmt.Fprintf(out, "Last action at %s\n",
			snapshot.LastActionAt.In(cfg.Session.DateLocation()).Format(time.RFC3339))
	}

	if allowed, reason := gate.CanAct(now); allowed {
		fmt.Fprintln(out, "The next action is allowed now.")
	} else {
		fmt.Fprintf(out, "The next action is blocked (%s), eligible again at %s\n",
			reason, gate.NextEligibleAt(now).In(cfg.Session.DateLocation()).Format(time.RFC3339))
	}
	return nil
}
