// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"github.com/xkilldash9x/prospect-cli/internal/observability"
	"github.com/xkilldash9x/prospect-cli/internal/service"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var keywords []string
	var dryRun bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Starts one unattended session against the configured board",
		Long: `Authenticates against the configured board, searches the session keywords,
extracts and evaluates candidate postings, sends applications within the
daily action budget, and records a session report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			// Flag overrides are applied after validation; neither loosens a
			// validated constraint.
			if len(keywords) > 0 {
				cfg.Session.Keywords = keywords
			}
			if dryRun {
				cfg.SMTP.Enabled = false
			}

			logger.Info("Starting session",
				zap.Strings("keywords", cfg.Session.Keywords),
				zap.Int("daily_action_limit", cfg.Session.DailyActionLimit),
				zap.Bool("smtp_enabled", cfg.SMTP.Enabled),
			)

			return runSession(ctx, logger, cfg, service.NewComponentFactory(), cmd.OutOrStdout())
		},
	}

	runCmd.Flags().StringSliceVar(&keywords, "keyword", nil, "Search keyword override; repeat for multiple. (Overrides config)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Force the dry-run sender; nothing leaves the machine.")

	return runCmd
}

// runSession contains the core, testable logic for the run command: build
// the component graph, drive one session, and render the final report.
func runSession(ctx context.Context, logger *zap.Logger, cfg *config.Config, factory service.ComponentFactory, out io.Writer) error {
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session components: %w", err)
	}
	defer components.Shutdown()

	// Relay a shutdown signal as a cooperative stop request so the candidate
	// in flight drains before the context abort lands.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		<-watchCtx.Done()
		if ctx.Err() != nil {
			components.Orchestrator.RequestStop()
		}
	}()

	report, runErr := components.Orchestrator.Run(ctx)

	printSessionSummary(out, report)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Session interrupted by user signal", zap.String("session_id", report.SessionID))
			return runErr
		}
		logger.Error("Session failed", zap.Error(runErr), zap.String("session_id", report.SessionID))
		return runErr
	}

	logger.Info("Session completed", zap.String("session_id", report.SessionID))
	return nil
}

// printSessionSummary renders the final report for the operator.
func printSessionSummary(out io.Writer, report schemas.SessionReport) {
	fmt.Fprintf(out, "\nSession %s finished: %s\n", report.SessionID, report.Outcome)
	fmt.Fprintf(out, "Found %d, processed %d, with contacts %d, actions sent %d, errors %d, degraded decisions %d\n",
		report.Found, report.Processed, report.WithContacts, report.ActionsSent, report.Errors, report.DegradedDecisions)
	if report.FailureReason != "" {
		fmt.Fprintf(out, "Failure reason: %s\n", report.FailureReason)
	}
	fmt.Fprintf(out, "To inspect the day's activity, run: prospect report\n")
}
