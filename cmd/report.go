// -- cmd/report.go --
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"github.com/xkilldash9x/prospect-cli/internal/observability"
	"github.com/xkilldash9x/prospect-cli/internal/reporting"
	"github.com/xkilldash9x/prospect-cli/internal/service"
	"github.com/xkilldash9x/prospect-cli/internal/store"
)

// jsonAPI decodes outcome log lines in follow mode with the same codec the
// store writes them with.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// newReportCmd creates and configures the `report` command.
func newReportCmd() *cobra.Command {
	var day string
	var outputPath string
	var format string
	var follow bool

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Render the activity recorded for one day",
		Long: `Reads the session reports and the append-only action outcome log for a
single local day and renders the aggregate as text or JSON. With --follow it
tails the day's outcome log as new actions land instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}

			dateKey, err := resolveDateKey(cfg, day)
			if err != nil {
				return err
			}

			if follow {
				return followOutcomes(ctx, logger, cfg, dateKey, cmd.OutOrStdout())
			}
			return runReport(ctx, logger, cfg, dateKey, format, outputPath)
		},
	}

	reportCmd.Flags().StringVar(&day, "day", "", "Day to report on as YYYY-MM-DD. Defaults to today in the session time zone.")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the report prints to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", "text", "Report format ('text' or 'json').")
	reportCmd.Flags().BoolVar(&follow, "follow", false, "Tail the day's action outcome log as new actions land (file store only).")

	return reportCmd
}

// resolveDateKey validates an explicit --day value or derives today's key in
// the session's configured time zone.
func resolveDateKey(cfg *config.Config, day string) (string, error) {
	if day == "" {
		return schemas.DateKey(time.Now(), cfg.Session.DateLocation()), nil
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return "", fmt.Errorf("invalid --day %q, want YYYY-MM-DD: %w", day, err)
	}
	return day, nil
}

// runReport contains the core, testable logic for generating a day report.
func runReport(ctx context.Context, logger *zap.Logger, cfg *config.Config, dateKey, format, outputPath string) error {
	logger.Info("Generating day report", zap.String("date_key", dateKey), zap.String("format", format))

	st, release, err := service.InitializeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer release()

	summary, err := reporting.BuildDaySummary(ctx, st, dateKey)
	if err != nil {
		return fmt.Errorf("failed to aggregate day %s: %w", dateKey, err)
	}

	reporter, err := reporting.New(format, outputPath)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()

	if err := reporter.Write(&summary); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if outputPath != "" && outputPath != "stdout" {
		logger.Info("Report successfully written to file", zap.String("path", outputPath))
	}
	return nil
}

// followOutcomes tails the file driver's outcome log for the day, printing
// each action as it is recorded. Returns once the context is cancelled.
func followOutcomes(ctx context.Context, logger *zap.Logger, cfg *config.Config, dateKey string, out io.Writer) error {
	if !strings.EqualFold(cfg.Store.Driver, "file") {
		return fmt.Errorf("--follow requires the file store driver, configured driver is %q", cfg.Store.Driver)
	}

	path := store.OutcomesPath(cfg.Store.DataDir, dateKey)
	t, err := tail.TailFile(path, tail.Config{
		Follow: true,
		ReOpen: true,
		// The day file may not exist yet; wait for the first action.
		MustExist: false,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail outcome log %s: %w", path, err)
	}
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	logger.Info("Following action outcome log", zap.String("path", path), zap.String("date_key", dateKey))

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				logger.Warn("Error reading from outcome log", zap.Error(line.Err))
				continue
			}
			printOutcomeLine(out, line.Text)
		}
	}
}

// printOutcomeLine renders one JSONL outcome record; lines that do not
// decode are echoed raw.
func printOutcomeLine(out io.Writer, raw string) {
	var outcome schemas.ActionOutcome
	if err := jsonAPI.UnmarshalFromString(raw, &outcome); err != nil {
		fmt.Fprintln(out, raw)
		return
	}

	status := "sent"
	if !outcome.Success {
		status = "failed"
	}
	fmt.Fprintf(out, "%s  %-6s  %s  %q  [%s]\n",
		outcome.Timestamp.Format("15:04:05"), status, outcome.Address, outcome.Subject, outcome.Record.SourceKeyword)
}
