// Package outbound delivers generated application messages. The default
// sender only logs; real SMTP delivery requires explicit opt in through
// configuration, so a misconfigured run can never mail anyone by accident.
package outbound

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

// NewSender selects the delivery adapter for the run: SMTP when enabled,
// otherwise the dry-run logger.
func NewSender(cfg config.SMTPConfig, logger *zap.Logger) schemas.Sender {
	if cfg.Enabled {
		return NewSMTPSender(cfg, logger)
	}
	return NewDryRunSender(logger)
}

// DryRunSender implements schemas.Sender by logging the would-be delivery.
type DryRunSender struct {
	log *zap.Logger
}

// NewDryRunSender returns the no-delivery sender.
func NewDryRunSender(logger *zap.Logger) *DryRunSender {
	return &DryRunSender{log: logger.Named("outbound")}
}

// Send records the message in the log and reports success.
func (d *DryRunSender) Send(ctx context.Context, address, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.log.Info("Dry-run send (no delivery)",
		zap.String("address", address),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	d.log.Debug("Dry-run message body", zap.String("body", body))
	return nil
}
