package outbound

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/internal/config"
)

// Fallback bound on the whole SMTP conversation when the caller's context
// carries no deadline.
const sendTimeout = 30 * time.Second

// SMTPSender implements schemas.Sender over plain SMTP with opportunistic
// STARTTLS and PLAIN authentication.
type SMTPSender struct {
	cfg    config.SMTPConfig
	dialer net.Dialer
	log    *zap.Logger
}

// NewSMTPSender builds the production mail adapter.
func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{
		cfg: cfg,
		log: logger.Named("outbound"),
	}
}

// Send delivers one message. The net/smtp conversation itself has no context
// support, so a connection deadline derived from ctx bounds it instead.
func (s *SMTPSender) Send(ctx context.Context, address, subject, body string) error {
	if _, err := mail.ParseAddress(address); err != nil {
		return fmt.Errorf("invalid recipient address %q: %w", address, err)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial SMTP host %s: %w", addr, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(sendTimeout)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open SMTP session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}
	if err := client.Rcpt(address); err != nil {
		return fmt.Errorf("recipient %s rejected: %w", address, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(buildMessage(s.cfg.From, address, subject, body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message not accepted: %w", err)
	}

	// The message is already queued at this point; a broken QUIT is not a
	// delivery failure.
	if err := client.Quit(); err != nil {
		s.log.Warn("SMTP QUIT failed after accepted message", zap.Error(err))
	}

	s.log.Info("Outbound message delivered",
		zap.String("address", address),
		zap.String("subject", subject),
	)
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.Bytes()
}
