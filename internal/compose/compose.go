// Package compose turns an actionable candidate record into an outbound
// application message. The powerful model tier writes the message; when the
// model fails or answers garbage the composer degrades to a static template
// so an unattended session keeps moving, with the result marked IsFallback
// for downstream accounting.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"github.com/xkilldash9x/prospect-cli/internal/llmutil"
)

const composeSystemPrompt = `You write short, professional job application emails on behalf of the applicant described below.
Use only facts given in the request. Never invent employers, degrees or dates. No markdown, no placeholders.
Respond ONLY with a JSON object, no prose, with exactly these fields:
{
  "subject": string (a concise subject line for the application email),
  "body": string (the full plain-text email body, ready to send)
}`

// Prompt excerpts are capped so one oversized posting cannot blow the token
// budget.
const maxPromptContentBytes = 4000

// composeResult mirrors the JSON contract in composeSystemPrompt.
type composeResult struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Composer implements schemas.ContentGenerator on top of an LLM client.
type Composer struct {
	client schemas.LLMClient
	cfg    config.ComposeConfig
	logger *zap.Logger
}

// NewComposer wires the applicant identity and the model client together.
func NewComposer(client schemas.LLMClient, cfg config.ComposeConfig, logger *zap.Logger) *Composer {
	return &Composer{
		client: client,
		cfg:    cfg,
		logger: logger.Named("compose"),
	}
}

// GenerateApplicationContent asks the powerful tier for a tailored message.
// Cancellation propagates as an error; every other failure degrades to the
// template.
func (c *Composer) GenerateApplicationContent(ctx context.Context, record schemas.CandidateRecord) (schemas.OutboundContent, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: composeSystemPrompt,
		UserPrompt:   buildComposePrompt(c.cfg, record),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0.7,
			ForceJSONFormat: true,
		},
	}

	raw, err := c.client.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return schemas.OutboundContent{}, err
		}
		c.logger.Warn("Content generation degraded to template: model unavailable", zap.Error(err))
		return c.fallbackContent(record), nil
	}

	parsed, err := parseComposeResult(raw)
	if err != nil {
		c.logger.Warn("Content generation degraded to template: unusable model output",
			zap.Error(err),
			zap.Int("response_len", len(raw)),
		)
		return c.fallbackContent(record), nil
	}

	return schemas.OutboundContent{
		Subject: parsed.Subject,
		Body:    parsed.Body,
	}, nil
}

func parseComposeResult(raw string) (composeResult, error) {
	parsed, err := llmutil.ParseJSONResponse[composeResult](raw)
	if err != nil {
		return composeResult{}, fmt.Errorf("decoding composed message JSON: %w", err)
	}
	out := *parsed
	out.Subject = strings.TrimSpace(out.Subject)
	out.Body = strings.TrimSpace(out.Body)
	if out.Subject == "" || out.Body == "" {
		return out, fmt.Errorf("composed message missing subject or body")
	}
	return out, nil
}

func buildComposePrompt(cfg config.ComposeConfig, record schemas.CandidateRecord) string {
	var b strings.Builder
	b.WriteString("Write an application email for this posting.\n\n")

	if org := organizationOf(record); org != "" {
		fmt.Fprintf(&b, "Organization: %s\n", org)
	}
	if pos := positionOf(record); pos != "" {
		fmt.Fprintf(&b, "Position: %s\n", pos)
	}
	if cls := record.Classification; cls != nil {
		if len(cls.Requirements) > 0 {
			fmt.Fprintf(&b, "Stated requirements: %s\n", strings.Join(cls.Requirements, "; "))
		}
		if len(cls.Technologies) > 0 {
			fmt.Fprintf(&b, "Technologies: %s\n", strings.Join(cls.Technologies, ", "))
		}
	}
	fmt.Fprintf(&b, "\nPosting text:\n%s\n", truncate(record.RawContent, maxPromptContentBytes))

	b.WriteString("\nApplicant:\n")
	if cfg.ApplicantName != "" {
		fmt.Fprintf(&b, "Name: %s\n", cfg.ApplicantName)
	}
	if cfg.Headline != "" {
		fmt.Fprintf(&b, "Profile: %s\n", cfg.Headline)
	}
	for _, h := range cfg.Highlights {
		fmt.Fprintf(&b, "- %s\n", h)
	}
	if cfg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-to: %s\n", cfg.ReplyTo)
	}
	return b.String()
}

var fallbackBodyTemplate = template.Must(template.New("fallback-body").Parse(
	`Hello{{if .Organization}} {{.Organization}} team{{end}},

I came across your posting{{if .Position}} for the {{.Position}} position{{end}} and I would like to be considered.
{{if .Headline}}
{{.Headline}}
{{end}}{{if .Highlights}}
{{range .Highlights}}- {{.}}
{{end}}{{end}}
I would welcome a conversation about how I can contribute.{{if .ReplyTo}} You can reach me at {{.ReplyTo}}.{{end}}

{{if .Name}}Best regards,
{{.Name}}{{else}}Best regards{{end}}`))

// fallbackContent substitutes posting and applicant facts into the static
// template. It never fails; a degraded message still goes out marked as such.
func (c *Composer) fallbackContent(record schemas.CandidateRecord) schemas.OutboundContent {
	data := struct {
		Organization string
		Position     string
		Name         string
		Headline     string
		Highlights   []string
		ReplyTo      string
	}{
		Organization: organizationOf(record),
		Position:     positionOf(record),
		Name:         c.cfg.ApplicantName,
		Headline:     c.cfg.Headline,
		Highlights:   c.cfg.Highlights,
		ReplyTo:      c.cfg.ReplyTo,
	}

	var buf bytes.Buffer
	if err := fallbackBodyTemplate.Execute(&buf, data); err != nil {
		// Static template over a fixed struct; reaching this is a bug.
		c.logger.Error("Fallback template execution failed", zap.Error(err))
	}

	return schemas.OutboundContent{
		Subject:    fallbackSubject(record),
		Body:       strings.TrimSpace(buf.String()),
		IsFallback: true,
	}
}

func fallbackSubject(record schemas.CandidateRecord) string {
	pos := positionOf(record)
	org := organizationOf(record)
	switch {
	case pos != "" && org != "":
		return fmt.Sprintf("Application for %s at %s", pos, org)
	case pos != "":
		return "Application for " + pos
	case org != "":
		return "Application to " + org
	case record.SourceKeyword != "":
		return fmt.Sprintf("Application regarding your %s posting", record.SourceKeyword)
	default:
		return "Application regarding your posting"
	}
}

func positionOf(record schemas.CandidateRecord) string {
	if record.Classification == nil {
		return ""
	}
	return strings.TrimSpace(record.Classification.Position)
}

func organizationOf(record schemas.CandidateRecord) string {
	if record.Classification != nil {
		if org := strings.TrimSpace(record.Classification.Organization); org != "" {
			return org
		}
	}
	return strings.TrimSpace(record.InferredOrganization)
}

// truncate cuts s at a rune boundary at or below max bytes.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + " [truncated]"
}
