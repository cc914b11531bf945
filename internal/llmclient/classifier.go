// internal/llmclient/classifier.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/llmutil"
)

const classifySystemPrompt = `You screen text collected from a public feed for legitimate job postings.
Judge only what the text says. Respond ONLY with a JSON object, no prose, with exactly these fields:
{
  "is_legitimate": boolean (true if this reads like a real job posting by someone in a position to hire),
  "relevance_score": integer 1-10 (how strong a match this posting is for the candidate profile),
  "organization": string (the hiring organization, or "" if unknown),
  "position": string (the advertised role title, or "" if unknown),
  "requirements": array of strings (the stated requirements, may be empty),
  "technologies": array of strings (the named technologies, may be empty)
}`

// classifyResult mirrors the JSON contract in classifySystemPrompt.
type classifyResult struct {
	IsLegitimate   bool     `json:"is_legitimate"`
	RelevanceScore int      `json:"relevance_score"`
	Organization   string   `json:"organization"`
	Position       string   `json:"position"`
	Requirements   []string `json:"requirements"`
	Technologies   []string `json:"technologies"`
}

// Classifier judges collected content with the fast model tier. When the
// model cannot be reached or answers garbage it degrades open: a neutral
// pass-through classification marked IsFallback so downstream accounting can
// see the decision was made blind.
type Classifier struct {
	client schemas.LLMClient
	logger *zap.Logger
}

// NewClassifier wraps an LLM client in the screening contract.
func NewClassifier(client schemas.LLMClient, logger *zap.Logger) *Classifier {
	return &Classifier{
		client: client,
		logger: logger.Named("classifier"),
	}
}

// FallbackClassification is the neutral judgement used when the model is
// unavailable: legitimate, mid-scale relevance, explicitly marked.
func FallbackClassification() schemas.Classification {
	return schemas.Classification{
		IsLegitimate:   true,
		RelevanceScore: 5,
		IsFallback:     true,
	}
}

// Classify asks the model to judge one piece of raw content. Cancellation
// propagates as an error; every other failure returns the marked fallback.
func (c *Classifier) Classify(ctx context.Context, rawContent string) (schemas.Classification, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: classifySystemPrompt,
		UserPrompt:   rawContent,
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0.1,
			ForceJSONFormat: true,
		},
	}

	raw, err := c.client.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return schemas.Classification{}, err
		}
		c.logger.Warn("Classification degraded to fallback: model unavailable", zap.Error(err))
		return FallbackClassification(), nil
	}

	parsed, err := parseClassifyResult(raw)
	if err != nil {
		c.logger.Warn("Classification degraded to fallback: unparsable model output",
			zap.Error(err),
			zap.Int("response_len", len(raw)),
		)
		return FallbackClassification(), nil
	}

	return schemas.Classification{
		IsLegitimate:   parsed.IsLegitimate,
		RelevanceScore: clampScore(parsed.RelevanceScore),
		Organization:   strings.TrimSpace(parsed.Organization),
		Position:       strings.TrimSpace(parsed.Position),
		Requirements:   parsed.Requirements,
		Technologies:   parsed.Technologies,
	}, nil
}

func parseClassifyResult(raw string) (classifyResult, error) {
	parsed, err := llmutil.ParseJSONResponse[classifyResult](raw)
	if err != nil {
		return classifyResult{}, fmt.Errorf("decoding classification JSON: %w", err)
	}
	return *parsed, nil
}

func clampScore(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
