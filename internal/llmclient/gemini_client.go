// internal/llmclient/gemini_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

// GeminiClient talks to the Google Gemini generateContent endpoint and
// satisfies schemas.LLMClient.
type GeminiClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	config     config.LLMModelConfig

	// backoffFactory builds the retry policy per Generate call. Tests swap it
	// for a faster schedule.
	backoffFactory func() backoff.BackOff
}

// Gemini v1beta generateContent wire format.

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	TopP             float32 `json:"topP,omitempty"`
	TopK             int     `json:"topK,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	SafetySettings    []geminiSafetySetting    `json:"safetySettings,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

// NewGeminiClient initializes the client.
func NewGeminiClient(cfg config.LLMModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required (hint: set PROSPECT_GEMINI_API_KEY)")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &GeminiClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:         logger.Named("llm_client.gemini"),
		backoffFactory: defaultBackoffFactory,
	}, nil
}

func defaultBackoffFactory() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second
	return b
}

// Generate sends the prompts to the Gemini API and returns the generated
// content, retrying transient failures with exponential backoff.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	body, err := json.Marshal(c.requestFor(req))
	if err != nil {
		return "", fmt.Errorf("encoding gemini payload: %w", err)
	}

	var content string
	operation := func() error {
		var attemptErr error
		content, attemptErr = c.attempt(ctx, body)
		return attemptErr
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", err
	}
	return content, nil
}

// attempt performs a single round trip. Unrecoverable failures come back
// wrapped in backoff.Permanent so the retry loop stops immediately;
// everything else is fair game for another attempt.
func (c *GeminiClient) attempt(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("building gemini request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("Gemini request failed in transit, retrying", zap.Error(err))
		return "", fmt.Errorf("posting gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp.StatusCode, respBody)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decoding gemini response: %w", err))
	}

	text, err := pickCandidate(parsed)
	if err != nil {
		return "", err
	}

	c.logger.Info("Gemini generation finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", parsed.UsageMetadata.PromptTokenCount),
		zap.Int("completion_tokens", parsed.UsageMetadata.CandidatesTokenCount),
		zap.Int("total_tokens", parsed.UsageMetadata.TotalTokenCount),
	)
	return text, nil
}

// pickCandidate pulls the generated text out of a decoded response. A
// safety or blocklist refusal is permanent; an empty candidate for any
// other finish reason occasionally resolves on retry.
func pickCandidate(parsed geminiResponse) (string, error) {
	if len(parsed.Candidates) == 0 {
		return "", backoff.Permanent(errors.New("gemini response carried no candidates"))
	}

	cand := parsed.Candidates[0]
	if len(cand.Content.Parts) == 0 {
		switch cand.FinishReason {
		case "SAFETY", "BLOCKLIST":
			return "", backoff.Permanent(fmt.Errorf("gemini refused the prompt (finish reason %s)", cand.FinishReason))
		default:
			return "", fmt.Errorf("gemini returned an empty candidate (finish reason %s)", cand.FinishReason)
		}
	}
	return cand.Content.Parts[0].Text, nil
}

// statusError classifies a non-OK HTTP status. Rate limiting and server
// trouble are worth retrying; anything else means the request itself is bad.
func (c *GeminiClient) statusError(status int, body []byte) error {
	c.logger.Error("Gemini API error",
		zap.Int("status", status),
		zap.String("body", string(body)),
	)

	err := fmt.Errorf("gemini API status %d: %s", status, body)
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err
	default:
		return backoff.Permanent(err)
	}
}

// requestFor maps a provider-neutral generation request onto the Gemini
// wire format, folding in the model's sampling and safety configuration.
// An empty system prompt omits the instruction block entirely.
func (c *GeminiClient) requestFor(req schemas.GenerationRequest) geminiRequest {
	gen := geminiGenerationConfig{
		Temperature:     req.Options.Temperature,
		TopP:            c.config.TopP,
		TopK:            c.config.TopK,
		MaxOutputTokens: c.config.MaxTokens,
	}
	if req.Options.ForceJSONFormat {
		gen.ResponseMimeType = "application/json"
	}

	out := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.UserPrompt}}},
		},
		GenerationConfig: gen,
	}
	if req.SystemPrompt != "" {
		out.SystemInstruction = &geminiSystemInstruction{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	for category, threshold := range c.config.SafetyFilters {
		out.SafetySettings = append(out.SafetySettings, geminiSafetySetting{Category: category, Threshold: threshold})
	}
	return out
}

// Close releases idle connections held by the underlying HTTP client.
func (c *GeminiClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
