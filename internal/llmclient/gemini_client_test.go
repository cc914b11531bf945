// internal/llmclient/gemini_client_test.go
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// newGeminiTestClient builds a client aimed at a stub HTTP server and
// captures its logs. A nil handler installs a tripwire that fails any
// request reaching the server.
func newGeminiTestClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *httptest.Server, *observer.ObservedLogs) {
	t.Helper()

	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected HTTP request")
			w.WriteHeader(http.StatusNotFound)
		}
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	core, logs := observer.New(zap.InfoLevel)

	cfg := modelConfig()
	cfg.Endpoint = server.URL
	client, err := NewGeminiClient(cfg, zap.New(core))
	require.NoError(t, err)

	client.httpClient.Timeout = 5 * time.Second
	return client, server, logs
}

// fastRetries swaps the production backoff for a 10ms constant schedule so
// retry tests finish quickly.
func fastRetries(client *GeminiClient) {
	client.backoffFactory = func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Millisecond)
	}
}

func textGenRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		SystemPrompt: "System prompt instructions.",
		UserPrompt:   "User query.",
		Options:      schemas.GenerationOptions{Temperature: 0.7},
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(payload))
}

func stopCandidate(text string) geminiResponse {
	return geminiResponse{
		Candidates: []geminiCandidate{{
			Content:      geminiContent{Parts: []geminiPart{{Text: text}}},
			FinishReason: "STOP",
		}},
	}
}

func TestNewGeminiClient(t *testing.T) {
	t.Run("fills in the default endpoint", func(t *testing.T) {
		cfg := modelConfig()
		cfg.Endpoint = ""

		client, err := NewGeminiClient(cfg, zap.NewNop())
		require.NoError(t, err)

		want := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
		assert.Equal(t, want, client.endpoint)
		assert.Equal(t, cfg.APIKey, client.apiKey)
		assert.Equal(t, cfg.APITimeout, client.httpClient.Timeout)
		assert.NotNil(t, client.backoffFactory)
	})

	t.Run("defaults a missing timeout to a minute", func(t *testing.T) {
		cfg := modelConfig()
		cfg.APITimeout = 0

		client, err := NewGeminiClient(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, 60*time.Second, client.httpClient.Timeout)
	})

	t.Run("rejects a missing API key", func(t *testing.T) {
		cfg := modelConfig()
		cfg.APIKey = ""

		client, err := NewGeminiClient(cfg, zap.NewNop())
		require.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "Gemini API Key is required")
	})
}

func TestGeminiRequestMapping(t *testing.T) {
	t.Run("carries prompts and sampling configuration", func(t *testing.T) {
		client, _, _ := newGeminiTestClient(t, nil)
		client.config.TopP = 0.9
		client.config.TopK = 50
		client.config.MaxTokens = 2048
		client.config.SafetyFilters = map[string]string{"CAT_A": "BLOCK_LOW", "CAT_B": "BLOCK_HIGH"}

		req := textGenRequest()
		req.Options.Temperature = 0.5

		wire := client.requestFor(req)

		require.Len(t, wire.Contents, 1)
		assert.Equal(t, "user", wire.Contents[0].Role)
		assert.Equal(t, req.UserPrompt, wire.Contents[0].Parts[0].Text)
		require.NotNil(t, wire.SystemInstruction)
		assert.Equal(t, req.SystemPrompt, wire.SystemInstruction.Parts[0].Text)

		assert.Equal(t, 0.5, wire.GenerationConfig.Temperature)
		assert.Equal(t, float32(0.9), wire.GenerationConfig.TopP)
		assert.Equal(t, 50, wire.GenerationConfig.TopK)
		assert.Equal(t, 2048, wire.GenerationConfig.MaxOutputTokens)
		assert.Empty(t, wire.GenerationConfig.ResponseMimeType)

		require.Len(t, wire.SafetySettings, 2)
		got := map[string]string{}
		for _, s := range wire.SafetySettings {
			got[s.Category] = s.Threshold
		}
		assert.Equal(t, client.config.SafetyFilters, got)
	})

	t.Run("requests a JSON mime type when forced", func(t *testing.T) {
		client, _, _ := newGeminiTestClient(t, nil)

		req := textGenRequest()
		req.Options.ForceJSONFormat = true

		assert.Equal(t, "application/json", client.requestFor(req).GenerationConfig.ResponseMimeType)
	})

	t.Run("omits an empty system instruction", func(t *testing.T) {
		client, _, _ := newGeminiTestClient(t, nil)

		req := textGenRequest()
		req.SystemPrompt = ""

		assert.Nil(t, client.requestFor(req).SystemInstruction)
	})
}

func TestGeminiGenerateSuccess(t *testing.T) {
	const generated = "This is the generated content."

	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var wire geminiRequest
		require.NoError(t, json.Unmarshal(body, &wire))
		assert.Equal(t, "User query.", wire.Contents[0].Parts[0].Text)

		resp := stopCandidate(generated)
		resp.UsageMetadata = geminiUsage{PromptTokenCount: 100, CandidatesTokenCount: 50, TotalTokenCount: 150}
		writeJSON(t, w, resp)
	}

	client, _, logs := newGeminiTestClient(t, handler)

	got, err := client.Generate(context.Background(), textGenRequest())
	require.NoError(t, err)
	assert.Equal(t, generated, got)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Gemini generation finished", entry.Message)
	assert.Equal(t, int64(100), entry.ContextMap()["prompt_tokens"])
	assert.Equal(t, int64(50), entry.ContextMap()["completion_tokens"])
	assert.Equal(t, int64(150), entry.ContextMap()["total_tokens"])
	assert.NotNil(t, entry.ContextMap()["duration"])
}

func TestGeminiGenerateRetriesTransientStatuses(t *testing.T) {
	var attempts int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("temporarily unavailable"))
			return
		}
		writeJSON(t, w, stopCandidate("success after retry"))
	}

	client, _, logs := newGeminiTestClient(t, handler)
	fastRetries(client)

	got, err := client.Generate(context.Background(), textGenRequest())
	require.NoError(t, err)
	assert.Equal(t, "success after retry", got)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	errorLogs := logs.FilterLevelExact(zap.ErrorLevel)
	require.Equal(t, 2, errorLogs.Len())
	assert.Equal(t, "Gemini API error", errorLogs.All()[0].Message)
}

func TestGeminiGenerateRetriesNetworkErrors(t *testing.T) {
	client, server, logs := newGeminiTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached on a closed server")
	})
	fastRetries(client)

	// Closing the server up front turns every attempt into a connection
	// refusal.
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, textGenRequest())
	require.Error(t, err)

	var permanent *backoff.PermanentError
	assert.False(t, errors.As(err, &permanent), "connection failures must stay retryable")

	warnLogs := logs.FilterLevelExact(zap.WarnLevel)
	assert.Greater(t, warnLogs.Len(), 1)
	assert.Equal(t, "Gemini request failed in transit, retrying", warnLogs.All()[0].Message)
}

func TestGeminiGenerateStopsOnClientError(t *testing.T) {
	const errorBody = "API key not valid"
	var attempts int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(errorBody))
	}

	client, _, logs := newGeminiTestClient(t, handler)

	got, err := client.Generate(context.Background(), textGenRequest())
	require.Error(t, err)
	assert.Empty(t, got)
	assert.Contains(t, err.Error(), "gemini API status 403")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "4xx responses must not be retried")

	errorLogs := logs.FilterLevelExact(zap.ErrorLevel)
	require.Equal(t, 1, errorLogs.Len())
	entry := errorLogs.All()[0]
	assert.Equal(t, "Gemini API error", entry.Message)
	assert.Equal(t, int64(403), entry.ContextMap()["status"])
	assert.Equal(t, errorBody, entry.ContextMap()["body"])
}

func TestGeminiGenerateSafetyRefusalIsPermanent(t *testing.T) {
	var attempts int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		writeJSON(t, w, geminiResponse{
			Candidates: []geminiCandidate{{FinishReason: "SAFETY"}},
		})
	}

	client, _, _ := newGeminiTestClient(t, handler)

	got, err := client.Generate(context.Background(), textGenRequest())
	require.Error(t, err)
	assert.Empty(t, got)
	assert.Contains(t, err.Error(), "gemini refused the prompt (finish reason SAFETY)")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestGeminiGenerateEmptyCandidateRetries(t *testing.T) {
	var attempts int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		writeJSON(t, w, geminiResponse{
			Candidates: []geminiCandidate{{FinishReason: "MAX_TOKENS"}},
		})
	}

	client, _, _ := newGeminiTestClient(t, handler)
	fastRetries(client)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, textGenRequest())
	require.Error(t, err)

	var permanent *backoff.PermanentError
	assert.False(t, errors.As(err, &permanent))
	assert.Greater(t, atomic.LoadInt32(&attempts), int32(1))
}

func TestGeminiGenerateNoCandidatesIsPermanent(t *testing.T) {
	var attempts int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		writeJSON(t, w, geminiResponse{})
	}

	client, _, _ := newGeminiTestClient(t, handler)

	got, err := client.Generate(context.Background(), textGenRequest())
	require.Error(t, err)
	assert.Empty(t, got)
	assert.Contains(t, err.Error(), "gemini response carried no candidates")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestGeminiGenerateMalformedResponseIsPermanent(t *testing.T) {
	var attempts int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{invalid json:"))
	}

	client, _, _ := newGeminiTestClient(t, handler)

	got, err := client.Generate(context.Background(), textGenRequest())
	require.Error(t, err)
	assert.Empty(t, got)
	assert.Contains(t, err.Error(), "decoding gemini response")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestGeminiGenerateHonorsCancellation(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}

	client, _, _ := newGeminiTestClient(t, handler)
	client.backoffFactory = func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	got, err := client.Generate(ctx, textGenRequest())

	require.Error(t, err)
	assert.Empty(t, got)
	assert.True(t, errors.Is(err, context.Canceled), "got: %v", err)
	assert.Less(t, time.Since(start), time.Second, "cancellation must cut the backoff wait short")
}

func TestGeminiCloseIsIdempotent(t *testing.T) {
	client, _, _ := newGeminiTestClient(t, nil)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}
