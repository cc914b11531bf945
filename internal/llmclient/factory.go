// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

// NewClient builds an LLMClient for one model entry.
func NewClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

// NewRouterFromConfig builds the tiered router from the llm configuration
// block: one client for the fast default model, one for the powerful
// default, sharing a request-per-minute pacer.
func NewRouterFromConfig(cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	fast, err := NewClient(cfg.ModelFor(cfg.DefaultFastModel), logger)
	if err != nil {
		return nil, fmt.Errorf("building fast tier client (%s): %w", cfg.DefaultFastModel, err)
	}

	powerful, err := NewClient(cfg.ModelFor(cfg.DefaultPowerfulModel), logger)
	if err != nil {
		_ = fast.Close()
		return nil, fmt.Errorf("building powerful tier client (%s): %w", cfg.DefaultPowerfulModel, err)
	}

	return NewLLMRouter(logger, fast, powerful, cfg.RequestsPerMinute)
}
