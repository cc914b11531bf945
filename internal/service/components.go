// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/behavior"
	"github.com/xkilldash9x/prospect-cli/internal/browser"
	"github.com/xkilldash9x/prospect-cli/internal/observability"
	"github.com/xkilldash9x/prospect-cli/internal/quota"
)

// Components holds all the initialized services required for a session run.
// This struct centralizes the lifecycle management of session dependencies.
type Components struct {
	Store          schemas.Store
	Gate           *quota.Gate
	Simulator      *behavior.Simulator
	LLM            schemas.LLMClient
	Classifier     schemas.Classifier
	Generator      schemas.ContentGenerator
	Sender         schemas.Sender
	Feeds          schemas.UnitSource
	Enricher       schemas.Enricher
	BrowserManager *browser.Manager
	Driver         schemas.BrowserDriver
	Orchestrator   schemas.SessionRunner

	// storeRelease tears down the store's connection pool, if any. The file
	// driver contributes a no-op.
	storeRelease func()
}

// Shutdown gracefully closes all components, ensuring resources are released
// in the correct order. Safe to call on a partially initialized set.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// Use a separate context with a timeout for shutdown so it completes
	// even if the main application context was already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. Close the session tab. A finished run has already released it
	// through the orchestrator; Close is a no-op the second time.
	if c.Driver != nil {
		if err := c.Driver.Close(shutdownCtx); err != nil {
			logger.Warn("Error closing browser session.", zap.Error(err))
		} else {
			logger.Debug("Browser session closed.")
		}
	}

	// 2. Shut down the browser manager, which waits for open sessions before
	// killing the process.
	if c.BrowserManager != nil {
		if err := c.BrowserManager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	// 3. Close the LLM client and its transport.
	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		} else {
			logger.Debug("LLM client closed.")
		}
	}

	// 4. Release the store last; the steps above may still persist through it.
	if c.storeRelease != nil {
		c.storeRelease()
		logger.Debug("Store released.")
	}

	logger.Info("All session components shut down.")
}
