// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/internal/behavior"
	"github.com/xkilldash9x/prospect-cli/internal/browser"
	"github.com/xkilldash9x/prospect-cli/internal/compose"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"github.com/xkilldash9x/prospect-cli/internal/enrich"
	"github.com/xkilldash9x/prospect-cli/internal/feeds"
	"github.com/xkilldash9x/prospect-cli/internal/llmclient"
	"github.com/xkilldash9x/prospect-cli/internal/orchestrator"
	"github.com/xkilldash9x/prospect-cli/internal/outbound"
	"github.com/xkilldash9x/prospect-cli/internal/quota"
	"github.com/xkilldash9x/prospect-cli/internal/store"
)

// ComponentFactory defines the interface for creating the set of components
// needed for a session run. This abstraction is the key to making the run
// command's logic testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// cookieJarPath places the saved-session jar for the configured site under
// the store's data directory. An empty or unparseable base URL disables
// cookie persistence rather than failing the run.
func cookieJarPath(cfg *config.Config) string {
	if cfg.Site.BaseURL == "" {
		return ""
	}
	u, err := url.Parse(cfg.Site.BaseURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return browser.CookieJarPath(cfg.Store.DataDir, u.Hostname())
}

// Create handles the full dependency injection and initialization of session
// components.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Store
	st, release, err := store.Open(ctx, cfg.Store, cfg.Session.DateLocation(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open the store: %w", err)
		return nil, initializationErr
	}
	components.Store = st
	components.storeRelease = release
	logger.Debug("Store initialized.", zap.String("driver", cfg.Store.Driver))

	// 2. Quota gate, restored from persisted state.
	gate, err := quota.NewGate(ctx, st, cfg.Session, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to restore the quota gate: %w", err)
		return nil, initializationErr
	}
	components.Gate = gate
	logger.Debug("Quota gate initialized.", zap.Int("remaining_today", gate.Remaining(time.Now())))

	// 3. Behavior simulator
	components.Simulator = behavior.New(cfg.Behavior, logger)
	logger.Debug("Behavior simulator initialized.")

	// 4. LLM router and the AI collaborators on top of it.
	llm, err := llmclient.NewRouterFromConfig(cfg.LLM, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize the LLM client: %w", err)
		return nil, initializationErr
	}
	components.LLM = llm
	components.Classifier = llmclient.NewClassifier(llm, logger)
	components.Generator = compose.NewComposer(llm, cfg.Compose, logger)
	logger.Debug("AI collaborators initialized.")

	// 5. Outbound sender. Stays on the dry-run logger unless SMTP delivery
	// was enabled explicitly.
	components.Sender = outbound.NewSender(cfg.SMTP, logger)

	// 6. Feed source (optional).
	if cfg.Feeds.Enabled {
		components.Feeds = feeds.NewSource(cfg.Feeds, logger)
		logger.Debug("Feed source initialized.", zap.Int("endpoints", len(cfg.Feeds.Endpoints)))
	}

	// 7. Candidate enricher (optional).
	if cfg.Enrich.GitHubEnabled {
		components.Enricher = enrich.NewGitHubEnricher(cfg.Enrich, logger)
		logger.Debug("GitHub enricher initialized.")
	}

	// 8. Browser manager and the session tab.
	manager, err := browser.NewManager(ctx, cfg.Browser, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize browser manager: %w", err)
		return nil, initializationErr
	}
	components.BrowserManager = manager
	logger.Debug("Browser manager initialized.")

	driver, err := manager.NewDriver(ctx, browser.DriverOptions{
		CookieJarPath:  cookieJarPath(cfg),
		RestoreSession: cfg.Session.ReuseSavedSession,
	})
	if err != nil {
		initializationErr = fmt.Errorf("failed to open browser session: %w", err)
		return nil, initializationErr
	}
	components.Driver = driver
	logger.Debug("Browser session opened.")

	// 9. Orchestrator
	orch, err := orchestrator.New(cfg, logger, orchestrator.Deps{
		Driver:     driver,
		Simulator:  components.Simulator,
		Gate:       gate,
		Classifier: components.Classifier,
		Generator:  components.Generator,
		Sender:     components.Sender,
		Store:      st,
		Feeds:      components.Feeds,
		Enricher:   components.Enricher,
	})
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Orchestrator = orch

	logger.Info("All session components initialized.")
	return components, nil
}
