// Package browser drives a headless Chrome through CDP and implements the
// automation surface the orchestrator consumes. A Manager owns the browser
// process; each Driver owns one isolated tab with the session persona
// applied before the first navigation.
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

const launchProbeTimeout = 30 * time.Second

// Manager handles the lifecycle of the headless browser process. All driver
// tabs are derived from its allocator context, so shutting the manager down
// terminates everything.
type Manager struct {
	cfg     config.BrowserConfig
	log     *zap.Logger
	persona schemas.Persona

	allocCtx    context.Context
	allocCancel context.CancelFunc

	// wg tracks open drivers for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser process and verifies it responds. The
// persona is fixed here because parts of it (user agent, window size) must
// be present on the process command line, not just in CDP overrides.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		cfg:     cfg,
		log:     logger.Named("browser"),
		persona: PersonaFromConfig(cfg),
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, execOptions(cfg, m.persona)...)
	m.allocCtx = allocCtx
	m.allocCancel = cancel

	// Open and close a throwaway tab to confirm the process starts and CDP
	// answers before any session depends on it.
	probeCtx, cancelProbe := context.WithTimeout(allocCtx, launchProbeTimeout)
	probeCtx, cancelTab := chromedp.NewContext(probeCtx)
	defer cancelTab()
	defer cancelProbe()

	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		m.allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.log.Info("Browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.String("user_agent", m.persona.UserAgent))
	return m, nil
}

// Persona returns the fingerprint the manager launches browsers with.
func (m *Manager) Persona() schemas.Persona {
	return m.persona
}

// DriverOptions configures one driver tab.
type DriverOptions struct {
	// CookieJarPath is the file the session cookie snapshot is written to on
	// Close. Empty disables cookie persistence entirely.
	CookieJarPath string
	// RestoreSession loads a previously saved cookie jar into the fresh tab
	// when the jar still looks usable, letting the run skip credential entry.
	RestoreSession bool
}

// NewDriver opens an isolated tab, applies the persona overrides and evasion
// script, and optionally restores a saved cookie jar. The returned driver is
// ready to navigate.
func (m *Manager) NewDriver(ctx context.Context, opts DriverOptions) (*Driver, error) {
	sessionCtx, sessionCancel := chromedp.NewContext(m.allocCtx, m.contextOptions()...)

	d := newDriver(sessionCtx, sessionCancel, m.cfg, opts.CookieJarPath, m.log)

	m.wg.Add(1)
	d.onClose = m.wg.Done

	initCtx, cancelInit := combineContext(sessionCtx, ctx)
	defer cancelInit()

	if err := chromedp.Run(initCtx, applyPersona(m.persona, d.log)); err != nil {
		// Close releases the tab and settles the WaitGroup.
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelClose()
		_ = d.Close(closeCtx)
		return nil, fmt.Errorf("failed to apply session persona: %w", err)
	}

	if opts.RestoreSession && opts.CookieJarPath != "" {
		d.restoreSavedSession(initCtx)
	}

	m.log.Info("Browser session opened", zap.String("driver_id", d.id[:8]))
	return d, nil
}

func (m *Manager) contextOptions() []chromedp.ContextOption {
	sugar := m.log.Sugar()
	opts := []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	}
	if m.cfg.Debug {
		opts = append(opts, chromedp.WithDebugf(sugar.Debugf))
	}
	return opts
}

// Shutdown waits for open drivers to close, then terminates the browser
// process. The context bounds the wait; on expiry the process is killed with
// sessions still open.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.log.Info("Browser shutdown initiated; waiting for open sessions")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("All browser sessions closed")
	case <-ctx.Done():
		m.log.Warn("Shutdown deadline exceeded; forcing browser termination", zap.Error(ctx.Err()))
	}

	if m.allocCancel != nil {
		m.allocCancel()
		<-m.allocCtx.Done()
	}
	return nil
}

// browserFlag is one Chrome command-line switch. Flags are assembled as data
// first so the launch configuration can be inspected without a browser.
type browserFlag struct {
	name  string
	value any
}

// allocatorFlags assembles the Chrome switches for a session. The set leans
// small: automation giveaways are disabled and the persona's user agent,
// window size, and language ride on the command line so they hold from the
// first request.
func allocatorFlags(cfg config.BrowserConfig, persona schemas.Persona) []browserFlag {
	flags := []browserFlag{
		{"headless", cfg.Headless},
		{"disable-gpu", cfg.DisableGPU},
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-extensions", true},
		{"disable-background-networking", true},
		{"disable-default-apps", true},
		{"disable-sync", true},
		{"mute-audio", true},
		{"password-store", "basic"},
		{"use-mock-keychain", true},
		{"user-agent", persona.UserAgent},
		{"window-size", fmt.Sprintf("%d,%d", persona.Width, persona.Height)},
	}
	if persona.Locale != "" {
		flags = append(flags, browserFlag{"lang", persona.Locale})
	}

	// Containers on Linux need these or the renderer dies on startup.
	if runtime.GOOS == "linux" {
		flags = append(flags,
			browserFlag{"no-sandbox", true},
			browserFlag{"disable-dev-shm-usage", true},
			browserFlag{"disable-setuid-sandbox", true},
		)
	}

	for _, arg := range cfg.Args {
		name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			flags = append(flags, browserFlag{name, value})
		} else {
			flags = append(flags, browserFlag{name, true})
		}
	}
	return flags
}

// execOptions converts the assembled flags into allocator options. The
// chromedp defaults are deliberately not used as a base: they carry the
// enable-automation switch.
func execOptions(cfg config.BrowserConfig, persona schemas.Persona) []chromedp.ExecAllocatorOption {
	flags := allocatorFlags(cfg, persona)
	opts := make([]chromedp.ExecAllocatorOption, 0, len(flags)+1)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, f := range flags {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return opts
}
