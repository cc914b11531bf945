package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

const (
	defaultNavigationTimeout = 90 * time.Second
	defaultElementTimeout    = 15 * time.Second

	// Typing gets the plan's own pauses plus this much slack, capped so a
	// runaway plan cannot hold the tab forever.
	typeBaseTimeout = 15 * time.Second
	typeMaxTimeout  = 3 * time.Minute

	cookieSnapshotTimeout = 5 * time.Second
	closeGraceTimeout     = 10 * time.Second
)

// Driver drives a single browser tab. It performs every page interaction
// mechanically; pacing and typo behavior arrive pre-planned in the KeyPress
// and ScrollStep values it is handed.
//
// A Driver is safe for use from one goroutine at a time. Close may be called
// more than once; later calls return nil.
type Driver struct {
	id      string
	cfg     config.BrowserConfig
	jarPath string
	log     *zap.Logger

	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	// onClose settles the manager's session accounting. Called exactly once.
	onClose func()

	mu     sync.Mutex
	closed bool
}

var _ schemas.BrowserDriver = (*Driver)(nil)

func newDriver(sessionCtx context.Context, sessionCancel context.CancelFunc, cfg config.BrowserConfig, jarPath string, logger *zap.Logger) *Driver {
	id := uuid.New().String()
	return &Driver{
		id:            id,
		cfg:           cfg,
		jarPath:       jarPath,
		log:           logger.With(zap.String("driver_id", id[:8])),
		sessionCtx:    sessionCtx,
		sessionCancel: sessionCancel,
	}
}

// run executes actions against this driver's tab. The combined context keeps
// the CDP target attached while still honoring the caller's cancellation, and
// timeout bounds the whole batch when positive.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDriverClosed
	}
	d.mu.Unlock()

	opCtx, cancel := combineContext(d.sessionCtx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		opCtx, cancelTimeout = context.WithTimeout(opCtx, timeout)
		defer cancelTimeout()
	}
	return chromedp.Run(opCtx, actions...)
}

func (d *Driver) elementTimeout() time.Duration {
	if d.cfg.ElementTimeout > 0 {
		return d.cfg.ElementTimeout
	}
	return defaultElementTimeout
}

// Navigate loads the URL and waits for the document body to exist.
func (d *Driver) Navigate(ctx context.Context, pageURL string) error {
	timeout := d.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}

	start := time.Now()
	err := d.run(ctx, timeout,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		switch {
		case errors.Is(err, ErrDriverClosed):
			return err
		case ctx.Err() != nil:
			return fmt.Errorf("navigation to %s canceled: %w", pageURL, ctx.Err())
		case d.sessionCtx.Err() != nil:
			return fmt.Errorf("browser session ended during navigation to %s: %w", pageURL, d.sessionCtx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("navigation to %s timed out after %s: %w", pageURL, timeout, err)
		default:
			return fmt.Errorf("navigation to %s failed: %w", pageURL, err)
		}
	}

	d.log.Debug("Navigation complete",
		zap.String("url", pageURL),
		zap.Duration("took", time.Since(start)))
	return nil
}

// WaitForElement blocks until the selector matches a node in the DOM.
// Presence, not visibility: login probes target elements that may be styled
// away. A non-positive timeout falls back to the configured element timeout.
func (d *Driver) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.elementTimeout()
	}

	err := d.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err != nil {
		switch {
		case errors.Is(err, ErrDriverClosed):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case d.sessionCtx.Err() != nil:
			return fmt.Errorf("browser session ended: %w", d.sessionCtx.Err())
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("element %q not present after %s: %w", selector, timeout, ErrElementTimeout)
		default:
			return fmt.Errorf("wait for element %q failed: %w", selector, err)
		}
	}
	return nil
}

// Click scrolls the element into view, waits for it to become visible, and
// clicks it. Visibility matters here: clicking a hidden node succeeds at the
// protocol level but does nothing the page reacts to.
func (d *Driver) Click(ctx context.Context, selector string) error {
	err := d.run(ctx, d.elementTimeout(),
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, ErrDriverClosed) {
			return err
		}
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	d.log.Debug("Clicked element", zap.String("selector", selector))
	return nil
}

// TypeText focuses the element and replays the keypress plan against the
// active element, pausing between keystrokes exactly as the plan dictates.
// Typos in the plan are typed, noticed, backspaced, and corrected.
func (d *Driver) TypeText(ctx context.Context, selector string, plan []schemas.KeyPress) error {
	keys := flattenPlan(plan)

	actions := make([]chromedp.Action, 0, len(keys)*2+3)
	actions = append(actions,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	for _, k := range keys {
		if k.pause > 0 {
			actions = append(actions, chromedp.Sleep(k.pause))
		}
		// Keys go to whatever holds focus after the click, so a site that
		// moves focus into a nested input still receives them.
		actions = append(actions, chromedp.SendKeys("document.activeElement", k.key, chromedp.ByJSPath))
	}

	timeout := planDuration(keys) + typeBaseTimeout
	if timeout > typeMaxTimeout {
		timeout = typeMaxTimeout
	}

	if err := d.run(ctx, timeout, actions...); err != nil {
		if errors.Is(err, ErrDriverClosed) {
			return err
		}
		return fmt.Errorf("typing into %q failed: %w", selector, err)
	}

	d.log.Debug("Typed text",
		zap.String("selector", selector),
		zap.Int("keystrokes", len(keys)))
	return nil
}

// ScrollBy scrolls the window vertically by amount pixels. Negative scrolls
// up. Pauses between scroll steps are the caller's responsibility.
func (d *Driver) ScrollBy(ctx context.Context, amount int) error {
	script := fmt.Sprintf("window.scrollBy(0, %d)", amount)
	if err := d.run(ctx, d.elementTimeout(), chromedp.Evaluate(script, nil)); err != nil {
		if errors.Is(err, ErrDriverClosed) {
			return err
		}
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// Evaluate runs the script in the page and unmarshals its result into out.
// A nil out discards the result.
func (d *Driver) Evaluate(ctx context.Context, script string, out interface{}) error {
	if err := d.run(ctx, d.elementTimeout(), chromedp.Evaluate(script, out)); err != nil {
		if errors.Is(err, ErrDriverClosed) {
			return err
		}
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

// CurrentURL returns the location of the page the tab currently shows.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := d.run(ctx, d.elementTimeout(), chromedp.Location(&loc)); err != nil {
		if errors.Is(err, ErrDriverClosed) {
			return "", err
		}
		return "", fmt.Errorf("reading page location failed: %w", err)
	}
	return loc, nil
}

// PageTitle returns the current document title.
func (d *Driver) PageTitle(ctx context.Context) (string, error) {
	var title string
	if err := d.run(ctx, d.elementTimeout(), chromedp.Title(&title)); err != nil {
		if errors.Is(err, ErrDriverClosed) {
			return "", err
		}
		return "", fmt.Errorf("reading page title failed: %w", err)
	}
	return title, nil
}

// TextContent returns the visible text of the first element matching the
// selector, waiting up to the element timeout for it to appear.
func (d *Driver) TextContent(ctx context.Context, selector string) (string, error) {
	var text string
	err := d.run(ctx, d.elementTimeout(), chromedp.Text(selector, &text, chromedp.ByQuery))
	if err != nil {
		switch {
		case errors.Is(err, ErrDriverClosed):
			return "", err
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && d.sessionCtx.Err() == nil:
			return "", fmt.Errorf("no text at %q after %s: %w", selector, d.elementTimeout(), ErrElementTimeout)
		default:
			return "", fmt.Errorf("reading text of %q failed: %w", selector, err)
		}
	}
	return text, nil
}

// Close snapshots session cookies while the tab is still alive, then tears
// the tab down and waits briefly for the target to detach. Safe to call more
// than once; only the first call does the work.
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if d.jarPath != "" {
		d.persistCookies(ctx)
	}

	d.sessionCancel()

	select {
	case <-d.sessionCtx.Done():
	case <-time.After(closeGraceTimeout):
		d.log.Warn("Browser tab did not shut down cleanly")
	}

	if d.onClose != nil {
		d.onClose()
	}
	d.log.Debug("Browser session closed")
	return nil
}

// persistCookies writes the tab's current cookies to the jar file. Best
// effort: Close proceeds either way, and an existing jar is left untouched
// when the snapshot fails.
func (d *Driver) persistCookies(ctx context.Context) {
	opCtx, cancel := combineContext(d.sessionCtx, ctx)
	defer cancel()
	opCtx, cancelTimeout := context.WithTimeout(opCtx, cookieSnapshotTimeout)
	defer cancelTimeout()

	var cookies []*network.Cookie
	var rawURL string
	err := chromedp.Run(opCtx,
		chromedp.Location(&rawURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		d.log.Debug("Cookie snapshot failed; previous jar kept", zap.Error(err))
		return
	}
	if len(cookies) == 0 {
		d.log.Debug("No cookies to persist")
		return
	}

	domain := ""
	if u, err := url.Parse(rawURL); err == nil {
		domain = u.Hostname()
	}
	jar := jarFromCDP(domain, time.Now(), cookies)
	if err := SaveCookieJar(d.jarPath, jar); err != nil {
		d.log.Warn("Failed to save cookie jar", zap.String("path", d.jarPath), zap.Error(err))
		return
	}
	d.log.Info("Session cookies saved",
		zap.String("path", d.jarPath),
		zap.Int("cookies", len(jar.Cookies)))
}

// restoreSavedSession loads the jar written by a previous run and installs
// its cookies into the fresh tab. Stale or unreadable jars are skipped, not
// fatal: the run simply authenticates from scratch.
func (d *Driver) restoreSavedSession(ctx context.Context) {
	jar, err := LoadCookieJar(d.jarPath)
	if err != nil {
		d.log.Warn("Saved session unreadable; starting fresh",
			zap.String("path", d.jarPath), zap.Error(err))
		return
	}
	if len(jar.Cookies) == 0 {
		return
	}
	if !jarIsFresh(jar, time.Now()) {
		d.log.Info("Saved session expired; starting fresh",
			zap.String("domain", jar.Domain),
			zap.Time("saved_at", jar.SavedAt))
		return
	}

	if err := chromedp.Run(ctx, storage.SetCookies(cookieParams(jar.Cookies))); err != nil {
		d.log.Warn("Failed to restore saved session; starting fresh", zap.Error(err))
		return
	}
	d.log.Info("Saved session restored",
		zap.String("domain", jar.Domain),
		zap.Int("cookies", len(jar.Cookies)),
		zap.Time("saved_at", jar.SavedAt))
}
