package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

const (
	// loggedInProbeTimeout is the short wait used when checking for the
	// logged-in marker. Absence must be cheap to observe.
	loggedInProbeTimeout = 2 * time.Second

	// authElementTimeout bounds the wait for the login form itself.
	authElementTimeout = 10 * time.Second

	// loginOutcomeWait bounds the watch for a success or challenge signal
	// after the login form is submitted.
	loginOutcomeWait = 30 * time.Second
)

// challengeMarkers are the URL and title fragments that indicate the remote
// service is demanding human verification before continuing.
var challengeMarkers = []string{"challenge", "checkpoint", "verify", "captcha", "security"}

// Fallback selectors used when the site config leaves one empty.
const (
	defaultUsernameSelector = `input[name='username'], input[name='email'], input[type='email']`
	defaultPasswordSelector = `input[type='password']`
	defaultSubmitSelector   = `button[type='submit'], input[type='submit']`
	defaultLoggedInSelector = `[data-logged-in], a[href*='logout'], a[href*='signout']`
)

// authenticate performs the login sequence. A still-valid saved session
// short-circuits credential entry; a challenge signal routes through the
// recovery wait; anything else that blocks login fails the session.
func (o *Orchestrator) authenticate(ctx context.Context) error {
	site := o.cfg.Site
	if site.LoginURL == "" {
		o.logger.Info("No login URL configured, skipping authentication")
		return nil
	}

	if err := o.deps.Driver.Navigate(ctx, site.LoginURL); err != nil {
		return fmt.Errorf("%w: login page navigation: %w", ErrAuthenticationFailed, err)
	}

	if o.isLoggedIn(ctx) {
		o.logger.Info("Saved session still valid, skipping credential entry")
		return nil
	}

	challenged, err := o.challengeSignal(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: reading login page state: %w", ErrAuthenticationFailed, err)
	}
	if challenged {
		if err := o.recoverFromChallenge(ctx); err != nil {
			return err
		}
		o.transition(schemas.PhaseAuthenticating)
		if o.isLoggedIn(ctx) {
			return nil
		}
	}

	if err := o.enterCredentials(ctx); err != nil {
		return err
	}
	return o.awaitLoginOutcome(ctx)
}

// enterCredentials types the username and password with humanized plans and
// submits the form. Every field entry is separated by a session-profile
// delay so the form fill does not land in one burst.
func (o *Orchestrator) enterCredentials(ctx context.Context) error {
	creds := o.cfg.Credentials
	if creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("%w: missing credentials", ErrAuthenticationFailed)
	}

	site := o.cfg.Site
	sim := o.deps.Simulator
	drv := o.deps.Driver

	userSel := orDefault(site.UsernameSelector, defaultUsernameSelector)
	if err := drv.WaitForElement(ctx, userSel, authElementTimeout); err != nil {
		return fmt.Errorf("%w: login form did not appear: %w", ErrAuthenticationFailed, err)
	}
	if err := drv.TypeText(ctx, userSel, sim.TypingPlan(creds.Username)); err != nil {
		return fmt.Errorf("%w: entering username: %w", ErrAuthenticationFailed, err)
	}
	if err := sim.Delay(ctx, o.cfg.Session.DelayMin(), o.cfg.Session.DelayMax()); err != nil {
		return err
	}

	passSel := orDefault(site.PasswordSelector, defaultPasswordSelector)
	if err := drv.TypeText(ctx, passSel, sim.TypingPlan(creds.Password)); err != nil {
		return fmt.Errorf("%w: entering password: %w", ErrAuthenticationFailed, err)
	}
	if err := sim.Delay(ctx, o.cfg.Session.DelayMin(), o.cfg.Session.DelayMax()); err != nil {
		return err
	}

	submitSel := orDefault(site.SubmitSelector, defaultSubmitSelector)
	if err := drv.Click(ctx, submitSel); err != nil {
		return fmt.Errorf("%w: submitting login form: %w", ErrAuthenticationFailed, err)
	}
	o.logger.Debug("Login form submitted")
	return nil
}

// awaitLoginOutcome watches the page after submission until the logged-in
// marker appears, a challenge shows up, or the budget runs out. A challenge
// routes through recovery; a timeout with neither signal fails the session.
func (o *Orchestrator) awaitLoginOutcome(ctx context.Context) error {
	var challenged bool
	ok, err := await(ctx, o.loginWait, pollInterval(o.loginWait), func(ctx context.Context) (bool, error) {
		if o.isLoggedIn(ctx) {
			return true, nil
		}
		sig, err := o.challengeSignal(ctx)
		if err != nil {
			return false, err
		}
		if sig {
			challenged = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: watching login outcome: %w", ErrAuthenticationFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: no success or challenge signal within %s", ErrAuthenticationFailed, o.loginWait)
	}
	if !challenged {
		o.logger.Info("Authentication succeeded")
		return nil
	}

	if err := o.recoverFromChallenge(ctx); err != nil {
		return err
	}
	o.transition(schemas.PhaseAuthenticating)
	if !o.isLoggedIn(ctx) {
		return fmt.Errorf("%w: challenge cleared but no logged-in marker appeared", ErrAuthenticationFailed)
	}
	o.logger.Info("Authentication succeeded after challenge recovery")
	return nil
}

// isLoggedIn probes for the logged-in marker with a short timeout. Absence
// is reported as false, never as an error.
func (o *Orchestrator) isLoggedIn(ctx context.Context) bool {
	sel := orDefault(o.cfg.Site.LoggedInSelector, defaultLoggedInSelector)
	return o.deps.Driver.WaitForElement(ctx, sel, loggedInProbeTimeout) == nil
}

// challengeSignal reports whether the current URL or page title carries one
// of the verification markers.
func (o *Orchestrator) challengeSignal(ctx context.Context) (bool, error) {
	url, err := o.deps.Driver.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	title, err := o.deps.Driver.PageTitle(ctx)
	if err != nil {
		return false, err
	}
	haystack := strings.ToLower(url + " " + title)
	for _, marker := range challengeMarkers {
		if strings.Contains(haystack, marker) {
			return true, nil
		}
	}
	return false, nil
}

// recoverFromChallenge holds the session in the recovering state while a
// human or the remote service clears the verification demand. This is the
// one deliberate long wait in the session; the caller decides which phase
// to resume on success.
func (o *Orchestrator) recoverFromChallenge(ctx context.Context) error {
	o.transition(schemas.PhaseRecovering)
	budget := o.cfg.Session.ChallengeWait()
	o.logger.Warn("Verification challenge detected, waiting for out-of-band resolution",
		zap.Duration("budget", budget),
	)

	resolved, err := await(ctx, budget, pollInterval(budget), func(ctx context.Context) (bool, error) {
		sig, err := o.challengeSignal(ctx)
		if err != nil {
			return false, err
		}
		return !sig, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrChallengeUnresolved, err)
	}
	if !resolved {
		return fmt.Errorf("%w: no resolution within %s", ErrChallengeUnresolved, budget)
	}
	o.logger.Info("Verification challenge resolved")
	return nil
}

// orDefault substitutes the built-in heuristic selector when the configured
// one is empty.
func orDefault(selector, fallback string) string {
	if strings.TrimSpace(selector) == "" {
		return fallback
	}
	return selector
}
