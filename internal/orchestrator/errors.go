package orchestrator

import "errors"

var (
	// ErrAuthenticationFailed marks a login sequence that ended without a
	// logged-in signal. Terminal for the session; the report still gets
	// written.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrChallengeUnresolved marks a verification challenge that outlived the
	// bounded recovery wait.
	ErrChallengeUnresolved = errors.New("verification challenge unresolved")
)
