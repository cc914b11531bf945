package browser

import "errors"

var (
	// ErrDriverClosed is returned by driver operations after Close.
	ErrDriverClosed = errors.New("browser driver is closed")

	// ErrElementTimeout is returned by WaitForElement when the selector never
	// appeared within its window. Callers distinguish it from session or
	// context failure: the page is still usable, the element just is not
	// there.
	ErrElementTimeout = errors.New("timed out waiting for element")
)
