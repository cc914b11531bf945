package browser

import "context"

// combineContext derives a context from primary that is additionally canceled
// when secondary ends. The primary context must be the chromedp session
// context: it carries the CDP target values, so chromedp operations run
// against the right tab while the secondary (per-call) context bounds how
// long they may take.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
