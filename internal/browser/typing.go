package browser

import (
	"time"

	"github.com/chromedp/chromedp/kb"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// keystroke is one key sent to the page, preceded by its pause. Plans are
// flattened to this form so the typo sequence (wrong key, backspace,
// correction) becomes ordinary keystrokes before any protocol work happens.
type keystroke struct {
	key   string
	pause time.Duration
}

func flattenPlan(plan []schemas.KeyPress) []keystroke {
	keys := make([]keystroke, 0, len(plan))
	for _, p := range plan {
		if p.Typo != nil {
			keys = append(keys,
				keystroke{key: string(p.Typo.WrongRune), pause: p.Delay},
				keystroke{key: kb.Backspace, pause: p.Typo.NoticeDelay},
				keystroke{key: string(p.Rune), pause: p.Typo.CorrectDelay},
			)
			continue
		}
		keys = append(keys, keystroke{key: string(p.Rune), pause: p.Delay})
	}
	return keys
}

func planDuration(keys []keystroke) time.Duration {
	var total time.Duration
	for _, k := range keys {
		total += k.pause
	}
	return total
}
