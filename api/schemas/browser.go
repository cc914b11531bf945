package schemas

import "time"

// -- Browser Persona Schemas --

// Persona encapsulates the browser fingerprint a session presents. One
// persona is fixed per session so the remote service sees a consistent
// client across the whole run.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Timezone  string   `json:"timezoneId"`
	Locale    string   `json:"locale"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
}

// DefaultPersona provides a fallback persona if none is configured.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/Los_Angeles",
	Locale:    "en-US",
	Width:     1920,
	Height:    1080,
}

// -- Humanized Interaction Plans --

// TypoEvent describes a mistype injected into a typing plan: the wrong rune
// is pressed, noticed after NoticeDelay, deleted, and the intended rune is
// pressed after CorrectDelay.
type TypoEvent struct {
	WrongRune    rune          `json:"wrong_rune"`
	NoticeDelay  time.Duration `json:"notice_delay"`
	CorrectDelay time.Duration `json:"correct_delay"`
}

// KeyPress is one step of a typing plan: wait Delay, optionally perform the
// typo sequence, then press Rune.
type KeyPress struct {
	Rune  rune          `json:"rune"`
	Delay time.Duration `json:"delay"`
	Typo  *TypoEvent    `json:"typo,omitempty"`
}

// ScrollStep is one step of a scroll plan. DeltaY is in CSS pixels; negative
// values scroll back up (regression). Pause is consumed before the step.
type ScrollStep struct {
	DeltaY int           `json:"delta_y"`
	Pause  time.Duration `json:"pause"`
}

// -- Saved Session Schemas --

// Cookie is the persisted form of one browser cookie, written to the cookie
// jar between runs so a fresh session can be resumed without credentials.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// CookieJar is the on-disk cookie collection for one target domain.
type CookieJar struct {
	Domain  string    `json:"domain"`
	SavedAt time.Time `json:"saved_at"`
	Cookies []Cookie  `json:"cookies"`
}
