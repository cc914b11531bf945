package schemas

import "time"

// -- Common Schemas --

// Credential holds the username and password pair used during the
// authentication phase. Values come from configuration or environment and
// are never logged.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DateKey formats a timestamp as the YYYY-MM-DD key for the calendar day it
// falls on in the given zone. Quota state, outcome logs and report lookups
// all key on it, so every component must derive it the same way.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}
