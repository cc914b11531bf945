package browser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// jwtExpiryMargin keeps us from restoring a token that would expire
	// mid-session.
	jwtExpiryMargin = 5 * time.Minute

	// savedSessionMaxAge bounds jar reuse when no cookie carries a readable
	// expiry of its own.
	savedSessionMaxAge = 12 * time.Hour
)

// CookieJarPath returns the jar file for a site domain inside dataDir.
func CookieJarPath(dataDir, domain string) string {
	return filepath.Join(dataDir, fmt.Sprintf("cookies-%s.json", sanitizeDomain(domain)))
}

func sanitizeDomain(domain string) string {
	domain = strings.ToLower(domain)
	var b strings.Builder
	for _, r := range domain {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// LoadCookieJar reads a jar from disk. A missing file is not an error; it
// returns an empty jar, same as a site never visited.
func LoadCookieJar(path string) (schemas.CookieJar, error) {
	var jar schemas.CookieJar
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return jar, nil
	}
	if err != nil {
		return jar, fmt.Errorf("failed to read cookie jar %s: %w", path, err)
	}
	if err := jsonAPI.Unmarshal(data, &jar); err != nil {
		return jar, fmt.Errorf("failed to parse cookie jar %s: %w", path, err)
	}
	return jar, nil
}

// SaveCookieJar writes the jar atomically. Jars hold live session
// credentials, so the file is owner-readable only.
func SaveCookieJar(path string, jar schemas.CookieJar) error {
	data, err := jsonAPI.MarshalIndent(jar, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookie jar: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cookie jar directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie jar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace cookie jar: %w", err)
	}
	return nil
}

// jarIsFresh reports whether a saved session is plausibly still valid. Auth
// cookies carrying JWT values get their exp claim checked without signature
// verification; we only need the timestamp, not trust in it. Jars with no
// readable token fall back to a wall-clock age limit on SavedAt.
func jarIsFresh(jar schemas.CookieJar, now time.Time) bool {
	if len(jar.Cookies) == 0 {
		return false
	}

	sawToken := false
	for _, c := range jar.Cookies {
		if !looksLikeJWT(c.Value) {
			continue
		}
		exp := tokenExpiry(c.Value)
		if exp == nil {
			continue
		}
		sawToken = true
		if now.Add(jwtExpiryMargin).After(*exp) {
			return false
		}
	}
	if sawToken {
		return true
	}
	return now.Sub(jar.SavedAt) < savedSessionMaxAge
}

func looksLikeJWT(value string) bool {
	return strings.HasPrefix(value, "eyJ") && strings.Count(value, ".") == 2
}

var unverifiedParser = jwt.NewParser()

// tokenExpiry extracts the exp claim from a JWT-shaped cookie value. Returns
// nil when the value does not parse or carries no expiry.
func tokenExpiry(value string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(value, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

// cookieParams converts saved cookies to the protocol's set-cookie form.
func cookieParams(cookies []schemas.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}

// jarFromCDP converts a protocol cookie snapshot into the on-disk jar form.
func jarFromCDP(domain string, now time.Time, cookies []*network.Cookie) schemas.CookieJar {
	jar := schemas.CookieJar{
		Domain:  domain,
		SavedAt: now,
		Cookies: make([]schemas.Cookie, 0, len(cookies)),
	}
	for _, c := range cookies {
		jar.Cookies = append(jar.Cookies, schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return jar
}
