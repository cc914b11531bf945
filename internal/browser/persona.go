package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

//go:embed evasions.js
var evasionsSource string

// PersonaFromConfig builds the session fingerprint: the default persona with
// any operator overrides applied. Whatever comes out is fixed for the whole
// run so the remote service sees one consistent client.
func PersonaFromConfig(cfg config.BrowserConfig) schemas.Persona {
	p := schemas.DefaultPersona
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
		if lang := strings.ReplaceAll(cfg.Locale, "_", "-"); lang != p.Languages[0] {
			p.Languages = append([]string{lang}, p.Languages...)
		}
	}
	return p
}

// applyPersona lines up the CDP overrides that make the tab present the
// persona consistently: network headers, user agent metadata, viewport,
// timezone and locale, and the evasion script registered for every new
// document.
func applyPersona(persona schemas.Persona, logger *zap.Logger) chromedp.Tasks {
	return chromedp.Tasks{
		network.Enable(),
		setAcceptLanguage(persona),
		setUserAgentOverride(persona),
		setDeviceMetrics(persona),
		setEnvironmentOverrides(persona),
		injectEvasionScript(persona),
		chromedp.ActionFunc(func(ctx context.Context) error {
			logger.Debug("Persona applied",
				zap.String("user_agent", persona.UserAgent),
				zap.String("timezone", persona.Timezone))
			return nil
		}),
	}
}

func setAcceptLanguage(persona schemas.Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		header := acceptLanguageHeader(persona.Languages)
		if header == "" {
			return nil
		}
		headers := network.Headers{"Accept-Language": header}
		if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
			return fmt.Errorf("persona: failed to set Accept-Language header: %w", err)
		}
		return nil
	})
}

// acceptLanguageHeader renders the language preference list with descending
// q-values, floored at 0.7 the way real Chrome does for long lists.
func acceptLanguageHeader(languages []string) string {
	if len(languages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(languages[0])
	for i := 1; i < len(languages); i++ {
		q := 1.0 - float64(i)*0.1
		if q < 0.7 {
			q = 0.7
		}
		fmt.Fprintf(&b, ",%s;q=%.1f", languages[i], q)
	}
	return b.String()
}

func setUserAgentOverride(persona schemas.Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := emulation.SetUserAgentOverride(persona.UserAgent).
			WithPlatform(persona.Platform).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("persona: failed to set user agent override: %w", err)
		}
		return nil
	})
}

func setDeviceMetrics(persona schemas.Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.Width <= 0 || persona.Height <= 0 {
			return nil
		}
		orientation := emulation.OrientationTypeLandscapePrimary
		if persona.Height > persona.Width {
			orientation = emulation.OrientationTypePortraitPrimary
		}
		err := emulation.SetDeviceMetricsOverride(persona.Width, persona.Height, 1.0, false).
			WithScreenOrientation(&emulation.ScreenOrientation{Type: orientation, Angle: 0}).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("persona: failed to set device metrics: %w", err)
		}
		return nil
	})
}

func setEnvironmentOverrides(persona schemas.Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.Timezone != "" {
			if err := emulation.SetTimezoneOverride(persona.Timezone).Do(ctx); err != nil {
				return fmt.Errorf("persona: failed to set timezone: %w", err)
			}
		}

		locale := persona.Locale
		if locale == "" && len(persona.Languages) > 0 {
			locale = persona.Languages[0]
		}
		if locale != "" {
			normalized := strings.ReplaceAll(locale, "_", "-")
			if err := emulation.SetLocaleOverride().WithLocale(normalized).Do(ctx); err != nil {
				return fmt.Errorf("persona: failed to set locale: %w", err)
			}
		}
		return nil
	})
}

func injectEvasionScript(persona schemas.Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		script, err := evasionScript(persona)
		if err != nil {
			return err
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("persona: failed to register evasion script: %w", err)
		}
		return nil
	})
}

// evasionScript prefixes the embedded evasions with the persona constant the
// script reads its values from.
func evasionScript(persona schemas.Persona) (string, error) {
	personaJSON, err := json.Marshal(persona)
	if err != nil {
		return "", fmt.Errorf("persona: failed to marshal persona: %w", err)
	}
	return fmt.Sprintf("const PROSPECT_PERSONA = %s;\n%s", personaJSON, evasionsSource), nil
}
