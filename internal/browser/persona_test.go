package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
	"github.com/xkilldash9x/prospect-cli/internal/config"
)

func TestPersonaFromConfigDefaults(t *testing.T) {
	p := PersonaFromConfig(config.BrowserConfig{})
	assert.Equal(t, schemas.DefaultPersona, p)
}

func TestPersonaFromConfigOverrides(t *testing.T) {
	cfg := config.BrowserConfig{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) TestAgent/1.0",
		Timezone:  "Europe/Berlin",
		Locale:    "de_DE",
	}

	p := PersonaFromConfig(cfg)

	assert.Equal(t, cfg.UserAgent, p.UserAgent)
	assert.Equal(t, "Europe/Berlin", p.Timezone)
	assert.Equal(t, "de_DE", p.Locale)
	require.NotEmpty(t, p.Languages)
	assert.Equal(t, "de-DE", p.Languages[0], "the configured locale leads the language list")
	assert.Contains(t, p.Languages, "en-US")
}

func TestPersonaFromConfigMatchingLocaleKeepsLanguages(t *testing.T) {
	p := PersonaFromConfig(config.BrowserConfig{Locale: "en-US"})
	assert.Equal(t, schemas.DefaultPersona.Languages, p.Languages)
}

func TestAcceptLanguageHeader(t *testing.T) {
	tests := []struct {
		name      string
		languages []string
		want      string
	}{
		{"empty", nil, ""},
		{"single", []string{"en-US"}, "en-US"},
		{"pair", []string{"en-US", "en"}, "en-US,en;q=0.9"},
		{"triple", []string{"en-US", "en", "de"}, "en-US,en;q=0.9,de;q=0.8"},
		{
			"long list floors at 0.7",
			[]string{"a", "b", "c", "d", "e", "f"},
			"a,b;q=0.9,c;q=0.8,d;q=0.7,e;q=0.7,f;q=0.7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptLanguageHeader(tt.languages))
		})
	}
}

func TestEvasionScriptLeadsWithPersonaConstant(t *testing.T) {
	persona := schemas.DefaultPersona

	script, err := evasionScript(persona)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "const PROSPECT_PERSONA = {"),
		"the persona constant must be defined before the evasions run")
	assert.Contains(t, script, persona.UserAgent)
	assert.Contains(t, script, `"timezoneId":"America/Los_Angeles"`)
	assert.Contains(t, script, `"languages":["en-US","en"]`)
}

func TestEvasionsSourceEmbedded(t *testing.T) {
	require.NotEmpty(t, evasionsSource)
	assert.Contains(t, evasionsSource, "PROSPECT_PERSONA")
	assert.Contains(t, evasionsSource, "webdriver")
}
