// File: internal/config/config.go
package config

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once at
// startup, validated, and passed by reference into component constructors;
// nothing mutates it afterwards.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Store       StoreConfig       `mapstructure:"store" yaml:"store"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Site        SiteConfig        `mapstructure:"site" yaml:"site"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Behavior    BehaviorConfig    `mapstructure:"behavior" yaml:"behavior"`
	LLM         LLMRouterConfig   `mapstructure:"llm" yaml:"llm"`
	SMTP        SMTPConfig        `mapstructure:"smtp" yaml:"smtp"`
	Compose     ComposeConfig     `mapstructure:"compose" yaml:"compose"`
	Feeds       FeedsConfig       `mapstructure:"feeds" yaml:"feeds"`
	Enrich      EnrichConfig      `mapstructure:"enrich" yaml:"enrich"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig customizes per-level colors for the console format.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// StoreConfig selects and configures the durable record store.
type StoreConfig struct {
	// Driver is "file" (per-day JSONL under DataDir) or "postgres".
	Driver      string `mapstructure:"driver" yaml:"driver"`
	DatabaseURL string `mapstructure:"database_url" yaml:"-"`
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	DisableGPU        bool          `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
}

// SiteConfig describes the target service: entry URLs and the selectors the
// driver interacts with. Selectors left empty fall back to the built-in
// heuristic lists.
type SiteConfig struct {
	BaseURL           string `mapstructure:"base_url" yaml:"base_url"`
	LoginURL          string `mapstructure:"login_url" yaml:"login_url"`
	SearchURLTemplate string `mapstructure:"search_url_template" yaml:"search_url_template"`
	UsernameSelector  string `mapstructure:"username_selector" yaml:"username_selector"`
	PasswordSelector  string `mapstructure:"password_selector" yaml:"password_selector"`
	SubmitSelector    string `mapstructure:"submit_selector" yaml:"submit_selector"`
	ResultSelector    string `mapstructure:"result_selector" yaml:"result_selector"`
	AuthorSelector    string `mapstructure:"author_selector" yaml:"author_selector"`
	LoggedInSelector  string `mapstructure:"logged_in_selector" yaml:"logged_in_selector"`
}

// SessionConfig carries the options the orchestrator and its gates consume.
// Millisecond fields keep the names the rest of the tooling recognizes;
// duration accessors below convert.
type SessionConfig struct {
	Keywords                   []string `mapstructure:"keywords" yaml:"keywords"`
	DailyActionLimit           int      `mapstructure:"daily_action_limit" yaml:"daily_action_limit"`
	CooldownMs                 int      `mapstructure:"cooldown_ms" yaml:"cooldown_ms"`
	DelayMinMs                 int      `mapstructure:"delay_min_ms" yaml:"delay_min_ms"`
	DelayMaxMs                 int      `mapstructure:"delay_max_ms" yaml:"delay_max_ms"`
	MaxSearchResultsPerKeyword int      `mapstructure:"max_search_results_per_keyword" yaml:"max_search_results_per_keyword"`
	RelevanceThreshold         int      `mapstructure:"relevance_threshold" yaml:"relevance_threshold"`
	ChallengeWaitMs            int      `mapstructure:"challenge_wait_ms" yaml:"challenge_wait_ms"`
	ScrollRounds               int      `mapstructure:"scroll_rounds" yaml:"scroll_rounds"`
	MaxReadingMs               int      `mapstructure:"max_reading_ms" yaml:"max_reading_ms"`
	IdleActionRate             float64  `mapstructure:"idle_action_rate" yaml:"idle_action_rate"`
	Timezone                   string   `mapstructure:"timezone" yaml:"timezone"`
	ReuseSavedSession          bool     `mapstructure:"reuse_saved_session" yaml:"reuse_saved_session"`
}

// Cooldown returns the minimum spacing between outbound actions.
func (s SessionConfig) Cooldown() time.Duration {
	return time.Duration(s.CooldownMs) * time.Millisecond
}

// DelayMin returns the lower bound of the inter-step delay band.
func (s SessionConfig) DelayMin() time.Duration {
	return time.Duration(s.DelayMinMs) * time.Millisecond
}

// DelayMax returns the upper bound of the inter-step delay band.
func (s SessionConfig) DelayMax() time.Duration {
	return time.Duration(s.DelayMaxMs) * time.Millisecond
}

// ChallengeWait returns how long the orchestrator waits for out-of-band
// challenge resolution before giving up.
func (s SessionConfig) ChallengeWait() time.Duration {
	return time.Duration(s.ChallengeWaitMs) * time.Millisecond
}

// MaxReading returns the cap applied to reading-time estimates.
func (s SessionConfig) MaxReading() time.Duration {
	return time.Duration(s.MaxReadingMs) * time.Millisecond
}

// DateLocation resolves the time zone used for quota date keys. An empty or
// invalid zone falls back to the process-local zone.
func (s SessionConfig) DateLocation() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// CredentialsConfig holds the target-service login. The password is only
// ever read from the environment (PROSPECT_CREDENTIALS_PASSWORD).
type CredentialsConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
}

// SMTPConfig configures the outbound mail adapter. When Enabled is false the
// dry-run sender is used and nothing leaves the machine.
type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	From     string `mapstructure:"from" yaml:"from"`
}

// ComposeConfig is the applicant identity woven into generated application
// messages and into the static fallback template.
type ComposeConfig struct {
	ApplicantName string   `mapstructure:"applicant_name" yaml:"applicant_name"`
	Headline      string   `mapstructure:"headline" yaml:"headline"`
	Highlights    []string `mapstructure:"highlights" yaml:"highlights"`
	ReplyTo       string   `mapstructure:"reply_to" yaml:"reply_to"`
}

// FeedsConfig configures supplemental RSS/Atom job-feed ingestion. Endpoint
// entries may contain a single %s which is replaced by the URL-escaped
// keyword.
type FeedsConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoints     []string      `mapstructure:"endpoints" yaml:"endpoints"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	MaxItems      int           `mapstructure:"max_items" yaml:"max_items"`
}

// EnrichConfig configures optional candidate enrichment from public GitHub
// data. Disabled by default; failures never affect the session.
type EnrichConfig struct {
	GitHubEnabled bool    `mapstructure:"github_enabled" yaml:"github_enabled"`
	GitHubToken   string  `mapstructure:"github_token" yaml:"-"`
	RateLimit     float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxRepos      int     `mapstructure:"max_repos" yaml:"max_repos"`
}

// LLMProvider identifies a text-generation backend.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	RequestsPerMinute    float64                   `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single model.
type LLMModelConfig struct {
	Provider      LLMProvider       `mapstructure:"provider" yaml:"provider"`
	Model         string            `mapstructure:"model" yaml:"model"`
	APIKey        string            `mapstructure:"api_key" yaml:"-"`
	Endpoint      string            `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout    time.Duration     `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature   float32           `mapstructure:"temperature" yaml:"temperature"`
	TopP          float32           `mapstructure:"top_p" yaml:"top_p"`
	TopK          int               `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens     int               `mapstructure:"max_tokens" yaml:"max_tokens"`
	SafetyFilters map[string]string `mapstructure:"safety_filters" yaml:"safety_filters"`
}

// ModelFor resolves the model configuration for a named model, synthesizing
// a Gemini entry with the shared defaults when the name has no explicit
// block.
func (r LLMRouterConfig) ModelFor(name string) LLMModelConfig {
	if m, ok := r.Models[name]; ok {
		if m.Model == "" {
			m.Model = name
		}
		return m
	}
	return LLMModelConfig{
		Provider:   ProviderGemini,
		Model:      name,
		APITimeout: 60 * time.Second,
	}
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "prospect-cli")
	v.SetDefault("logger.log_file", "prospect.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Store --
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.data_dir", "~/.prospect")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.element_timeout", "15s")
	v.SetDefault("browser.debug", false)

	// -- Session --
	v.SetDefault("session.daily_action_limit", 10)
	v.SetDefault("session.cooldown_ms", 90000)
	v.SetDefault("session.delay_min_ms", 2000)
	v.SetDefault("session.delay_max_ms", 6000)
	v.SetDefault("session.max_search_results_per_keyword", 25)
	v.SetDefault("session.relevance_threshold", 5)
	v.SetDefault("session.challenge_wait_ms", 180000)
	v.SetDefault("session.scroll_rounds", 4)
	v.SetDefault("session.max_reading_ms", 30000)
	v.SetDefault("session.idle_action_rate", 0.3)
	v.SetDefault("session.reuse_saved_session", true)

	// -- Behavior --
	setBehaviorDefaults(v)

	// -- LLM --
	v.SetDefault("llm.default_fast_model", "gemini-2.5-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-2.5-pro")
	v.SetDefault("llm.requests_per_minute", 20.0)

	// -- SMTP --
	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.port", 587)

	// -- Feeds --
	v.SetDefault("feeds.enabled", false)
	v.SetDefault("feeds.timeout", "20s")
	v.SetDefault("feeds.max_concurrent", 4)
	v.SetDefault("feeds.max_items", 50)

	// -- Enrichment --
	v.SetDefault("enrich.github_enabled", false)
	v.SetDefault("enrich.rate_limit", 1.0)
	v.SetDefault("enrich.max_repos", 20)
}

// NewConfigFromViper builds and validates the immutable configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Sensitive values come from the environment, never the config file.
	_ = v.BindEnv("credentials.password", "PROSPECT_CREDENTIALS_PASSWORD")
	_ = v.BindEnv("smtp.password", "PROSPECT_SMTP_PASSWORD")
	_ = v.BindEnv("store.database_url", "PROSPECT_DATABASE_URL")
	_ = v.BindEnv("enrich.github_token", "PROSPECT_GITHUB_TOKEN")
	_ = v.BindEnv("llm.api_key", "PROSPECT_GEMINI_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Materialize the default tier models so the router always finds them,
	// then propagate the shared API key to models without their own.
	if cfg.LLM.Models == nil {
		cfg.LLM.Models = make(map[string]LLMModelConfig)
	}
	for _, name := range []string{cfg.LLM.DefaultFastModel, cfg.LLM.DefaultPowerfulModel} {
		if name == "" {
			continue
		}
		if _, ok := cfg.LLM.Models[name]; !ok {
			cfg.LLM.Models[name] = LLMModelConfig{
				Provider:   ProviderGemini,
				Model:      name,
				APITimeout: 60 * time.Second,
			}
		}
	}
	if key := v.GetString("llm.api_key"); key != "" {
		for name, m := range cfg.LLM.Models {
			if m.APIKey == "" {
				m.APIKey = key
				cfg.LLM.Models[name] = m
			}
		}
	}

	if expanded, err := homedir.Expand(cfg.Store.DataDir); err == nil {
		cfg.Store.DataDir = filepath.Clean(expanded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "file":
		if c.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for the file driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is not configured (hint: set PROSPECT_DATABASE_URL)")
		}
	default:
		return fmt.Errorf("store.driver must be 'file' or 'postgres', got %q", c.Store.Driver)
	}

	if c.Session.DailyActionLimit <= 0 {
		return fmt.Errorf("session.daily_action_limit must be a positive integer")
	}
	if c.Session.CooldownMs < 0 {
		return fmt.Errorf("session.cooldown_ms must not be negative")
	}
	if c.Session.DelayMinMs < 0 || c.Session.DelayMaxMs < c.Session.DelayMinMs {
		return fmt.Errorf("session delay band invalid: min %d, max %d", c.Session.DelayMinMs, c.Session.DelayMaxMs)
	}
	if c.Session.RelevanceThreshold < 1 || c.Session.RelevanceThreshold > 10 {
		return fmt.Errorf("session.relevance_threshold must be within [1,10]")
	}
	if c.Session.Timezone != "" {
		if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
			return fmt.Errorf("session.timezone %q is not a valid IANA zone: %w", c.Session.Timezone, err)
		}
	}

	if c.SMTP.Enabled {
		if c.SMTP.Host == "" {
			return fmt.Errorf("smtp.host is required when smtp.enabled is true")
		}
		if c.SMTP.From == "" {
			return fmt.Errorf("smtp.from is required when smtp.enabled is true")
		}
		if _, err := mail.ParseAddress(c.SMTP.From); err != nil {
			return fmt.Errorf("smtp.from is not a valid address: %w", err)
		}
		if c.Compose.ApplicantName == "" {
			return fmt.Errorf("compose.applicant_name is required when smtp.enabled is true")
		}
	}

	if err := c.Behavior.Validate(); err != nil {
		return fmt.Errorf("behavior configuration invalid: %w", err)
	}
	return nil
}
