// Package config resolves the process configuration once at startup.
//
// Values come from the environment, optionally seeded from a .env file.
// Variables already present in the environment win over the file, so a
// deployment can override a checked-in .env without editing it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the fully resolved configuration. It is built by Load and then
// passed by reference; nothing reads os.Getenv after startup.
type Config struct {
	Port int
	Env  string

	// webhooksOverride is set when WEBHOOKS_ENABLED is present.
	webhooksOverride *bool

	DatabaseURL         string
	StoreConnectTimeout time.Duration
	StoreOpTimeout      time.Duration

	SessionSecret      string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
	GitHubAccessToken  string
	GitHubAPIURL       string
	GitHubTimeout      time.Duration

	AppURL              string
	WebhookSecret       string
	WebhookStrictStatus bool

	EmailAPIKey    string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	EmailFrom      string
	NotifyTimezone string

	LogLevel  slog.Level
	LogFormat string
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// WebhooksEnabled reports whether tracking registers real GitHub webhooks.
// Production enables them unless WEBHOOKS_ENABLED says otherwise.
func (c *Config) WebhooksEnabled() bool {
	if c.webhooksOverride != nil {
		return *c.webhooksOverride
	}
	return c.IsProduction()
}

// WebhookCallbackURL is the address GitHub delivers fork events to.
func (c *Config) WebhookCallbackURL() string {
	return strings.TrimRight(c.AppURL, "/") + "/api/webhook"
}

// AuthEnabled reports whether the GitHub sign-in routes can be mounted.
func (c *Config) AuthEnabled() bool {
	return c.SessionSecret != "" && c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads envFile (if non-empty) into the environment and resolves Config.
// A missing envFile is not an error when it is the default ".env".
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !(envFile == ".env" && errors.Is(err, os.ErrNotExist)) {
				return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
			}
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves Config through lookup. Tests pass a map-backed lookup.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}

	cfg := &Config{
		Port:                r.int("PORT", 8080),
		Env:                 strings.ToLower(r.str("APP_ENV", EnvDevelopment)),
		DatabaseURL:         r.str("DATABASE_URL", "data/forkwatch.db"),
		StoreConnectTimeout: r.duration("STORE_CONNECT_TIMEOUT", 10*time.Second),
		StoreOpTimeout:      r.duration("STORE_OP_TIMEOUT", 45*time.Second),
		SessionSecret:       r.str("SESSION_SECRET", ""),
		GitHubClientID:      r.str("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret:  r.str("GITHUB_CLIENT_SECRET", ""),
		GitHubCallbackURL:   r.str("GITHUB_CALLBACK_URL", ""),
		GitHubAccessToken:   r.str("GITHUB_ACCESS_TOKEN", ""),
		GitHubAPIURL:        r.str("GITHUB_API_URL", ""),
		GitHubTimeout:       r.duration("GITHUB_TIMEOUT", 45*time.Second),
		AppURL:              r.str("APP_URL", ""),
		WebhookSecret:       r.str("WEBHOOK_SECRET", ""),
		WebhookStrictStatus: r.bool("WEBHOOK_STRICT_STATUS", false),
		EmailAPIKey:         r.str("RESEND_API_KEY", r.str("EMAIL_API_KEY", "")),
		SMTPHost:            r.str("SMTP_HOST", "smtp.resend.com"),
		SMTPPort:            r.int("SMTP_PORT", 465),
		SMTPUsername:        r.str("SMTP_USERNAME", "resend"),
		EmailFrom:           r.str("EMAIL_FROM", "ForkWatch <notifications@forkwatch.dev>"),
		NotifyTimezone:      r.str("NOTIFY_TIMEZONE", "Asia/Kolkata"),
		LogFormat:           strings.ToLower(r.str("LOG_FORMAT", "")),
	}

	if v, ok := lookup("WEBHOOKS_ENABLED"); ok && strings.TrimSpace(v) != "" {
		enabled := r.bool("WEBHOOKS_ENABLED", false)
		cfg.webhooksOverride = &enabled
	}

	if cfg.AppURL == "" {
		cfg.AppURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = strings.TrimRight(cfg.AppURL, "/") + "/auth/github/callback"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
		if cfg.IsProduction() {
			cfg.LogFormat = "json"
		}
	}

	level := r.str("LOG_LEVEL", "info")
	if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
		r.fail("LOG_LEVEL", level, err)
	}

	if err := r.err(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("config: APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env))
	}
	if c.SessionSecret != "" && len(c.SessionSecret) < 16 {
		errs = append(errs, errors.New("config: SESSION_SECRET must be at least 16 characters"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if _, err := time.LoadLocation(c.NotifyTimezone); err != nil {
		errs = append(errs, fmt.Errorf("config: NOTIFY_TIMEZONE: %w", err))
	}
	if c.WebhooksEnabled() && strings.HasPrefix(c.AppURL, "http://localhost") {
		errs = append(errs, errors.New("config: APP_URL must be a public address when webhooks are enabled"))
	}
	if c.IsProduction() && c.SessionSecret == "" {
		errs = append(errs, errors.New("config: SESSION_SECRET is required in production"))
	}
	return errors.Join(errs...)
}

// reader collects parse failures so Load can report all of them at once.
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

// duration accepts Go durations ("45s") or a bare number of milliseconds.
func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if ms, convErr := strconv.Atoi(v); convErr == nil {
		d, err = time.Duration(ms)*time.Millisecond, nil
	}
	if err != nil || d <= 0 {
		if err == nil {
			err = errors.New("must be positive")
		}
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("config: invalid %s value %q: %w", key, value, err))
}

func (r *reader) err() error {
	return errors.Join(r.errs...)
}
