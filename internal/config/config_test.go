package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.WebhooksEnabled())
	assert.Equal(t, "data/forkwatch.db", cfg.DatabaseURL)
	assert.Equal(t, 10*time.Second, cfg.StoreConnectTimeout)
	assert.Equal(t, 45*time.Second, cfg.StoreOpTimeout)
	assert.Equal(t, 45*time.Second, cfg.GitHubTimeout)
	assert.Equal(t, "http://localhost:8080", cfg.AppURL)
	assert.Equal(t, "http://localhost:8080/auth/github/callback", cfg.GitHubCallbackURL)
	assert.Equal(t, "http://localhost:8080/api/webhook", cfg.WebhookCallbackURL())
	assert.Equal(t, "smtp.resend.com", cfg.SMTPHost)
	assert.Equal(t, 465, cfg.SMTPPort)
	assert.Equal(t, "Asia/Kolkata", cfg.NotifyTimezone)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.AuthEnabled())
}

func TestFromLookup_Production(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"APP_ENV":        "production",
		"APP_URL":        "https://forkwatch.example.com/",
		"SESSION_SECRET": "0123456789abcdef0123",
		"LOG_LEVEL":      "warn",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.WebhooksEnabled())
	assert.Equal(t, "https://forkwatch.example.com/api/webhook", cfg.WebhookCallbackURL())
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestFromLookup_WebhooksOverride(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"APP_ENV":          "production",
		"APP_URL":          "https://forkwatch.example.com",
		"SESSION_SECRET":   "0123456789abcdef0123",
		"WEBHOOKS_ENABLED": "false",
	}))
	require.NoError(t, err)
	assert.False(t, cfg.WebhooksEnabled())
}

func TestFromLookup_EmailKeyAlias(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"EMAIL_API_KEY": "re_alias"}))
	require.NoError(t, err)
	assert.Equal(t, "re_alias", cfg.EmailAPIKey)

	cfg, err = FromLookup(lookupFrom(map[string]string{
		"EMAIL_API_KEY":  "re_alias",
		"RESEND_API_KEY": "re_primary",
	}))
	require.NoError(t, err)
	assert.Equal(t, "re_primary", cfg.EmailAPIKey)
}

func TestFromLookup_Durations(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"STORE_OP_TIMEOUT": "2500",
		"GITHUB_TIMEOUT":   "3s",
	}))
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.StoreOpTimeout)
	assert.Equal(t, 3*time.Second, cfg.GitHubTimeout)
}

func TestFromLookup_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "eighty"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"unknown env", map[string]string{"APP_ENV": "staging"}},
		{"short session secret", map[string]string{"SESSION_SECRET": "short"}},
		{"bad duration", map[string]string{"STORE_OP_TIMEOUT": "soon"}},
		{"negative duration", map[string]string{"GITHUB_TIMEOUT": "-1s"}},
		{"bad bool", map[string]string{"WEBHOOK_STRICT_STATUS": "maybe"}},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
		{"bad timezone", map[string]string{"NOTIFY_TIMEZONE": "Mars/Olympus"}},
		{"production without secret", map[string]string{"APP_ENV": "production", "APP_URL": "https://x.example.com"}},
		{"webhooks on localhost", map[string]string{"WEBHOOKS_ENABLED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FORKWATCH_CONFIG_TEST_PORT=1\nWEBHOOK_STRICT_STATUS=true\n"), 0o600))
	t.Setenv("WEBHOOK_STRICT_STATUS", "")
	os.Unsetenv("WEBHOOK_STRICT_STATUS")
	t.Cleanup(func() { os.Unsetenv("FORKWATCH_CONFIG_TEST_PORT") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.WebhookStrictStatus)
	assert.Equal(t, "1", os.Getenv("FORKWATCH_CONFIG_TEST_PORT"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err, "an explicitly named env file must exist")
}
