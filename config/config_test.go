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

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, "./signspeak.db", cfg.DatabaseURL)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "ffmpeg", cfg.Camera.Mode)
	assert.Equal(t, "random", cfg.Classifier.Provider)
	assert.Equal(t, "espeak", cfg.Voice.Engine)
	assert.Equal(t, "signspeak.results", cfg.NATS.Subject)
	assert.Equal(t, 64, cfg.PersistQueue)
	assert.False(t, cfg.IsPostgres())
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
http_addr: ":9000"
database_url: "postgres://u:p@localhost:5432/signs"
token_ttl: 2h
camera:
  mode: spool
  spool_dir: /tmp/frames
classifier:
  provider: Gemini
  api_key: k
voice:
  engine: none
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.True(t, cfg.IsPostgres())
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, "spool", cfg.Camera.Mode)
	assert.Equal(t, "/tmp/frames", cfg.Camera.SpoolDir)
	assert.Equal(t, "gemini", cfg.Classifier.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Classifier.Model)
	assert.Equal(t, "none", cfg.Voice.Engine)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIGNSPEAK_HTTP_ADDR", ":7000")
	t.Setenv("SIGNSPEAK_CLASSIFIER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "secret")
	t.Setenv("SIGNSPEAK_PERSIST_QUEUE", "8")
	t.Setenv("SIGNSPEAK_TOKEN_TTL", "90m")

	cfg, err := Load(writeConfig(t, "http_addr: \":9000\"\n"))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "anthropic", cfg.Classifier.Provider)
	assert.Equal(t, "secret", cfg.Classifier.APIKey)
	assert.Equal(t, 8, cfg.PersistQueue)
	assert.Equal(t, 90*time.Minute, cfg.TokenTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown camera", "camera:\n  mode: webrtc\n"},
		{"llm without key", "classifier:\n  provider: gemini\n"},
		{"unknown provider", "classifier:\n  provider: oracle\n"},
		{"unknown voice", "voice:\n  engine: festival\n"},
		{"cert without key", "cert_file: a.pem\n"},
		{"bad level", "log_level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "http_addr: [unterminated\n"))
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
}
