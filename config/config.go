package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config for the signspeak service
type Config struct {
	// HTTP listen address and optional TLS material
	HTTPAddr string `yaml:"http_addr"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	LogLevel string `yaml:"log_level"`

	// Database DSN. postgres:// URLs use pgx, anything else is a sqlite path.
	DatabaseURL string `yaml:"database_url"`

	// Token signing secret and lifetime
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	// Durable voice/camera settings file
	SettingsPath string `yaml:"settings_path"`

	Camera     CameraConfig     `yaml:"camera"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Voice      VoiceConfig      `yaml:"voice"`
	NATS       NATSConfig       `yaml:"nats"`

	// Queue depth for fire-and-forget history writes
	PersistQueue int `yaml:"persist_queue"`
}

type CameraConfig struct {
	// ffmpeg | spool
	Mode string `yaml:"mode"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	InputFormat string `yaml:"input_format"`
	Device      string `yaml:"device"`

	// Directory watched in spool mode
	SpoolDir string `yaml:"spool_dir"`

	// Captured frames are archived here when set
	ArchiveDir string `yaml:"archive_dir"`

	Timeout time.Duration `yaml:"timeout"`
}

type ClassifierConfig struct {
	// random | gemini | anthropic
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Latency  time.Duration `yaml:"latency"`
	Timeout  time.Duration `yaml:"timeout"`
}

type VoiceConfig struct {
	// espeak | none
	Engine     string `yaml:"engine"`
	EspeakPath string `yaml:"espeak_path"`
	// Output device index, 0 selects the default device
	Device int `yaml:"device"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

const DefaultPath = "config.yaml"

// Load reads the YAML file at path (a missing file is not an error), applies
// environment overrides and fills defaults.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = DefaultPath
		if envPath := os.Getenv("SIGNSPEAK_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		slog.Debug("Loaded config", "path", path)
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("Config file not found, using defaults", "path", path)
	default:
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	envOverride(&cfg.HTTPAddr, "SIGNSPEAK_HTTP_ADDR")
	envOverride(&cfg.CertFile, "SIGNSPEAK_CERT_FILE")
	envOverride(&cfg.KeyFile, "SIGNSPEAK_KEY_FILE")
	envOverride(&cfg.LogLevel, "SIGNSPEAK_LOG_LEVEL")
	envOverride(&cfg.DatabaseURL, "DATABASE_URL")
	envOverride(&cfg.JWTSecret, "SIGNSPEAK_JWT_SECRET")
	envOverrideDuration(&cfg.TokenTTL, "SIGNSPEAK_TOKEN_TTL")
	envOverride(&cfg.SettingsPath, "SIGNSPEAK_SETTINGS_PATH")

	envOverride(&cfg.Camera.Mode, "SIGNSPEAK_CAMERA_MODE")
	envOverride(&cfg.Camera.Device, "SIGNSPEAK_CAMERA_DEVICE")
	envOverride(&cfg.Camera.SpoolDir, "SIGNSPEAK_SPOOL_DIR")
	envOverride(&cfg.Camera.ArchiveDir, "SIGNSPEAK_ARCHIVE_DIR")

	envOverride(&cfg.Classifier.Provider, "SIGNSPEAK_CLASSIFIER")
	envOverride(&cfg.Classifier.Model, "SIGNSPEAK_CLASSIFIER_MODEL")
	switch strings.ToLower(cfg.Classifier.Provider) {
	case "gemini":
		envOverride(&cfg.Classifier.APIKey, "GEMINI_API_KEY")
	case "anthropic":
		envOverride(&cfg.Classifier.APIKey, "ANTHROPIC_API_KEY")
	}

	envOverride(&cfg.Voice.Engine, "SIGNSPEAK_VOICE_ENGINE")
	envOverrideInt(&cfg.Voice.Device, "SIGNSPEAK_VOICE_DEVICE")

	envOverride(&cfg.NATS.URL, "NATS_URL")
	envOverrideInt(&cfg.PersistQueue, "SIGNSPEAK_PERSIST_QUEUE")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":5000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "./signspeak.db"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = "./settings.yaml"
	}
	if cfg.Camera.Mode == "" {
		cfg.Camera.Mode = "ffmpeg"
	}
	if cfg.Camera.FFmpegPath == "" {
		cfg.Camera.FFmpegPath = "ffmpeg"
	}
	if cfg.Camera.InputFormat == "" {
		cfg.Camera.InputFormat = "v4l2"
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.SpoolDir == "" {
		cfg.Camera.SpoolDir = "frames"
	}
	if cfg.Camera.Timeout == 0 {
		cfg.Camera.Timeout = 5 * time.Second
	}
	if cfg.Classifier.Provider == "" {
		cfg.Classifier.Provider = "random"
	}
	cfg.Classifier.Provider = strings.ToLower(cfg.Classifier.Provider)
	if cfg.Classifier.Model == "" {
		switch cfg.Classifier.Provider {
		case "gemini":
			cfg.Classifier.Model = "gemini-2.5-flash"
		case "anthropic":
			cfg.Classifier.Model = "claude-sonnet-4-5"
		}
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 30 * time.Second
	}
	if cfg.Voice.Engine == "" {
		cfg.Voice.Engine = "espeak"
	}
	if cfg.Voice.EspeakPath == "" {
		cfg.Voice.EspeakPath = "espeak-ng"
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "signspeak.results"
	}
	if cfg.PersistQueue <= 0 {
		cfg.PersistQueue = 64
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Camera.Mode {
	case "ffmpeg", "spool":
	default:
		return fmt.Errorf("unknown camera mode %q", c.Camera.Mode)
	}
	switch c.Classifier.Provider {
	case "random":
	case "gemini", "anthropic":
		if c.Classifier.APIKey == "" {
			return fmt.Errorf("classifier %s requires an api key", c.Classifier.Provider)
		}
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Classifier.Provider)
	}
	switch c.Voice.Engine {
	case "espeak", "none":
	default:
		return fmt.Errorf("unknown voice engine %q", c.Voice.Engine)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// IsPostgres reports whether the database URL points at Postgres.
func (c Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") || strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

// ParseLevel maps a textual level to slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func envOverride(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring invalid integer env override", "key", key, "value", v)
		return
	}
	*dst = n
}

func envOverrideDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Ignoring invalid duration env override", "key", key, "value", v)
		return
	}
	*dst = d
}
