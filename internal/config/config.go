package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = 8080
	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultTitleModel  = "mixtral-8x7b-32768"
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	logFormatText      = "text"
	logFormatJSON      = "json"
	maxTemperature     = 2.0
	maxTopP            = 1.0
	dotEnvFile         = ".env"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Upstream UpstreamConfig `yaml:"upstream"`
	UI       UIConfig       `yaml:"ui"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port" env:"GROQCHAT_PORT, overwrite"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"GROQCHAT_LOG_LEVEL, overwrite"`
	Format string `yaml:"format" env:"GROQCHAT_LOG_FORMAT, overwrite"`
}

// UpstreamConfig captures authentication and routing info for the completion API.
type UpstreamConfig struct {
	APIKey       string  `yaml:"api_key" env:"GROQ_API_KEY, overwrite"`
	BaseURL      string  `yaml:"base_url" env:"GROQCHAT_BASE_URL, overwrite"`
	DefaultModel string  `yaml:"default_model" env:"GROQCHAT_DEFAULT_MODEL, overwrite"`
	TitleModel   string  `yaml:"title_model" env:"GROQCHAT_TITLE_MODEL, overwrite"`
	Headers      Headers `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with every upstream request.
type Headers map[string]string

// UIConfig holds the defaults handed to chat clients.
type UIConfig struct {
	FallbackModel string   `yaml:"fallback_model"`
	Temperature   *float64 `yaml:"temperature"`
	TopP          *float64 `yaml:"top_p"`
}

// Load reads the optional YAML file at path, applies environment overrides
// (including a local .env file) and validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotEnvFile, err)
	}
	return LoadWith(context.Background(), path, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit environment source and without .env handling.
func LoadWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, fmt.Errorf("process env config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = DefaultBaseURL
	}
	if c.Upstream.DefaultModel == "" {
		c.Upstream.DefaultModel = DefaultModel
	}
	if c.Upstream.TitleModel == "" {
		c.Upstream.TitleModel = DefaultTitleModel
	}
	if c.UI.FallbackModel == "" {
		c.UI.FallbackModel = DefaultModel
	}
	if c.UI.Temperature == nil {
		v := DefaultTemperature
		c.UI.Temperature = &v
	}
	if c.UI.TopP == nil {
		v := DefaultTopP
		c.UI.TopP = &v
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case logFormatText, logFormatJSON:
	default:
		return fmt.Errorf("log.format %q must be one of %q or %q", c.Log.Format, logFormatText, logFormatJSON)
	}

	if strings.TrimSpace(c.Upstream.APIKey) == "" {
		return errors.New("upstream: api_key must be provided (or set GROQ_API_KEY)")
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return errors.New("upstream: base_url must be provided")
	}
	if strings.TrimSpace(c.Upstream.TitleModel) == "" {
		return errors.New("upstream: title_model must not be empty")
	}
	for headerKey := range c.Upstream.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("upstream: header %q is not a valid canonical HTTP header", headerKey)
		}
	}

	if c.UI.Temperature != nil && (*c.UI.Temperature < 0 || *c.UI.Temperature > maxTemperature) {
		return fmt.Errorf("ui.temperature must be within [0, %g], got %g", maxTemperature, *c.UI.Temperature)
	}
	if c.UI.TopP != nil && (*c.UI.TopP < 0 || *c.UI.TopP > maxTopP) {
		return fmt.Errorf("ui.top_p must be within [0, %g], got %g", maxTopP, *c.UI.TopP)
	}

	return nil
}

// ParseLevel maps a configured level name onto slog.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q must be one of debug, info, warn, error", level)
	}
}

// NewLogger builds the process logger described by the log section.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == logFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
