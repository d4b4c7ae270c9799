package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Recognizer backends.
const (
	RecognizerGemini = "gemini"
	RecognizerLocal  = "local"
)

// Config represents the application configuration.
type Config struct {
	DatabaseURL    string   `json:"database_url"`
	Port           string   `json:"port"`
	APIPrefix      string   `json:"api_prefix"`
	AllowedOrigins []string `json:"allowed_origins"`
	LogLevel       string   `json:"log_level"`

	FetchTimeout time.Duration `json:"-"`

	Recognizer    string `json:"recognizer"`
	GeminiAPIKey  string `json:"gemini_api_key"`
	GeminiModel   string `json:"gemini_model"`
	LocalLLMURL   string `json:"local_llm_url"`
	LocalLLMModel string `json:"local_llm_model"`
	LocalLLMKey   string `json:"local_llm_api_key"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Port:           "8080",
		APIPrefix:      "/api",
		AllowedOrigins: []string{"*"},
		LogLevel:       "info",
		FetchTimeout:   30 * time.Second,
		Recognizer:     RecognizerGemini,
	}
}

// Load builds the configuration from a .env file, an optional JSON config
// file (CONFIG_FILE, default config.json), and the environment, in that
// order of increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.json"
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file struct {
		*Config
		FetchTimeout string `json:"fetch_timeout"`
	}
	file.Config = c
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	if file.FetchTimeout != "" {
		d, err := time.ParseDuration(file.FetchTimeout)
		if err != nil {
			return fmt.Errorf("invalid fetch_timeout in %s: %w", path, err)
		}
		c.FetchTimeout = d
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.Port, "PORT")
	setString(&c.APIPrefix, "API_PREFIX")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Recognizer, "RECOGNIZER")
	setString(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.GeminiModel, "GEMINI_MODEL")
	setString(&c.LocalLLMURL, "LOCAL_LLM_URL")
	setString(&c.LocalLLMModel, "LOCAL_LLM_MODEL")
	setString(&c.LocalLLMKey, "LOCAL_LLM_API_KEY")

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.AllowedOrigins = origins
	}

	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FETCH_TIMEOUT: %w", err)
		}
		c.FetchTimeout = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the configuration can start the server. A missing
// recognizer credential is not an error here; image imports report it.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		return fmt.Errorf("API_PREFIX must start with '/': %q", c.APIPrefix)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	switch c.Recognizer {
	case RecognizerGemini, RecognizerLocal:
	default:
		return fmt.Errorf("unknown RECOGNIZER %q", c.Recognizer)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
