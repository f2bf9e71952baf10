// Package config loads .env, then the optional YAML file, then environment
// overrides, then defaults and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	Port        string `yaml:"port"`
	FrontendURL string `yaml:"frontend_url"`
	LogLevel    string `yaml:"log_level"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// Google OAuth
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	GoogleRedirectURI  string `yaml:"google_redirect_uri"`
	ExternalURL        string `yaml:"external_url"`

	// LLM
	GeminiAPIKey string `yaml:"gemini_api_key"`
	LLMProvider  string `yaml:"llm_provider"`
	LLMModel     string `yaml:"llm_model"`

	// Scan
	ScanMaxResults int           `yaml:"scan_max_results"`
	ScanWindowDays int           `yaml:"scan_window_days"`
	ScanBodyLimit  int           `yaml:"scan_body_limit"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`
	GmailRPS       float64       `yaml:"gmail_rps"`
}

// Load reads the configuration. path is the YAML file; empty means
// $JOBTRACKER_CONFIG or config.yaml. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = getEnvString("JOBTRACKER_CONFIG", defaultConfigPath)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.FrontendURL, "FRONTEND_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.GoogleClientID, "GOOGLE_CLIENT_ID")
	overrideString(&cfg.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	overrideString(&cfg.GoogleRedirectURI, "GOOGLE_REDIRECT_URI")
	overrideString(&cfg.ExternalURL, "RENDER_EXTERNAL_URL")
	overrideString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	overrideString(&cfg.LLMProvider, "LLM_PROVIDER")
	overrideString(&cfg.LLMModel, "LLM_MODEL")

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	cfg.ScanMaxResults = getEnvInt("SCAN_MAX_RESULTS", cfg.ScanMaxResults)
	cfg.ScanWindowDays = getEnvInt("SCAN_WINDOW_DAYS", cfg.ScanWindowDays)
	cfg.ScanBodyLimit = getEnvInt("SCAN_BODY_LIMIT", cfg.ScanBodyLimit)
	cfg.ScanTimeout = getEnvDuration("SCAN_TIMEOUT", cfg.ScanTimeout)
	cfg.GmailRPS = getEnvFloat("GMAIL_RPS", cfg.GmailRPS)
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:5173"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{cfg.FrontendURL}
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "langchain"
	}
	if cfg.LLMModel == "" {
		cfg.LLMModel = "gemini-2.0-flash"
	}
	if cfg.ScanMaxResults <= 0 {
		cfg.ScanMaxResults = 500
	}
	if cfg.ScanWindowDays <= 0 {
		cfg.ScanWindowDays = 45
	}
	if cfg.ScanBodyLimit <= 0 {
		cfg.ScanBodyLimit = 8000
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 5 * time.Minute
	}
	if cfg.GmailRPS <= 0 {
		cfg.GmailRPS = 10
	}
	// The Postgres driver rejects the deprecated scheme some hosts hand out.
	if strings.HasPrefix(cfg.DatabaseURL, "postgres://") {
		cfg.DatabaseURL = "postgresql://" + strings.TrimPrefix(cfg.DatabaseURL, "postgres://")
	}
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration is not set: %v", missing)
	}
	switch c.LLMProvider {
	case "langchain", "genai":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (want langchain or genai)", c.LLMProvider)
	}
	return nil
}

// RedirectURL is the OAuth callback URL. A hosted external URL wins over
// the configured redirect so login and callback always agree.
func (c *Config) RedirectURL() string {
	if c.ExternalURL != "" {
		return strings.TrimSuffix(c.ExternalURL, "/") + "/auth/callback"
	}
	if c.GoogleRedirectURI != "" {
		return c.GoogleRedirectURI
	}
	return "http://localhost:8000/auth/callback"
}

// MaskedDatabaseHost returns the part of the database URL after the
// credentials, for startup logs.
func (c *Config) MaskedDatabaseHost() string {
	if i := strings.LastIndex(c.DatabaseURL, "@"); i >= 0 {
		return c.DatabaseURL[i+1:]
	}
	return "NO_CREDENTIALS_FOUND"
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
