package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvGeminiAPIKey provides the Gemini API credential. Required;
	// never read from the TOML file.
	EnvGeminiAPIKey = "GEMINI_API_KEY"

	// EnvGeminiBaseURL overrides the Gemini API base URL.
	EnvGeminiBaseURL = "GEMINI_BASE_URL"

	// EnvGeminiModels overrides the ordered model fallback list (comma-separated).
	EnvGeminiModels = "GEMINI_MODELS"

	// EnvGeminiMaxAttempts overrides the per-model retry attempt limit.
	EnvGeminiMaxAttempts = "GEMINI_MAX_ATTEMPTS"

	// EnvGeminiBaseDelay overrides the linear backoff base delay.
	EnvGeminiBaseDelay = "GEMINI_BASE_DELAY"

	// EnvGeminiRequestTimeout overrides the per-request timeout.
	EnvGeminiRequestTimeout = "GEMINI_REQUEST_TIMEOUT"

	// EnvGeminiRelevanceCheck toggles the preliminary relevance check.
	EnvGeminiRelevanceCheck = "GEMINI_RELEVANCE_CHECK"

	// EnvGeminiSchemaVersion overrides the requested response schema version.
	EnvGeminiSchemaVersion = "GEMINI_SCHEMA_VERSION"
)

// GeminiConfig contains configuration for the Gemini extraction capability.
type GeminiConfig struct {
	BaseURL        string   `toml:"base_url"`
	Models         []string `toml:"models"`
	MaxAttempts    int      `toml:"max_attempts"`
	BaseDelay      string   `toml:"base_delay"`
	RequestTimeout string   `toml:"request_timeout"`
	RelevanceCheck bool     `toml:"relevance_check"`
	SchemaVersion  int      `toml:"schema_version"`

	apiKey string
}

// APIKey returns the Gemini API credential loaded from the environment.
func (c *GeminiConfig) APIKey() string {
	return c.apiKey
}

// BaseDelayDuration parses and returns the backoff base delay as a time.Duration.
func (c *GeminiConfig) BaseDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.BaseDelay)
	return d
}

// RequestTimeoutDuration parses and returns the per-request timeout as a time.Duration.
func (c *GeminiConfig) RequestTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	return d
}

// Finalize applies defaults, loads environment overrides, and validates the Gemini configuration.
func (c *GeminiConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *GeminiConfig) Merge(overlay *GeminiConfig) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.Models != nil {
		c.Models = overlay.Models
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.BaseDelay != "" {
		c.BaseDelay = overlay.BaseDelay
	}
	if overlay.RequestTimeout != "" {
		c.RequestTimeout = overlay.RequestTimeout
	}
	if overlay.SchemaVersion != 0 {
		c.SchemaVersion = overlay.SchemaVersion
	}
	c.RelevanceCheck = overlay.RelevanceCheck
}

func (c *GeminiConfig) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if len(c.Models) == 0 {
		c.Models = []string{"gemini-2.5-flash", "gemini-2.0-flash"}
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == "" {
		c.BaseDelay = "1s"
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = "90s"
	}
	if c.SchemaVersion == 0 {
		c.SchemaVersion = 1
	}
}

func (c *GeminiConfig) loadEnv() {
	c.apiKey = os.Getenv(EnvGeminiAPIKey)

	if v := os.Getenv(EnvGeminiBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvGeminiModels); v != "" {
		c.Models = splitList(v)
	}
	if v := os.Getenv(EnvGeminiMaxAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
	if v := os.Getenv(EnvGeminiBaseDelay); v != "" {
		c.BaseDelay = v
	}
	if v := os.Getenv(EnvGeminiRequestTimeout); v != "" {
		c.RequestTimeout = v
	}
	if v := os.Getenv(EnvGeminiRelevanceCheck); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RelevanceCheck = b
		}
	}
	if v := os.Getenv(EnvGeminiSchemaVersion); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SchemaVersion = n
		}
	}
}

func (c *GeminiConfig) validate() error {
	if c.apiKey == "" {
		return fmt.Errorf("%s required", EnvGeminiAPIKey)
	}
	if !strings.HasPrefix(c.BaseURL, "http") {
		return fmt.Errorf("invalid base_url: %q", c.BaseURL)
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive")
	}
	if c.SchemaVersion < 1 || c.SchemaVersion > 2 {
		return fmt.Errorf("unsupported schema_version: %d", c.SchemaVersion)
	}
	if _, err := time.ParseDuration(c.BaseDelay); err != nil {
		return fmt.Errorf("invalid base_delay: %w", err)
	}
	if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
		return fmt.Errorf("invalid request_timeout: %w", err)
	}
	return nil
}
