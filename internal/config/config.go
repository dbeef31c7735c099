package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the tab saver.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Optional local Chromium launch when nothing listens on the CDP port
	BrowserLaunch     bool
	BrowserBinary     string
	BrowserProfileDir string

	// Control API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Logging
	LogLevel string
	LogFile  string

	// Persisted options (API token, last error)
	OptionsFile string

	// Readwise save API
	SaveURL          string
	SourceTag        string
	RequestTimeoutMS int

	// Batch pacing
	BatchSize           int
	RetryLimit          int
	BatchDelayMS        int
	DefaultRetryAfterMS int

	// Notifications; empty endpoint means log only
	NTFYEndpoint string

	// Optional YAML file with extra tab suspender definitions
	SuspendersFile string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:          getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:             getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BrowserLaunch:       getEnvBoolOrDefault("TABKONDO_BROWSER_LAUNCH", false),
		BrowserBinary:       getEnvOrDefault("TABKONDO_BROWSER_BINARY", ""),
		BrowserProfileDir:   getEnvOrDefault("TABKONDO_BROWSER_PROFILE_DIR", "./data/chromium-profile"),
		BindAddr:            getEnvOrDefault("TABKONDO_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:      getEnvListOrDefault("TABKONDO_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback:    getEnvBoolOrDefault("TABKONDO_PORT_AUTO_FALLBACK", true),
		LogLevel:            strings.ToLower(getEnvOrDefault("TABKONDO_LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("TABKONDO_LOG_FILE", "logs/tabkondo.log"),
		OptionsFile:         getEnvOrDefault("TABKONDO_OPTIONS_FILE", "./data/options.json"),
		SaveURL:             getEnvOrDefault("READWISE_SAVE_URL", "https://readwise.io/api/v3/save/"),
		SourceTag:           getEnvOrDefault("TABKONDO_SOURCE_TAG", "TabKondo"),
		RequestTimeoutMS:    getEnvIntOrDefault("TABKONDO_REQUEST_TIMEOUT_MS", 30000),
		BatchSize:           getEnvIntOrDefault("TABKONDO_BATCH_SIZE", 2),
		RetryLimit:          getEnvIntOrDefault("TABKONDO_RETRY_LIMIT", 2),
		BatchDelayMS:        getEnvIntOrDefault("TABKONDO_BATCH_DELAY_MS", 1500),
		DefaultRetryAfterMS: getEnvIntOrDefault("TABKONDO_RETRY_AFTER_DEFAULT_MS", 2000),
		NTFYEndpoint:        getEnvOrDefault("TABKONDO_NTFY_ENDPOINT", ""),
		SuspendersFile:      getEnvOrDefault("TABKONDO_SUSPENDERS_FILE", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the batch runner cannot work with.
func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("config: TABKONDO_BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if c.RetryLimit < 1 {
		return fmt.Errorf("config: TABKONDO_RETRY_LIMIT must be >= 1, got %d", c.RetryLimit)
	}
	if c.BatchDelayMS < 0 {
		return fmt.Errorf("config: TABKONDO_BATCH_DELAY_MS must be >= 0, got %d", c.BatchDelayMS)
	}
	if c.DefaultRetryAfterMS < 0 {
		return fmt.Errorf("config: TABKONDO_RETRY_AFTER_DEFAULT_MS must be >= 0, got %d", c.DefaultRetryAfterMS)
	}
	if c.RequestTimeoutMS < 1000 {
		c.RequestTimeoutMS = 1000
	}
	return nil
}

// CDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

func (c *Config) DefaultRetryAfter() time.Duration {
	return time.Duration(c.DefaultRetryAfterMS) * time.Millisecond
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
