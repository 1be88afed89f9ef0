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

// Config holds process configuration for the interceptor.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Control API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Logging
	LogLevel string
	LogFile  string

	// Capture policy file (YAML)
	PolicyFile string

	// Download manager hand-off
	HandoffTimeoutMS int

	// Decision journal
	JournalEnabled   bool
	JournalDir       string
	JournalMaxSizeMB int

	// Passive mode skips the Fetch domain and cancels through the browser
	// download events instead.
	Passive bool

	// Browser launch
	LaunchBrowser bool
	BrowserPath   string
	ProfileDir    string
	StartURL      string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		BindAddr:         getEnvOrDefault("LINKGRABBER_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("LINKGRABBER_BIND_FALLBACKS", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback: getEnvBoolOrDefault("LINKGRABBER_BIND_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("LINKGRABBER_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("LINKGRABBER_LOG_FILE", "logs/linkgrabber.log"),
		PolicyFile:       getEnvOrDefault("LINKGRABBER_POLICY_FILE", "policy.yaml"),
		HandoffTimeoutMS: getEnvIntOrDefault("LINKGRABBER_HANDOFF_TIMEOUT_MS", 5000),
		JournalEnabled:   getEnvBoolOrDefault("LINKGRABBER_JOURNAL", true),
		JournalDir:       getEnvOrDefault("LINKGRABBER_JOURNAL_DIR", "./journal"),
		JournalMaxSizeMB: getEnvIntOrDefault("LINKGRABBER_JOURNAL_MAX_SIZE_MB", 50),
		Passive:          getEnvBoolOrDefault("LINKGRABBER_PASSIVE", false),
		LaunchBrowser:    getEnvBoolOrDefault("LINKGRABBER_LAUNCH_BROWSER", false),
		BrowserPath:      getEnvOrDefault("LINKGRABBER_BROWSER_PATH", ""),
		ProfileDir:       getEnvOrDefault("LINKGRABBER_PROFILE_DIR", "./browser_profile"),
		StartURL:         getEnvOrDefault("LINKGRABBER_START_URL", "about:blank"),
	}
	if cfg.HandoffTimeoutMS < 500 {
		cfg.HandoffTimeoutMS = 500
	}
	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("config: invalid CHROMIUM_CDP_PORT %d", cfg.CDPPort)
	}

	return cfg, nil
}

// GetCDPURL returns the full CDP HTTP endpoint used by chromedp remote allocator.
func (c *Config) GetCDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func (c *Config) HandoffTimeout() time.Duration {
	return time.Duration(c.HandoffTimeoutMS) * time.Millisecond
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
	return out
}
