package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBackendURL = "http://localhost:5000"

	// Matches the dashboard's 3 second handoff refresh.
	DefaultPollInterval    = 3 * time.Second
	DefaultPollMaxInterval = 30 * time.Second
	DefaultPollTimeout     = 10 * time.Second
	DefaultStallAfter      = 5

	DefaultNearBottomThreshold = 150
	DefaultAutoScrollSettle    = 500 * time.Millisecond
)

// Config holds application configuration
type Config struct {
	BackendURL string `yaml:"backend_url"`
	BotID      string `yaml:"bot_id"`
	Debug      bool   `yaml:"debug"`

	// Polling of handoff messages
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxInterval time.Duration `yaml:"poll_max_interval"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	StallAfter      int           `yaml:"stall_after"` // consecutive failures before the user is told

	// Scroll pinning
	NearBottomThreshold int           `yaml:"near_bottom_threshold"`
	AutoScrollSettle    time.Duration `yaml:"auto_scroll_settle"`

	LogDir      string `yaml:"log_dir"`
	ArchivePath string `yaml:"archive_path"` // empty disables the sqlite archive

	// Agent console
	AgentEmail string `yaml:"agent_email"`

	// Relay
	RelayAddr      string   `yaml:"relay_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() Config {
	return Config{
		BackendURL:          DefaultBackendURL,
		PollInterval:        DefaultPollInterval,
		PollMaxInterval:     DefaultPollMaxInterval,
		PollTimeout:         DefaultPollTimeout,
		StallAfter:          DefaultStallAfter,
		NearBottomThreshold: DefaultNearBottomThreshold,
		AutoScrollSettle:    DefaultAutoScrollSettle,
		LogDir:              "logs",
		RelayAddr:           ":8090",
	}
}

// Load builds a Config from defaults, an optional YAML file at path and the
// environment, in that order of precedence. It does not validate: callers
// layer flags on top and call Validate afterwards.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func getEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) applyEnv() {
	if v := getEnv("BACKEND_URL", "VITE_BACKEND_URL"); v != "" {
		c.BackendURL = v
	}
	if v := getEnv("TASTECHAT_BOT_ID"); v != "" {
		c.BotID = v
	}
	if v := getEnv("TASTECHAT_ARCHIVE"); v != "" {
		c.ArchivePath = v
	}
	if v := getEnv("TASTECHAT_AGENT_EMAIL"); v != "" {
		c.AgentEmail = v
	}
	if v := getEnv("TASTECHAT_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		c.Debug = true
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return errors.New("backend URL must be set (BACKEND_URL or --backend-url)")
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("backend URL must be http(s): %q", c.BackendURL)
	}
	c.BackendURL = strings.TrimRight(c.BackendURL, "/")

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.PollMaxInterval < c.PollInterval {
		c.PollMaxInterval = c.PollInterval
	}
	if c.StallAfter < 1 {
		c.StallAfter = 1
	}
	if c.NearBottomThreshold < 0 {
		return fmt.Errorf("near-bottom threshold must not be negative, got %d", c.NearBottomThreshold)
	}
	return nil
}
