package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	t.Setenv("VITE_BACKEND_URL", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackendURL != DefaultBackendURL {
		t.Errorf("BackendURL = %q, want %q", cfg.BackendURL, DefaultBackendURL)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %s, want 3s", cfg.PollInterval)
	}
	if cfg.NearBottomThreshold != 150 {
		t.Errorf("NearBottomThreshold = %d, want 150", cfg.NearBottomThreshold)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tastechat.yaml")
	content := []byte("backend_url: https://file.example.com/\npoll_interval: 5s\nbot_id: bot-1\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BACKEND_URL", "")
	t.Setenv("VITE_BACKEND_URL", "https://vite.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackendURL != "https://vite.example.com" {
		t.Errorf("BackendURL = %q, env should win over file", cfg.BackendURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", cfg.PollInterval)
	}
	if cfg.BotID != "bot-1" {
		t.Errorf("BotID = %q, want bot-1", cfg.BotID)
	}
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tastechat.yaml")
	if err := os.WriteFile(path, []byte("backend_url: ftp://old.example.com\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BACKEND_URL", "")
	t.Setenv("VITE_BACKEND_URL", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("file URL alone should not validate")
	}

	cfg.BackendURL = "https://flag.example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("overridden config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"empty url", func(c *Config) { c.BackendURL = "" }, true},
		{"bad scheme", func(c *Config) { c.BackendURL = "ftp://x" }, true},
		{"zero interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"negative threshold", func(c *Config) { c.NearBottomThreshold = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTrimsAndClamps(t *testing.T) {
	cfg := Default()
	cfg.BackendURL = "http://localhost:5000///"
	cfg.PollMaxInterval = time.Second
	cfg.StallAfter = 0
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.BackendURL != "http://localhost:5000" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.PollMaxInterval != cfg.PollInterval {
		t.Errorf("PollMaxInterval = %s, want clamp to %s", cfg.PollMaxInterval, cfg.PollInterval)
	}
	if cfg.StallAfter != 1 {
		t.Errorf("StallAfter = %d, want 1", cfg.StallAfter)
	}
}
