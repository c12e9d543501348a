package monitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.ExtractEndpoints {
		t.Error("endpoint extraction should default on")
	}
	if !cfg.AnalyzeSimilarity {
		t.Error("similarity analysis should default on")
	}
	if cfg.DataDir == "" {
		t.Error("data dir should have a default")
	}
	if cfg.Interval <= 0 {
		t.Error("interval should have a positive default")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no targets", func(c *Config) { c.Targets = nil }, true},
		{"no data dir", func(c *Config) { c.DataDir = "" }, true},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }, true},
		{"unusable target", func(c *Config) { c.Targets = []string{"   "} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Targets = []string{"https://example.com"}
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
targets:
  - https://example.com
data_dir: /tmp/sentry-data
webhook_url: https://discord.example/webhook
force_reextract: true
filters:
  exclude_domain:
    - tracker.
endpoint_patterns:
  custom_patterns:
    - '["''](/internal/[^"'']+)["'']'
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if len(cfg.Targets) != 1 || cfg.Targets[0] != "https://example.com" {
		t.Errorf("targets = %v", cfg.Targets)
	}
	if cfg.DataDir != "/tmp/sentry-data" {
		t.Errorf("data dir = %s", cfg.DataDir)
	}
	if !cfg.ForceReextract {
		t.Error("force_reextract not loaded")
	}
	if len(cfg.Filters.ExcludeDomain) != 1 {
		t.Errorf("filters = %+v", cfg.Filters)
	}
	if len(cfg.EndpointPatterns["custom_patterns"]) != 1 {
		t.Errorf("endpoint patterns = %v", cfg.EndpointPatterns)
	}

	// Defaults survive partial files.
	if !cfg.ExtractEndpoints {
		t.Error("defaults should fill unspecified fields")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"targets": ["https://example.com"], "static_only": true}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if !cfg.StaticOnly {
		t.Error("static_only not loaded from JSON")
	}
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Targets = []string{"https://example.com"}
	cfg.WebhookURL = "https://discord.example/webhook"

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.WebhookURL != cfg.WebhookURL {
		t.Errorf("webhook URL = %s, want %s", loaded.WebhookURL, cfg.WebhookURL)
	}
}
