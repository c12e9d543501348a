package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/ScriptSentry/internal/fetch"
	"github.com/PentesterFlow/ScriptSentry/internal/loader"
)

// Filters restricts which discovered script URLs are processed.
type Filters struct {
	// Substrings the script's domain must contain (any match).
	IncludeDomain []string `json:"include_domain" yaml:"include_domain"`

	// Substrings that exclude a script's domain (any match).
	ExcludeDomain []string `json:"exclude_domain" yaml:"exclude_domain"`

	// Regexes the script URL must match (any match).
	IncludeURL []string `json:"include_url" yaml:"include_url"`

	// Regexes that exclude a script URL (any match).
	ExcludeURL []string `json:"exclude_url" yaml:"exclude_url"`
}

// Config holds all monitor configuration.
type Config struct {
	// Target page URLs to scan
	Targets []string `json:"targets" yaml:"targets"`

	// Directory holding all persisted per-domain state
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Endpoint pattern categories (category name -> regexes)
	EndpointPatterns map[string][]string `json:"endpoint_patterns" yaml:"endpoint_patterns"`

	// Enable endpoint extraction
	ExtractEndpoints bool `json:"extract_endpoints" yaml:"extract_endpoints"`

	// Enable rename detection
	AnalyzeSimilarity bool `json:"analyze_similarity" yaml:"analyze_similarity"`

	// Re-extract endpoints from unchanged assets
	ForceReextract bool `json:"force_reextract" yaml:"force_reextract"`

	// Script URL filters
	Filters Filters `json:"filters" yaml:"filters"`

	// Browser configuration
	Browser loader.BrowserConfig `json:"browser" yaml:"browser"`

	// Disable the browser entirely and use static page loading
	StaticOnly bool `json:"static_only" yaml:"static_only"`

	// HTTP fetcher configuration
	Fetch fetch.Config `json:"fetch" yaml:"fetch"`

	// Custom headers sent with every request
	CustomHeaders map[string]string `json:"custom_headers" yaml:"custom_headers"`

	// Discord webhook URL for scan summaries (empty disables)
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`

	// Path of the scan history database (empty disables the journal)
	HistoryDB string `json:"history_db" yaml:"history_db"`

	// Delay between scan cycles in watch mode
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:           "data",
		EndpointPatterns:  nil, // filled from config file or CLI; nil keeps tree harvesting only
		ExtractEndpoints:  true,
		AnalyzeSimilarity: true,
		Browser:           loader.DefaultBrowserConfig(),
		Fetch:             fetch.DefaultConfig(),
		Interval:          15 * time.Minute,
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target URL is required")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}

	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}

	for _, target := range c.Targets {
		if NormalizeTargetURL(target) == "" {
			return fmt.Errorf("invalid target URL: %s", target)
		}
	}

	return nil
}
