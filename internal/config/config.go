package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for leakctl
type Config struct {
	// API access
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	UA      string `yaml:"ua" json:"ua"`

	// Pacing and retries
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	RetryMaxSec       int     `yaml:"retry_max_sec" json:"retry_max_sec"`

	// Cache
	CachePath string `yaml:"cache_path" json:"cache_path"`
	NoCache   bool   `yaml:"no_cache" json:"no_cache"`

	// Observability
	LogLevel     string `yaml:"log_level" json:"log_level"`
	MetricsAddr  string `yaml:"metrics_addr" json:"metrics_addr"`
	OTELEndpoint string `yaml:"otel_endpoint" json:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure" json:"otel_insecure"`
	OTELService  string `yaml:"otel_service" json:"otel_service"`

	// Redis (shared cache and cross-run dedup)
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://leakix.net"
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 0.8
	}
	if c.RetryMaxSec == 0 {
		c.RetryMaxSec = 30
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.OTELService == "" {
		c.OTELService = "leakctl"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.RetryMaxSec < 0 {
		return fmt.Errorf("retry_max_sec must not be negative")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// MergeWithFlags merges command-line flags with file configuration
// Command-line flags take precedence over file configuration
func (c *Config) MergeWithFlags(flags map[string]interface{}) {
	if v, ok := flags["api_key"].(string); ok && v != "" {
		c.APIKey = v
	}
	if v, ok := flags["base_url"].(string); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := flags["ua"].(string); ok && v != "" {
		c.UA = v
	}
	if v, ok := flags["requests_per_second"].(float64); ok && v > 0 {
		c.RequestsPerSecond = v
	}
	if v, ok := flags["retry_max_sec"].(int); ok && v > 0 {
		c.RetryMaxSec = v
	}
	if v, ok := flags["cache_path"].(string); ok && v != "" {
		c.CachePath = v
	}
	if v, ok := flags["no_cache"].(bool); ok {
		c.NoCache = v
	}
	if v, ok := flags["log_level"].(string); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := flags["metrics_addr"].(string); ok && v != "" {
		c.MetricsAddr = v
	}
	if v, ok := flags["otel_endpoint"].(string); ok && v != "" {
		c.OTELEndpoint = v
	}
	if v, ok := flags["otel_insecure"].(bool); ok {
		c.OTELInsecure = v
	}
	if v, ok := flags["otel_service"].(string); ok && v != "" {
		c.OTELService = v
	}
	if v, ok := flags["redis_addr"].(string); ok && v != "" {
		c.RedisAddr = v
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("LEAKIX_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("LEAKCTL_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LEAKCTL_CACHE_PATH"); v != "" {
		c.CachePath = v
	}
	if v := os.Getenv("LEAKCTL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
}
