// Package config loads the process configuration: environment variables
// (with .env support) for secrets and endpoints, plus an optional TOML
// file for pricing and rate-limit tuning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"design-proxy/internal/costs"
)

// LimiterSettings configure one rate limiter.
type LimiterSettings struct {
	MaxRequests   int `toml:"max_requests"`
	WindowSeconds int `toml:"window_seconds"`
}

// Window returns the sliding-window duration.
func (s LimiterSettings) Window() time.Duration {
	return time.Duration(s.WindowSeconds) * time.Second
}

// Config is the assembled process configuration.
type Config struct {
	ServerPort    string
	SessionSecret string
	StoragePath   string
	FigmaBaseURL  string
	OpenAIBaseURL string

	StripeAPIKey         string
	StripePromptItem     string
	StripeCompletionItem string

	Pricing    costs.Pricing
	APIRate    LimiterSettings
	ExportRate LimiterSettings
}

// fileConfig is the TOML override surface.
type fileConfig struct {
	Pricing costs.Pricing `toml:"pricing"`
	Rate    struct {
		API    LimiterSettings `toml:"api"`
		Export LimiterSettings `toml:"export"`
	} `toml:"rate"`
}

// DefaultConfigPath is where the optional TOML file is looked up when
// DESIGN_PROXY_CONFIG is unset.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "design-proxy", "config.toml")
}

// Load reads .env, the environment, and the optional TOML file. A missing
// TOML file leaves the defaults in place; an unreadable one is an error.
func Load() (*Config, error) {
	godotenv.Load()

	pricing, err := costs.DefaultPricing()
	if err != nil {
		return nil, fmt.Errorf("load embedded pricing table: %w", err)
	}

	cfg := &Config{
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		StoragePath:   getEnv("STORAGE_PATH", ""),
		FigmaBaseURL:  getEnv("FIGMA_BASE_URL", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		StripeAPIKey:         getEnv("STRIPE_API_KEY", ""),
		StripePromptItem:     getEnv("STRIPE_PROMPT_ITEM", ""),
		StripeCompletionItem: getEnv("STRIPE_COMPLETION_ITEM", ""),

		Pricing:    pricing,
		APIRate:    LimiterSettings{MaxRequests: 30, WindowSeconds: 10},
		ExportRate: LimiterSettings{MaxRequests: 5, WindowSeconds: 60},
	}

	path := getEnv("DESIGN_PROXY_CONFIG", DefaultConfigPath())
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	overrides := fileConfig{
		Pricing: c.Pricing,
	}
	overrides.Rate.API = c.APIRate
	overrides.Rate.Export = c.ExportRate

	if _, err := toml.DecodeFile(path, &overrides); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	c.Pricing = overrides.Pricing
	c.APIRate = overrides.Rate.API
	c.ExportRate = overrides.Rate.Export
	return nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}
