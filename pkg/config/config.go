// Package config loads gateway configuration from a YAML file with
// environment variable overrides. Precedence: defaults < file < environment.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway process.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	AI       AIConfig       `yaml:"ai"`
	Commerce CommerceConfig `yaml:"commerce"`
	Store    StoreConfig    `yaml:"store"`
	Orders   OrdersConfig   `yaml:"orders"`
	Log      LogConfig      `yaml:"log"`
}

// GatewayConfig covers the HTTP/WebSocket surface and the chat transport.
type GatewayConfig struct {
	Host              string `yaml:"host" env:"GATEWAY_HOST"`
	Port              int    `yaml:"port" env:"GATEWAY_PORT"`
	APIKey            string `yaml:"api_key" env:"GATEWAY_API_KEY"`
	CountryCode       string `yaml:"country_code" env:"GATEWAY_COUNTRY_CODE"`
	BridgeURL         string `yaml:"bridge_url" env:"GATEWAY_BRIDGE_URL"`
	ReconnectDelaySec int    `yaml:"reconnect_delay_sec" env:"GATEWAY_RECONNECT_DELAY_SEC"`
	MaxReconnects     int    `yaml:"max_reconnects" env:"GATEWAY_MAX_RECONNECTS"`
}

// AIConfig selects and parameterizes the LLM provider.
type AIConfig struct {
	Provider        string  `yaml:"provider" env:"AI_PROVIDER"` // openai | anthropic
	APIKey          string  `yaml:"api_key" env:"AI_API_KEY"`
	Model           string  `yaml:"model" env:"AI_MODEL"`
	Temperature     float64 `yaml:"temperature" env:"AI_TEMPERATURE"`
	MaxOutputTokens int     `yaml:"max_output_tokens" env:"AI_MAX_OUTPUT_TOKENS"`
	MaxToolRounds   int     `yaml:"max_tool_rounds" env:"AI_MAX_TOOL_ROUNDS"`
	HistoryLimit    int     `yaml:"history_limit" env:"AI_HISTORY_LIMIT"`
	SystemPrompt    string  `yaml:"system_prompt" env:"AI_SYSTEM_PROMPT"`
}

// CommerceConfig points at the commerce backend REST API. An empty base URL
// switches order persistence to the in-memory repository.
type CommerceConfig struct {
	BaseURL    string `yaml:"base_url" env:"COMMERCE_BASE_URL"`
	APIToken   string `yaml:"api_token" env:"COMMERCE_API_TOKEN"`
	TimeoutSec int    `yaml:"timeout_sec" env:"COMMERCE_TIMEOUT_SEC"`
}

// StoreConfig locates the local conversation store.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path" env:"STORE_SQLITE_PATH"`
}

// OrdersConfig tunes the pending-order sweeper.
type OrdersConfig struct {
	SweepCron      string `yaml:"sweep_cron" env:"ORDERS_SWEEP_CRON"`
	PendingTTLMin  int    `yaml:"pending_ttl_min" env:"ORDERS_PENDING_TTL_MIN"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
	JSON  bool   `yaml:"json" env:"LOG_JSON"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:              "127.0.0.1",
			Port:              8089,
			CountryCode:       "62",
			BridgeURL:         "ws://127.0.0.1:3001/session",
			ReconnectDelaySec: 5,
			MaxReconnects:     100,
		},
		AI: AIConfig{
			Provider:        "openai",
			Temperature:     0.6,
			MaxOutputTokens: 1024,
			MaxToolRounds:   8,
			HistoryLimit:    20,
		},
		Commerce: CommerceConfig{TimeoutSec: 15},
		Store:    StoreConfig{SQLitePath: "gateway.db"},
		Orders: OrdersConfig{
			SweepCron:     "*/30 * * * *",
			PendingTTLMin: 720,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (missing file is not an error) and applies
// environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Gateway.CountryCode == "" {
		return fmt.Errorf("gateway.country_code must not be empty")
	}
	if c.AI.Provider != "openai" && c.AI.Provider != "anthropic" {
		return fmt.Errorf("ai.provider must be openai or anthropic, got %q", c.AI.Provider)
	}
	if c.AI.MaxToolRounds < 1 {
		return fmt.Errorf("ai.max_tool_rounds must be >= 1")
	}
	if c.AI.HistoryLimit < 1 {
		return fmt.Errorf("ai.history_limit must be >= 1")
	}
	return nil
}
