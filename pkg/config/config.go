package config

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Gateways  map[string]GatewayConfig  `yaml:"gateways"`
	Budgets   BudgetConfig              `yaml:"budgets"`
	Sandbox   SandboxConfig             `yaml:"sandbox"`
	Memory    MemoryConfig              `yaml:"memory"`
	Prompts   PromptConfig              `yaml:"prompts"`
	Sessions  SessionConfig             `yaml:"sessions"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Workspace string `yaml:"workspace"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type GatewayConfig struct {
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type BudgetConfig struct {
	MaxSteps         int `yaml:"max_steps"`
	MaxRetries       int `yaml:"max_retries"`
	ResumeExtraSteps int `yaml:"resume_extra_steps"`
}

type SandboxConfig struct {
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	ToolCallQuota     int    `yaml:"tool_call_quota"`
	ToolDiversityMax  int    `yaml:"tool_diversity_limit"`
	ToolRepeatMax     int    `yaml:"tool_repeat_limit"`
	MaxExecutionSteps uint64 `yaml:"max_execution_steps"`
}

type MemoryConfig struct {
	Path       string `yaml:"path"`
	MaxBullets int    `yaml:"max_bullets"`
	MaxChars   int    `yaml:"max_chars"`
}

type PromptConfig struct {
	Directory string `yaml:"directory"`
}

type SessionConfig struct {
	Directory string `yaml:"directory"`
}

func LoadConfig(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills the zero values a minimal config leaves out.
func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "cortex"
	}
	if c.App.Workspace == "" {
		c.App.Workspace = "workspace"
	}
	if c.Budgets.MaxSteps == 0 {
		c.Budgets.MaxSteps = 3
	}
	if c.Budgets.MaxRetries == 0 {
		c.Budgets.MaxRetries = 3
	}
	if c.Budgets.ResumeExtraSteps == 0 {
		c.Budgets.ResumeExtraSteps = 3
	}
	if c.Sandbox.TimeoutSeconds == 0 {
		c.Sandbox.TimeoutSeconds = 30
	}
	if c.Sandbox.ToolCallQuota == 0 {
		c.Sandbox.ToolCallQuota = 10
	}
	if c.Sandbox.ToolDiversityMax == 0 {
		c.Sandbox.ToolDiversityMax = 3
	}
	if c.Sandbox.ToolRepeatMax == 0 {
		c.Sandbox.ToolRepeatMax = 2
	}
	if c.Sandbox.MaxExecutionSteps == 0 {
		c.Sandbox.MaxExecutionSteps = 10_000_000
	}
	if c.Memory.Path == "" {
		c.Memory.Path = "memory/history.db"
	}
	if c.Memory.MaxBullets == 0 {
		c.Memory.MaxBullets = 10
	}
	if c.Memory.MaxChars == 0 {
		c.Memory.MaxChars = 1500
	}
	if c.Sessions.Directory == "" {
		c.Sessions.Directory = "sessions"
	}
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled {
		return tg, true
	}
	return GatewayConfig{}, false
}
