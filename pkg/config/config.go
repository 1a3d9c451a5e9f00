package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values come from DefaultConfig,
// overridden by the YAML config file, overridden by VAULTCLAW_* env vars.
type Config struct {
	Vault    VaultConfig    `yaml:"vault"`
	Agent    AgentConfig    `yaml:"agent"`
	Provider ProviderConfig `yaml:"provider"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

type VaultConfig struct {
	// Path is the vault root directory. All tool paths resolve inside it.
	Path string `yaml:"path" env:"VAULTCLAW_VAULT_PATH"`
	// Extension is the note extension used for path normalization.
	Extension string `yaml:"extension" env:"VAULTCLAW_VAULT_EXTENSION"`
}

type AgentConfig struct {
	MaxIterations  int `yaml:"max_iterations" env:"VAULTCLAW_MAX_ITERATIONS"`
	UndoCapacity   int `yaml:"undo_capacity" env:"VAULTCLAW_UNDO_CAPACITY"`
	TimeoutSeconds int `yaml:"timeout_seconds" env:"VAULTCLAW_TIMEOUT_SECONDS"`
}

type ProviderConfig struct {
	// Kind selects the backend: local, claude, or openai.
	Kind    string `yaml:"kind" env:"VAULTCLAW_PROVIDER"`
	Model   string `yaml:"model" env:"VAULTCLAW_MODEL"`
	APIKey  string `yaml:"api_key" env:"VAULTCLAW_API_KEY"`
	BaseURL string `yaml:"base_url" env:"VAULTCLAW_BASE_URL"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled" env:"VAULTCLAW_SERVER_ENABLED"`
	Host    string `yaml:"host" env:"VAULTCLAW_SERVER_HOST"`
	Port    int    `yaml:"port" env:"VAULTCLAW_SERVER_PORT"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"VAULTCLAW_LOG_LEVEL"`
	// AuditPath is where the JSONL step audit is appended. Empty disables it.
	AuditPath string `yaml:"audit_path" env:"VAULTCLAW_AUDIT_PATH"`
}

func DefaultConfig() *Config {
	return &Config{
		Vault: VaultConfig{
			Path:      ".",
			Extension: ".md",
		},
		Agent: AgentConfig{
			MaxIterations:  5,
			UndoCapacity:   10,
			TimeoutSeconds: 120,
		},
		Provider: ProviderConfig{
			Kind:    "local",
			BaseURL: "http://127.0.0.1:1234",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 27123,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

// Load reads the config file at path (if it exists) over the defaults, then
// applies env overrides. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 5
	}
	if c.Agent.UndoCapacity <= 0 {
		c.Agent.UndoCapacity = 10
	}
	if c.Agent.TimeoutSeconds <= 0 {
		c.Agent.TimeoutSeconds = 120
	}
	if !strings.HasPrefix(c.Vault.Extension, ".") {
		c.Vault.Extension = "." + strings.TrimPrefix(c.Vault.Extension, ".")
	}
	abs, err := filepath.Abs(c.Vault.Path)
	if err != nil {
		return fmt.Errorf("resolve vault path: %w", err)
	}
	c.Vault.Path = abs
	return nil
}

// DefaultConfigPath returns ~/.vaultclaw/config.yaml, or empty if the home
// directory cannot be determined.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vaultclaw", "config.yaml")
}
