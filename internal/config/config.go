package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "storyline.yml"

// Config models storyline.yml. Secrets such as the AI credential are never read from the file;
// they come from the environment.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Generation struct {
		BaseURL          string  `yaml:"base_url"`
		Model            string  `yaml:"model"`
		MaxTokens        int     `yaml:"max_tokens"`
		Temperature      float64 `yaml:"temperature"`
		Timeout          string  `yaml:"timeout"`
		AnthropicVersion string  `yaml:"anthropic_version"`
	} `yaml:"generation"`
	Storage struct {
		DesignsDir string `yaml:"designs_dir"`
	} `yaml:"storage"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the defaults when the workspace has no config file.
func LoadOrDefault(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Generation.MaxTokens < 0 {
		return fmt.Errorf("config.generation.max_tokens must not be negative")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 1 {
		return fmt.Errorf("config.generation.temperature must be between 0 and 1")
	}
	if _, err := c.GenerationTimeout(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// GenerationTimeout parses generation.timeout; zero when unset.
func (c *Config) GenerationTimeout() (time.Duration, error) {
	if strings.TrimSpace(c.Generation.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Generation.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config.generation.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config.generation.timeout must not be negative")
	}
	return d, nil
}

func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config.log.level: %w", err)
	}
	return lvl, nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the effective config.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

generation:
  base_url: https://api.anthropic.com
  model: claude-3-sonnet-20240229
  max_tokens: 1000
  temperature: 0
  timeout: 15s
  anthropic_version: "2023-06-01"

storage:
  # relative paths are resolved against the workspace state directory
  designs_dir: designs

log:
  level: info
  format: text
`
