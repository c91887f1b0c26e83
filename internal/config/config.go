// Package config handles WuWei configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/wuwei/config.yaml, /etc/wuwei/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "wuwei", "config.yaml"))
	}

	paths = append(paths, "/etc/wuwei/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all WuWei configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Agent     AgentConfig     `yaml:"agent"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AnthropicConfig defines Anthropic API settings. The key here is the
// server-wide fallback; users may store a personal key that overrides it.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// AgentConfig defines the conversational agent settings.
type AgentConfig struct {
	// Model is the language model used for every conversation turn.
	Model string `yaml:"model"`
	// MaxTokens caps the model's output per turn.
	MaxTokens int `yaml:"max_tokens"`
	// TimeoutSeconds bounds one full inbound-message-to-response cycle,
	// covering every model call and tool execution within it.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the agent deadline as a duration.
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Agent: AgentConfig{
			Model:          "claude-sonnet-4-20250514",
			MaxTokens:      1024,
			TimeoutSeconds: 120,
		},
		DataDir: "data",
	}
}

// DefaultYAML is the commented config template written by "wuwei init".
const DefaultYAML = `# WuWei configuration

listen:
  address: ""      # bind address, empty = all interfaces
  port: 8080

anthropic:
  api_key: "${ANTHROPIC_API_KEY}"

agent:
  model: claude-sonnet-4-20250514
  max_tokens: 1024
  timeout_seconds: 120   # deadline for one full chat exchange

data_dir: data
log_level: info          # trace, debug, info, warn, error
log_format: text         # text or json
`
