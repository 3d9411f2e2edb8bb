package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/joho/godotenv"
)

const (
	DefaultPort           = 8787
	DefaultConfigFilename = "config.json"
	DefaultHost           = "127.0.0.1"
)

// GeminiConfig holds the credential for the Gemini provider family.
type GeminiConfig struct {
	APIKey string `json:"api_key,omitempty"`
}

// OpenAIConfig holds the credential and the model-to-deployment mapping for
// the OpenAI provider family. A missing mapping means the model identifier is
// sent upstream as-is.
type OpenAIConfig struct {
	APIKey      string            `json:"api_key,omitempty"`
	Deployments map[string]string `json:"deployments,omitempty"`
}

type Config struct {
	Host         string       `json:"host,omitempty"`
	Port         int          `json:"port,omitempty"`
	Gemini       GeminiConfig `json:"gemini"`
	OpenAI       OpenAIConfig `json:"openai"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
}

// Manager loads and serves the configuration. Reads after Load are lock-free.
type Manager struct {
	configPath  string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		configPath: filepath.Join(baseDir, DefaultConfigFilename),
	}
}

// Load reads the config file, fills defaults, and applies environment
// overrides. A `.env` in the working directory is honored when present.
// A missing config file is not an error: credentials can come entirely from
// the environment.
func (m *Manager) Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config

	data, err := os.ReadFile(m.configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	case os.IsNotExist(err):
		// config file is optional when the environment carries the credentials
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	m.configValue.Store(&cfg)

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}

	if v := os.Getenv("MTGW_HOST"); v != "" {
		c.Host = v
	}

	if v := os.Getenv("MTGW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		fallback := &Config{}
		fallback.applyDefaults()
		fallback.applyEnv()

		return fallback
	}

	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}

func (m *Manager) GetPath() string {
	return m.configPath
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}
