package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// APIKeyEnv overrides the active provider's api_key when set.
const APIKeyEnv = "LINGOCHAT_API_KEY"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type BasicConfig struct {
	ServerAddress  string `json:"server_address"`
	Provider       string `json:"provider"`
	ReplyWorkers   int    `json:"reply_workers"`
	ReplyQueueSize int    `json:"reply_queue_size"`
	SessionTTL     int    `json:"session_ttl_minutes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing api key for the active provider is a fatal configuration error:
// the service must not start without a usable model backend.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	if cfg.BasicConfig.Provider == "" {
		cfg.BasicConfig.Provider = "openai"
	}
	provCfg, ok := cfg.Providers[cfg.BasicConfig.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", cfg.BasicConfig.Provider)
	}
	if key := os.Getenv(APIKeyEnv); key != "" {
		provCfg.APIKey = key
		cfg.Providers[cfg.BasicConfig.Provider] = provCfg
	}
	if cfg.Providers[cfg.BasicConfig.Provider].APIKey == "" {
		return nil, fmt.Errorf("api key for provider %s must be set (config or %s)", cfg.BasicConfig.Provider, APIKeyEnv)
	}

	return &cfg, nil
}

// ActiveProvider returns the configured provider name and its settings.
func (c *Config) ActiveProvider() (string, ProviderConfig) {
	return c.BasicConfig.Provider, c.Providers[c.BasicConfig.Provider]
}
