// Package config handles service configuration via YAML files and
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags (--http-port, --data-dir, etc.)
//  2. Environment variables (LIGHTRAG_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Environment variables (all use LIGHTRAG_ prefix):
//
// Server:
//   - LIGHTRAG_HTTP_PORT=9621
//   - LIGHTRAG_HTTP_ADDRESS="0.0.0.0"
//
// Storage:
//   - LIGHTRAG_DATA_DIR="./data"
//   - LIGHTRAG_SYNC_WRITES=false
//
// Tenancy:
//   - LIGHTRAG_TENANT_BASE_PATH="./data/tenants"
//   - LIGHTRAG_MAX_IDLE=30m
//   - LIGHTRAG_CLEANUP_INTERVAL=5m
//   - LIGHTRAG_MAX_INSTANCES=0 (unbounded)
//
// Auth:
//   - LIGHTRAG_JWT_SECRET="" (empty disables token auth)
//
// LLM:
//   - LIGHTRAG_LLM_PROVIDER="none" or "openai"
//   - LIGHTRAG_OPENAI_API_KEY
//   - LIGHTRAG_OPENAI_BASE_URL
//   - LIGHTRAG_CHAT_MODEL
//   - LIGHTRAG_EMBEDDING_MODEL
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Tenancy TenancyConfig
	Auth    AuthConfig
	LLM     LLMConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Address to bind the HTTP listener on
	Address string
	// Port for the HTTP listener
	Port int
}

// StorageConfig holds shared storage settings.
type StorageConfig struct {
	// DataDir is the root directory for all persistent data
	DataDir string
	// SyncWrites forces fsync on every graph write
	SyncWrites bool
}

// TenancyConfig holds instance-manager settings.
type TenancyConfig struct {
	// BasePath is where per-tenant working directories live
	BasePath string
	// MaxIdle evicts instances untouched for longer than this
	MaxIdle time.Duration
	// CleanupInterval is the idle-sweep period
	CleanupInterval time.Duration
	// MaxInstances caps the instance cache (0 = unbounded)
	MaxInstances int
}

// AuthConfig holds tenant authentication settings.
type AuthConfig struct {
	// JWTSecret signs tenant bearer tokens; empty disables token auth
	JWTSecret string
}

// LLMConfig holds model provider settings.
type LLMConfig struct {
	// Provider is "openai" or "none"
	Provider string
	// APIKey for the provider
	APIKey string
	// BaseURL overrides the provider endpoint (OpenAI-compatible servers)
	BaseURL string
	// ChatModel used for answer synthesis
	ChatModel string
	// EmbeddingModel used for chunk/query embeddings
	EmbeddingModel string
}

// LoadDefaults returns the built-in default configuration.
func LoadDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    9621,
		},
		Storage: StorageConfig{
			DataDir:    "./data",
			SyncWrites: false,
		},
		Tenancy: TenancyConfig{
			BasePath:        "",
			MaxIdle:         30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			MaxInstances:    0,
		},
		Auth: AuthConfig{},
		LLM: LLMConfig{
			Provider: "none",
		},
	}
}

// LoadFromEnv returns defaults overridden by LIGHTRAG_* environment
// variables.
func LoadFromEnv() *Config {
	c := LoadDefaults()

	c.Server.Address = getEnv("LIGHTRAG_HTTP_ADDRESS", c.Server.Address)
	c.Server.Port = getEnvInt("LIGHTRAG_HTTP_PORT", c.Server.Port)

	c.Storage.DataDir = getEnv("LIGHTRAG_DATA_DIR", c.Storage.DataDir)
	c.Storage.SyncWrites = getEnvBool("LIGHTRAG_SYNC_WRITES", c.Storage.SyncWrites)

	c.Tenancy.BasePath = getEnv("LIGHTRAG_TENANT_BASE_PATH", c.Tenancy.BasePath)
	c.Tenancy.MaxIdle = getEnvDuration("LIGHTRAG_MAX_IDLE", c.Tenancy.MaxIdle)
	c.Tenancy.CleanupInterval = getEnvDuration("LIGHTRAG_CLEANUP_INTERVAL", c.Tenancy.CleanupInterval)
	c.Tenancy.MaxInstances = getEnvInt("LIGHTRAG_MAX_INSTANCES", c.Tenancy.MaxInstances)

	c.Auth.JWTSecret = getEnv("LIGHTRAG_JWT_SECRET", c.Auth.JWTSecret)

	c.LLM.Provider = getEnv("LIGHTRAG_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.APIKey = getEnv("LIGHTRAG_OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("LIGHTRAG_OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.ChatModel = getEnv("LIGHTRAG_CHAT_MODEL", c.LLM.ChatModel)
	c.LLM.EmbeddingModel = getEnv("LIGHTRAG_EMBEDDING_MODEL", c.LLM.EmbeddingModel)

	return c
}

// yamlConfig mirrors the YAML file shape. Zero values mean "not set".
type yamlConfig struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DataDir    string `yaml:"data_dir"`
		SyncWrites bool   `yaml:"sync_writes"`
	} `yaml:"storage"`
	Tenancy struct {
		BasePath        string `yaml:"base_path"`
		MaxIdle         string `yaml:"max_idle"`
		CleanupInterval string `yaml:"cleanup_interval"`
		MaxInstances    int    `yaml:"max_instances"`
	} `yaml:"tenancy"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	LLM struct {
		Provider       string `yaml:"provider"`
		APIKey         string `yaml:"api_key"`
		BaseURL        string `yaml:"base_url"`
		ChatModel      string `yaml:"chat_model"`
		EmbeddingModel string `yaml:"embedding_model"`
	} `yaml:"llm"`
}

// LoadFromFile loads configuration from a YAML file layered over the
// environment. A missing file is not an error; the env config is returned.
func LoadFromFile(configPath string) (*Config, error) {
	c := LoadFromEnv()
	if configPath == "" {
		return c, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if y.Server.Address != "" {
		c.Server.Address = y.Server.Address
	}
	if y.Server.Port > 0 {
		c.Server.Port = y.Server.Port
	}
	if y.Storage.DataDir != "" {
		c.Storage.DataDir = y.Storage.DataDir
	}
	if y.Storage.SyncWrites {
		c.Storage.SyncWrites = true
	}
	if y.Tenancy.BasePath != "" {
		c.Tenancy.BasePath = y.Tenancy.BasePath
	}
	if y.Tenancy.MaxIdle != "" {
		d, err := time.ParseDuration(y.Tenancy.MaxIdle)
		if err != nil {
			return nil, fmt.Errorf("invalid tenancy.max_idle: %w", err)
		}
		c.Tenancy.MaxIdle = d
	}
	if y.Tenancy.CleanupInterval != "" {
		d, err := time.ParseDuration(y.Tenancy.CleanupInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid tenancy.cleanup_interval: %w", err)
		}
		c.Tenancy.CleanupInterval = d
	}
	if y.Tenancy.MaxInstances > 0 {
		c.Tenancy.MaxInstances = y.Tenancy.MaxInstances
	}
	if y.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = y.Auth.JWTSecret
	}
	if y.LLM.Provider != "" {
		c.LLM.Provider = y.LLM.Provider
	}
	if y.LLM.APIKey != "" {
		c.LLM.APIKey = y.LLM.APIKey
	}
	if y.LLM.BaseURL != "" {
		c.LLM.BaseURL = y.LLM.BaseURL
	}
	if y.LLM.ChatModel != "" {
		c.LLM.ChatModel = y.LLM.ChatModel
	}
	if y.LLM.EmbeddingModel != "" {
		c.LLM.EmbeddingModel = y.LLM.EmbeddingModel
	}

	return c, nil
}

// FindConfigFile returns the first config file found in the standard
// locations, or "".
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"lightrag.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".lightrag", "config.yaml"),
			filepath.Join(home, ".config", "lightrag", "config.yaml"),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// TenantBasePath resolves the tenant working-directory root, defaulting to
// a subdirectory of the data dir.
func (c *Config) TenantBasePath() string {
	if c.Tenancy.BasePath != "" {
		return c.Tenancy.BasePath
	}
	return filepath.Join(c.Storage.DataDir, "tenants")
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage data_dir must not be empty")
	}
	if c.Tenancy.MaxIdle < 0 || c.Tenancy.CleanupInterval < 0 {
		return fmt.Errorf("tenancy durations must not be negative")
	}
	if c.Tenancy.MaxInstances < 0 {
		return fmt.Errorf("tenancy max_instances must not be negative")
	}
	switch c.LLM.Provider {
	case "none", "":
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm provider openai requires an API key")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return nil
}

// String returns a loggable summary without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("server=%s:%d data_dir=%s max_idle=%s max_instances=%d llm=%s auth=%v",
		c.Server.Address, c.Server.Port, c.Storage.DataDir,
		c.Tenancy.MaxIdle, c.Tenancy.MaxInstances, c.LLM.Provider,
		c.Auth.JWTSecret != "")
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
