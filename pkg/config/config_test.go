package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c := LoadDefaults()
	assert.Equal(t, 9621, c.Server.Port)
	assert.Equal(t, "./data", c.Storage.DataDir)
	assert.Equal(t, 30*time.Minute, c.Tenancy.MaxIdle)
	assert.Equal(t, "none", c.LLM.Provider)
	require.NoError(t, c.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LIGHTRAG_HTTP_PORT", "8080")
	t.Setenv("LIGHTRAG_DATA_DIR", "/tmp/rag")
	t.Setenv("LIGHTRAG_MAX_IDLE", "10m")
	t.Setenv("LIGHTRAG_MAX_INSTANCES", "32")
	t.Setenv("LIGHTRAG_SYNC_WRITES", "true")
	t.Setenv("LIGHTRAG_JWT_SECRET", "hunter2")

	c := LoadFromEnv()
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "/tmp/rag", c.Storage.DataDir)
	assert.Equal(t, 10*time.Minute, c.Tenancy.MaxIdle)
	assert.Equal(t, 32, c.Tenancy.MaxInstances)
	assert.True(t, c.Storage.SyncWrites)
	assert.Equal(t, "hunter2", c.Auth.JWTSecret)
}

func TestLoadFromEnv_DurationAsSeconds(t *testing.T) {
	t.Setenv("LIGHTRAG_CLEANUP_INTERVAL", "90")
	c := LoadFromEnv()
	assert.Equal(t, 90*time.Second, c.Tenancy.CleanupInterval)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 7000
tenancy:
  max_idle: 45m
  max_instances: 8
llm:
  provider: openai
  api_key: sk-test
  chat_model: gpt-4o-mini
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, c.Server.Port)
	assert.Equal(t, 45*time.Minute, c.Tenancy.MaxIdle)
	assert.Equal(t, 8, c.Tenancy.MaxInstances)
	assert.Equal(t, "openai", c.LLM.Provider)
	require.NoError(t, c.Validate())
}

func TestLoadFromFile_Missing(t *testing.T) {
	c, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9621, c.Server.Port)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults ok", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }, true},
		{"negative max instances", func(c *Config) { c.Tenancy.MaxInstances = -1 }, true},
		{"openai without key", func(c *Config) { c.LLM.Provider = "openai" }, true},
		{"openai with key", func(c *Config) { c.LLM.Provider = "openai"; c.LLM.APIKey = "sk" }, false},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "oracle" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := LoadDefaults()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTenantBasePath(t *testing.T) {
	c := LoadDefaults()
	assert.Equal(t, filepath.Join("./data", "tenants"), c.TenantBasePath())

	c.Tenancy.BasePath = "/var/lib/rag/tenants"
	assert.Equal(t, "/var/lib/rag/tenants", c.TenantBasePath())
}

func TestString_HidesSecrets(t *testing.T) {
	c := LoadDefaults()
	c.Auth.JWTSecret = "supersecret"
	assert.NotContains(t, c.String(), "supersecret")
}
