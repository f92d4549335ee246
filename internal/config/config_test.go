package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
chat:
  confirm_secret: "s3cret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 300*time.Millisecond, cfg.Store.Latency.List)
	assert.Equal(t, 500*time.Millisecond, cfg.Store.Latency.Delete)
	assert.Zero(t, cfg.Store.DeleteFailureRate)
	assert.Equal(t, "mock", cfg.Chat.Responder)
	assert.Equal(t, time.Second, cfg.Chat.MinDelay)
	assert.Equal(t, 2*time.Second, cfg.Chat.MaxDelay)
	assert.Equal(t, "Lo siento, hubo un error al procesar tu mensaje.", cfg.Chat.FallbackMessage)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_ParsesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
store:
  driver: "redis"
  redis:
    addr: "redis:6379"
  latency:
    delete: 50ms
  delete_failure_rate: 0.1
chat:
  min_delay: 10ms
  max_delay: 20ms
  confirm_secret: "s3cret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 50*time.Millisecond, cfg.Store.Latency.Delete)
	assert.InDelta(t, 0.1, cfg.Store.DeleteFailureRate, 1e-9)
	assert.Equal(t, 10*time.Millisecond, cfg.Chat.MinDelay)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
chat:
  confirm_secret: "s3cret"
`)
	t.Setenv("CONSOLE_SERVER_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Store: StoreConfig{Driver: "memory"},
			Chat: ChatConfig{
				Responder:     "mock",
				MinDelay:      time.Second,
				MaxDelay:      2 * time.Second,
				ConfirmSecret: "s3cret",
			},
		}
	}

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, true},
		{"mysql without dsn", func(c *Config) { c.Store.Driver = "mysql" }, true},
		{"redis without addr", func(c *Config) { c.Store.Driver = "redis" }, true},
		{"negative delete rate", func(c *Config) { c.Store.DeleteFailureRate = -0.1 }, true},
		{"delete rate above one", func(c *Config) { c.Store.DeleteFailureRate = 1.5 }, true},
		{"chat rate above one", func(c *Config) { c.Chat.FailureRate = 2 }, true},
		{"inverted delays", func(c *Config) { c.Chat.MaxDelay = 0 }, true},
		{"openai without model", func(c *Config) { c.Chat.Responder = "openai" }, true},
		{"openai configured", func(c *Config) {
			c.Chat.Responder = "openai"
			c.LLM.BaseURL = "https://api.deepseek.com/v1"
			c.LLM.Model = "deepseek-chat"
		}, false},
		{"missing secret", func(c *Config) { c.Chat.ConfirmSecret = "" }, true},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
