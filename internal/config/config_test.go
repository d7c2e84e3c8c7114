package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinculobrasil/flowbot/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 100, cfg.Engine.MaxSteps)
	assert.Equal(t, 30*time.Second, cfg.Engine.CallTimeout)
	assert.Equal(t, 60*time.Second, cfg.Store.Redis.LockTTL)
	assert.False(t, cfg.LLM.Enabled())
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeConfig(t, `
log:
  level: debug
store:
  driver: file
  path: /tmp/sessions
engine:
  max_steps: 40
  call_timeout: 5s
privacy:
  pii_patterns: ["cpf", "email"]
`)
	t.Setenv("FLOWBOT_ENGINE_MAX_STEPS", "25")
	t.Setenv("FLOWBOT_LLM_API_KEY", "sk-test")
	t.Setenv("FLOWBOT_STORE_REDIS_LOCK_TTL", "90s")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.StoreFile, cfg.Store.Driver)
	assert.Equal(t, "/tmp/sessions", cfg.Store.Path)
	assert.Equal(t, 25, cfg.Engine.MaxSteps, "environment wins over the file")
	assert.Equal(t, 5*time.Second, cfg.Engine.CallTimeout)
	assert.Equal(t, []string{"cpf", "email"}, cfg.Privacy.PIIPatterns)
	assert.Equal(t, 90*time.Second, cfg.Store.Redis.LockTTL)
	assert.True(t, cfg.LLM.Enabled())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FLOWBOT_STORE_DRIVER=redis\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FLOWBOT_STORE_DRIVER") })

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.StoreRedis, cfg.Store.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"ok", func(*config.Config) {}, ""},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"file without path", func(c *config.Config) { c.Store.Driver = config.StoreFile; c.Store.Path = "" }, "store.path"},
		{"negative steps", func(c *config.Config) { c.Engine.MaxSteps = -1 }, "max_steps"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad key", func(c *config.Config) { c.Privacy.EncryptionKey = "short" }, "encryption_key"},
		{"hex key", func(c *config.Config) { c.Privacy.EncryptionKey = strings.Repeat("ab", 32) }, ""},
		{"redis defaults", func(c *config.Config) { c.Store.Driver = config.StoreRedis }, ""},
		{"lock ttl within call timeout", func(c *config.Config) {
			c.Store.Driver = config.StoreRedis
			c.Store.Redis.LockTTL = c.Engine.CallTimeout
		}, "lock_ttl"},
		{"lock ttl ignored without lock", func(c *config.Config) {
			c.Store.Driver = config.StoreRedis
			c.Store.Redis.Lock = false
			c.Store.Redis.LockTTL = 0
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
