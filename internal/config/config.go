// Package config loads the flowbot server and CLI settings.
//
// Precedence, lowest first: built-in defaults, the YAML file, a .env file in
// the working directory, then FLOWBOT_* environment variables
// (e.g. FLOWBOT_STORE_DRIVER=redis, FLOWBOT_ENGINE_MAX_STEPS=50).
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FLOWBOT"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

type Config struct {
	Log          LogConfig          `yaml:"log" envconfig:"log"`
	HTTP         HTTPConfig         `yaml:"http" envconfig:"http"`
	Flows        FlowsConfig        `yaml:"flows" envconfig:"flows"`
	Store        StoreConfig        `yaml:"store" envconfig:"store"`
	Engine       EngineConfig       `yaml:"engine" envconfig:"engine"`
	LLM          LLMConfig          `yaml:"llm" envconfig:"llm"`
	Privacy      PrivacyConfig      `yaml:"privacy" envconfig:"privacy"`
	Integrations IntegrationsConfig `yaml:"integrations" envconfig:"integrations"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"level"`
	Format string `yaml:"format" envconfig:"format"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" envconfig:"addr"`
	Metrics         bool          `yaml:"metrics" envconfig:"metrics"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"shutdown_timeout"`
}

type FlowsConfig struct {
	Dir         string `yaml:"dir" envconfig:"dir"`
	Watch       bool   `yaml:"watch" envconfig:"watch"`
	DefaultFlow string `yaml:"default_flow" envconfig:"default_flow"`
}

type StoreConfig struct {
	Driver string      `yaml:"driver" envconfig:"driver"`
	Path   string      `yaml:"path" envconfig:"path"`
	Redis  RedisConfig `yaml:"redis" envconfig:"redis"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" envconfig:"addr"`
	Password string        `yaml:"password" envconfig:"password"`
	DB       int           `yaml:"db" envconfig:"db"`
	Prefix   string        `yaml:"prefix" envconfig:"prefix"`
	TTL      time.Duration `yaml:"ttl" envconfig:"ttl"`
	Lock     bool          `yaml:"lock" envconfig:"lock"`
	LockTTL  time.Duration `yaml:"lock_ttl" envconfig:"lock_ttl"`
}

type EngineConfig struct {
	MaxSteps      int           `yaml:"max_steps" envconfig:"max_steps"`
	CallTimeout   time.Duration `yaml:"call_timeout" envconfig:"call_timeout"`
	StrictRouting bool          `yaml:"strict_routing" envconfig:"strict_routing"`
	ErrorMessage  string        `yaml:"error_message" envconfig:"error_message"`
}

type LLMConfig struct {
	APIKey      string  `yaml:"api_key" envconfig:"api_key"`
	BaseURL     string  `yaml:"base_url" envconfig:"base_url"`
	Model       string  `yaml:"model" envconfig:"model"`
	MaxTokens   int     `yaml:"max_tokens" envconfig:"max_tokens"`
	Temperature float32 `yaml:"temperature" envconfig:"temperature"`
}

// Enabled reports whether an LLM backend is configured.
func (c LLMConfig) Enabled() bool { return c.APIKey != "" }

type PrivacyConfig struct {
	PIIPatterns []string `yaml:"pii_patterns" envconfig:"pii_patterns"`
	// EncryptionKey is a 32-byte AES key, hex or base64 encoded.
	EncryptionKey string `yaml:"encryption_key" envconfig:"encryption_key"`
}

type IntegrationsConfig struct {
	// Simulated wires the in-process fake collaborators (contracts, leads,
	// ticketing, media) for demos and local development.
	Simulated bool `yaml:"simulated" envconfig:"simulated"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Log:   LogConfig{Level: "info", Format: "text"},
		HTTP:  HTTPConfig{Addr: ":8080", Metrics: true, ShutdownTimeout: 10 * time.Second},
		Flows: FlowsConfig{Dir: "./flows", Watch: true},
		Store: StoreConfig{
			Driver: StoreMemory,
			Path:   ".flowbot/sessions",
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "flowbot:session:",
				TTL:     24 * time.Hour,
				Lock:    true,
				LockTTL: 60 * time.Second,
			},
		},
		Engine: EngineConfig{MaxSteps: 100, CallTimeout: 30 * time.Second},
		LLM:    LLMConfig{Model: "gpt-4o-mini", MaxTokens: 512, Temperature: 0.3},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator supplied
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case StoreMemory, StoreRedis:
	case StoreFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be one of memory, file, redis (got %q)", c.Store.Driver))
	}
	if c.Store.Driver == StoreRedis && c.Store.Redis.Addr == "" {
		errs = append(errs, errors.New("store.redis.addr is required for the redis driver"))
	}
	if rc := c.Store.Redis; c.Store.Driver == StoreRedis && rc.Lock && rc.LockTTL <= c.Engine.CallTimeout {
		errs = append(errs, fmt.Errorf("store.redis.lock_ttl (%s) must exceed engine.call_timeout (%s)", rc.LockTTL, c.Engine.CallTimeout))
	}
	if c.Engine.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("engine.max_steps must not be negative (got %d)", c.Engine.MaxSteps))
	}
	if c.Engine.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.call_timeout must not be negative (got %s)", c.Engine.CallTimeout))
	}
	if f := strings.ToLower(c.Log.Format); f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format))
	}
	if c.Privacy.EncryptionKey != "" {
		if _, err := c.Privacy.Key(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Key decodes EncryptionKey. It returns nil when encryption is off.
func (p PrivacyConfig) Key() ([]byte, error) {
	if p.EncryptionKey == "" {
		return nil, nil
	}
	if k, err := hex.DecodeString(p.EncryptionKey); err == nil && len(k) == 32 {
		return k, nil
	}
	if k, err := base64.StdEncoding.DecodeString(p.EncryptionKey); err == nil && len(k) == 32 {
		return k, nil
	}
	return nil, errors.New("privacy.encryption_key must be 32 bytes, hex or base64 encoded")
}
