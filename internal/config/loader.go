// Package config loads the application configuration from config.yaml and
// the environment. Secrets come from the environment only.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"carecompanion/internal/capability"
	"carecompanion/internal/storage"
)

// Duration accepts Go duration strings ("30s", "5m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the structure of config.yaml.
type Config struct {
	Capability struct {
		Provider    string   `yaml:"provider"` // openai, ollama, mock
		Model       string   `yaml:"model"`
		BaseURL     string   `yaml:"base_url"`
		MaxTokens   int      `yaml:"max_tokens"`
		Temperature float64  `yaml:"temperature"`
		Timeout     Duration `yaml:"timeout"`
	} `yaml:"capability"`

	Session struct {
		Backend       string   `yaml:"backend"` // memory, redis
		RedisURL      string   `yaml:"redis_url"`
		IdleTTL       Duration `yaml:"idle_ttl"`
		SweepInterval Duration `yaml:"sweep_interval"`
	} `yaml:"session"`

	Storage struct {
		Backend    string `yaml:"backend"` // sqlite, memory
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`

	Log struct {
		Level    string `yaml:"level"`
		Format   string `yaml:"format"` // console, json
		Output   string `yaml:"output"` // stdout, stderr, file
		FilePath string `yaml:"file_path"`
	} `yaml:"log"`

	// SubjectID is the fixed subject for single-patient deployments.
	SubjectID string `yaml:"subject_id"`

	// APIKey is populated from the environment, never from the file.
	APIKey string `yaml:"-"`
}

// Load reads the YAML file, applies defaults, and pulls secrets from the
// environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyDefaults()

	cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Session.RedisURL = url
	}
	return &cfg, nil
}

// CapabilityConfig assembles the provider configuration for capability.New.
func (c *Config) CapabilityConfig() capability.Config {
	return capability.Config{
		Provider:    c.Capability.Provider,
		Model:       c.Capability.Model,
		BaseURL:     c.Capability.BaseURL,
		APIKey:      c.APIKey,
		MaxTokens:   c.Capability.MaxTokens,
		Temperature: c.Capability.Temperature,
		Timeout:     c.Capability.Timeout.Std(),
	}
}

func (c *Config) applyDefaults() {
	if c.Capability.Provider == "" {
		c.Capability.Provider = "openai"
	}
	if c.Capability.Model == "" {
		c.Capability.Model = "gpt-4o-mini"
	}
	if c.Capability.MaxTokens == 0 {
		c.Capability.MaxTokens = 500
	}
	if c.Capability.Timeout == 0 {
		c.Capability.Timeout = Duration(30 * time.Second)
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.IdleTTL == 0 {
		c.Session.IdleTTL = Duration(storage.SessionIdleTTL)
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = Duration(storage.SweepInterval)
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/companion.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.SubjectID == "" {
		c.SubjectID = "default"
	}
}
