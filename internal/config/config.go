// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; secrets go to the OS keychain or
// the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sqlgate/cli/internal/dsn"
	"sqlgate/cli/internal/errors"
	"sqlgate/cli/internal/gate"
	"sqlgate/cli/internal/xdg"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the XDG config dir.
const FileName = "config.yaml"

// Config holds non-sensitive CLI settings.
type Config struct {
	LogLevel string        `koanf:"log_level" yaml:"log_level"`
	DB       DBConfig      `koanf:"db" yaml:"db"`
	Gate     GateConfig    `koanf:"gate" yaml:"gate"`
	Model    ModelConfig   `koanf:"model" yaml:"model"`
	History  HistoryConfig `koanf:"history" yaml:"history"`
	Server   ServerConfig  `koanf:"server" yaml:"server"`
}

// DBConfig holds database connection settings. A DSN carrying a password is
// never written back to disk.
type DBConfig struct {
	DSN string `koanf:"dsn" yaml:"dsn"`
}

// GateConfig mirrors gate.Config in file-friendly units.
type GateConfig struct {
	MaxRows             int  `koanf:"max_rows" yaml:"max_rows"`
	QueryTimeoutSeconds int  `koanf:"query_timeout_seconds" yaml:"query_timeout_seconds"`
	ResultSizeWarnBytes int  `koanf:"result_size_warn_bytes" yaml:"result_size_warn_bytes"`
	ReadOnly            bool `koanf:"read_only" yaml:"read_only"`
	MaxConcurrentReads  int  `koanf:"max_concurrent_reads" yaml:"max_concurrent_reads"`
}

// ModelConfig configures the chat-completions client.
type ModelConfig struct {
	BaseURL           string  `koanf:"base_url" yaml:"base_url"`
	Name              string  `koanf:"name" yaml:"name"`
	Temperature       float64 `koanf:"temperature" yaml:"temperature"`
	MaxTokens         int     `koanf:"max_tokens" yaml:"max_tokens"`
	TimeoutSeconds    int     `koanf:"timeout_seconds" yaml:"timeout_seconds"`
	RequestsPerSecond float64 `koanf:"requests_per_second" yaml:"requests_per_second"`
}

// HistoryConfig configures the interaction log and prompt context sizes.
type HistoryConfig struct {
	Path              string `koanf:"path" yaml:"path"`
	MaxEntries        int    `koanf:"max_entries" yaml:"max_entries"`
	ContextTurns      int    `koanf:"context_turns" yaml:"context_turns"`
	ExampleTurns      int    `koanf:"example_turns" yaml:"example_turns"`
	StoredResultChars int    `koanf:"stored_result_chars" yaml:"stored_result_chars"`
}

// ServerConfig configures the remote gate listener.
type ServerConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
	// Token, when set, must be sent by clients in the x-sqlgate-token header.
	Token string `koanf:"token" yaml:"token,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	g := gate.DefaultConfig()
	return Config{
		LogLevel: "info",
		Gate: GateConfig{
			MaxRows:             g.MaxRows,
			QueryTimeoutSeconds: int(g.QueryTimeout / time.Second),
			ResultSizeWarnBytes: g.ResultSizeWarnBytes,
			MaxConcurrentReads:  g.MaxConcurrentReads,
		},
		Model: ModelConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			Name:              "openai/gpt-4o-mini",
			MaxTokens:         1024,
			TimeoutSeconds:    60,
			RequestsPerSecond: 2,
		},
		History: HistoryConfig{
			MaxEntries:        50,
			ContextTurns:      5,
			ExampleTurns:      3,
			StoredResultChars: 1000,
		},
		Server: ServerConfig{Addr: "127.0.0.1:7433"},
	}
}

// Gate returns the immutable gate configuration for a session.
func (c *Config) Gate() gate.Config {
	return gate.Config{
		MaxRows:             c.Gate.MaxRows,
		QueryTimeout:        time.Duration(c.Gate.QueryTimeoutSeconds) * time.Second,
		ResultSizeWarnBytes: c.Gate.ResultSizeWarnBytes,
		ReadOnly:            c.Gate.ReadOnly,
		MaxConcurrentReads:  c.Gate.MaxConcurrentReads,
	}
}

// ModelTimeout returns the per-request model deadline.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

// Validate rejects values the gate cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Gate.MaxRows <= 0:
		return errors.New(errors.ConfigInvalid, fmt.Sprintf("gate.max_rows must be positive, got %d", c.Gate.MaxRows))
	case c.Gate.QueryTimeoutSeconds <= 0:
		return errors.New(errors.ConfigInvalid, fmt.Sprintf("gate.query_timeout_seconds must be positive, got %d", c.Gate.QueryTimeoutSeconds))
	case c.Gate.ResultSizeWarnBytes < 0:
		return errors.New(errors.ConfigInvalid, "gate.result_size_warn_bytes must not be negative")
	case c.Gate.MaxConcurrentReads <= 0:
		return errors.New(errors.ConfigInvalid, "gate.max_concurrent_reads must be positive")
	case c.Model.TimeoutSeconds <= 0:
		return errors.New(errors.ConfigInvalid, "model.timeout_seconds must be positive")
	case c.Model.RequestsPerSecond < 0:
		return errors.New(errors.ConfigInvalid, "model.requests_per_second must not be negative")
	case c.History.MaxEntries <= 0:
		return errors.New(errors.ConfigInvalid, "history.max_entries must be positive")
	case c.History.ContextTurns < 0 || c.History.ExampleTurns < 0:
		return errors.New(errors.ConfigInvalid, "history turn counts must not be negative")
	}
	return nil
}

// HistoryPath returns the configured interaction log path, defaulting to the
// state directory.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	return xdg.StateFile("chat_history.json")
}

// DefaultPath returns the path to the config file in the XDG config dir.
func DefaultPath() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Save writes configuration as YAML with 0600 permissions. A DSN with a
// password is left out.
func Save(c Config, path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if c.DB.DSN != "" {
		if info, err := dsn.ParseInfo(c.DB.DSN); err != nil || info.Password != "" {
			c.DB.DSN = ""
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
