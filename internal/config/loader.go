package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"sqlgate/cli/internal/errors"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables before they are mapped to
// config keys.
const EnvPrefix = "SQLGATE_"

// sections are the nested config blocks; an env var whose first segment names
// one is split there, so SQLGATE_GATE_MAX_ROWS becomes gate.max_rows.
var sections = []string{"db", "gate", "model", "history", "server"}

// flagKeys maps persistent flag names to config keys. Flags not listed here
// are not configuration.
var flagKeys = map[string]string{
	"dsn":       "db.dsn",
	"max-rows":  "gate.max_rows",
	"timeout":   "gate.query_timeout_seconds",
	"read-only": "gate.read_only",
	"model":     "model.name",
	"log-level": "log_level",
}

// Load reads configuration from defaults, the config file, environment
// variables and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// A missing default config file is not an error; a missing explicit one is.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := cfgFile
	if used == "" {
		p, err := DefaultPath()
		if err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				used = p
			}
		}
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				return nil, "", errors.Wrap(errors.ConfigInvalid, "config file not found: "+used, err)
			}
			return nil, "", errors.Wrap(errors.ConfigInvalid, "error reading config file "+used, err)
		}
	}

	// 3. Environment (SQLGATE_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", errors.Wrap(errors.ConfigInvalid, "unable to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, used, nil
}

// envKey maps SQLGATE_GATE_MAX_ROWS to gate.max_rows and SQLGATE_LOG_LEVEL to
// log_level. SQLGATE_DSN is shorthand for db.dsn.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "dsn" {
		return "db.dsn"
	}
	for _, sec := range sections {
		if rest, ok := strings.CutPrefix(key, sec+"_"); ok {
			return sec + "." + rest
		}
	}
	return key
}

func defaultsMap() map[string]interface{} {
	d := Defaults()
	return map[string]interface{}{
		"log_level":                   d.LogLevel,
		"db.dsn":                      d.DB.DSN,
		"gate.max_rows":               d.Gate.MaxRows,
		"gate.query_timeout_seconds":  d.Gate.QueryTimeoutSeconds,
		"gate.result_size_warn_bytes": d.Gate.ResultSizeWarnBytes,
		"gate.read_only":              d.Gate.ReadOnly,
		"gate.max_concurrent_reads":   d.Gate.MaxConcurrentReads,
		"model.base_url":              d.Model.BaseURL,
		"model.name":                  d.Model.Name,
		"model.temperature":           d.Model.Temperature,
		"model.max_tokens":            d.Model.MaxTokens,
		"model.timeout_seconds":       d.Model.TimeoutSeconds,
		"model.requests_per_second":   d.Model.RequestsPerSecond,
		"history.path":                d.History.Path,
		"history.max_entries":         d.History.MaxEntries,
		"history.context_turns":       d.History.ContextTurns,
		"history.example_turns":       d.History.ExampleTurns,
		"history.stored_result_chars": d.History.StoredResultChars,
		"server.addr":                 d.Server.Addr,
		"server.token":                d.Server.Token,
	}
}
