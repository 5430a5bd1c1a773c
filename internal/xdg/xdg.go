// Package xdg resolves XDG Base Directory paths for sqlgate.
// Configuration lives under the config home; logs, the REPL line history and
// the interaction log live under the state home.
//
// When an XDG variable is unset the conventional fallback under the user's
// home directory is used. Directories are created private (0700) because the
// state directory holds past questions and query results.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under each XDG base.
const AppName = "sqlgate"

// ConfigDir returns the XDG config directory for sqlgate.
// It falls back to ~/.config/sqlgate when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for sqlgate.
// It falls back to ~/.local/state/sqlgate when XDG_STATE_HOME is unset.
func StateDir() (string, error) {
	return appDir("XDG_STATE_HOME", ".local", "state")
}

// StateFile joins name onto the state directory.
func StateFile(name string) (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func appDir(env string, fallback ...string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(append([]string{home}, fallback...)...)
	}
	dir := filepath.Join(base, AppName)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
