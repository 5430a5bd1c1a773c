// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for sqlgate.
// It keeps the two secrets the CLI needs out of config files: the model API key
// and the database DSN.
//
// On macOS the native security command is preferred; elsewhere the
// 99designs/keyring library picks Windows Credential Manager, the Secret
// Service, KWallet, pass or the kernel keyring, in that order.
package keychain

import (
	stderrors "errors"
	"runtime"
	"strings"
	"sync"

	"sqlgate/cli/internal/errors"

	"github.com/99designs/keyring"
)

// Global keychain manager instance
var (
	globalManager *Manager
	globalError   error
	mu            sync.Mutex
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = stderrors.New("key not found in keychain")

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "sqlgate"

// Keys used for storing secrets in the OS keychain.
const (
	KeyModelAPIKey = "openrouter_api_key"
	KeyDBDSN       = "db_dsn"
)

var allKeys = []string{KeyModelAPIKey, KeyDBDSN}

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu      sync.RWMutex
	backend keychainBackend
}

// keychainBackend defines the interface for keychain operations.
type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		backend, err := newSecurityBackend()
		if err == nil {
			return &Manager{backend: backend}, nil
		}
		// Fall through to keyring library if security command fails
	}

	ring, err := openRing()
	if err != nil {
		return nil, errors.Wrap(errors.SecretStore, "no keychain backend available", err)
	}
	return NewManagerWithRing(ring), nil
}

// NewManagerWithRing wraps an already opened keyring.
func NewManagerWithRing(ring keyring.Keyring) *Manager {
	return &Manager{backend: ringBackend{ring: ring}}
}

// GetManager returns the global keychain manager instance.
// If initialization fails, it will retry on subsequent calls.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}
	globalManager, globalError = NewManager()
	if globalError != nil {
		return nil, globalError
	}
	return globalManager, nil
}

// openRing opens the OS keyring using native platform backends only. There is
// no encrypted-file fallback: a secret that cannot be stored natively belongs
// in the environment.
func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	default:
		allowed = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
			keyring.KeyCtlBackend,
		}
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		KeyCtlScope:     "user",
		WinCredPrefix:   ServiceName,
	}
	return keyring.Open(cfg)
}

// SaveAPIKey stores the model API key.
func (m *Manager) SaveAPIKey(key string) error { return m.set(KeyModelAPIKey, key) }

// LoadAPIKey retrieves the model API key. It returns ErrNotFound when none is stored.
func (m *Manager) LoadAPIKey() (string, error) { return m.get(KeyModelAPIKey) }

// ClearAPIKey removes the model API key.
func (m *Manager) ClearAPIKey() error { return m.remove(KeyModelAPIKey) }

// SaveDBDSN stores the database DSN in the keychain.
func (m *Manager) SaveDBDSN(dsn string) error { return m.set(KeyDBDSN, dsn) }

// LoadDBDSN retrieves the database DSN from the keychain.
func (m *Manager) LoadDBDSN() (string, error) { return m.get(KeyDBDSN) }

// ClearDB removes DB-related secrets from the keychain.
func (m *Manager) ClearDB() error { return m.remove(KeyDBDSN) }

// ClearAll removes all secrets from the keychain.
func (m *Manager) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for _, k := range allKeys {
		if err := m.backend.Delete(k); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return errors.Wrap(errors.SecretStore, "failed to clear keychain", first)
	}
	return nil
}

func (m *Manager) set(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New(errors.SecretStore, "refusing to store an empty "+key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.backend.Set(key, value); err != nil {
		return errors.Wrap(errors.SecretStore, "failed to store "+key, err)
	}
	return nil
}

func (m *Manager) get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, err := m.backend.Get(key)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", errors.Wrap(errors.SecretStore, "failed to read "+key, err)
	}
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Manager) remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.backend.Delete(key); err != nil {
		return errors.Wrap(errors.SecretStore, "failed to remove "+key, err)
	}
	return nil
}

// ringBackend adapts a keyring.Keyring to keychainBackend.
type ringBackend struct {
	ring keyring.Keyring
}

func (r ringBackend) Set(key, value string) error {
	return r.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (r ringBackend) Get(key string) (string, error) {
	it, err := r.ring.Get(key)
	if err != nil {
		if stderrors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(it.Data), nil
}

func (r ringBackend) Delete(key string) error {
	if err := r.ring.Remove(key); err != nil && !stderrors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}
