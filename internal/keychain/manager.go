// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain stores connection secrets in the OS credential store:
// the saved connection URL and per-endpoint passwords. Plain settings stay in
// the config file.
package keychain

import (
	"errors"
	"runtime"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

var (
	globalManager *Manager
	mu            sync.Mutex
)

// ErrNotFound is returned when no secret is stored under a key.
var ErrNotFound = errors.New("keychain: secret not found")

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "clustersql"

// KeyConnectionURL holds the last verified connection URL.
const KeyConnectionURL = "connection_url"

// Manager provides thread-safe access to the credential store.
type Manager struct {
	mu      sync.RWMutex
	backend keychainBackend
}

// keychainBackend is implemented by the macOS security command wrapper and
// by ringBackend.
type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// NewManager opens the platform credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if backend, err := newSecurityBackend(); err == nil {
			return &Manager{backend: backend}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return NewWithRing(ring), nil
}

// NewWithRing wraps an already opened keyring.
func NewWithRing(ring keyring.Keyring) *Manager {
	return &Manager{backend: ringBackend{ring: ring}}
}

// GetManager returns the process-wide manager, retrying initialization after
// a failure.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

func openRing() (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	case "linux":
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
	default:
		return nil, errors.New("secure storage not supported on " + runtime.GOOS)
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	}
	return keyring.Open(cfg)
}

// PasswordKey names the password entry for user at host.
func PasswordKey(user, host string) string {
	return "password:" + strings.ToLower(user) + "@" + strings.ToLower(host)
}

// SaveConnectionURL stores the connection URL.
func (m *Manager) SaveConnectionURL(url string) error {
	return m.set(KeyConnectionURL, url)
}

// LoadConnectionURL returns the stored connection URL or ErrNotFound.
func (m *Manager) LoadConnectionURL() (string, error) {
	return m.get(KeyConnectionURL)
}

// SavePassword stores the password for user at host.
func (m *Manager) SavePassword(user, host, password string) error {
	return m.set(PasswordKey(user, host), password)
}

// LoadPassword returns the password for user at host or ErrNotFound.
func (m *Manager) LoadPassword(user, host string) (string, error) {
	return m.get(PasswordKey(user, host))
}

// Clear removes the connection URL and the password for user at host.
// Missing entries are not an error.
func (m *Manager) Clear(user, host string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Join(
		m.backend.Delete(KeyConnectionURL),
		m.backend.Delete(PasswordKey(user, host)),
	)
}

func (m *Manager) set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Set(key, value)
}

func (m *Manager) get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, err := m.backend.Get(key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

// ringBackend adapts a keyring.Keyring.
type ringBackend struct {
	ring keyring.Keyring
}

func (r ringBackend) Set(key, value string) error {
	return r.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

func (r ringBackend) Get(key string) (string, error) {
	it, err := r.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(it.Data), nil
}

func (r ringBackend) Delete(key string) error {
	err := r.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}
