// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package session owns the connect/disconnect lifecycle of one cluster
// session. A Manager drives the client through
//
//	Disconnected -> Connecting -> Connected | Failed
//	Connected    -> Disconnected
//
// Failed is terminal: the caller builds a new Manager (and client) to retry.
// There is no retry loop here; retries are the host's responsibility.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"clustersql/cli/internal/cluster"
	"clustersql/cli/internal/dsn"
	errs "clustersql/cli/internal/errors"
)

var (
	// ErrAlreadyConnected is returned when Connect is called while a session
	// is connecting or connected. Calling Connect twice without Disconnect is
	// a caller error.
	ErrAlreadyConnected = errs.New(errs.AlreadyConnected, "session already connecting or connected; disconnect first")
	// ErrSessionFailed is returned by Connect after an earlier attempt failed.
	ErrSessionFailed = errs.New(errs.SessionFailed, "session failed earlier; build a new instance to retry")
)

// ConnectError carries the transport error of a failed connect.
type ConnectError struct {
	Address string
	// Stage is "connect" or "bind cache".
	Stage string
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Address, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{errs.New(errs.ConnectFailed, e.Stage), e.Err}
}

// Option configures a Manager.
type Option func(*Manager)

// WithListener registers a listener notified after every state transition.
func WithListener(l cluster.StateListener) Option {
	return func(m *Manager) {
		if l != nil {
			m.listeners = append(m.listeners, l)
		}
	}
}

// Manager owns the cluster client and the bound cache handle.
type Manager struct {
	client    cluster.Client
	logger    *slog.Logger
	listeners []cluster.StateListener

	mu    sync.Mutex
	state cluster.State
	cache cluster.Cache
	desc  *dsn.Descriptor
}

// NewManager creates a disconnected manager. The manager owns client
// exclusively from here on.
func NewManager(client cluster.Client, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{client: client, logger: logger, state: cluster.Disconnected}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Connect establishes the client connection described by desc and binds
// its cache, creating it when missing.
func (m *Manager) Connect(ctx context.Context, desc *dsn.Descriptor) error {
	m.mu.Lock()
	switch m.state {
	case cluster.Connecting, cluster.Connected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case cluster.Failed:
		m.mu.Unlock()
		return ErrSessionFailed
	}
	m.state = cluster.Connecting
	m.desc = desc.Clone()
	m.mu.Unlock()
	m.notify(cluster.Connecting, nil)

	if err := m.client.Connect(ctx, ClientConfig(desc)); err != nil {
		return m.fail(&ConnectError{Address: desc.Host, Stage: "connect", Err: err})
	}

	cache, err := m.client.GetOrCreateCache(ctx, desc.CacheName(), cluster.CacheConfig{SQLSchema: desc.Schema})
	if err != nil {
		if derr := m.client.Disconnect(ctx); derr != nil {
			err = errors.Join(err, derr)
		}
		return m.fail(&ConnectError{Address: desc.Host, Stage: "bind cache", Err: err})
	}

	m.mu.Lock()
	m.cache = cache
	m.state = cluster.Connected
	m.mu.Unlock()
	m.notify(cluster.Connected, nil)
	return nil
}

// Disconnect releases the session. A release error is reported as the
// reason of the Disconnected transition, never returned; calling it when not
// connected is a no-op.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != cluster.Connected {
		m.mu.Unlock()
		return nil
	}
	m.cache = nil
	m.state = cluster.Disconnected
	m.mu.Unlock()

	m.notify(cluster.Disconnected, m.client.Disconnect(ctx))
	return nil
}

// Cache returns the bound cache. It is only valid while Connected.
func (m *Manager) Cache() (cluster.Cache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != cluster.Connected || m.cache == nil {
		return nil, errs.Newf(errs.NotConnected, "session is %s", m.state)
	}
	return m.cache, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() cluster.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Descriptor returns a redacted copy of the descriptor of the last Connect.
func (m *Manager) Descriptor() *dsn.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desc.Redacted()
}

func (m *Manager) fail(err error) error {
	m.mu.Lock()
	m.state = cluster.Failed
	m.mu.Unlock()
	m.notify(cluster.Failed, err)
	return err
}

func (m *Manager) notify(state cluster.State, reason error) {
	attrs := []any{"state", state.String()}
	if reason != nil {
		attrs = append(attrs, "reason", reason.Error())
	}
	m.logger.Info("session state changed", attrs...)
	for _, l := range m.listeners {
		l(state, reason)
	}
}

// ClientConfig maps a descriptor onto the client's canonical config. Options
// are deep-copied so the client never aliases the descriptor.
func ClientConfig(desc *dsn.Descriptor) *cluster.ClientConfig {
	d := desc.Clone()
	return &cluster.ClientConfig{
		Address:  d.Host,
		Endpoint: d.Hostname(),
		Port:     d.Port,
		Username: d.Username,
		Password: d.Password,
		UseTLS:   d.TLSEnabled,
		Options:  d.Options,
	}
}
