// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package adapter is the host-facing entry point: one Adapter per service
// connection. The host initializes it with its context, connects, runs named
// statements and disconnects.
//
// Connect resolves the raw configuration and loads the mapper directory
// before the cluster client is contacted, so configuration problems never
// cause a network attempt.
//
// One Adapter drains at most one cursor at a time; the transport holds a
// single connection. Hosts that need concurrent queries use one Adapter per
// query path.
package adapter

import (
	"context"
	"log/slog"
	"sync"

	"clustersql/cli/internal/cluster"
	"clustersql/cli/internal/cluster/pgwire"
	"clustersql/cli/internal/dsn"
	errs "clustersql/cli/internal/errors"
	"clustersql/cli/internal/mapper"
	"clustersql/cli/internal/session"
	"clustersql/cli/internal/sqlexec"
)

// HostContext is what the host service hands over at Init.
type HostContext struct {
	ServiceName string
	// Settings are service-level settings; mapperDir is read from here when
	// the connection configuration does not carry one.
	Settings map[string]any
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithClient replaces the cluster client (default: pgwire).
func WithClient(c cluster.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithSessionListener observes session state transitions.
func WithSessionListener(l cluster.StateListener) Option {
	return func(a *Adapter) { a.listeners = append(a.listeners, l) }
}

// WithExecutorOptions passes options to the query executor.
func WithExecutorOptions(opts ...sqlexec.Option) Option {
	return func(a *Adapter) { a.execOpts = append(a.execOpts, opts...) }
}

// Adapter connects one host service to the cluster.
type Adapter struct {
	raw       map[string]any
	client    cluster.Client
	logger    *slog.Logger
	listeners []cluster.StateListener
	execOpts  []sqlexec.Option
	session   *session.Manager

	mu       sync.Mutex
	host     HostContext
	desc     *dsn.Descriptor
	mapper   *mapper.Mapper
	executor *sqlexec.Executor
}

// New creates an adapter for the raw connection configuration (URL form or
// structured form). Nothing is resolved until Connect.
func New(raw map[string]any, opts ...Option) *Adapter {
	a := &Adapter{raw: make(map[string]any, len(raw))}
	for k, v := range raw {
		a.raw[k] = v
	}
	for _, o := range opts {
		o(a)
	}
	if a.client == nil {
		a.client = pgwire.New()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	sopts := make([]session.Option, 0, len(a.listeners))
	for _, l := range a.listeners {
		sopts = append(sopts, session.WithListener(l))
	}
	a.session = session.NewManager(a.client, a.logger, sopts...)
	return a
}

// Init records the host context.
func (a *Adapter) Init(host HostContext) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.host = host
	if host.ServiceName != "" {
		a.logger = a.logger.With("service", host.ServiceName)
	}
}

// Connect resolves the configuration, loads the statement mapper and opens
// the cluster session.
func (a *Adapter) Connect(ctx context.Context) error {
	desc, err := dsn.Resolve(a.config())
	if err != nil {
		a.logger.Error("resolve connection settings", "error", err)
		return err
	}

	m, err := mapper.New(desc.MapperDirs...)
	if err != nil {
		if errs.KindOf(err) == "" {
			err = errs.Wrap(errs.InvalidConfig, "load mapper directory", err)
		}
		a.logger.Error("load statement mapper", "error", err)
		return err
	}

	if err := a.session.Connect(ctx, desc); err != nil {
		a.logger.Error("connect to cluster", "host", desc.Host, "error", err)
		return err
	}

	a.mu.Lock()
	a.desc = desc
	a.mapper = m
	a.executor = sqlexec.New(m, a.session, a.logger, a.execOpts...)
	a.mu.Unlock()
	return nil
}

// Disconnect releases the session. It never fails locally.
func (a *Adapter) Disconnect(ctx context.Context) error {
	return a.session.Disconnect(ctx)
}

// ExecuteQuery runs the statement namespace.id with params and returns the
// fully materialized result. Failures are *sqlexec.QueryError values.
func (a *Adapter) ExecuteQuery(ctx context.Context, namespace, id string, params map[string]any) (*sqlexec.Result, error) {
	a.mu.Lock()
	exec := a.executor
	a.mu.Unlock()
	if exec == nil {
		err := &sqlexec.QueryError{Kind: errs.NotConnected, Namespace: namespace, ID: id,
			Err: errs.Newf(errs.NotConnected, "session is %s", a.session.State())}
		a.logger.Error("query failed", "namespace", namespace, "statement", id, "kind", string(errs.NotConnected), "error", err)
		return nil, err
	}
	return exec.ExecuteQuery(ctx, namespace, id, params)
}

// Tables lists the tables of the bound cache's schema.
func (a *Adapter) Tables(ctx context.Context) ([]string, error) {
	si, err := a.inspector()
	if err != nil {
		return nil, err
	}
	return si.Tables(ctx)
}

// TableInfo describes one table of the bound cache's schema.
func (a *Adapter) TableInfo(ctx context.Context, table string) (*sqlexec.TableInfo, error) {
	si, err := a.inspector()
	if err != nil {
		return nil, err
	}
	return si.GetTableInfo(ctx, table)
}

// State returns the session state.
func (a *Adapter) State() cluster.State { return a.session.State() }

// Descriptor returns a redacted copy of the resolved descriptor, or nil
// before a successful Connect.
func (a *Adapter) Descriptor() *dsn.Descriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.desc.Redacted()
}

// Mapper returns the loaded statement mapper, or nil before Connect.
func (a *Adapter) Mapper() *mapper.Mapper {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mapper
}

func (a *Adapter) inspector() (*sqlexec.SchemaInspector, error) {
	cache, err := a.session.Cache()
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	schema := ""
	if a.desc != nil {
		schema = a.desc.Schema
	}
	a.mu.Unlock()
	return sqlexec.NewSchemaInspector(cache, schema), nil
}

// config merges host settings under the connection configuration.
func (a *Adapter) config() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	cfg := make(map[string]any, len(a.raw)+1)
	for k, v := range a.raw {
		cfg[k] = v
	}
	if _, ok := cfg[dsn.KeyMapperDir]; !ok {
		if dir, ok := a.host.Settings[dsn.KeyMapperDir]; ok {
			cfg[dsn.KeyMapperDir] = dir
		}
	}
	return cfg
}
