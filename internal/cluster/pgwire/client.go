// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package pgwire implements the cluster client contract for SQL clusters that
// speak the PostgreSQL wire protocol (CockroachDB, YugabyteDB, PostgreSQL).
//
// A client owns exactly one connection. Caches map onto SQL schemas, and
// query results are paged through server-side cursors (DECLARE / FETCH) so a
// large result never has to be buffered by the server in one response.
package pgwire

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"clustersql/cli/internal/cluster"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// DefaultPort is used when the descriptor carries no port.
const DefaultPort = 5432

var (
	// ErrAlreadyConnected is returned by Connect on a connected client.
	ErrAlreadyConnected = errors.New("pgwire: client already connected")
	// ErrNotConnected is returned by cache operations before Connect.
	ErrNotConnected = errors.New("pgwire: client not connected")
	// ErrCacheNotFound is returned by GetCache for an unknown schema.
	ErrCacheNotFound = errors.New("pgwire: cache not found")
)

// runtimeParams are options forwarded to the server as session parameters.
var runtimeParams = map[string]bool{
	"application_name":                    true,
	"statement_timeout":                   true,
	"lock_timeout":                        true,
	"idle_in_transaction_session_timeout": true,
	"timezone":                            true,
	"search_path":                         true,
}

// Opener opens the single-connection database handle for a config.
type Opener func(ctx context.Context, cfg *pgx.ConnConfig) (*sql.DB, error)

func defaultOpener(_ context.Context, cfg *pgx.ConnConfig) (*sql.DB, error) {
	return stdlib.OpenDB(*cfg), nil
}

// Option configures a Client.
type Option func(*Client)

// WithOpener replaces how the database handle is opened (tests use sqlmock).
func WithOpener(o Opener) Option {
	return func(c *Client) { c.opener = o }
}

// Client implements cluster.Client over pgx.
type Client struct {
	opener Opener

	mu       sync.Mutex
	db       *sql.DB
	pageSize int
}

var _ cluster.Client = (*Client)(nil)

// New creates a disconnected client.
func New(opts ...Option) *Client {
	c := &Client{opener: defaultOpener, pageSize: cluster.DefaultPageSize}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect opens the connection and verifies it with a ping.
func (c *Client) Connect(ctx context.Context, cfg *cluster.ClientConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return ErrAlreadyConnected
	}

	pcfg, pageSize, err := BuildConnConfig(cfg)
	if err != nil {
		return err
	}

	db, err := c.opener(ctx, pcfg)
	if err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("connect to %s:%d: %w", pcfg.Host, pcfg.Port, err)
	}

	c.db = db
	c.pageSize = pageSize
	return nil
}

// GetOrCreateCache creates the cache's SQL schema when missing and binds it.
func (c *Client) GetOrCreateCache(ctx context.Context, name string, cfg cluster.CacheConfig) (cluster.Cache, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}
	schema := cfg.SQLSchema
	if schema == "" {
		schema = name
	}
	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return nil, fmt.Errorf("create schema %s: %w", schema, err)
	}
	return &Cache{client: c, name: name, schema: schema}, nil
}

// GetCache binds an existing schema.
func (c *Client) GetCache(ctx context.Context, name string) (cluster.Cache, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}
	var exists bool
	row := db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", name)
	if err := row.Scan(&exists); err != nil {
		return nil, fmt.Errorf("look up schema %s: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCacheNotFound, name)
	}
	return &Cache{client: c, name: name, schema: name}, nil
}

// Disconnect closes the connection. It is a no-op when not connected.
func (c *Client) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Client) handle() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, ErrNotConnected
	}
	return c.db, nil
}

func (c *Client) defaultPageSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageSize
}

// BuildConnConfig translates the canonical client config into a pgx config
// and the default cursor page size. TLS never falls back to plaintext.
func BuildConnConfig(cfg *cluster.ClientConfig) (*pgx.ConnConfig, int, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, 0, errors.New("pgwire: endpoint is required")
	}
	pcfg, err := pgx.ParseConfig("")
	if err != nil {
		return nil, 0, fmt.Errorf("base config: %w", err)
	}

	pcfg.Host = cfg.Endpoint
	pcfg.Port = DefaultPort
	switch {
	case cfg.Port < 0 || cfg.Port > 65535:
		return nil, 0, fmt.Errorf("pgwire: port %d out of range", cfg.Port)
	case cfg.Port > 0:
		pcfg.Port = uint16(cfg.Port)
	}
	if cfg.Username != "" {
		pcfg.User = cfg.Username
	}
	pcfg.Password = cfg.Password
	pcfg.Fallbacks = nil
	pcfg.TLSConfig = nil
	if cfg.UseTLS {
		pcfg.TLSConfig = &tls.Config{ServerName: cfg.Endpoint, MinVersion: tls.VersionTLS12}
	}

	pageSize := cluster.DefaultPageSize
	for key, v := range cfg.Options {
		switch k := strings.ToLower(key); k {
		case "timeout", "connect_timeout", "connecttimeout":
			d, err := parseDuration(v)
			if err != nil {
				return nil, 0, fmt.Errorf("option %s: %w", key, err)
			}
			pcfg.ConnectTimeout = d
		case "database", "dbname":
			pcfg.Database = fmt.Sprint(v)
		case "pagesize":
			n, err := strconv.Atoi(fmt.Sprint(v))
			if err != nil || n <= 0 {
				return nil, 0, fmt.Errorf("option %s: page size must be a positive integer", key)
			}
			pageSize = n
		default:
			if runtimeParams[k] {
				pcfg.RuntimeParams[k] = fmt.Sprint(v)
			}
		}
	}
	return pcfg, pageSize, nil
}

// parseDuration accepts milliseconds as a number or numeric string, or a Go
// duration string.
func parseDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case int:
		return time.Duration(t) * time.Millisecond, nil
	case int64:
		return time.Duration(t) * time.Millisecond, nil
	case float64:
		return time.Duration(t * float64(time.Millisecond)), nil
	case time.Duration:
		return t, nil
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.Duration(n) * time.Millisecond, nil
		}
		return time.ParseDuration(t)
	}
	return 0, fmt.Errorf("unsupported duration %v (%T)", v, v)
}
