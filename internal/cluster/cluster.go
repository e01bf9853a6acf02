// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cluster defines the contract the adapter consumes from a cluster
// client: connecting, binding a named cache (SQL schema), and running
// field-inclusive SQL queries that return paginated cursors.
//
// Implementations own the wire protocol and the connection state machine.
// The adapter only ever talks to them through these interfaces, which keeps
// the session and query logic independent of the transport.
package cluster

import (
	"context"
	"time"
)

// DefaultPageSize is the number of rows a cursor fetches per page when the
// query does not say otherwise.
const DefaultPageSize = 1024

// ClientConfig carries the canonical connection parameters handed to a client.
type ClientConfig struct {
	// Address is the host exactly as configured, possibly "host:port".
	Address string
	// Endpoint is the host without port.
	Endpoint string
	Port     int
	Username string
	Password string
	UseTLS   bool
	// Options are transport-specific passthrough options (timeout, pageSize, ...).
	Options map[string]any
}

// CacheConfig describes the cache to bind.
type CacheConfig struct {
	// SQLSchema is the SQL schema queries against the cache run in.
	SQLSchema string
}

// SQLFieldsQuery is a SQL statement whose result rows are returned as
// positional values alongside the declared field names.
type SQLFieldsQuery struct {
	SQL               string
	Args              []any
	PageSize          int
	IncludeFieldNames bool
	// Schema overrides the cache's SQL schema for this query.
	Schema  string
	Timeout time.Duration
}

// Client is a connection to the cluster. A client is connected at most once.
type Client interface {
	Connect(ctx context.Context, cfg *ClientConfig) error
	// GetOrCreateCache binds the named cache, creating it when missing.
	GetOrCreateCache(ctx context.Context, name string, cfg CacheConfig) (Cache, error)
	// GetCache binds an existing cache and fails when it does not exist.
	GetCache(ctx context.Context, name string) (Cache, error)
	Disconnect(ctx context.Context) error
}

// Cache is a bound cache handle.
type Cache interface {
	Name() string
	Query(ctx context.Context, q SQLFieldsQuery) (Cursor, error)
}

// Cursor is a server-side paginated handle over a query result.
//
// FieldNames and every row returned by NextValue are ordered parallel
// arrays: the i-th value belongs to the i-th field. HasMore must be checked
// before each NextValue; fetching past the end is undefined.
type Cursor interface {
	FieldNames() []string
	HasMore() bool
	NextValue(ctx context.Context) ([]any, error)
	Close(ctx context.Context) error
}
