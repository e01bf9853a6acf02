// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package clustertest provides in-memory cluster client fakes for tests.
package clustertest

import (
	"context"
	"errors"
	"sync"

	"clustersql/cli/internal/cluster"
)

// ErrFetchPastEnd is returned when NextValue is called on an exhausted cursor.
var ErrFetchPastEnd = errors.New("clustertest: fetch past end of cursor")

// Client records every call and echoes configuration back to the test.
type Client struct {
	ConnectErr    error
	CacheErr      error
	DisconnectErr error
	// Cache is returned by cache lookups; created on first use when nil.
	Cache *Cache

	mu          sync.Mutex
	configs     []*cluster.ClientConfig
	cacheNames  []string
	cacheConfig []cluster.CacheConfig
	disconnects int
}

var _ cluster.Client = (*Client)(nil)

func (c *Client) Connect(_ context.Context, cfg *cluster.ClientConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, cfg)
	return c.ConnectErr
}

func (c *Client) GetOrCreateCache(_ context.Context, name string, cfg cluster.CacheConfig) (cluster.Cache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheNames = append(c.cacheNames, name)
	c.cacheConfig = append(c.cacheConfig, cfg)
	if c.CacheErr != nil {
		return nil, c.CacheErr
	}
	if c.Cache == nil {
		c.Cache = &Cache{CacheName: name}
	}
	return c.Cache, nil
}

func (c *Client) GetCache(_ context.Context, name string) (cluster.Cache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheNames = append(c.cacheNames, name)
	if c.CacheErr != nil {
		return nil, c.CacheErr
	}
	if c.Cache == nil {
		c.Cache = &Cache{CacheName: name}
	}
	return c.Cache, nil
}

func (c *Client) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	return c.DisconnectErr
}

// Configs returns every config passed to Connect.
func (c *Client) Configs() []*cluster.ClientConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*cluster.ClientConfig(nil), c.configs...)
}

// ConnectCalls returns how many times Connect was called.
func (c *Client) ConnectCalls() int { return len(c.Configs()) }

// CacheNames returns the names passed to GetOrCreateCache and GetCache.
func (c *Client) CacheNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cacheNames...)
}

// CacheConfigs returns the configs passed to GetOrCreateCache.
func (c *Client) CacheConfigs() []cluster.CacheConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cluster.CacheConfig(nil), c.cacheConfig...)
}

// Disconnects returns how many times Disconnect was called.
func (c *Client) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// Cache serves a fixed result for every query unless QueryFunc is set.
type Cache struct {
	CacheName string
	Fields    []string
	Rows      [][]any
	Err       error
	QueryFunc func(q cluster.SQLFieldsQuery) (cluster.Cursor, error)

	mu      sync.Mutex
	queries []cluster.SQLFieldsQuery
	cursors []*Cursor
}

var _ cluster.Cache = (*Cache)(nil)

func (c *Cache) Name() string { return c.CacheName }

func (c *Cache) Query(_ context.Context, q cluster.SQLFieldsQuery) (cluster.Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	if c.QueryFunc != nil {
		return c.QueryFunc(q)
	}
	if c.Err != nil {
		return nil, c.Err
	}
	cur := NewCursor(c.Fields, c.Rows...)
	c.cursors = append(c.cursors, cur)
	return cur, nil
}

// Queries returns every query submitted to the cache.
func (c *Cache) Queries() []cluster.SQLFieldsQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cluster.SQLFieldsQuery(nil), c.queries...)
}

// Cursors returns every cursor handed out by Query.
func (c *Cache) Cursors() []*Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Cursor(nil), c.cursors...)
}

// Cursor is a slice-backed cursor.
type Cursor struct {
	fields []string
	rows   [][]any
	pos    int

	// FailAt makes NextValue fail with FailErr on the given 0-based row.
	FailAt  int
	FailErr error

	Fetches int
	Closed  bool
}

var _ cluster.Cursor = (*Cursor)(nil)

// NewCursor returns a cursor over rows.
func NewCursor(fields []string, rows ...[]any) *Cursor {
	return &Cursor{fields: fields, rows: rows, FailAt: -1}
}

func (c *Cursor) FieldNames() []string { return c.fields }

func (c *Cursor) HasMore() bool { return !c.Closed && c.pos < len(c.rows) }

func (c *Cursor) NextValue(context.Context) ([]any, error) {
	c.Fetches++
	if !c.HasMore() {
		return nil, ErrFetchPastEnd
	}
	if c.pos == c.FailAt {
		return nil, c.FailErr
	}
	row := c.rows[c.pos]
	c.pos++
	return row, nil
}

func (c *Cursor) Close(context.Context) error {
	c.Closed = true
	return nil
}
