// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pgwire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"clustersql/cli/internal/cluster"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrCursorExhausted is returned when NextValue is called after HasMore
// reported false.
var ErrCursorExhausted = errors.New("pgwire: cursor exhausted")

// Cache is a schema-bound handle on a connected client.
type Cache struct {
	client *Client
	name   string
	schema string
}

var _ cluster.Cache = (*Cache)(nil)

// Name returns the cache name.
func (c *Cache) Name() string { return c.name }

// Schema returns the SQL schema the cache is bound to.
func (c *Cache) Schema() string { return c.schema }

// Query runs q in its own transaction. Cursorable statements are declared as
// server-side cursors and paged with FETCH; anything else runs once and its
// rows, if any, form a single page. The transaction stays open until the
// returned cursor is closed.
func (c *Cache) Query(ctx context.Context, q cluster.SQLFieldsQuery) (cluster.Cursor, error) {
	db, err := c.client.handle()
	if err != nil {
		return nil, err
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = c.client.defaultPageSize()
	}
	schema := q.Schema
	if schema == "" {
		schema = c.schema
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	cur := &Cursor{tx: tx, pageSize: pageSize}

	if schema != "" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL search_path TO "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return nil, cur.abort(fmt.Errorf("set search_path: %w", err))
		}
	}
	if q.Timeout > 0 {
		ms := strconv.FormatInt(q.Timeout.Milliseconds(), 10)
		if _, err := tx.ExecContext(ctx, "SET LOCAL statement_timeout = "+ms); err != nil {
			return nil, cur.abort(fmt.Errorf("set statement_timeout: %w", err))
		}
	}

	if !Cursorable(q.SQL) || len(q.Args) > 0 {
		rows, err := tx.QueryContext(ctx, q.SQL, q.Args...)
		if err != nil {
			return nil, cur.abort(err)
		}
		page, fields, err := readPage(rows)
		if err != nil {
			return nil, cur.abort(err)
		}
		cur.fields, cur.page, cur.exhausted = fields, page, true
		return cur, nil
	}

	cur.name = "cur_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := tx.ExecContext(ctx, "DECLARE "+cur.name+" NO SCROLL CURSOR FOR "+q.SQL); err != nil {
		cur.name = ""
		return nil, cur.abort(err)
	}
	if err := cur.fetch(ctx); err != nil {
		return nil, cur.abort(err)
	}
	return cur, nil
}

// Cursor pages through a declared server-side cursor. The next page is
// fetched as soon as the current one is consumed, so HasMore is exact.
type Cursor struct {
	tx       *sql.Tx
	name     string
	pageSize int

	fields    []string
	page      [][]any
	pos       int
	exhausted bool
	closed    bool
}

var _ cluster.Cursor = (*Cursor)(nil)

// FieldNames returns the declared result columns in order.
func (c *Cursor) FieldNames() []string { return c.fields }

// HasMore reports whether NextValue will return a row.
func (c *Cursor) HasMore() bool { return !c.closed && c.pos < len(c.page) }

// NextValue returns the next row.
func (c *Cursor) NextValue(ctx context.Context) ([]any, error) {
	if !c.HasMore() {
		return nil, ErrCursorExhausted
	}
	row := c.page[c.pos]
	c.pos++
	if c.pos == len(c.page) && !c.exhausted {
		if err := c.fetch(ctx); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// Close releases the cursor and commits its transaction.
func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.name != "" {
		if _, err := c.tx.ExecContext(ctx, "CLOSE "+c.name); err != nil {
			return errors.Join(err, c.tx.Rollback())
		}
	}
	return c.tx.Commit()
}

func (c *Cursor) fetch(ctx context.Context) error {
	rows, err := c.tx.QueryContext(ctx, "FETCH FORWARD "+strconv.Itoa(c.pageSize)+" FROM "+c.name)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	page, fields, err := readPage(rows)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if c.fields == nil {
		c.fields = fields
	}
	c.page, c.pos = page, 0
	c.exhausted = len(page) < c.pageSize
	return nil
}

// abort rolls the transaction back and returns err joined with any rollback failure.
func (c *Cursor) abort(err error) error {
	c.closed = true
	if rbErr := c.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		return errors.Join(err, rbErr)
	}
	return err
}

// readPage drains rows into positional values and returns the column names.
func readPage(rows *sql.Rows) ([][]any, []string, error) {
	defer rows.Close()
	fields, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var page [][]any
	for rows.Next() {
		vals := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		page = append(page, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if fields == nil {
		fields = []string{}
	}
	return page, fields, nil
}

// Cursorable reports whether sqlText can be declared as a cursor.
func Cursorable(sqlText string) bool {
	switch firstKeyword(sqlText) {
	case "SELECT", "WITH", "VALUES", "TABLE":
		return true
	}
	return false
}

// firstKeyword returns the upper-cased first keyword, skipping whitespace,
// comments and opening parentheses.
func firstKeyword(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool {
				return !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z')
			})
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}
