// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"clustersql/cli/internal/cluster"
)

// TableInfo describes one table of the cache's SQL schema.
type TableInfo struct {
	// Schema is the SQL schema the table lives in
	Schema string
	// Name is the unqualified table name
	Name string
	// Columns lists the columns in ordinal order
	Columns []ColumnInfo
	// PrimaryKeyCols lists primary key column names in order
	PrimaryKeyCols []string
}

// ColumnInfo describes one column.
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
	Default  string
}

// SchemaInspector reads table metadata from information_schema through the
// bound cache and caches it per table.
type SchemaInspector struct {
	// cache runs the metadata queries
	cache cluster.Cache
	// schema is used for unqualified table names
	schema string
	// tables stores table information keyed by "schema.table"
	tables map[string]*TableInfo
	// mu protects concurrent access to tables
	mu sync.RWMutex
}

// NewSchemaInspector creates an inspector for the given cache. schema is the
// default SQL schema; when empty the cache name is used.
func NewSchemaInspector(cache cluster.Cache, schema string) *SchemaInspector {
	if schema == "" {
		schema = cache.Name()
	}
	return &SchemaInspector{
		cache:  cache,
		schema: schema,
		tables: make(map[string]*TableInfo),
	}
}

const tablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1 AND table_type IN ('BASE TABLE', 'VIEW')
	ORDER BY table_name`

const columnsQuery = `
	SELECT column_name, data_type, is_nullable, column_default
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

const primaryKeyQuery = `
	SELECT kc.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kc
	  ON tc.constraint_name = kc.constraint_name AND tc.table_schema = kc.table_schema
	WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
	ORDER BY kc.ordinal_position`

// Tables lists the table and view names of the default schema.
func (si *SchemaInspector) Tables(ctx context.Context) ([]string, error) {
	records, err := si.query(ctx, tablesQuery, si.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables in %s: %w", si.schema, err)
	}
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, stringField(r, "table_name"))
	}
	return names, nil
}

// GetTableInfo returns cached metadata for a table, loading it on first use.
// tableName can be either "table" or "schema.table".
func (si *SchemaInspector) GetTableInfo(ctx context.Context, tableName string) (*TableInfo, error) {
	schema, table := si.parseTableName(tableName)
	key := schema + "." + table

	si.mu.RLock()
	if info, ok := si.tables[key]; ok {
		si.mu.RUnlock()
		return info, nil
	}
	si.mu.RUnlock()

	info := &TableInfo{Schema: schema, Name: table}

	cols, err := si.query(ctx, columnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("load columns of %s: %w", key, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s not found", key)
	}
	for _, r := range cols {
		info.Columns = append(info.Columns, ColumnInfo{
			Name:     stringField(r, "column_name"),
			Type:     stringField(r, "data_type"),
			Nullable: strings.EqualFold(stringField(r, "is_nullable"), "YES"),
			Default:  stringField(r, "column_default"),
		})
	}

	pks, err := si.query(ctx, primaryKeyQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("load primary key of %s: %w", key, err)
	}
	for _, r := range pks {
		info.PrimaryKeyCols = append(info.PrimaryKeyCols, stringField(r, "column_name"))
	}

	si.mu.Lock()
	si.tables[key] = info
	si.mu.Unlock()
	return info, nil
}

// ClearCache drops cached table metadata.
func (si *SchemaInspector) ClearCache() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.tables = make(map[string]*TableInfo)
}

func (si *SchemaInspector) query(ctx context.Context, sqlText string, args ...any) ([]Record, error) {
	cur, err := si.cache.Query(ctx, cluster.SQLFieldsQuery{SQL: sqlText, Args: args, IncludeFieldNames: true})
	if err != nil {
		return nil, err
	}
	return Drain(ctx, cur)
}

// parseTableName splits a table name into schema and table components,
// defaulting to the inspector's schema.
func (si *SchemaInspector) parseTableName(tableName string) (schema string, table string) {
	if i := strings.LastIndex(tableName, "."); i > 0 {
		return tableName[:i], tableName[i+1:]
	}
	return si.schema, tableName
}

func stringField(r Record, name string) string {
	v, _ := r.Get(name)
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}
