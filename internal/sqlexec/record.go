// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"clustersql/cli/internal/cluster"
	errs "clustersql/cli/internal/errors"

	"github.com/google/uuid"
)

// Record is one result row: field names paired positionally with values.
// All records drained from one cursor share the same field slice.
type Record struct {
	fields []string
	values []any
}

// NewRecord pairs fields with values. The lengths must match.
func NewRecord(fields []string, values []any) (Record, error) {
	if len(fields) != len(values) {
		return Record{}, errs.Newf(errs.FieldMismatch, "%d values for %d declared fields", len(values), len(fields))
	}
	return Record{fields: fields, values: values}, nil
}

// Fields returns the field names in declared order.
func (r Record) Fields() []string { return r.fields }

// Values returns the values in declared order.
func (r Record) Values() []any { return r.values }

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Get returns the value of the first field called name.
func (r Record) Get(name string) (any, bool) {
	for i, f := range r.fields {
		if f == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the record as a map. Field order is lost; duplicate names keep
// the last value.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.fields))
	for i, f := range r.fields {
		m[f] = r.values[i]
	}
	return m
}

// MarshalJSON writes the record as an object whose keys keep field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(normalize(r.values[i]))
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalize converts driver values into JSON-friendly ones. 16-byte values
// are UUIDs; other byte slices render as \x hex.
func normalize(val any) any {
	switch v := val.(type) {
	case []byte:
		if len(v) == 16 {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		return fmt.Sprintf("\\x%x", v)
	case [16]byte:
		return uuid.UUID(v).String()
	}
	return val
}

// Drain reads every row of cur into records, in delivery order, and closes
// the cursor. HasMore is checked before every fetch so an empty cursor yields
// zero records. A row whose length disagrees with the declared field names
// fails with a field_mismatch error and no partial record.
func Drain(ctx context.Context, cur cluster.Cursor) (records []Record, err error) {
	defer func() {
		if cerr := cur.Close(ctx); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close cursor: %w", cerr))
		}
	}()

	fields := cur.FieldNames()
	records = []Record{}
	for cur.HasMore() {
		row, err := cur.NextValue(ctx)
		if err != nil {
			return nil, err
		}
		rec, err := NewRecord(fields, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	return records, nil
}
