// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package mapper

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// scope is a chain of parameter maps. foreach pushes its item and index.
type scope struct {
	vars   map[string]any
	parent *scope
}

func newScope(params map[string]any) *scope {
	if params == nil {
		params = map[string]any{}
	}
	return &scope{vars: params}
}

func (s *scope) push(vars map[string]any) *scope {
	return &scope{vars: vars, parent: s}
}

// lookup resolves a dotted path such as "user.address.city". A trailing
// ".length" on a string, list or map yields its length.
func (s *scope) lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	var root any
	found := false
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[parts[0]]; ok {
			root, found = v, true
			break
		}
	}
	if !found {
		return nil, false
	}
	cur := root
	for i, p := range parts[1:] {
		next, ok := field(cur, p)
		if !ok {
			if p == "length" && i == len(parts)-2 {
				if n, ok := length(cur); ok {
					return n, true
				}
			}
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func field(v any, name string) (any, bool) {
	if m, ok := v.(map[string]any); ok {
		out, ok := m[name]
		return out, ok
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		out := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !out.IsValid() {
			return nil, false
		}
		return out.Interface(), true
	case reflect.Struct:
		f := rv.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
		if !f.IsValid() || !f.CanInterface() {
			return nil, false
		}
		return f.Interface(), true
	}
	return nil, false
}

func length(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

// literal renders v as an escaped SQL literal.
func literal(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quote(t), nil
	case bool:
		if t {
			return "TRUE", nil
		}
		return "FALSE", nil
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case time.Time:
		return quote(t.Format(time.RFC3339Nano)), nil
	case uuid.UUID:
		return quote(t.String()), nil
	case []byte:
		return `'\x` + hex.EncodeToString(t) + `'`, nil
	case fmt.Stringer:
		return quote(t.String()), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float())
	case reflect.String:
		return quote(rv.String()), nil
	case reflect.Bool:
		return literal(rv.Bool())
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL", nil
		}
		return literal(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			s, err := literal(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ", "), nil
	}
	return "", fmt.Errorf("cannot render %T as a SQL literal", v)
}

// raw renders v verbatim for ${} substitution.
func raw(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Struct, reflect.Func, reflect.Chan:
		return "", fmt.Errorf("cannot substitute %T as raw text", v)
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			s, err := raw(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	}
	return fmt.Sprint(v), nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number %v", f)
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// normalizeSpace collapses runs of whitespace outside quoted literals,
// quoted identifiers and block comments, and trims the result. Line comments
// are dropped: on one line they would swallow the rest of the statement.
func normalizeSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote byte
	space := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			space = true
			continue
		case c == '-' && i+1 < len(s) && s[i+1] == '-':
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				i = len(s)
			} else {
				i += nl
			}
			space = true
			continue
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				end = len(s)
			} else {
				end += i + 4
			}
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteString(s[i:end])
			i = end - 1
			continue
		case c == '\'' || c == '"':
			quote = c
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteByte(c)
	}
	return b.String()
}

// sortValues orders map keys by their printed form so foreach over a map is
// deterministic.
func sortValues(keys []reflect.Value) {
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
}
