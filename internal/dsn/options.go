// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"reflect"
	"strconv"
	"strings"
)

// tlsKeys are option names that switch TLS on the connection. They are a
// connection-level flag and never travel onward as generic options.
var tlsKeys = []string{"useTls", "tls", "ssl", "sslmode"}

// isTLSKey reports whether key names a TLS switch (case-insensitive).
func isTLSKey(key string) bool {
	for _, k := range tlsKeys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// tlsValue interprets a TLS option value.
func tlsValue(key string, v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if strings.EqualFold(key, "sslmode") {
			switch strings.ToLower(t) {
			case "", "disable", "allow", "prefer":
				return false
			}
			return true
		}
		b, err := strconv.ParseBool(t)
		return err == nil && b
	case int:
		return t != 0
	}
	return false
}

// extractTLS removes TLS switches from opts and reports whether any enabled TLS.
func extractTLS(opts map[string]any) bool {
	enabled := false
	for k, v := range opts {
		if isTLSKey(k) {
			enabled = enabled || tlsValue(k, v)
			delete(opts, k)
		}
	}
	return enabled
}

// copyOptions deep-copies an options map so the descriptor never aliases
// caller-owned structures.
func copyOptions(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return copyOptions(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	}
	return copyReflect(reflect.ValueOf(v)).Interface()
}

// copyReflect handles the map and slice types the fast path does not know.
func copyReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyElem(iter.Value(), v.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyElem(v.Index(i), v.Type().Elem()))
		}
		return out
	}
	return v
}

func copyElem(v reflect.Value, typ reflect.Type) reflect.Value {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(typ)
		}
		return reflect.ValueOf(deepCopy(v.Interface()))
	}
	return copyReflect(v)
}
