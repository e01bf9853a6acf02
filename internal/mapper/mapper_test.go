// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package mapper

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	errs "clustersql/cli/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestdata(t *testing.T) *Mapper {
	t.Helper()
	m, err := New("testdata")
	require.NoError(t, err)
	return m
}

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestStatement(t *testing.T) {
	m := loadTestdata(t)

	tests := []struct {
		name   string
		ns, id string
		params map[string]any
		want   string
	}{
		{
			name: "include fragment",
			ns:   "person", id: "findAll",
			want: "SELECT id, name, age FROM person ORDER BY id",
		},
		{
			name: "integer literal",
			ns:   "person", id: "findById",
			params: map[string]any{"id": 1},
			want:   "SELECT id, name, age FROM person WHERE id = 1",
		},
		{
			name: "where with both conditions",
			ns:   "person", id: "search",
			params: map[string]any{"name": "bob", "minAge": 30},
			want:   "SELECT id, name, age FROM person WHERE name = 'bob' AND age >= 30",
		},
		{
			name: "where drops leading AND",
			ns:   "person", id: "search",
			params: map[string]any{"minAge": 30},
			want:   "SELECT id, name, age FROM person WHERE age >= 30",
		},
		{
			name: "empty where disappears",
			ns:   "person", id: "search",
			params: map[string]any{"name": ""},
			want:   "SELECT id, name, age FROM person",
		},
		{
			name: "foreach",
			ns:   "person", id: "findByIds",
			params: map[string]any{"ids": []int{1, 2, 3}},
			want:   "SELECT id FROM person WHERE id IN (1,2,3)",
		},
		{
			name: "choose when",
			ns:   "person", id: "ordered",
			params: map[string]any{"column": "name", "desc": true},
			want:   "SELECT id FROM person ORDER BY name DESC",
		},
		{
			name: "choose otherwise",
			ns:   "person", id: "ordered",
			params: map[string]any{"column": "age"},
			want:   "SELECT id FROM person ORDER BY age ASC",
		},
		{
			name: "set drops trailing comma",
			ns:   "person", id: "rename",
			params: map[string]any{"id": 4, "name": "x", "age": 3},
			want:   "UPDATE person SET name = 'x', age = 3 WHERE id = 4",
		},
		{
			name: "quote escaping and jdbcType",
			ns:   "person", id: "add",
			params: map[string]any{"id": 9, "name": "O'Brien"},
			want:   "INSERT INTO person (id, name) VALUES (9, 'O''Brien')",
		},
		{
			name: "trim with length test",
			ns:   "person", id: "purge",
			params: map[string]any{"ids": []any{1, 2}},
			want:   "DELETE FROM person WHERE id IN (1, 2)",
		},
		{
			name: "trim with nothing to keep",
			ns:   "person", id: "purge",
			want: "DELETE FROM person",
		},
		{
			name: "yaml fragment",
			ns:   "city", id: "list",
			want: "SELECT id, name, population FROM city",
		},
		{
			name: "yaml placeholder",
			ns:   "city", id: "byName",
			params: map[string]any{"name": "Oslo"},
			want:   "SELECT id, name, population FROM city WHERE name = 'Oslo'",
		},
		{
			name: "yaml cross-namespace fragment",
			ns:   "city", id: "personColumns",
			want: "SELECT id, name, age FROM person",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Statement(tt.ns, tt.id, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatement_Deterministic(t *testing.T) {
	m := loadTestdata(t)
	params := map[string]any{"name": "bob", "minAge": 30}
	first, err := m.Statement("person", "search", params)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := m.Statement("person", "search", params)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestStatement_Errors(t *testing.T) {
	m := loadTestdata(t)

	tests := []struct {
		name   string
		ns, id string
		params map[string]any
		reason Reason
	}{
		{"unknown namespace", "nope", "findAll", nil, UnknownNamespace},
		{"unknown statement", "person", "nope", nil, UnknownStatement},
		{"missing parameter", "person", "findById", nil, MissingParameter},
		{"missing collection", "person", "findByIds", nil, MissingParameter},
		{"unrenderable value", "person", "findById", map[string]any{"id": map[string]any{"a": 1}}, InvalidParameter},
		{"foreach over scalar", "person", "findByIds", map[string]any{"ids": 5}, InvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Statement(tt.ns, tt.id, tt.params)
			require.Error(t, err)

			var te *TemplateError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.reason, te.Reason)
			assert.Equal(t, tt.ns, te.Namespace)
			assert.True(t, errs.IsKind(err, errs.TemplateFailure))
		})
	}
}

func TestListing(t *testing.T) {
	m := loadTestdata(t)
	assert.Equal(t, []string{"city", "person"}, m.Namespaces())
	assert.Equal(t, []string{"byName", "list", "personColumns"}, m.Statements("city"))
	assert.Nil(t, m.Statements("missing"))
	assert.Equal(t, "update", m.Kind("person", "rename"))
	assert.Equal(t, "select", m.Kind("city", "list"))
	assert.Equal(t, "", m.Kind("person", "columns"))
}

func TestNew_Errors(t *testing.T) {
	_, err := New()
	assert.True(t, errs.IsKind(err, errs.MissingMapperDirectory))

	_, err = New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	cases := map[string]string{
		"no namespace":  `<mapper><select id="a">SELECT 1</select></mapper>`,
		"wrong root":    `<queries namespace="x"></queries>`,
		"duplicate id":  `<mapper namespace="x"><select id="a">SELECT 1</select><select id="a">SELECT 2</select></mapper>`,
		"bad test":      `<mapper namespace="x"><select id="a">SELECT 1 <if test="a ==">x</if></select></mapper>`,
		"unknown tag":   `<mapper namespace="x"><select id="a"><bind name="b" value="1"/></select></mapper>`,
		"missing id":    `<mapper namespace="x"><select>SELECT 1</select></mapper>`,
		"broken markup": `<mapper namespace="x"><select id="a">SELECT 1</mapper>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "m.xml", body)
			_, err := New(dir)
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.TemplateFailure), err.Error())
		})
	}
}

func TestNew_DuplicateNamespaceAcrossDirs(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeFile(t, a, "one.yaml", "namespace: shared\nstatements:\n  a: SELECT 1\n")
	writeFile(t, b, "two.yml", "namespace: shared\nstatements:\n  b: SELECT 2\n")

	_, err := New(a, b)
	var te *TemplateError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, InvalidTemplate, te.Reason)
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeFile(t, a, "a.yaml", "namespace: only_a\nstatements:\n  q: SELECT 1\n")
	writeFile(t, b, "b.yaml", "namespace: only_b\nstatements:\n  q: SELECT 2\n")
	writeFile(t, b, "notes.txt", "ignored")

	ma, err := New(a)
	require.NoError(t, err)
	mb, err := New(b)
	require.NoError(t, err)

	_, err = ma.Statement("only_b", "q", nil)
	assert.Error(t, err)
	got, err := mb.Statement("only_b", "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", got)
	assert.Equal(t, []string{b}, mb.Dirs())
}

func TestIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "loop.xml", `<mapper namespace="loop">
  <sql id="a"><include refid="b"/></sql>
  <sql id="b"><include refid="a"/></sql>
  <select id="q">SELECT <include refid="a"/></select>
  <select id="missing">SELECT <include refid="nope"/></select>
</mapper>`)
	m, err := New(dir)
	require.NoError(t, err)

	_, err = m.Statement("loop", "q", nil)
	assert.True(t, errs.IsKind(err, errs.TemplateFailure))
	_, err = m.Statement("loop", "missing", nil)
	assert.True(t, errs.IsKind(err, errs.TemplateFailure))
}

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{"it's", "'it''s'"},
		{true, "TRUE"},
		{false, "FALSE"},
		{42, "42"},
		{int64(-7), "-7"},
		{uint8(3), "3"},
		{1.5, "1.5"},
		{ts, "'2024-05-01T12:00:00Z'"},
		{[]string{"a", "b"}, "'a', 'b'"},
		{[]byte{0xde, 0xad}, `'\xdead'`},
	}
	for _, tt := range tests {
		got, err := literal(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	var nilPtr *int
	got, err := literal(nilPtr)
	require.NoError(t, err)
	assert.Equal(t, "NULL", got)

	_, err = literal(struct{}{})
	assert.Error(t, err)
}

func TestNormalizeSpace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"\n  SELECT   'a  b'\n\tFROM  \"my  table\"  ", "SELECT 'a  b' FROM \"my  table\""},
		{" \n ", ""},
		{"-- leading\nSELECT 1", "SELECT 1"},
		{"SELECT 1 -- trailing", "SELECT 1"},
		{"SELECT a, -- first\n  b\nFROM t", "SELECT a, b FROM t"},
		{"SELECT '--not a comment'  FROM t", "SELECT '--not a comment' FROM t"},
		{"SELECT /*+  hint  */   a\nFROM t", "SELECT /*+  hint  */ a FROM t"},
		{"SELECT 1 /* unterminated", "SELECT 1 /* unterminated"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeSpace(tt.in), tt.in)
	}
}

func TestStatement_Comments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "users.xml", `<mapper namespace="users">
  <select id="active">
    -- active users only
    SELECT id FROM users
    WHERE active = TRUE -- skip disabled
    /* newest first */ ORDER BY id DESC
  </select>
</mapper>`)
	m, err := New(dir)
	require.NoError(t, err)

	got, err := m.Statement("users", "active", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM users WHERE active = TRUE /* newest first */ ORDER BY id DESC", got)
}

func TestStatement_EmptyForeach(t *testing.T) {
	m := loadTestdata(t)
	got, err := m.Statement("person", "findByIds", map[string]any{"ids": []int{}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM person WHERE id IN", got)
}
