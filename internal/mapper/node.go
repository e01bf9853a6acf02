// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package mapper

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// maxIncludeDepth bounds <include> recursion.
const maxIncludeDepth = 16

// placeholder matches #{name} (escaped literal) and ${name} (raw text).
// Anything after a comma (#{id,jdbcType=INTEGER}) is ignored.
var placeholder = regexp.MustCompile(`([#$])\{\s*([^},\s]+)\s*(?:,[^}]*)?\}`)

type node interface {
	render(rc *renderCtx, b *strings.Builder) error
}

type renderCtx struct {
	mapper *Mapper
	ns     *namespace
	scope  *scope
	depth  int
}

func renderAll(rc *renderCtx, nodes []node, b *strings.Builder) error {
	for _, n := range nodes {
		if err := n.render(rc, b); err != nil {
			return err
		}
	}
	return nil
}

// textNode is literal SQL with placeholders.
type textNode string

func (t textNode) render(rc *renderCtx, b *strings.Builder) error {
	s := string(t)
	last := 0
	for _, m := range placeholder.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:m[0]])
		last = m[1]

		sigil, name := s[m[2]:m[3]], s[m[4]:m[5]]
		v, ok := rc.scope.lookup(name)
		if !ok {
			return &TemplateError{Reason: MissingParameter, Param: name}
		}
		var out string
		var err error
		if sigil == "#" {
			out, err = literal(v)
		} else {
			out, err = raw(v)
		}
		if err != nil {
			return &TemplateError{Reason: InvalidParameter, Param: name, Err: err}
		}
		b.WriteString(out)
	}
	b.WriteString(s[last:])
	return nil
}

type ifNode struct {
	test     expr
	children []node
}

func (n *ifNode) render(rc *renderCtx, b *strings.Builder) error {
	if !truthy(n.test.eval(rc.scope)) {
		return nil
	}
	return renderAll(rc, n.children, b)
}

type chooseNode struct {
	whens     []*ifNode
	otherwise []node
}

func (n *chooseNode) render(rc *renderCtx, b *strings.Builder) error {
	for _, w := range n.whens {
		if truthy(w.test.eval(rc.scope)) {
			return renderAll(rc, w.children, b)
		}
	}
	return renderAll(rc, n.otherwise, b)
}

// trimNode backs <trim>, <where> and <set>.
type trimNode struct {
	prefix          string
	suffix          string
	prefixOverrides []string
	suffixOverrides []string
	children        []node
}

func whereNode(children []node) *trimNode {
	return &trimNode{prefix: "WHERE", prefixOverrides: []string{"AND", "OR"}, children: children}
}

func setNode(children []node) *trimNode {
	return &trimNode{prefix: "SET", suffixOverrides: []string{","}, children: children}
}

func (n *trimNode) render(rc *renderCtx, b *strings.Builder) error {
	var inner strings.Builder
	if err := renderAll(rc, n.children, &inner); err != nil {
		return err
	}
	body := strings.TrimSpace(inner.String())
	if body == "" {
		return nil
	}
	for _, o := range n.prefixOverrides {
		if hasWordPrefix(body, o) {
			body = strings.TrimSpace(body[len(o):])
			break
		}
	}
	for _, o := range n.suffixOverrides {
		if hasWordSuffix(body, o) {
			body = strings.TrimSpace(body[:len(body)-len(o)])
			break
		}
	}
	b.WriteString(" ")
	if n.prefix != "" {
		b.WriteString(n.prefix + " ")
	}
	b.WriteString(body)
	if n.suffix != "" {
		b.WriteString(" " + n.suffix)
	}
	b.WriteString(" ")
	return nil
}

// hasWordPrefix matches o case-insensitively at the start of s. Word
// overrides (AND, OR) must be followed by a non-identifier character.
func hasWordPrefix(s, o string) bool {
	if len(s) < len(o) || !strings.EqualFold(s[:len(o)], o) {
		return false
	}
	return len(s) == len(o) || !isIdentByte(o[len(o)-1]) || !isIdentByte(s[len(o)])
}

func hasWordSuffix(s, o string) bool {
	if len(s) < len(o) || !strings.EqualFold(s[len(s)-len(o):], o) {
		return false
	}
	i := len(s) - len(o)
	return i == 0 || !isIdentByte(o[0]) || !isIdentByte(s[i-1])
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// foreachNode iterates a slice, array or map parameter.
type foreachNode struct {
	collection string
	item       string
	index      string
	open       string
	close      string
	separator  string
	children   []node
}

func (n *foreachNode) render(rc *renderCtx, b *strings.Builder) error {
	v, ok := rc.scope.lookup(n.collection)
	if !ok {
		return &TemplateError{Reason: MissingParameter, Param: n.collection}
	}

	type pair struct{ key, val any }
	var items []pair
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			items = append(items, pair{i, rv.Index(i).Interface()})
		}
	case reflect.Map:
		keys := rv.MapKeys()
		sortValues(keys)
		for _, k := range keys {
			items = append(items, pair{k.Interface(), rv.MapIndex(k).Interface()})
		}
	case reflect.Invalid:
	default:
		return &TemplateError{Reason: InvalidParameter, Param: n.collection,
			Err: fmt.Errorf("foreach needs a list or map, got %T", v)}
	}

	if len(items) == 0 {
		return nil
	}
	b.WriteString(" ")
	b.WriteString(n.open)
	for i, it := range items {
		if i > 0 {
			b.WriteString(n.separator)
		}
		locals := map[string]any{}
		if n.item != "" {
			locals[n.item] = it.val
		}
		if n.index != "" {
			locals[n.index] = it.key
		}
		rc.scope = rc.scope.push(locals)
		err := renderAll(rc, n.children, b)
		rc.scope = rc.scope.parent
		if err != nil {
			return err
		}
	}
	b.WriteString(n.close)
	b.WriteString(" ")
	return nil
}

type includeNode struct {
	refid string
}

func (n *includeNode) render(rc *renderCtx, b *strings.Builder) error {
	if rc.depth >= maxIncludeDepth {
		return &TemplateError{Reason: InvalidTemplate, Err: fmt.Errorf("include %q nests too deep", n.refid)}
	}
	body, ns, err := rc.mapper.fragment(rc.ns, n.refid)
	if err != nil {
		return &TemplateError{Reason: InvalidTemplate, Err: err}
	}
	prev := rc.ns
	rc.ns = ns
	rc.depth++
	err = renderAll(rc, body, b)
	rc.depth--
	rc.ns = prev
	return err
}
