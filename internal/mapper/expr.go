// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package mapper

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// expr is a compiled test="..." condition. Grammar:
//
//	or      = and { ("or" | "||") and }
//	and     = not { ("and" | "&&") not }
//	not     = ("!" | "not") not | cmp
//	cmp     = operand [ ("==" | "!=" | "<" | "<=" | ">" | ">=") operand ]
//	operand = ident | number | string | "null" | "true" | "false" | "(" or ")"
//
// Unknown names evaluate to null.
type expr interface {
	eval(s *scope) any
}

type identExpr string

func (e identExpr) eval(s *scope) any {
	v, _ := s.lookup(string(e))
	return v
}

type constExpr struct{ v any }

func (e constExpr) eval(*scope) any { return e.v }

type notExpr struct{ x expr }

func (e notExpr) eval(s *scope) any { return !truthy(e.x.eval(s)) }

type logicExpr struct {
	and  bool
	l, r expr
}

func (e logicExpr) eval(s *scope) any {
	l := truthy(e.l.eval(s))
	if e.and {
		return l && truthy(e.r.eval(s))
	}
	return l || truthy(e.r.eval(s))
}

type cmpExpr struct {
	op   string
	l, r expr
}

func (e cmpExpr) eval(s *scope) any {
	return compare(e.op, e.l.eval(s), e.r.eval(s))
}

func compare(op string, l, r any) bool {
	switch op {
	case "==":
		return equal(l, r)
	case "!=":
		return !equal(l, r)
	}
	if l == nil || r == nil {
		return false
	}
	var c int
	if lf, ok := toFloat(l); ok {
		rf, ok := toFloat(r)
		if !ok {
			return false
		}
		switch {
		case lf < rf:
			c = -1
		case lf > rf:
			c = 1
		}
	} else {
		c = strings.Compare(fmt.Sprint(l), fmt.Sprint(r))
	}
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

func equal(l, r any) bool {
	if l == nil || r == nil {
		return l == nil && r == nil
	}
	if lf, ok := toFloat(l); ok {
		if rf, ok := toFloat(r); ok {
			return lf == rf
		}
	}
	if lb, ok := l.(bool); ok {
		rb, ok := r.(bool)
		return ok && lb == rb
	}
	return fmt.Sprint(l) == fmt.Sprint(r)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// truthy: null, false, zero, "" and empty collections are false.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// parseExpr compiles a test expression.
func parseExpr(src string) (expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("unexpected %q in %q", p.toks[p.pos].text, src)
	}
	return e, nil
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokKind
	text string
}

func tokenize(src string) ([]token, error) {
	var out []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			j := i + 1
			for j < len(rs) && rs[j] != r {
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated string in %q", src)
			}
			out = append(out, token{tokString, string(rs[i+1 : j])})
			i = j + 1
		case unicode.IsDigit(r) || r == '-' && i+1 < len(rs) && unicode.IsDigit(rs[i+1]):
			j := i + 1
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			out = append(out, token{tokNumber, string(rs[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i + 1
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '.') {
				j++
			}
			out = append(out, token{tokIdent, string(rs[i:j])})
			i = j
		default:
			op := string(r)
			if i+1 < len(rs) {
				switch two := string(rs[i : i+2]); two {
				case "==", "!=", "<=", ">=", "&&", "||":
					op = two
				}
			}
			switch op {
			case "==", "!=", "<=", ">=", "&&", "||", "<", ">", "!", "(", ")":
			default:
				return nil, fmt.Errorf("unexpected %q in %q", op, src)
			}
			out = append(out, token{tokOp, op})
			i += len([]rune(op))
		}
	}
	return out, nil
}

type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

// accept consumes the next token when it is an operator or keyword in words.
func (p *exprParser) accept(words ...string) (string, bool) {
	t, ok := p.peek()
	if !ok || t.kind == tokNumber || t.kind == tokString {
		return "", false
	}
	for _, w := range words {
		if strings.EqualFold(t.text, w) {
			p.pos++
			return w, true
		}
	}
	return "", false
}

func (p *exprParser) or() (expr, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("or", "||"); !ok {
			return l, nil
		}
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = logicExpr{and: false, l: l, r: r}
	}
}

func (p *exprParser) and() (expr, error) {
	l, err := p.not()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("and", "&&"); !ok {
			return l, nil
		}
		r, err := p.not()
		if err != nil {
			return nil, err
		}
		l = logicExpr{and: true, l: l, r: r}
	}
}

func (p *exprParser) not() (expr, error) {
	if _, ok := p.accept("!", "not"); ok {
		x, err := p.not()
		if err != nil {
			return nil, err
		}
		return notExpr{x}, nil
	}
	return p.cmp()
}

func (p *exprParser) cmp() (expr, error) {
	l, err := p.operand()
	if err != nil {
		return nil, err
	}
	op, ok := p.accept("==", "!=", "<=", ">=", "<", ">", "eq", "neq", "lt", "lte", "gt", "gte")
	if !ok {
		return l, nil
	}
	r, err := p.operand()
	if err != nil {
		return nil, err
	}
	switch op {
	case "eq":
		op = "=="
	case "neq":
		op = "!="
	case "lt":
		op = "<"
	case "lte":
		op = "<="
	case "gt":
		op = ">"
	case "gte":
		op = ">="
	}
	return cmpExpr{op: op, l: l, r: r}, nil
}

func (p *exprParser) operand() (expr, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("expression ends early")
	}
	p.pos++
	switch t.kind {
	case tokString:
		return constExpr{t.text}, nil
	case tokNumber:
		if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return constExpr{n}, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return constExpr{f}, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "null", "nil", "undefined":
			return constExpr{nil}, nil
		case "true":
			return constExpr{true}, nil
		case "false":
			return constExpr{false}, nil
		case "and", "or", "not":
			return nil, fmt.Errorf("unexpected %q", t.text)
		}
		return identExpr(t.text), nil
	}
	if t.text == "(" {
		e, err := p.or()
		if err != nil {
			return nil, err
		}
		if _, ok := p.accept(")"); !ok {
			return nil, fmt.Errorf("missing )")
		}
		return e, nil
	}
	return nil, fmt.Errorf("unexpected %q", t.text)
}
