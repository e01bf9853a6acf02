// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package mapper

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// element is a raw XML element; children are string or *element.
type element struct {
	name     string
	attrs    map[string]string
	children []any
}

func (e *element) attr(name string) string { return e.attrs[name] }

func parseXML(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = xml.HTMLEntity

	var stack []*element
	var root *element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			} else if root == nil {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, string(t))
			}
		}
	}
	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

func loadXML(path string) (*namespace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := parseXML(data)
	if err != nil {
		return nil, &TemplateError{Reason: InvalidTemplate, File: path, Err: err}
	}
	if root.name != "mapper" {
		return nil, &TemplateError{Reason: InvalidTemplate, File: path,
			Err: fmt.Errorf("root element is <%s>, want <mapper>", root.name)}
	}
	ns := &namespace{
		name:       root.attr("namespace"),
		file:       path,
		statements: make(map[string]*statement),
		fragments:  make(map[string][]node),
	}
	if ns.name == "" {
		return nil, &TemplateError{Reason: InvalidTemplate, File: path, Err: errors.New("mapper has no namespace")}
	}

	fail := func(id string, err error) error {
		return &TemplateError{Reason: InvalidTemplate, File: path, Namespace: ns.name, ID: id, Err: err}
	}
	for _, c := range root.children {
		el, ok := c.(*element)
		if !ok {
			continue
		}
		id := el.attr("id")
		switch el.name {
		case "select", "insert", "update", "delete", "sql":
		default:
			continue
		}
		if id == "" {
			return nil, fail("", fmt.Errorf("<%s> without id", el.name))
		}
		body, err := buildNodes(el.children)
		if err != nil {
			return nil, fail(id, err)
		}
		if el.name == "sql" {
			if _, dup := ns.fragments[id]; dup {
				return nil, fail(id, errors.New("duplicate sql fragment"))
			}
			ns.fragments[id] = body
			continue
		}
		if _, dup := ns.statements[id]; dup {
			return nil, fail(id, errors.New("duplicate statement id"))
		}
		ns.statements[id] = &statement{id: id, kind: el.name, body: body}
	}
	return ns, nil
}

func buildNodes(children []any) ([]node, error) {
	var out []node
	for _, c := range children {
		switch t := c.(type) {
		case string:
			out = append(out, textNode(t))
		case *element:
			n, err := buildElement(t)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
	}
	return out, nil
}

func buildElement(el *element) (node, error) {
	switch el.name {
	case "if":
		return buildIf(el)
	case "where", "set", "trim":
		children, err := buildNodes(el.children)
		if err != nil {
			return nil, err
		}
		switch el.name {
		case "where":
			return whereNode(children), nil
		case "set":
			return setNode(children), nil
		}
		return &trimNode{
			prefix:          el.attr("prefix"),
			suffix:          el.attr("suffix"),
			prefixOverrides: splitOverrides(el.attr("prefixOverrides")),
			suffixOverrides: splitOverrides(el.attr("suffixOverrides")),
			children:        children,
		}, nil
	case "choose":
		ch := &chooseNode{}
		for _, c := range el.children {
			sub, ok := c.(*element)
			if !ok {
				continue
			}
			switch sub.name {
			case "when":
				w, err := buildIf(sub)
				if err != nil {
					return nil, err
				}
				ch.whens = append(ch.whens, w)
			case "otherwise":
				nodes, err := buildNodes(sub.children)
				if err != nil {
					return nil, err
				}
				ch.otherwise = nodes
			default:
				return nil, fmt.Errorf("<%s> not allowed in <choose>", sub.name)
			}
		}
		return ch, nil
	case "foreach":
		collection := el.attr("collection")
		if collection == "" {
			return nil, errors.New("<foreach> without collection")
		}
		children, err := buildNodes(el.children)
		if err != nil {
			return nil, err
		}
		return &foreachNode{
			collection: collection,
			item:       el.attr("item"),
			index:      el.attr("index"),
			open:       el.attr("open"),
			close:      el.attr("close"),
			separator:  el.attr("separator"),
			children:   children,
		}, nil
	case "include":
		refid := el.attr("refid")
		if refid == "" {
			return nil, errors.New("<include> without refid")
		}
		return &includeNode{refid: refid}, nil
	}
	return nil, fmt.Errorf("unsupported element <%s>", el.name)
}

func buildIf(el *element) (*ifNode, error) {
	test := el.attr("test")
	if strings.TrimSpace(test) == "" {
		return nil, fmt.Errorf("<%s> without test", el.name)
	}
	e, err := parseExpr(test)
	if err != nil {
		return nil, fmt.Errorf("<%s test=%q>: %w", el.name, test, err)
	}
	children, err := buildNodes(el.children)
	if err != nil {
		return nil, err
	}
	return &ifNode{test: e, children: children}, nil
}

func splitOverrides(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// yamlFile is the YAML mapper form:
//
//	namespace: person
//	statements:
//	  findById: SELECT * FROM person WHERE id = #{id}
//	fragments:
//	  columns: id, name
type yamlFile struct {
	Namespace  string            `yaml:"namespace"`
	Statements map[string]string `yaml:"statements"`
	Fragments  map[string]string `yaml:"fragments"`
}

// yamlIncludeOpen starts an @{fragment} reference in YAML statements.
const yamlIncludeOpen = "@{"

func loadYAML(path string) (*namespace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &TemplateError{Reason: InvalidTemplate, File: path, Err: err}
	}
	if f.Namespace == "" {
		return nil, &TemplateError{Reason: InvalidTemplate, File: path, Err: errors.New("mapper has no namespace")}
	}
	ns := &namespace{
		name:       f.Namespace,
		file:       path,
		statements: make(map[string]*statement, len(f.Statements)),
		fragments:  make(map[string][]node, len(f.Fragments)),
	}
	for id, text := range f.Fragments {
		ns.fragments[id] = yamlNodes(text)
	}
	for id, text := range f.Statements {
		ns.statements[id] = &statement{id: id, kind: statementKind(text), body: yamlNodes(text)}
	}
	return ns, nil
}

// yamlNodes splits text on @{ref} includes.
func yamlNodes(text string) []node {
	var out []node
	for {
		i := strings.Index(text, yamlIncludeOpen)
		if i < 0 {
			break
		}
		j := strings.IndexByte(text[i:], '}')
		if j < 0 {
			break
		}
		out = append(out, textNode(text[:i]), &includeNode{refid: strings.TrimSpace(text[i+2 : i+j])})
		text = text[i+j+1:]
	}
	return append(out, textNode(text))
}

func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return ""
	}
	switch k := strings.ToLower(fields[0]); k {
	case "select", "insert", "update", "delete":
		return k
	case "with", "values", "table":
		return "select"
	}
	return ""
}
