// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package mapper turns a (namespace, statement id, params) triple into literal
// SQL text. Statements live in mapper files inside one or more directories:
// MyBatis-style XML (<mapper namespace="..."><select id="...">) or a plain YAML
// form (namespace + statements map).
//
// Every Mapper owns its own registry. Two mappers loaded from different
// directories never see each other's statements.
package mapper

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	errs "clustersql/cli/internal/errors"
)

// Reason classifies a TemplateError.
type Reason string

const (
	UnknownNamespace Reason = "unknown namespace"
	UnknownStatement Reason = "unknown statement"
	MissingParameter Reason = "missing parameter"
	InvalidParameter Reason = "invalid parameter"
	InvalidTemplate  Reason = "invalid template"
)

// TemplateError reports why a statement could not be produced.
type TemplateError struct {
	Reason    Reason
	Namespace string
	ID        string
	Param     string
	File      string
	Err       error
}

func (e *TemplateError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Reason))
	if e.File != "" {
		fmt.Fprintf(&b, " in %s", e.File)
	}
	if e.Namespace != "" {
		fmt.Fprintf(&b, " %s", e.Namespace)
		if e.ID != "" {
			fmt.Fprintf(&b, ".%s", e.ID)
		}
	}
	if e.Param != "" {
		fmt.Fprintf(&b, ": %s", e.Param)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap classifies the error as a template failure and exposes its cause.
func (e *TemplateError) Unwrap() []error {
	out := []error{errs.New(errs.TemplateFailure, string(e.Reason))}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Mapper is a loaded statement registry.
type Mapper struct {
	dirs       []string
	namespaces map[string]*namespace
}

// New loads every mapper file (*.xml, *.yaml, *.yml) found directly inside
// each directory.
func New(dirs ...string) (*Mapper, error) {
	m := &Mapper{dirs: append([]string(nil), dirs...), namespaces: make(map[string]*namespace)}
	if len(dirs) == 0 {
		return nil, errs.New(errs.MissingMapperDirectory, "no mapper directory given")
	}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read mapper directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			var ns *namespace
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".xml":
				ns, err = loadXML(path)
			case ".yaml", ".yml":
				ns, err = loadYAML(path)
			default:
				continue
			}
			if err != nil {
				return nil, err
			}
			if prev, ok := m.namespaces[ns.name]; ok {
				return nil, &TemplateError{Reason: InvalidTemplate, Namespace: ns.name, File: path,
					Err: fmt.Errorf("namespace already defined in %s", prev.file)}
			}
			m.namespaces[ns.name] = ns
		}
	}
	return m, nil
}

// Dirs returns the directories the mapper was loaded from.
func (m *Mapper) Dirs() []string { return append([]string(nil), m.dirs...) }

// Statement renders the statement namespace.id with params. It has no side
// effects; the same inputs always produce the same SQL.
func (m *Mapper) Statement(namespace, id string, params map[string]any) (string, error) {
	ns, ok := m.namespaces[namespace]
	if !ok {
		return "", &TemplateError{Reason: UnknownNamespace, Namespace: namespace}
	}
	st, ok := ns.statements[id]
	if !ok {
		return "", &TemplateError{Reason: UnknownStatement, Namespace: namespace, ID: id}
	}

	rc := &renderCtx{mapper: m, ns: ns, scope: newScope(params)}
	var b strings.Builder
	if err := renderAll(rc, st.body, &b); err != nil {
		if te, ok := err.(*TemplateError); ok {
			te.Namespace, te.ID = namespace, id
			return "", te
		}
		return "", &TemplateError{Reason: InvalidTemplate, Namespace: namespace, ID: id, Err: err}
	}
	return normalizeSpace(b.String()), nil
}

// Namespaces lists loaded namespaces in sorted order.
func (m *Mapper) Namespaces() []string {
	out := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Statements lists the statement ids of a namespace in sorted order.
func (m *Mapper) Statements(namespace string) []string {
	ns, ok := m.namespaces[namespace]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ns.statements))
	for id := range ns.statements {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Kind returns the statement kind (select, insert, update, delete).
func (m *Mapper) Kind(namespace, id string) string {
	if ns, ok := m.namespaces[namespace]; ok {
		if st, ok := ns.statements[id]; ok {
			return st.kind
		}
	}
	return ""
}

// fragment resolves an <include refid>, either local or "namespace.id".
func (m *Mapper) fragment(from *namespace, refid string) ([]node, *namespace, error) {
	if body, ok := from.fragments[refid]; ok {
		return body, from, nil
	}
	if dot := strings.LastIndex(refid, "."); dot > 0 {
		if ns, ok := m.namespaces[refid[:dot]]; ok {
			if body, ok := ns.fragments[refid[dot+1:]]; ok {
				return body, ns, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("unknown sql fragment %q", refid)
}

type namespace struct {
	name       string
	file       string
	statements map[string]*statement
	fragments  map[string][]node
}

type statement struct {
	id   string
	kind string
	body []node
}
