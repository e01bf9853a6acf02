// Package sqlexec runs named statements against the bound cluster cache and
// materializes their cursors into ordered records.
//
// The executor resolves SQL text through a template resolver, submits it as a
// field-inclusive query against the session's cache, and drains the returned
// cursor. Every failure comes back as a *QueryError with a kind callers can
// switch on; a failed query never produces a Result.
package sqlexec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clustersql/cli/internal/cluster"
	errs "clustersql/cli/internal/errors"
)

// TemplateResolver produces SQL text for a statement. It must be a pure
// function of its inputs.
type TemplateResolver interface {
	Statement(namespace, id string, params map[string]any) (string, error)
}

// CacheProvider hands out the bound cache while a session is connected.
type CacheProvider interface {
	Cache() (cluster.Cache, error)
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

// RowCount returns the number of records.
func (r *Result) RowCount() int { return len(r.Records) }

// Rows returns the positional values of every record.
func (r *Result) Rows() [][]any {
	rows := make([][]any, len(r.Records))
	for i, rec := range r.Records {
		rows[i] = rec.Values()
	}
	return rows
}

// QueryError reports a failed ExecuteQuery.
type QueryError struct {
	Kind      errs.Kind
	Namespace string
	ID        string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s.%s: %s: %v", e.Namespace, e.ID, e.Kind, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{errs.New(e.Kind, e.Namespace+"."+e.ID), e.Err}
}

// Option configures an Executor.
type Option func(*Executor)

// WithPageSize sets the cursor page size; 0 keeps the transport default.
func WithPageSize(n int) Option {
	return func(e *Executor) { e.pageSize = n }
}

// WithTimeout sets a per-statement timeout enforced by the transport.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// Executor executes named statements against a session's cache.
type Executor struct {
	templates TemplateResolver
	session   CacheProvider
	logger    *slog.Logger
	pageSize  int
	timeout   time.Duration
}

// New creates an Executor.
func New(templates TemplateResolver, session CacheProvider, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{templates: templates, session: session, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExecuteQuery resolves namespace.id with params, runs it and drains the
// cursor. The resolved SQL is logged before execution.
func (e *Executor) ExecuteQuery(ctx context.Context, namespace, id string, params map[string]any) (*Result, error) {
	fail := func(kind errs.Kind, err error) (*Result, error) {
		qe := &QueryError{Kind: kind, Namespace: namespace, ID: id, Err: err}
		e.logger.Error("query failed", "namespace", namespace, "statement", id, "kind", string(kind), "error", err)
		return nil, qe
	}

	sqlText, err := e.templates.Statement(namespace, id, params)
	if err != nil {
		return fail(errs.TemplateFailure, err)
	}

	cache, err := e.session.Cache()
	if err != nil {
		return fail(errs.NotConnected, err)
	}

	e.logger.Info("executing statement", "namespace", namespace, "statement", id, "sql", sqlText)

	cur, err := cache.Query(ctx, cluster.SQLFieldsQuery{
		SQL:               sqlText,
		PageSize:          e.pageSize,
		IncludeFieldNames: true,
		Timeout:           e.timeout,
	})
	if err != nil {
		return fail(errs.ExecutionFailure, err)
	}

	columns := cur.FieldNames()
	records, err := Drain(ctx, cur)
	if err != nil {
		if errs.IsKind(err, errs.FieldMismatch) {
			return fail(errs.FieldMismatch, err)
		}
		return fail(errs.ExecutionFailure, err)
	}
	if columns == nil {
		columns = []string{}
	}
	return &Result{Columns: columns, Records: records}, nil
}
