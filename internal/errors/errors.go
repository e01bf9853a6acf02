// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure the adapter surfaces carries a machine-readable Kind so callers
// can tell a configuration problem from a connect failure or a query failure
// without string matching.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// making it easier to handle different types of failures appropriately.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// MalformedURL indicates a connection URL component could not be extracted.
	MalformedURL Kind = "malformed_url"
	// MissingMapperDirectory indicates the host did not declare a mapper directory.
	MissingMapperDirectory Kind = "missing_mapper_directory"
	// MissingHost indicates the resolved configuration has no host.
	MissingHost Kind = "missing_host"
	// MissingSchema indicates the resolved configuration has no cache or schema name.
	MissingSchema Kind = "missing_schema"
	// InvalidConfig covers structured configuration that could not be decoded.
	InvalidConfig Kind = "invalid_config"

	// ConnectFailed indicates the cluster session could not be established.
	ConnectFailed Kind = "connect_failed"
	// AlreadyConnected indicates Connect was called twice without Disconnect.
	AlreadyConnected Kind = "already_connected"
	// SessionFailed indicates a previous Connect failed; the adapter must be rebuilt.
	SessionFailed Kind = "session_failed"

	// TemplateFailure indicates the statement template could not be rendered.
	TemplateFailure Kind = "template_failure"
	// NotConnected indicates a query was issued without a connected session.
	NotConnected Kind = "not_connected"
	// ExecutionFailure indicates the cluster rejected or failed the query.
	ExecutionFailure Kind = "execution_failure"
	// FieldMismatch indicates a cursor row disagreed with its declared field names.
	FieldMismatch Kind = "field_mismatch"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *E) Unwrap() error { return e.Err }

// Is reports whether target is an *E of the same kind. A target with an
// empty kind matches any *E.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *E in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain holds an *E of the given kind.
func IsKind(err error, kind Kind) bool {
	return stderrors.Is(err, &E{Kind: kind})
}
