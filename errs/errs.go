// Package errs implements the error taxonomy of spec.md §7. Each kind
// wraps its cause with github.com/pkg/errors the way the teacher's
// vfilter.Parse/MultiParse wrap lexer errors (see vfilter.go), so callers
// can still `errors.Cause()` down to the typed value underneath.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// SourceRange identifies the offending span of a compile request as start
// and end (line, column, offset) positions; it carries no token index.
type SourceRange struct {
	StartLine, StartColumn, StartOffset int
	EndLine, EndColumn, EndOffset       int
}

func (r SourceRange) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.StartLine, r.StartColumn, r.EndLine, r.EndColumn)
}

// SyntaxError is raised by the parser runtime (C3) on a missing
// (state, terminal) action.
type SyntaxError struct {
	Range      SourceRange
	Expected   []string
	Unexpected string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %s: unexpected %q, expected one of %v",
		e.Range, e.Unexpected, e.Expected)
}

func NewSyntaxError(rng SourceRange, unexpected string, expected []string) error {
	return errors.WithStack(&SyntaxError{Range: rng, Expected: expected, Unexpected: unexpected})
}

// TypeError is raised by the typechecker or by value conversion.
type TypeError struct {
	Range   SourceRange
	Message string
}

func (e *TypeError) Error() string { return fmt.Sprintf("type error at %s: %s", e.Range, e.Message) }

func NewTypeError(rng SourceRange, format string, args ...interface{}) error {
	return errors.WithStack(&TypeError{Range: rng, Message: fmt.Sprintf(format, args...)})
}

// NotFoundError is raised by the schema retriever (C4) and negatively
// cached for 10 minutes per spec §4.2.
type NotFoundError struct {
	Kind     string
	Function string
}

func (e *NotFoundError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("class %q not found", e.Kind)
	}
	return fmt.Sprintf("function %q not found on class %q", e.Function, e.Kind)
}

func NewNotFoundError(kind, function string) error {
	return errors.WithStack(&NotFoundError{Kind: kind, Function: function})
}

// NotImplementedError is raised by lowering or the operator-tree compiler
// on unsupported operator-tree shapes (spec §4.5).
type NotImplementedError struct {
	Range   SourceRange
	Feature string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("not implemented at %s: %s", e.Range, e.Feature)
}

func NewNotImplementedError(rng SourceRange, feature string) error {
	return errors.WithStack(&NotImplementedError{Range: rng, Feature: feature})
}

// TransportError is raised by the catalog client and fails every
// concurrent waiter of the in-flight batch it belongs to (spec §4.2, §5).
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Cause) }
func (e *TransportError) Unwrap() error { return e.Cause }

func NewTransportError(cause error) error {
	return errors.WithStack(&TransportError{Cause: cause})
}

// RuntimeError is what a generated IR TryCatch frame reports via
// environment.reportError at execution time (spec §7). The core never
// constructs this itself — it is documented here because the IR's
// TryCatch instruction (§6.2) is specified in terms of it.
type RuntimeError struct {
	Message string
	Cause   error
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("%s: %v", e.Message, e.Cause) }
func (e *RuntimeError) Unwrap() error { return e.Cause }
