// Package errors defines the structured errors reported by the wrapper generator.
//
// Every failure aborts the whole run. Callers classify errors with the
// standard library's errors.Is against the sentinels below, which match on
// Kind regardless of phase or declaration.
package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in generation the error occurred
type Phase string

const (
	PhaseScan   Phase = "scan"   // declaration scanning and parameter parsing
	PhaseDerive Phase = "derive" // name derivation
	PhaseEmit   Phase = "emit"   // wrapper emission
	PhaseConfig Phase = "config" // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	// KindFormat is an unparseable declaration fragment.
	KindFormat Kind = "format"
	// KindPrecondition is a declaration that violates a generation rule.
	KindPrecondition Kind = "precondition"
	// KindConfig is an invalid configuration file.
	KindConfig Kind = "config"
)

// Sentinels for errors.Is.
var (
	ErrFormat       = &Error{Kind: KindFormat}
	ErrPrecondition = &Error{Kind: KindPrecondition}
	ErrConfig       = &Error{Kind: KindConfig}
)

// Error is the structured error type used throughout the generator
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Decl   string // wrapper name, when known
	Source string // offending input line, when known
	Detail string
	Line   int // 1-based input line, 0 if unknown
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Decl != "" {
		b.WriteString(" in ")
		b.WriteString(e.Decl)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a phase
// matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Format creates a FormatError for the named declaration.
func Format(phase Phase, decl string, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFormat,
		Decl:   decl,
		Detail: sprintf(detail, args...),
	}
}

// Precondition creates a PreconditionViolation for the named declaration.
func Precondition(phase Phase, decl string, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPrecondition,
		Decl:   decl,
		Detail: sprintf(detail, args...),
	}
}

// Config creates a configuration error for the given file.
func Config(path string, cause error, detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConfig,
		Decl:   path,
		Detail: sprintf(detail, args...),
		Cause:  cause,
	}
}

// At returns a copy of e positioned at the given input line.
func (e *Error) At(line int, source string) *Error {
	c := *e
	c.Line = line
	c.Source = source
	return &c
}

func sprintf(msg string, args ...any) string {
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}
