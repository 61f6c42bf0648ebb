// Package errors defines the two error families a pipeline can produce:
// CompileError, raised while turning source into a plan, and RuntimeError,
// raised while running a plan against one artifact.
package errors

import (
	"fmt"
	"strings"
)

// Kind classifies a CompileError.
type Kind int

const (
	KindParse     Kind = iota // malformed block or statement shape
	KindReference             // unknown operation, step, family, signal, binding or function
	KindDuplicate             // name declared twice in one namespace
	KindGrammar               // malformed action, predicate, literal or empty body
	KindSafety                // disallowed construct inside an operation body
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse error"
	case KindReference:
		return "reference error"
	case KindDuplicate:
		return "duplicate definition"
	case KindGrammar:
		return "grammar error"
	case KindSafety:
		return "safety violation"
	default:
		return "error"
	}
}

// Compile error codes
const (
	ErrParse        = "E_PARSE"
	ErrMissingBlock = "E_MISSING_BLOCK"

	ErrUnknownOperation = "E_UNKNOWN_OPERATION"
	ErrUnknownStep      = "E_UNKNOWN_STEP"
	ErrUnknownFamily    = "E_UNKNOWN_FAMILY"
	ErrUnknownSignal    = "E_UNKNOWN_SIGNAL"
	ErrUnknownBinding   = "E_UNKNOWN_BINDING"
	ErrUnknownFunction  = "E_UNKNOWN_FUNCTION"
	ErrMissingBinding   = "E_MISSING_BINDING"

	ErrDuplicateOperation = "E_DUPLICATE_OPERATION"
	ErrDuplicateStep      = "E_DUPLICATE_STEP"
	ErrDuplicateBinding   = "E_DUPLICATE_BINDING"
	ErrDuplicateFamily    = "E_DUPLICATE_FAMILY"
	ErrDuplicateSignal    = "E_DUPLICATE_SIGNAL"

	ErrMalformedStatement = "E_MALFORMED_STATEMENT"
	ErrMalformedPredicate = "E_MALFORMED_PREDICATE"
	ErrEmptyOperation     = "E_EMPTY_OPERATION"
	ErrEmptyFamily        = "E_EMPTY_FAMILY"
	ErrEmptyPredicate     = "E_EMPTY_PREDICATE"
	ErrEmptyActions       = "E_EMPTY_ACTIONS"
	ErrUnknownAction      = "E_UNKNOWN_ACTION"
	ErrMalformedAction    = "E_MALFORMED_ACTION"
	ErrNumericLiteral     = "E_NUMERIC_LITERAL"

	ErrReservedKeyword = "E_RESERVED_KEYWORD"
	ErrMutableContext  = "E_MUTABLE_CONTEXT"
)

// CompileError is a fatal error found before a plan exists. Line and Column
// are 1-based and zero when the error has no single source location.
type CompileError struct {
	Kind       Kind
	Code       string
	Message    string
	Line       int
	Column     int
	Token      string // offending token text, when there is one
	Suggestion string // closest known name for reference errors
	Snippet    string // rendered source excerpt, see Snippet
	Cause      error  // reachable through errors.As; not rendered, Message describes it
}

// NewCompile creates a CompileError without a location.
func NewCompile(kind Kind, code, format string, args ...any) *CompileError {
	return &CompileError{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// At records the source location of the offending token.
func (e *CompileError) At(line, column int, token string) *CompileError {
	e.Line = line
	e.Column = column
	e.Token = token
	return e
}

// WithSuggestion attaches a "did you mean" candidate; empty is a no-op.
func (e *CompileError) WithSuggestion(s string) *CompileError {
	e.Suggestion = s
	return e
}

// WithSnippet renders the source excerpt for the recorded location.
func (e *CompileError) WithSnippet(source, name string) *CompileError {
	e.Snippet = Snippet(source, name, e.Line, e.Column)
	return e
}

// WithCause records the underlying error.
func (e *CompileError) WithCause(err error) *CompileError {
	e.Cause = err
	return e
}

func (e *CompileError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", e.Code)
	if e.Line > 0 && e.Snippet == "" {
		fmt.Fprintf(&b, "%d:%d: ", e.Line, e.Column)
	}
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " (did you mean %q?)", e.Suggestion)
	}
	if e.Snippet != "" {
		b.WriteString("\n")
		b.WriteString(e.Snippet)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error {
	return e.Cause
}

// RuntimeKind classifies a RuntimeError.
type RuntimeKind int

const (
	KindOperation  RuntimeKind = iota // a registered operation function failed
	KindEvaluation                    // a predicate hit a type mismatch or bad index
)

func (k RuntimeKind) String() string {
	switch k {
	case KindOperation:
		return "operation failed"
	case KindEvaluation:
		return "evaluation failed"
	default:
		return "runtime error"
	}
}

// RuntimeError aborts a single run. No context is returned alongside it.
type RuntimeError struct {
	Kind      RuntimeKind
	Operation string
	Step      string
	Function  string
	Family    string
	Signal    string
	Cause     error
}

func (e *RuntimeError) Error() string {
	switch e.Kind {
	case KindOperation:
		return fmt.Sprintf("%s: operation.%s.%s (function %q): %v", e.Kind, e.Operation, e.Step, e.Function, e.Cause)
	default:
		return fmt.Sprintf("%s: signal.%s.%s: %v", e.Kind, e.Family, e.Signal, e.Cause)
	}
}

func (e *RuntimeError) Unwrap() error {
	return e.Cause
}
