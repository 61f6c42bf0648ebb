package parser

import (
	"fmt"
	"strings"

	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/runtime/lexer"
	"github.com/dozer-project/lucius/runtime/syntax"
)

// ParseError represents a parsing error with location and context information
type ParseError struct {
	Type        ErrorType
	Message     string
	Token       lexer.Token
	Input       string
	SourceName  string
	OpenedAt    *lexer.Token // For bracket mismatch errors
	Suggestions []string     // Possible fixes
}

// ErrorType represents different categories of parsing errors
type ErrorType int

const (
	ErrorSyntax ErrorType = iota
	ErrorUnexpected
	ErrorMissing
	ErrorDuplicate
	ErrorUnknown
)

func (e ErrorType) String() string {
	switch e {
	case ErrorSyntax:
		return "syntax error"
	case ErrorUnexpected:
		return "unexpected token"
	case ErrorMissing:
		return "missing"
	case ErrorDuplicate:
		return "duplicate"
	case ErrorUnknown:
		return "unknown"
	default:
		return "error"
	}
}

// Error returns the formatted error message with a code snippet
func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Type, e.Message)
	if snippet := e.Snippet(); snippet != "" {
		b.WriteString("\n")
		b.WriteString(snippet)
	}
	if e.OpenedAt != nil {
		fmt.Fprintf(&b, "\n   = note: opened at %d:%d", e.OpenedAt.Position.Line, e.OpenedAt.Position.Column)
	}
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, "\n   = help: %s", strings.Join(e.Suggestions, ", "))
	}
	return b.String()
}

// Snippet renders the source line under the offending token
func (e *ParseError) Snippet() string {
	return lerrors.Snippet(e.Input, e.SourceName, e.Token.Position.Line, e.Token.Position.Column)
}

// Helper functions for creating standard error types

func (p *Parser) newError(kind ErrorType, tok lexer.Token, format string, args ...any) *ParseError {
	return &ParseError{
		Type:       kind,
		Message:    fmt.Sprintf(format, args...),
		Token:      tok,
		Input:      p.input,
		SourceName: p.config.sourceName,
	}
}

// unexpected reports got where expected was required
func (p *Parser) unexpected(expected string, got lexer.Token) *ParseError {
	return p.newError(ErrorUnexpected, got, "expected %s, got %s", expected, describe(got))
}

func (p *Parser) fromSyntax(err *syntax.Error) *ParseError {
	pe := p.newError(ErrorSyntax, err.Token, "%s", err.Message)
	pe.OpenedAt = err.OpenedAt
	return pe
}

func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.EOF:
		return "end of input"
	case lexer.IDENTIFIER:
		return fmt.Sprintf("'%s'", tok.Text)
	default:
		if len(tok.Text) == 0 {
			return tok.Type.String()
		}
		return fmt.Sprintf("%s '%s'", tok.Type, tok.Text)
	}
}
