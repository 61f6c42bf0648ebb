// Package compiler validates a parsed pipeline and builds its semantic
// indices.
//
// Three stages run strictly in order, each requiring the index built by the
// one before it:
//
//	operations  -> OperationIndex  (steps and output bindings)
//	signals     -> SignalIndex     (derivations and compiled predicates)
//	clinch      -> ClinchIndex     (per-signal actions, clause order)
//
// Every stage stops at the first error it finds. Errors are
// *errors.CompileError values carrying the offending token's location.
package compiler

import (
	"fmt"
	"log/slog"

	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/core/invariant"
	"github.com/dozer-project/lucius/runtime/lexer"
	"github.com/dozer-project/lucius/runtime/parser"
)

// PipelineIndex is the compiled, immutable form of a pipeline.
type PipelineIndex struct {
	Component  string
	Meta       *parser.Meta
	Operations *OperationIndex
	Signals    *SignalIndex
	Clinch     *ClinchIndex
}

// Option configures compilation.
type Option func(*config)

type config struct {
	logger     *slog.Logger
	source     string
	sourceName string
}

// WithLogger sets the logger for stage summaries. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithSource supplies the pipeline source so errors carry a snippet.
func WithSource(source []byte, name string) Option {
	return func(c *config) {
		c.source = string(source)
		c.sourceName = name
	}
}

func newConfig(opts []Option) *config {
	c := &config{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Compile runs all three stages over a parsed pipeline.
func Compile(p *parser.Pipeline, opts ...Option) (*PipelineIndex, error) {
	invariant.NotNil(p, "pipeline")
	c := newConfig(opts)

	ops, err := c.compileOperations(p.Operations)
	if err != nil {
		return nil, err
	}
	signals, err := c.compileSignals(p.Signals, ops)
	if err != nil {
		return nil, err
	}
	clinch, err := c.compileClinch(p.Clinch, signals)
	if err != nil {
		return nil, err
	}

	index := &PipelineIndex{
		Meta:       p.Meta,
		Operations: ops,
		Signals:    signals,
		Clinch:     clinch,
	}
	if p.Component != nil {
		index.Component = p.Component.Name
	}
	return index, nil
}

// CompileOperations builds the OperationIndex for an operations block.
func CompileOperations(block *parser.OperationsBlock, opts ...Option) (*OperationIndex, error) {
	return newConfig(opts).compileOperations(block)
}

// CompileSignals builds the SignalIndex. ops must be the index compiled from
// the same pipeline.
func CompileSignals(block *parser.SignalsBlock, ops *OperationIndex, opts ...Option) (*SignalIndex, error) {
	return newConfig(opts).compileSignals(block, ops)
}

// CompileClinch builds the ClinchIndex. signals must be the index compiled
// from the same pipeline.
func CompileClinch(block *parser.ClinchBlock, signals *SignalIndex, opts ...Option) (*ClinchIndex, error) {
	return newConfig(opts).compileClinch(block, signals)
}

// errorAt builds a CompileError located at tok.
func (c *config) errorAt(kind lerrors.Kind, code string, tok lexer.Token, format string, args ...any) *lerrors.CompileError {
	err := lerrors.NewCompile(kind, code, format, args...)
	if tok.Position.Line > 0 {
		err.At(tok.Position.Line, tok.Position.Column, string(tok.Text))
		if c.source != "" {
			err.WithSnippet(c.source, c.sourceName)
		}
	}
	return err
}

func missingBlock(name string) *lerrors.CompileError {
	return lerrors.NewCompile(lerrors.KindParse, lerrors.ErrMissingBlock,
		"missing required `%s { ... }` block", name)
}

func describe(tok lexer.Token) string {
	if tok.Type == lexer.EOF || len(tok.Text) == 0 {
		return "end of block"
	}
	return fmt.Sprintf("'%s'", tok.Text)
}

// stream walks a flattened statement list. end is reported once the list
// runs out, normally the closing brace of the body.
type stream struct {
	tokens []lexer.Token
	pos    int
	end    lexer.Token
}

func (s *stream) done() bool {
	return s.pos >= len(s.tokens)
}

func (s *stream) peek() lexer.Token {
	if s.done() {
		return s.end
	}
	return s.tokens[s.pos]
}

func (s *stream) at(tt lexer.TokenType) bool {
	return !s.done() && s.tokens[s.pos].Type == tt
}

func (s *stream) next() lexer.Token {
	invariant.Precondition(!s.done(), "next called on exhausted stream")
	tok := s.tokens[s.pos]
	s.pos++
	return tok
}
