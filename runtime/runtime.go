// Package runtime is the two-stage entry point to the pipeline toolchain:
// Compile turns pipeline source into an immutable Plan once, and Run
// evaluates that Plan against each artifact. A Plan may be shared by any
// number of concurrent Run calls.
package runtime

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dozer-project/lucius/core/artifact"
	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/runtime/compiler"
	"github.com/dozer-project/lucius/runtime/executor"
	_ "github.com/dozer-project/lucius/runtime/ops" // built-in operation registration
	"github.com/dozer-project/lucius/runtime/parser"
	"github.com/dozer-project/lucius/runtime/planner"
	"github.com/dozer-project/lucius/runtime/registry"
)

// Option configures Compile and RunWithReport.
type Option func(*config)

type config struct {
	registry   *registry.Registry
	logger     *slog.Logger
	sourceName string
	parallel   int
	telemetry  executor.TelemetryLevel
}

// WithRegistry resolves step functions against r instead of the default
// registry.
func WithRegistry(r *registry.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

// WithLogger routes stage summaries to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithSourceName sets the file name shown in error snippets.
func WithSourceName(name string) Option {
	return func(c *config) {
		c.sourceName = name
	}
}

// WithParallelSteps invokes up to n steps of a run concurrently.
func WithParallelSteps(n int) Option {
	return func(c *config) {
		c.parallel = n
	}
}

// WithTelemetry enables run telemetry in RunWithReport.
func WithTelemetry(level executor.TelemetryLevel) Option {
	return func(c *config) {
		c.telemetry = level
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		registry: registry.Default(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile reads pipeline source and compiles it into a Plan. Every
// failure after reading is a *errors.CompileError.
func Compile(source io.Reader, opts ...Option) (*planner.Plan, error) {
	src, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	return CompileBytes(src, opts...)
}

// CompileBytes is Compile over an in-memory source.
func CompileBytes(src []byte, opts ...Option) (*planner.Plan, error) {
	c := newConfig(opts)

	pipeline, err := parser.Parse(src, parser.WithSourceName(c.sourceName))
	if err != nil {
		return nil, fromParseError(err)
	}

	index, err := compiler.Compile(pipeline,
		compiler.WithLogger(c.logger),
		compiler.WithSource(src, c.sourceName))
	if err != nil {
		return nil, err
	}

	plan, err := planner.Lower(index,
		planner.WithRegistry(c.registry),
		planner.WithLogger(c.logger),
		planner.WithSource(src, c.sourceName))
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// fromParseError lifts a parser failure into the CompileError every other
// compile stage reports.
func fromParseError(err error) error {
	var pe *parser.ParseError
	if !errors.As(err, &pe) {
		return fmt.Errorf("parse pipeline: %w", err)
	}

	ce := lerrors.NewCompile(lerrors.KindParse, lerrors.ErrParse, "%s", pe.Message).
		At(pe.Token.Position.Line, pe.Token.Position.Column, string(pe.Token.Text)).
		WithCause(pe)
	ce.Snippet = pe.Snippet()
	if pe.Type == parser.ErrorUnknown {
		ce.WithSuggestion(lerrors.Suggest(string(pe.Token.Text), parser.BlockKeywords))
	}
	return ce
}

// Run evaluates plan against a. On error no context is returned.
func Run(plan *planner.Plan, a *artifact.Artifact) (*artifact.ExecutionContext, error) {
	return executor.Run(plan, a)
}

// RunWithReport is Run with per-signal values, honouring the parallelism,
// telemetry and logger options.
func RunWithReport(plan *planner.Plan, a *artifact.Artifact, opts ...Option) (*executor.Report, error) {
	c := newConfig(opts)
	return executor.RunWithReport(plan, a, executor.Config{
		ParallelSteps: c.parallel,
		Telemetry:     c.telemetry,
		Logger:        c.logger,
	})
}
