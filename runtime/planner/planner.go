// Package planner lowers a compiled PipelineIndex into an executable Plan.
//
// Lowering binds every step to its registered operation function, points
// every signal at the step whose result it reads, and fixes the clinch
// clause order to source declaration order. Unknown function names are
// rejected here, so a Plan never fails a registry lookup at run time.
package planner

import (
	"context"
	"log/slog"

	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/core/invariant"
	"github.com/dozer-project/lucius/runtime/compiler"
	"github.com/dozer-project/lucius/runtime/predicate"
	"github.com/dozer-project/lucius/runtime/registry"
)

// Plan is the immutable, executable form of a pipeline. It is safe to share
// across concurrent runs.
type Plan struct {
	Component string
	Meta      Meta
	Steps     []Step
	Signals   []Signal
	Clinch    *compiler.ClinchIndex
	Clauses   []compiler.Clause // declaration order
}

// Meta is the descriptive metadata carried from the pipeline source.
type Meta struct {
	Name    string
	Author  string
	Version string
	SemVer  string // canonical form of Version, "" if not a version
	Scope   string
	Entries []MetaEntry
}

// MetaEntry is one `key = value` meta line in source order.
type MetaEntry struct {
	Key   string
	Value string
}

// Step is one (operation, step, function, binding) invocation.
type Step struct {
	Operation string
	Step      string
	Function  string
	Binding   string
	fn        registry.OperationFunc
}

// Func returns the registered operation function for the step.
func (s Step) Func() registry.OperationFunc {
	return s.fn
}

// Signal is one (family, signal, binding, predicate) evaluation. Source
// indexes Plan.Steps: the step whose result is bound under Binding.
type Signal struct {
	ID        compiler.SignalID
	Binding   string
	Predicate *predicate.Expr
	Source    int
}

// Option configures lowering.
type Option func(*config)

type config struct {
	registry   *registry.Registry
	logger     *slog.Logger
	source     string
	sourceName string
}

// WithRegistry resolves function names against r instead of the default
// registry.
func WithRegistry(r *registry.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

// WithLogger sets the logger for the lowering summary.
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

// Lower builds a Plan from a compiled index.
func Lower(index *compiler.PipelineIndex, opts ...Option) (*Plan, error) {
	invariant.NotNil(index, "index")
	invariant.NotNil(index.Operations, "index.Operations")
	invariant.NotNil(index.Signals, "index.Signals")
	invariant.NotNil(index.Clinch, "index.Clinch")

	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.registry == nil {
		cfg.registry = registry.Default()
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	plan := &Plan{
		Component: index.Component,
		Meta:      lowerMeta(index),
		Clinch:    index.Clinch,
		Clauses:   index.Clinch.Clauses,
	}

	type stepKey struct{ operation, function string }
	stepIndex := make(map[stepKey]int)

	for _, op := range index.Operations.Operations {
		for _, s := range op.Steps {
			fn, ok := cfg.registry.Lookup(s.Function)
			if !ok {
				return nil, cfg.unknownFunction(op.Name, s)
			}
			stepIndex[stepKey{op.Name, s.Function}] = len(plan.Steps)
			plan.Steps = append(plan.Steps, Step{
				Operation: op.Name,
				Step:      s.Function,
				Function:  s.Function,
				Binding:   s.Binding,
				fn:        fn,
			})
		}
	}

	for _, s := range index.Signals.All() {
		src, ok := stepIndex[stepKey{s.Derivation.Operation, s.Derivation.Step}]
		invariant.Invariant(ok, "%s derives from unindexed step %s.%s", s.ID, s.Derivation.Operation, s.Derivation.Step)
		plan.Signals = append(plan.Signals, Signal{
			ID:        s.ID,
			Binding:   s.Derivation.Binding,
			Predicate: s.Predicate,
			Source:    src,
		})
	}

	for i, c := range plan.Clauses {
		invariant.Postcondition(c.Seq == i, "clause %d has sequence %d", i, c.Seq)
	}

	if cfg.logger.Enabled(context.Background(), slog.LevelDebug) {
		attrs := []any{
			"component", plan.Component,
			"steps", len(plan.Steps),
			"signals", len(plan.Signals),
			"clauses", len(plan.Clauses),
		}
		if digest, err := plan.Digest(); err != nil {
			attrs = append(attrs, "digest_error", err)
		} else {
			attrs = append(attrs, "digest", digest)
		}
		cfg.logger.Debug("lowered plan", attrs...)
	}
	return plan, nil
}

func (c *config) unknownFunction(operation string, s compiler.Step) error {
	err := lerrors.NewCompile(lerrors.KindReference, lerrors.ErrUnknownFunction,
		"no registered operation function '%s' (step of operation '%s')", s.Function, operation).
		WithSuggestion(lerrors.Suggest(s.Function, c.registry.Names()))
	if s.Pos.Line > 0 {
		err.At(s.Pos.Line, s.Pos.Column, s.Function)
		if c.source != "" {
			err.WithSnippet(c.source, c.sourceName)
		}
	}
	return err
}

func lowerMeta(index *compiler.PipelineIndex) Meta {
	m := index.Meta
	meta := Meta{
		Name:    m.Name(),
		Author:  m.Author(),
		Version: m.Version(),
		SemVer:  m.SemVer(),
		Scope:   m.Scope(),
	}
	if m != nil {
		for _, e := range m.Entries {
			meta.Entries = append(meta.Entries, MetaEntry{Key: e.Key.Name, Value: e.Value})
		}
	}
	return meta
}

// StepFor returns the step a signal reads.
func (p *Plan) StepFor(s Signal) Step {
	invariant.InRange(s.Source, 0, len(p.Steps)-1, "signal source")
	return p.Steps[s.Source]
}
