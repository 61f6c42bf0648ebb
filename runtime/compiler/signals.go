package compiler

import (
	"errors"

	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/runtime/lexer"
	"github.com/dozer-project/lucius/runtime/parser"
	"github.com/dozer-project/lucius/runtime/predicate"
)

// SignalID names a signal within its family.
type SignalID struct {
	Family string `json:"family" yaml:"family" cbor:"family"`
	Name   string `json:"name" yaml:"name" cbor:"name"`
}

func (id SignalID) String() string {
	return "signal." + id.Family + "." + id.Name
}

// Derivation is the step a signal reads, with the binding its predicate
// uses for that step's result.
type Derivation struct {
	Operation string
	Step      string
	Binding   string
}

// Signal is a compiled `signal` definition.
type Signal struct {
	ID         SignalID
	Pos        lexer.Position
	Derivation Derivation
	Predicate  *predicate.Expr
}

// Family is an ordered, non-empty group of signals.
type Family struct {
	Name    string
	Pos     lexer.Position
	Signals []*Signal
}

// SignalIndex holds families and their signals in declaration order.
type SignalIndex struct {
	Families []*Family
	byFamily map[string]*Family
	byID     map[SignalID]*Signal
}

// Lookup finds a signal by id.
func (x *SignalIndex) Lookup(id SignalID) (*Signal, bool) {
	s, ok := x.byID[id]
	return s, ok
}

// Family finds a family by name.
func (x *SignalIndex) Family(name string) (*Family, bool) {
	f, ok := x.byFamily[name]
	return f, ok
}

// FamilyNames returns family names in declaration order.
func (x *SignalIndex) FamilyNames() []string {
	names := make([]string, len(x.Families))
	for i, f := range x.Families {
		names[i] = f.Name
	}
	return names
}

// All returns every signal, family by family, in declaration order.
func (x *SignalIndex) All() []*Signal {
	var out []*Signal
	for _, f := range x.Families {
		out = append(out, f.Signals...)
	}
	return out
}

// SignalNames returns the family's signal names in declaration order.
func (f *Family) SignalNames() []string {
	names := make([]string, len(f.Signals))
	for i, s := range f.Signals {
		names[i] = s.ID.Name
	}
	return names
}

func (c *config) compileSignals(block *parser.SignalsBlock, ops *OperationIndex) (*SignalIndex, error) {
	if block == nil {
		return nil, missingBlock("signals")
	}
	if ops == nil {
		return nil, lerrors.NewCompile(lerrors.KindReference, lerrors.ErrUnknownOperation,
			"signals compiled without an operation index")
	}

	index := &SignalIndex{
		byFamily: make(map[string]*Family),
		byID:     make(map[SignalID]*Signal),
	}

	for _, def := range block.Families {
		if prev, dup := index.byFamily[def.Name.Name]; dup {
			return nil, c.errorAt(lerrors.KindDuplicate, lerrors.ErrDuplicateFamily, def.Name.Token,
				"family '%s' already defined at %d:%d", def.Name.Name, prev.Pos.Line, prev.Pos.Column)
		}
		if len(def.Signals) == 0 {
			return nil, c.errorAt(lerrors.KindGrammar, lerrors.ErrEmptyFamily, def.Name.Token,
				"family '%s' has no signals", def.Name.Name)
		}

		family := &Family{Name: def.Name.Name, Pos: def.Name.Token.Position}
		for _, sdef := range def.Signals {
			id := SignalID{Family: family.Name, Name: sdef.Name.Name}
			if prev, dup := index.byID[id]; dup {
				return nil, c.errorAt(lerrors.KindDuplicate, lerrors.ErrDuplicateSignal, sdef.Name.Token,
					"signal '%s' already defined in family '%s' at %d:%d", id.Name, family.Name, prev.Pos.Line, prev.Pos.Column)
			}

			signal, err := c.compileSignal(id, sdef, ops)
			if err != nil {
				return nil, err
			}
			family.Signals = append(family.Signals, signal)
			index.byID[id] = signal
		}

		index.Families = append(index.Families, family)
		index.byFamily[family.Name] = family
	}

	c.logger.Debug("compiled signals", "families", len(index.Families), "signals", len(index.byID))
	return index, nil
}

func (c *config) compileSignal(id SignalID, def parser.SignalDef, ops *OperationIndex) (*Signal, error) {
	derivation, err := c.resolveDerivation(def.Derive, ops)
	if err != nil {
		return nil, err
	}

	expr, err := c.compilePredicate(id, def.When, derivation)
	if err != nil {
		return nil, err
	}

	return &Signal{
		ID:         id,
		Pos:        def.Name.Token.Position,
		Derivation: derivation,
		Predicate:  expr,
	}, nil
}

func (c *config) resolveDerivation(d parser.DeriveFrom, ops *OperationIndex) (Derivation, error) {
	op, ok := ops.Lookup(d.Operation.Name)
	if !ok {
		return Derivation{}, c.errorAt(lerrors.KindReference, lerrors.ErrUnknownOperation, d.Operation.Token,
			"unknown operation '%s'", d.Operation.Name).
			WithSuggestion(lerrors.Suggest(d.Operation.Name, ops.Names()))
	}

	step, ok := op.Step(d.Step.Name)
	if !ok {
		return Derivation{}, c.errorAt(lerrors.KindReference, lerrors.ErrUnknownStep, d.Step.Token,
			"operation '%s' has no step '%s'", op.Name, d.Step.Name).
			WithSuggestion(lerrors.Suggest(d.Step.Name, op.StepNames()))
	}
	if step.Binding == "" {
		return Derivation{}, c.errorAt(lerrors.KindReference, lerrors.ErrMissingBinding, d.Step.Token,
			"step '%s' of operation '%s' has no output binding", step.Function, op.Name)
	}

	return Derivation{Operation: op.Name, Step: step.Function, Binding: step.Binding}, nil
}

// compilePredicate parses the `when` tokens and checks that every path in
// the predicate starts at the derived step's binding.
func (c *config) compilePredicate(id SignalID, when parser.Predicate, d Derivation) (*predicate.Expr, error) {
	if len(when.Tokens) == 0 {
		return nil, c.errorAt(lerrors.KindGrammar, lerrors.ErrEmptyPredicate, when.Keyword,
			"%s has an empty `when` predicate", id)
	}

	expr, err := predicate.Parse(when.Tokens)
	if err != nil {
		at := when.Keyword
		var se *predicate.SyntaxError
		if errors.As(err, &se) && se.Token.Position.Line > 0 {
			at = se.Token
		}
		return nil, c.errorAt(lerrors.KindGrammar, lerrors.ErrMalformedPredicate, at,
			"malformed predicate in %s: %v", id, err).WithCause(err)
	}

	if err := predicate.Check(expr); err != nil {
		return nil, c.errorAt(lerrors.KindGrammar, lerrors.ErrMalformedPredicate, when.Tokens[0],
			"malformed predicate in %s: %v", id, err).WithCause(err)
	}

	for _, path := range expr.Paths() {
		if path.Root == d.Binding {
			continue
		}
		tok := lexer.Token{Type: lexer.IDENTIFIER, Text: []byte(path.Root), Position: path.Pos}
		return nil, c.errorAt(lerrors.KindReference, lerrors.ErrUnknownBinding, tok,
			"predicate of %s refers to '%s', but step '%s' binds its output as '%s'", id, path.Root, d.Step, d.Binding).
			WithSuggestion(lerrors.Suggest(path.Root, []string{d.Binding}))
	}
	return expr, nil
}
