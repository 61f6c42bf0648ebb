package compiler

import (
	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/runtime/lexer"
	"github.com/dozer-project/lucius/runtime/parser"
)

// Step is one `do <function> output <binding>` statement.
type Step struct {
	Function string
	Binding  string
	Pos      lexer.Position
}

// Operation is a named, ordered list of steps.
type Operation struct {
	Name  string
	Pos   lexer.Position
	Steps []Step
}

// Step returns the step invoking function.
func (o *Operation) Step(function string) (Step, bool) {
	for _, s := range o.Steps {
		if s.Function == function {
			return s, true
		}
	}
	return Step{}, false
}

// StepNames returns the step function names in declaration order.
func (o *Operation) StepNames() []string {
	names := make([]string, len(o.Steps))
	for i, s := range o.Steps {
		names[i] = s.Function
	}
	return names
}

// OperationIndex holds operations in declaration order.
type OperationIndex struct {
	Operations []*Operation
	byName     map[string]*Operation
}

// Lookup finds an operation by name.
func (x *OperationIndex) Lookup(name string) (*Operation, bool) {
	op, ok := x.byName[name]
	return op, ok
}

// Names returns operation names in declaration order.
func (x *OperationIndex) Names() []string {
	names := make([]string, len(x.Operations))
	for i, op := range x.Operations {
		names[i] = op.Name
	}
	return names
}

// StepCount returns the number of steps across all operations.
func (x *OperationIndex) StepCount() int {
	n := 0
	for _, op := range x.Operations {
		n += len(op.Steps)
	}
	return n
}

// reservedKeywords may not appear anywhere in an operation body.
var reservedKeywords = map[string]bool{
	"for":    true,
	"while":  true,
	"loop":   true,
	"thread": true,
	"spawn":  true,
}

func (c *config) compileOperations(block *parser.OperationsBlock) (*OperationIndex, error) {
	if block == nil {
		return nil, missingBlock("operations")
	}

	index := &OperationIndex{byName: make(map[string]*Operation)}
	for _, def := range block.Definitions {
		if prev, dup := index.byName[def.Name.Name]; dup {
			return nil, c.errorAt(lerrors.KindDuplicate, lerrors.ErrDuplicateOperation, def.Name.Token,
				"operation '%s' already defined at %d:%d", def.Name.Name, prev.Pos.Line, prev.Pos.Column)
		}

		op, err := c.compileOperation(def)
		if err != nil {
			return nil, err
		}
		index.Operations = append(index.Operations, op)
		index.byName[op.Name] = op
	}

	c.logger.Debug("compiled operations", "operations", len(index.Operations), "steps", index.StepCount())
	return index, nil
}

func (c *config) compileOperation(def parser.OperationDef) (*Operation, error) {
	tokens := def.Body.Tokens()
	if err := c.checkSafety(def.Name.Name, tokens); err != nil {
		return nil, err
	}

	op := &Operation{Name: def.Name.Name, Pos: def.Name.Token.Position}
	steps := make(map[string]lexer.Token)
	bindings := make(map[string]lexer.Token)

	s := &stream{tokens: tokens, end: def.Body.Close}
	for !s.done() {
		step, binding, err := c.scanStatement(op.Name, s)
		if err != nil {
			return nil, err
		}

		if prev, dup := steps[string(step.Text)]; dup {
			return nil, c.errorAt(lerrors.KindDuplicate, lerrors.ErrDuplicateStep, step,
				"duplicate step '%s' in operation '%s' (first at %d:%d)", step.Text, op.Name, prev.Position.Line, prev.Position.Column)
		}
		if prev, dup := bindings[string(binding.Text)]; dup {
			return nil, c.errorAt(lerrors.KindDuplicate, lerrors.ErrDuplicateBinding, binding,
				"duplicate output binding '%s' in operation '%s' (first at %d:%d)", binding.Text, op.Name, prev.Position.Line, prev.Position.Column)
		}
		steps[string(step.Text)] = step
		bindings[string(binding.Text)] = binding

		op.Steps = append(op.Steps, Step{
			Function: string(step.Text),
			Binding:  string(binding.Text),
			Pos:      step.Position,
		})
	}

	if len(op.Steps) == 0 {
		return nil, c.errorAt(lerrors.KindGrammar, lerrors.ErrEmptyOperation, def.Name.Token,
			"operation '%s' has no `do` statements", op.Name)
	}
	return op, nil
}

// scanStatement reads exactly `do <step> output <binding>`.
func (c *config) scanStatement(opName string, s *stream) (step, binding lexer.Token, err error) {
	malformed := func(tok lexer.Token, expected string) error {
		return c.errorAt(lerrors.KindGrammar, lerrors.ErrMalformedStatement, tok,
			"expected %s in operation '%s', got %s", expected, opName, describe(tok))
	}

	if !s.peek().Is("do") {
		return step, binding, malformed(s.peek(), "`do <step> output <binding>`")
	}
	s.next()

	if !s.at(lexer.IDENTIFIER) {
		return step, binding, malformed(s.peek(), "step name after `do`")
	}
	step = s.next()

	if !s.peek().Is("output") {
		return step, binding, malformed(s.peek(), "`output` after step '"+string(step.Text)+"'")
	}
	s.next()

	if !s.at(lexer.IDENTIFIER) {
		return step, binding, malformed(s.peek(), "binding name after `output`")
	}
	binding = s.next()
	return step, binding, nil
}

// checkSafety rejects looping and spawning keywords and the `& mut Context`
// pattern. Steps may read the artifact only; the execution context belongs
// to clinch actions.
func (c *config) checkSafety(opName string, tokens []lexer.Token) error {
	for i, tok := range tokens {
		if tok.Type == lexer.IDENTIFIER && reservedKeywords[string(tok.Text)] {
			return c.errorAt(lerrors.KindSafety, lerrors.ErrReservedKeyword, tok,
				"reserved keyword '%s' in operation '%s'", tok.Text, opName)
		}
		// `&&` lexes as one token; `&&mut Context` is a reference too.
		if (tok.Type == lexer.AMPERSAND || tok.Type == lexer.AND_AND) && i+2 < len(tokens) &&
			tokens[i+1].Is("mut") && tokens[i+2].Is("Context") {
			return c.errorAt(lerrors.KindSafety, lerrors.ErrMutableContext, tok,
				"operation '%s' references `& mut Context`; only clinch actions may mutate the execution context", opName)
		}
	}
	return nil
}
