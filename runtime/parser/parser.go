// Package parser recognizes the block structure of a pipeline source.
//
// Parsing is structural only: the parser knows the shape of the meta,
// operations, signals and clinch blocks and of each definition inside
// them, but the innermost statement lists (operation steps, predicates,
// clinch actions) are kept as raw token sequences. The compiler stages
// scan those with their own grammars.
package parser

import (
	"errors"
	"fmt"

	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/core/invariant"
	"github.com/dozer-project/lucius/runtime/lexer"
	"github.com/dozer-project/lucius/runtime/syntax"
)

// BlockKeywords lists the top-level block keywords in canonical order.
var BlockKeywords = []string{"meta", "operations", "signals", "clinch"}

// Parser holds the source being parsed for error reporting
type Parser struct {
	input  string
	config ParserConfig
}

// Parse parses pipeline source. The returned error is a *ParseError.
func Parse(source []byte, opts ...ParserOpt) (*Pipeline, error) {
	p := &Parser{input: string(source)}
	for _, opt := range opts {
		opt(&p.config)
	}

	tokens := lexer.Tokenize(source)
	invariant.Postcondition(len(tokens) > 0 && tokens[len(tokens)-1].Type == lexer.EOF,
		"token stream must end with EOF")

	nodes, err := syntax.Build(tokens)
	if err != nil {
		var se *syntax.Error
		if errors.As(err, &se) {
			return nil, p.fromSyntax(se)
		}
		return nil, err
	}

	c := &cursor{nodes: nodes, end: tokens[len(tokens)-1]}
	pipeline := &Pipeline{}

	if next, ok := c.peek(); ok && next.Is("component") {
		body, err := p.parseComponent(c, pipeline)
		if err != nil {
			return nil, err
		}
		c = body
	}

	if err := p.parseBlocks(c, pipeline); err != nil {
		return nil, err
	}
	return pipeline, nil
}

// parseComponent consumes `component = <name> { ... }` and returns a
// cursor over the braced body.
func (p *Parser) parseComponent(c *cursor, pipeline *Pipeline) (*cursor, error) {
	c.next() // component
	if _, err := p.expectToken(c, lexer.EQUALS, "'=' after 'component'"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent(c, "component name")
	if err != nil {
		return nil, err
	}
	group, err := p.expectBrace(c, fmt.Sprintf("'{' after component '%s'", name.Name))
	if err != nil {
		return nil, err
	}
	if !c.done() {
		return nil, p.unexpected("end of input after component body", c.current())
	}

	pipeline.Component = &name
	return inside(group), nil
}

func (p *Parser) parseBlocks(c *cursor, pipeline *Pipeline) error {
	for !c.done() {
		node := c.next()
		if node.IsGroup() || node.Token.Type != lexer.IDENTIFIER {
			return p.unexpected("one of: meta, operations, signals, clinch", node.Token)
		}

		keyword := node.Token
		word := string(keyword.Text)
		seen := false

		switch word {
		case "meta":
			seen = pipeline.Meta != nil
		case "operations":
			seen = pipeline.Operations != nil
		case "signals":
			seen = pipeline.Signals != nil
		case "clinch":
			seen = pipeline.Clinch != nil
		default:
			pe := p.newError(ErrorUnknown, keyword,
				"unknown block '%s'; expected one of: meta, operations, signals, clinch", word)
			if s := lerrors.Suggest(word, BlockKeywords); s != "" {
				pe.Suggestions = []string{fmt.Sprintf("did you mean '%s'?", s)}
			}
			return pe
		}
		if seen {
			return p.newError(ErrorDuplicate, keyword, "duplicate `%s` block", word)
		}

		group, err := p.expectBrace(c, fmt.Sprintf("'{' after '%s'", word))
		if err != nil {
			return err
		}
		body := inside(group)

		switch word {
		case "meta":
			pipeline.Meta, err = p.parseMeta(keyword, body)
		case "operations":
			pipeline.Operations, err = p.parseOperations(keyword, body)
		case "signals":
			pipeline.Signals, err = p.parseSignals(keyword, body)
		case "clinch":
			pipeline.Clinch, err = p.parseClinch(keyword, body)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// parseMeta reads `key = value` entries. Values are single tokens.
func (p *Parser) parseMeta(keyword lexer.Token, c *cursor) (*Meta, error) {
	meta := &Meta{Keyword: keyword}
	for !c.done() {
		key, err := p.expectIdent(c, "meta key")
		if err != nil {
			return nil, err
		}
		if _, err := p.expectToken(c, lexer.EQUALS, fmt.Sprintf("'=' after meta key '%s'", key.Name)); err != nil {
			return nil, err
		}
		value, ok := c.peek()
		if !ok || value.IsGroup() || !isValueToken(value.Token.Type) {
			return nil, p.unexpected(fmt.Sprintf("value for meta key '%s'", key.Name), c.current())
		}
		c.next()
		meta.Entries = append(meta.Entries, MetaEntry{Key: key, Value: unquote(value.Token), Raw: value.Token})
	}
	return meta, nil
}

func isValueToken(tt lexer.TokenType) bool {
	switch tt {
	case lexer.IDENTIFIER, lexer.STRING, lexer.INTEGER, lexer.FLOAT, lexer.BOOLEAN:
		return true
	}
	return false
}

func (p *Parser) parseOperations(keyword lexer.Token, c *cursor) (*OperationsBlock, error) {
	block := &OperationsBlock{Keyword: keyword}
	for !c.done() {
		if _, err := p.expectWord(c, "operation", "`operation <name> { ... }`"); err != nil {
			return nil, err
		}
		name, err := p.expectIdent(c, "operation name")
		if err != nil {
			return nil, err
		}
		group, err := p.expectBrace(c, fmt.Sprintf("'{' after operation '%s'", name.Name))
		if err != nil {
			return nil, err
		}
		block.Definitions = append(block.Definitions, OperationDef{Name: name, Body: bodyOf(group)})
	}
	return block, nil
}

func (p *Parser) parseSignals(keyword lexer.Token, c *cursor) (*SignalsBlock, error) {
	block := &SignalsBlock{Keyword: keyword}
	for !c.done() {
		if _, err := p.expectWord(c, "family", "`family <name> { ... }`"); err != nil {
			return nil, err
		}
		name, err := p.expectIdent(c, "family name")
		if err != nil {
			return nil, err
		}
		group, err := p.expectBrace(c, fmt.Sprintf("'{' after family '%s'", name.Name))
		if err != nil {
			return nil, err
		}

		family := FamilyDef{Name: name}
		fc := inside(group)
		for !fc.done() {
			signal, err := p.parseSignal(fc)
			if err != nil {
				return nil, err
			}
			family.Signals = append(family.Signals, signal)
		}
		block.Families = append(block.Families, family)
	}
	return block, nil
}

func (p *Parser) parseSignal(c *cursor) (SignalDef, error) {
	if _, err := p.expectWord(c, "signal", "`signal <name> { ... }`"); err != nil {
		return SignalDef{}, err
	}
	name, err := p.expectIdent(c, "signal name")
	if err != nil {
		return SignalDef{}, err
	}
	group, err := p.expectBrace(c, fmt.Sprintf("'{' after signal '%s'", name.Name))
	if err != nil {
		return SignalDef{}, err
	}

	signal := SignalDef{Name: name}
	var haveDerive, haveWhen bool

	body := inside(group)
	for !body.done() {
		node := body.next()
		switch {
		case node.Is("derive"):
			if haveDerive {
				return SignalDef{}, p.newError(ErrorDuplicate, node.Token, "duplicate `derive from` in signal '%s'", name.Name)
			}
			signal.Derive, err = p.parseDerive(node.Token, body)
			if err != nil {
				return SignalDef{}, err
			}
			haveDerive = true

		case node.Is("when"):
			if haveWhen {
				return SignalDef{}, p.newError(ErrorDuplicate, node.Token, "duplicate `when` clause in signal '%s'", name.Name)
			}
			signal.When = Predicate{Keyword: node.Token, Tokens: syntax.Linearize(body.predicate())}
			haveWhen = true

		default:
			return SignalDef{}, p.unexpected("`derive from` or `when` in signal body", node.Token)
		}
	}

	if !haveDerive {
		return SignalDef{}, p.newError(ErrorMissing, name.Token, "signal '%s' must declare `derive from`", name.Name)
	}
	if !haveWhen {
		return SignalDef{}, p.newError(ErrorMissing, name.Token, "signal '%s' must declare `when`", name.Name)
	}
	return signal, nil
}

// parseDerive reads `from operation.<op>.<step>` after `derive`.
func (p *Parser) parseDerive(keyword lexer.Token, c *cursor) (DeriveFrom, error) {
	if _, err := p.expectWord(c, "from", "`from operation.<op>.<step>`"); err != nil {
		return DeriveFrom{}, err
	}
	if _, err := p.expectWord(c, "operation", "`operation`"); err != nil {
		return DeriveFrom{}, err
	}
	if _, err := p.expectToken(c, lexer.DOT, "'.' after 'operation'"); err != nil {
		return DeriveFrom{}, err
	}
	op, err := p.expectIdent(c, "operation name")
	if err != nil {
		return DeriveFrom{}, err
	}
	if _, err := p.expectToken(c, lexer.DOT, fmt.Sprintf("'.' after operation '%s'", op.Name)); err != nil {
		return DeriveFrom{}, err
	}
	step, err := p.expectIdent(c, "step name")
	if err != nil {
		return DeriveFrom{}, err
	}
	return DeriveFrom{Keyword: keyword, Operation: op, Step: step}, nil
}

func (p *Parser) parseClinch(keyword lexer.Token, c *cursor) (*ClinchBlock, error) {
	block := &ClinchBlock{Keyword: keyword}
	for !c.done() {
		when, err := p.expectWord(c, "when", "`when signal.<family>.<name> { ... }`")
		if err != nil {
			return nil, err
		}
		if _, err := p.expectWord(c, "signal", "`signal` after `when`"); err != nil {
			return nil, err
		}
		if _, err := p.expectToken(c, lexer.DOT, "'.' after 'signal'"); err != nil {
			return nil, err
		}
		family, err := p.expectIdent(c, "family name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expectToken(c, lexer.DOT, fmt.Sprintf("'.' after family '%s'", family.Name)); err != nil {
			return nil, err
		}
		signal, err := p.expectIdent(c, "signal name")
		if err != nil {
			return nil, err
		}
		group, err := p.expectBrace(c, fmt.Sprintf("'{' after signal.%s.%s", family.Name, signal.Name))
		if err != nil {
			return nil, err
		}
		block.Clauses = append(block.Clauses, ClauseDef{When: when, Family: family, Signal: signal, Body: bodyOf(group)})
	}
	return block, nil
}

// Expectation helpers

func (p *Parser) expectWord(c *cursor, word, expected string) (lexer.Token, error) {
	node, ok := c.peek()
	if !ok || !node.Is(word) {
		return lexer.Token{}, p.unexpected(expected, c.current())
	}
	c.next()
	return node.Token, nil
}

func (p *Parser) expectIdent(c *cursor, what string) (Ident, error) {
	node, ok := c.peek()
	if !ok || node.IsGroup() || node.Token.Type != lexer.IDENTIFIER {
		return Ident{}, p.unexpected(what, c.current())
	}
	c.next()
	return Ident{Name: string(node.Token.Text), Token: node.Token}, nil
}

func (p *Parser) expectToken(c *cursor, tt lexer.TokenType, expected string) (lexer.Token, error) {
	node, ok := c.peek()
	if !ok || node.IsGroup() || node.Token.Type != tt {
		return lexer.Token{}, p.unexpected(expected, c.current())
	}
	c.next()
	return node.Token, nil
}

func (p *Parser) expectBrace(c *cursor, expected string) (syntax.Node, error) {
	node, ok := c.peek()
	if !ok || node.Token.Type != lexer.LBRACE {
		return syntax.Node{}, p.unexpected(expected, c.current())
	}
	c.next()
	return node, nil
}

// cursor walks one level of the syntax tree. end is the token reported
// when the level runs out: the closing delimiter, or EOF at top level.
type cursor struct {
	nodes []syntax.Node
	pos   int
	end   lexer.Token
}

func inside(group syntax.Node) *cursor {
	return &cursor{nodes: group.Children, end: group.Close}
}

func bodyOf(group syntax.Node) Body {
	return Body{Open: group.Token, Close: group.Close, Nodes: group.Children}
}

func (c *cursor) done() bool {
	return c.pos >= len(c.nodes)
}

func (c *cursor) peek() (syntax.Node, bool) {
	if c.done() {
		return syntax.Node{}, false
	}
	return c.nodes[c.pos], true
}

func (c *cursor) next() syntax.Node {
	invariant.Precondition(!c.done(), "next called on exhausted cursor")
	n := c.nodes[c.pos]
	c.pos++
	return n
}

// current returns the token at the cursor, or end when exhausted.
func (c *cursor) current() lexer.Token {
	if c.done() {
		return c.end
	}
	return c.nodes[c.pos].Token
}

// predicate consumes nodes up to the next `derive` or `when` keyword at
// this level. A keyword directly after '.' is a field name and does not
// end the predicate.
func (c *cursor) predicate() []syntax.Node {
	start := c.pos
	for !c.done() {
		n := c.nodes[c.pos]
		if (n.Is("derive") || n.Is("when")) && !(c.pos > start && c.nodes[c.pos-1].Token.Type == lexer.DOT) {
			break
		}
		c.pos++
	}
	return c.nodes[start:c.pos]
}
