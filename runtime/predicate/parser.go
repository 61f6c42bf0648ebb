package predicate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dozer-project/lucius/core/invariant"
	"github.com/dozer-project/lucius/runtime/lexer"
)

// SyntaxError reports a malformed predicate at a token.
type SyntaxError struct {
	Message string
	Token   lexer.Token
}

func (e *SyntaxError) Error() string {
	return e.Message
}

// Parse parses a predicate from its token sequence (delimiters included,
// no EOF). An empty sequence is an error.
func Parse(tokens []lexer.Token) (*Expr, error) {
	p := &parser{tokens: tokens}
	if len(tokens) == 0 {
		return nil, &SyntaxError{Message: "empty predicate"}
	}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, p.errorf(p.current(), "unexpected %s after end of predicate", describe(p.current()))
	}
	return expr, nil
}

// ParseString lexes and parses src. Convenience for tests and tooling.
func ParseString(src string) (*Expr, error) {
	tokens := lexer.Tokenize([]byte(src))
	return Parse(tokens[:len(tokens)-1])
}

type parser struct {
	tokens []lexer.Token
	pos    int
}

func (p *parser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) at(tt lexer.TokenType) bool {
	return !p.atEnd() && p.tokens[p.pos].Type == tt
}

// current returns the token at the cursor, or a synthetic EOF positioned
// just past the last token.
func (p *parser) current() lexer.Token {
	if !p.atEnd() {
		return p.tokens[p.pos]
	}
	eof := lexer.Token{Type: lexer.EOF}
	if n := len(p.tokens); n > 0 {
		last := p.tokens[n-1]
		eof.Position = last.Position
		eof.Position.Column += len(last.Text)
		eof.Position.Offset += len(last.Text)
	}
	return eof
}

func (p *parser) advance() lexer.Token {
	invariant.Precondition(!p.atEnd(), "advance past end of predicate")
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

func (p *parser) expect(tt lexer.TokenType, what string) (lexer.Token, error) {
	if !p.at(tt) {
		return lexer.Token{}, p.errorf(p.current(), "expected %s, got %s", what, describe(p.current()))
	}
	return p.advance(), nil
}

func (p *parser) errorf(tok lexer.Token, format string, args ...any) *SyntaxError {
	return &SyntaxError{Message: fmt.Sprintf(format, args...), Token: tok}
}

func (p *parser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.OR_OR) {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: ExprLogical, Op: "||", Left: left, Right: right, Pos: op.Position}
	}
	return left, nil
}

func (p *parser) parseAnd() (*Expr, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.AND_AND) {
		op := p.advance()
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = &Expr{Kind: ExprLogical, Op: "&&", Left: left, Right: right, Pos: op.Position}
	}
	return left, nil
}

var compareOps = map[lexer.TokenType]string{
	lexer.EQ_EQ:  "==",
	lexer.NOT_EQ: "!=",
	lexer.LT:     "<",
	lexer.LT_EQ:  "<=",
	lexer.GT:     ">",
	lexer.GT_EQ:  ">=",
}

func (p *parser) compareOp() (string, bool) {
	if p.atEnd() {
		return "", false
	}
	op, ok := compareOps[p.tokens[p.pos].Type]
	return op, ok
}

func (p *parser) parseCmp() (*Expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	op, ok := p.compareOp()
	if !ok {
		return left, nil
	}
	opTok := p.advance()

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if _, chained := p.compareOp(); chained {
		return nil, p.errorf(p.current(), "comparison operators cannot be chained; use && to combine comparisons")
	}
	return &Expr{Kind: ExprCompare, Op: op, Left: left, Right: right, Pos: opTok.Position}, nil
}

func (p *parser) parseOperand() (*Expr, error) {
	if p.atEnd() {
		return nil, p.errorf(p.current(), "expected operand, got end of predicate")
	}

	tok := p.current()
	switch tok.Type {
	case lexer.IDENTIFIER:
		return p.parsePath()

	case lexer.LPAREN:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RPAREN, "')'"); err != nil {
			return nil, err
		}
		return inner, nil

	case lexer.LSQUARE:
		return p.parseBytes()

	case lexer.MINUS:
		p.advance()
		if !p.at(lexer.INTEGER) && !p.at(lexer.FLOAT) {
			return nil, p.errorf(p.current(), "expected number after '-', got %s", describe(p.current()))
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		switch v := lit.Value.(type) {
		case int64:
			lit.Value = -v
		case float64:
			lit.Value = -v
		}
		lit.Pos = tok.Position
		return lit, nil

	case lexer.INTEGER, lexer.FLOAT, lexer.STRING, lexer.BOOLEAN:
		return p.parseLiteral()

	default:
		return nil, p.errorf(tok, "expected operand, got %s", describe(tok))
	}
}

func (p *parser) parsePath() (*Expr, error) {
	root := p.advance()
	path := &Path{Root: string(root.Text), Pos: root.Position}

	for {
		switch {
		case p.at(lexer.DOT):
			p.advance()
			field, err := p.expect(lexer.IDENTIFIER, fmt.Sprintf("field name after '%s.'", path))
			if err != nil {
				return nil, err
			}
			path.Segments = append(path.Segments, Segment{Field: string(field.Text)})

		case p.at(lexer.LSQUARE):
			p.advance()
			idxTok, err := p.expect(lexer.INTEGER, "integer index")
			if err != nil {
				return nil, err
			}
			idx, err := parseInt(idxTok)
			if err != nil || idx > math.MaxInt32 {
				return nil, p.errorf(idxTok, "index %s out of range", idxTok.Text)
			}
			if _, err := p.expect(lexer.RSQUARE, "']'"); err != nil {
				return nil, err
			}
			path.Segments = append(path.Segments, Segment{Index: int(idx), IsIndex: true})

		default:
			return &Expr{Kind: ExprPath, Path: path, Pos: root.Position}, nil
		}
	}
}

// parseBytes reads a byte-sequence literal: '[' int (',' int)* ']'
func (p *parser) parseBytes() (*Expr, error) {
	open := p.advance()
	var out []byte

	for {
		tok, err := p.expect(lexer.INTEGER, "byte value")
		if err != nil {
			return nil, err
		}
		v, err := parseInt(tok)
		if err != nil || v > 0xFF {
			return nil, p.errorf(tok, "byte value %s out of range 0..255", tok.Text)
		}
		out = append(out, byte(v))

		if p.at(lexer.COMMA) {
			p.advance()
			continue
		}
		if _, err := p.expect(lexer.RSQUARE, "',' or ']' in byte literal"); err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprLiteral, Value: out, Pos: open.Position}, nil
	}
}

func (p *parser) parseLiteral() (*Expr, error) {
	tok := p.advance()
	lit := &Expr{Kind: ExprLiteral, Pos: tok.Position}

	switch tok.Type {
	case lexer.INTEGER:
		v, err := parseInt(tok)
		if err != nil {
			return nil, p.errorf(tok, "integer literal %s out of range", tok.Text)
		}
		lit.Value = v
	case lexer.FLOAT:
		v, err := strconv.ParseFloat(string(tok.Text), 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid float literal %s", tok.Text)
		}
		lit.Value = v
	case lexer.STRING:
		v, err := strconv.Unquote(string(tok.Text))
		if err != nil {
			return nil, p.errorf(tok, "invalid string literal %s", tok.Text)
		}
		lit.Value = v
	case lexer.BOOLEAN:
		lit.Value = string(tok.Text) == "true"
	default:
		invariant.Invariant(false, "parseLiteral called on %s", tok.Type)
	}
	return lit, nil
}

// parseInt parses decimal or 0x-prefixed hexadecimal integers. A leading
// zero does not mean octal.
func parseInt(tok lexer.Token) (int64, error) {
	text := string(tok.Text)
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		return strconv.ParseInt(text[2:], 16, 64)
	}
	return strconv.ParseInt(text, 10, 64)
}

func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.EOF:
		return "end of predicate"
	default:
		return fmt.Sprintf("'%s'", tok.Text)
	}
}
