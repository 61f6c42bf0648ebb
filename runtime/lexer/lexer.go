// Package lexer tokenizes pipeline source.
//
// The lexer is a single forward pass over a byte slice using ASCII lookup
// tables. It never fails: malformed input (an unterminated string, a stray
// '#', a bare "0x") becomes an ILLEGAL token and the parser reports it with
// position information.
package lexer

import (
	"unicode/utf8"
)

// LexerOpt represents a lexer configuration option
type LexerOpt func(*LexerConfig)

// LexerConfig holds lexer configuration
type LexerConfig struct {
	keepComments bool
}

// WithComments makes the lexer emit COMMENT tokens instead of skipping them.
func WithComments() LexerOpt {
	return func(c *LexerConfig) {
		c.keepComments = true
	}
}

// Lexer tokenizes pipeline source
type Lexer struct {
	input    []byte
	position int
	line     int
	column   int

	keepComments bool
}

// NewLexer creates a lexer over input
func NewLexer(input []byte, opts ...LexerOpt) *Lexer {
	config := &LexerConfig{}
	for _, opt := range opts {
		opt(config)
	}

	l := &Lexer{keepComments: config.keepComments}
	l.Init(input)
	return l
}

// Init resets the lexer with new input (following Go scanner pattern)
func (l *Lexer) Init(input []byte) {
	l.input = input
	l.position = 0
	l.line = 1
	l.column = 1
}

// Tokenize lexes the whole input. The returned slice always ends with EOF.
func Tokenize(input []byte, opts ...LexerOpt) []Token {
	return NewLexer(input, opts...).GetTokens()
}

// GetTokens returns all remaining tokens, EOF included.
func (l *Lexer) GetTokens() []Token {
	tokens := make([]Token, 0, len(l.input)/4+1)
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

// NextToken returns the next token. After the input is exhausted it keeps
// returning EOF.
func (l *Lexer) NextToken() Token {
	for {
		tok := l.lexToken()
		if tok.Type == COMMENT && !l.keepComments {
			continue
		}
		return tok
	}
}

func (l *Lexer) lexToken() Token {
	hadWhitespace := l.skipWhitespace()

	start := l.pos()
	if l.position >= len(l.input) {
		return Token{Type: EOF, Position: start, HasSpaceBefore: hadWhitespace}
	}

	ch := l.input[l.position]

	if ch < 128 && isIdentStart[ch] {
		return l.lexIdentifier(start, hadWhitespace)
	}

	if ch < 128 && isDigit[ch] {
		return l.lexNumber(start, hadWhitespace)
	}

	if ch == '"' {
		return l.lexString(start, hadWhitespace)
	}

	if ch == '/' && l.position+1 < len(l.input) {
		switch l.input[l.position+1] {
		case '/':
			return l.lexLineComment(start, hadWhitespace)
		case '*':
			return l.lexBlockComment(start, hadWhitespace)
		}
	}

	// Longest match first: "+=" before "+", "::" before ":"
	if l.position+1 < len(l.input) {
		if tt, ok := TwoCharTokens[string(l.input[l.position:l.position+2])]; ok {
			l.advanceChar()
			l.advanceChar()
			return l.token(tt, start, hadWhitespace)
		}
	}

	if tt, ok := SingleCharTokens[ch]; ok {
		l.advanceChar()
		return l.token(tt, start, hadWhitespace)
	}

	// Unrecognized character
	l.advanceChar()
	return l.token(ILLEGAL, start, hadWhitespace)
}

func (l *Lexer) token(tt TokenType, start Position, hasSpaceBefore bool) Token {
	return Token{
		Type:           tt,
		Text:           l.input[start.Offset:l.position],
		Position:       start,
		HasSpaceBefore: hasSpaceBefore,
	}
}

func (l *Lexer) pos() Position {
	return Position{Line: l.line, Column: l.column, Offset: l.position}
}

// skipWhitespace skips whitespace and reports whether any was skipped
func (l *Lexer) skipWhitespace() bool {
	start := l.position
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch >= 128 || !isWhitespace[ch] {
			break
		}
		l.advanceChar()
	}
	return l.position > start
}

func (l *Lexer) lexIdentifier(start Position, hasSpaceBefore bool) Token {
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch >= 128 || !isIdentPart[ch] {
			break
		}
		l.advanceChar()
	}

	tok := l.token(IDENTIFIER, start, hasSpaceBefore)
	switch string(tok.Text) {
	case "true", "false":
		tok.Type = BOOLEAN
	}
	return tok
}

// lexNumber reads decimal integers, 0x hex integers and floats with an
// optional fraction and exponent. A fraction needs a digit after the dot so
// that "magic[0].x" style paths never lex "0." as a float.
func (l *Lexer) lexNumber(start Position, hasSpaceBefore bool) Token {
	if l.currentChar() == '0' && (l.peekChar(1) == 'x' || l.peekChar(1) == 'X') {
		l.advanceChar()
		l.advanceChar()
		if !l.readWhile(&isHexDigit) {
			return l.token(ILLEGAL, start, hasSpaceBefore)
		}
		return l.token(INTEGER, start, hasSpaceBefore)
	}

	l.readWhile(&isDigit)
	isFloat := false

	if l.currentChar() == '.' && isASCII(l.peekChar(1), &isDigit) {
		l.advanceChar()
		l.readWhile(&isDigit)
		isFloat = true
	}

	if ch := l.currentChar(); ch == 'e' || ch == 'E' {
		next := l.peekChar(1)
		signed := next == '+' || next == '-'
		if isASCII(next, &isDigit) || (signed && isASCII(l.peekChar(2), &isDigit)) {
			l.advanceChar()
			if signed {
				l.advanceChar()
			}
			l.readWhile(&isDigit)
			isFloat = true
		}
	}

	// 12abc is one malformed token, not INTEGER followed by IDENTIFIER
	if isASCII(l.currentChar(), &isIdentPart) {
		for isASCII(l.currentChar(), &isIdentPart) {
			l.advanceChar()
		}
		return l.token(ILLEGAL, start, hasSpaceBefore)
	}

	if isFloat {
		return l.token(FLOAT, start, hasSpaceBefore)
	}
	return l.token(INTEGER, start, hasSpaceBefore)
}

// lexString reads a double-quoted string. The token text keeps both quotes;
// an unterminated string runs to end of line and comes back ILLEGAL.
func (l *Lexer) lexString(start Position, hasSpaceBefore bool) Token {
	l.advanceChar() // opening quote

	for l.position < len(l.input) {
		ch := l.input[l.position]
		switch {
		case ch == '"':
			l.advanceChar()
			return l.token(STRING, start, hasSpaceBefore)
		case ch == '\\' && l.position+1 < len(l.input):
			l.advanceChar()
			l.advanceChar()
		case ch == '\n':
			return l.token(ILLEGAL, start, hasSpaceBefore)
		default:
			l.advanceChar()
		}
	}
	return l.token(ILLEGAL, start, hasSpaceBefore)
}

func (l *Lexer) lexLineComment(start Position, hasSpaceBefore bool) Token {
	for l.position < len(l.input) && l.input[l.position] != '\n' {
		l.advanceChar()
	}
	return l.token(COMMENT, start, hasSpaceBefore)
}

func (l *Lexer) lexBlockComment(start Position, hasSpaceBefore bool) Token {
	l.advanceChar()
	l.advanceChar()
	for l.position < len(l.input) {
		if l.input[l.position] == '*' && l.peekChar(1) == '/' {
			l.advanceChar()
			l.advanceChar()
			return l.token(COMMENT, start, hasSpaceBefore)
		}
		l.advanceChar()
	}
	return l.token(ILLEGAL, start, hasSpaceBefore)
}

func (l *Lexer) readWhile(table *[128]bool) bool {
	startPos := l.position
	for isASCII(l.currentChar(), table) {
		l.advanceChar()
	}
	return l.position > startPos
}

func isASCII(ch byte, table *[128]bool) bool {
	return ch < 128 && table[ch]
}

func (l *Lexer) currentChar() byte {
	return l.peekChar(0)
}

func (l *Lexer) peekChar(n int) byte {
	if l.position+n >= len(l.input) {
		return 0
	}
	return l.input[l.position+n]
}

// advanceChar moves one character forward, decoding UTF-8 only to keep
// columns counting characters rather than bytes.
func (l *Lexer) advanceChar() {
	if l.position >= len(l.input) {
		return
	}

	ch := l.input[l.position]
	if ch < 128 {
		if ch == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.position++
		return
	}

	_, size := utf8.DecodeRune(l.input[l.position:])
	if size <= 0 {
		size = 1
	}
	l.position += size
	l.column++
}
