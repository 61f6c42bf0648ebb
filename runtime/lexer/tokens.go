package lexer

// TokenType represents lexical tokens of the pipeline language
type TokenType int

const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL

	// Literals and names
	IDENTIFIER // operation, magic_probe, Emit
	INTEGER    // 7, 0x4D
	FLOAT      // 7.0, 1e3
	STRING     // "type:pdf" (Text keeps the quotes)
	BOOLEAN    // true, false

	// Comments
	COMMENT // line or block comment

	// Brackets and braces
	LPAREN  // (
	RPAREN  // )
	LBRACE  // {
	RBRACE  // }
	LSQUARE // [
	RSQUARE // ]

	// Structure
	DOT          // .
	COMMA        // ,
	COLON        // :
	DOUBLE_COLON // ::
	SEMICOLON    // ;
	EQUALS       // =

	// Comparison operators
	EQ_EQ  // ==
	NOT_EQ // !=
	LT     // <
	LT_EQ  // <=
	GT     // >
	GT_EQ  // >=

	// Logical operators
	AND_AND // &&
	OR_OR   // ||
	NOT     // !

	// Arithmetic
	PLUS     // +
	MINUS    // -
	MULTIPLY // *
	DIVIDE   // /

	// Assignment operators
	PLUS_ASSIGN     // +=
	MINUS_ASSIGN    // -=
	MULTIPLY_ASSIGN // *=

	// Reference
	AMPERSAND // & (only meaningful to the mutable-context check)
	PIPE      // |
)

// Token represents a lexical token
type Token struct {
	Type           TokenType
	Text           []byte // raw source bytes, quotes included for strings
	Position       Position
	HasSpaceBefore bool
}

// String returns the token text
func (t Token) String() string {
	return string(t.Text)
}

// Is reports whether t is an identifier spelled word.
func (t Token) Is(word string) bool {
	return t.Type == IDENTIFIER && string(t.Text) == word
}

// Position represents a position in the source code
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // 0-based byte offset
}

var tokenNames = [...]string{
	EOF:             "EOF",
	ILLEGAL:         "ILLEGAL",
	IDENTIFIER:      "IDENTIFIER",
	INTEGER:         "INTEGER",
	FLOAT:           "FLOAT",
	STRING:          "STRING",
	BOOLEAN:         "BOOLEAN",
	COMMENT:         "COMMENT",
	LPAREN:          "LPAREN",
	RPAREN:          "RPAREN",
	LBRACE:          "LBRACE",
	RBRACE:          "RBRACE",
	LSQUARE:         "LSQUARE",
	RSQUARE:         "RSQUARE",
	DOT:             "DOT",
	COMMA:           "COMMA",
	COLON:           "COLON",
	DOUBLE_COLON:    "DOUBLE_COLON",
	SEMICOLON:       "SEMICOLON",
	EQUALS:          "EQUALS",
	EQ_EQ:           "EQ_EQ",
	NOT_EQ:          "NOT_EQ",
	LT:              "LT",
	LT_EQ:           "LT_EQ",
	GT:              "GT",
	GT_EQ:           "GT_EQ",
	AND_AND:         "AND_AND",
	OR_OR:           "OR_OR",
	NOT:             "NOT",
	PLUS:            "PLUS",
	MINUS:           "MINUS",
	MULTIPLY:        "MULTIPLY",
	DIVIDE:          "DIVIDE",
	PLUS_ASSIGN:     "PLUS_ASSIGN",
	MINUS_ASSIGN:    "MINUS_ASSIGN",
	MULTIPLY_ASSIGN: "MULTIPLY_ASSIGN",
	AMPERSAND:       "AMPERSAND",
	PIPE:            "PIPE",
}

// String returns a string representation of the token type
func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}
	return "UNKNOWN"
}

// IsOpen reports whether t opens a group.
func (t TokenType) IsOpen() bool {
	return t == LBRACE || t == LPAREN || t == LSQUARE
}

// IsClose reports whether t closes a group.
func (t TokenType) IsClose() bool {
	return t == RBRACE || t == RPAREN || t == RSQUARE
}

// Closer returns the closing type for an opening group type.
func (t TokenType) Closer() TokenType {
	switch t {
	case LBRACE:
		return RBRACE
	case LPAREN:
		return RPAREN
	case LSQUARE:
		return RSQUARE
	default:
		return ILLEGAL
	}
}

// TwoCharTokens maps two-character operators to their token types.
// The lexer always prefers these over their single-character prefixes.
var TwoCharTokens = map[string]TokenType{
	"::": DOUBLE_COLON,
	"==": EQ_EQ,
	"!=": NOT_EQ,
	"<=": LT_EQ,
	">=": GT_EQ,
	"&&": AND_AND,
	"||": OR_OR,
	"+=": PLUS_ASSIGN,
	"-=": MINUS_ASSIGN,
	"*=": MULTIPLY_ASSIGN,
}

// SingleCharTokens maps single characters to their token types
var SingleCharTokens = map[byte]TokenType{
	'(': LPAREN,
	')': RPAREN,
	'{': LBRACE,
	'}': RBRACE,
	'[': LSQUARE,
	']': RSQUARE,
	'.': DOT,
	',': COMMA,
	':': COLON,
	';': SEMICOLON,
	'=': EQUALS,
	'<': LT,
	'>': GT,
	'!': NOT,
	'+': PLUS,
	'-': MINUS,
	'*': MULTIPLY,
	'/': DIVIDE,
	'&': AMPERSAND,
	'|': PIPE,
}
