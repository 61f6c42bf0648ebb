package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// tokenExpectation represents an expected token for testing
type tokenExpectation struct {
	Type   TokenType
	Text   string
	Line   int
	Column int
}

// assertTokens compares actual tokens with expected, EOF excluded
func assertTokens(t *testing.T, input string, expected []tokenExpectation, opts ...LexerOpt) {
	t.Helper()

	tokens := Tokenize([]byte(input), opts...)
	if last := tokens[len(tokens)-1]; last.Type != EOF {
		t.Fatalf("token stream must end with EOF, got %s", last.Type)
	}

	var actual []tokenExpectation
	for _, tok := range tokens[:len(tokens)-1] {
		actual = append(actual, tokenExpectation{
			Type:   tok.Type,
			Text:   tok.String(),
			Line:   tok.Position.Line,
			Column: tok.Position.Column,
		})
	}

	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyInput(t *testing.T) {
	tokens := Tokenize(nil)
	want := []Token{{Type: EOF, Position: Position{Line: 1, Column: 1}}}
	if diff := cmp.Diff(want, tokens); diff != "" {
		t.Errorf("empty input (-want +got):\n%s", diff)
	}
}

func TestOperationStatement(t *testing.T) {
	assertTokens(t, "operation magic {\n  do inspect_magic output magic_probe\n}", []tokenExpectation{
		{IDENTIFIER, "operation", 1, 1},
		{IDENTIFIER, "magic", 1, 11},
		{LBRACE, "{", 1, 17},
		{IDENTIFIER, "do", 2, 3},
		{IDENTIFIER, "inspect_magic", 2, 6},
		{IDENTIFIER, "output", 2, 20},
		{IDENTIFIER, "magic_probe", 2, 27},
		{RBRACE, "}", 3, 1},
	})
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []tokenExpectation
	}{
		{"decimal", "42", []tokenExpectation{{INTEGER, "42", 1, 1}}},
		{"hex", "0x4D", []tokenExpectation{{INTEGER, "0x4D", 1, 1}}},
		{"hex upper prefix", "0XFF", []tokenExpectation{{INTEGER, "0XFF", 1, 1}}},
		{"float", "7.0", []tokenExpectation{{FLOAT, "7.0", 1, 1}}},
		{"exponent", "1e3", []tokenExpectation{{FLOAT, "1e3", 1, 1}}},
		{"signed exponent", "2.5e-3", []tokenExpectation{{FLOAT, "2.5e-3", 1, 1}}},
		{"bare hex prefix", "0x", []tokenExpectation{{ILLEGAL, "0x", 1, 1}}},
		{"trailing letters", "12ab", []tokenExpectation{{ILLEGAL, "12ab", 1, 1}}},
		{"index then field", "magic[0].x", []tokenExpectation{
			{IDENTIFIER, "magic", 1, 1},
			{LSQUARE, "[", 1, 6},
			{INTEGER, "0", 1, 7},
			{RSQUARE, "]", 1, 8},
			{DOT, ".", 1, 9},
			{IDENTIFIER, "x", 1, 10},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertTokens(t, tt.input, tt.want)
		})
	}
}

func TestStringsKeepQuotes(t *testing.T) {
	assertTokens(t, `tag += "type:pdf"`, []tokenExpectation{
		{IDENTIFIER, "tag", 1, 1},
		{PLUS_ASSIGN, "+=", 1, 5},
		{STRING, `"type:pdf"`, 1, 8},
	})

	assertTokens(t, `"esc\"aped"`, []tokenExpectation{{STRING, `"esc\"aped"`, 1, 1}})
	assertTokens(t, "\"open\nx", []tokenExpectation{
		{ILLEGAL, `"open`, 1, 1},
		{IDENTIFIER, "x", 2, 1},
	})
}

func TestOperatorsLongestMatch(t *testing.T) {
	assertTokens(t, "== != <= >= && || += -= *= :: = < > ! + - * / & | : . , ;", []tokenExpectation{
		{EQ_EQ, "==", 1, 1},
		{NOT_EQ, "!=", 1, 4},
		{LT_EQ, "<=", 1, 7},
		{GT_EQ, ">=", 1, 10},
		{AND_AND, "&&", 1, 13},
		{OR_OR, "||", 1, 16},
		{PLUS_ASSIGN, "+=", 1, 19},
		{MINUS_ASSIGN, "-=", 1, 22},
		{MULTIPLY_ASSIGN, "*=", 1, 25},
		{DOUBLE_COLON, "::", 1, 28},
		{EQUALS, "=", 1, 31},
		{LT, "<", 1, 33},
		{GT, ">", 1, 35},
		{NOT, "!", 1, 37},
		{PLUS, "+", 1, 39},
		{MINUS, "-", 1, 41},
		{MULTIPLY, "*", 1, 43},
		{DIVIDE, "/", 1, 45},
		{AMPERSAND, "&", 1, 47},
		{PIPE, "|", 1, 49},
		{COLON, ":", 1, 51},
		{DOT, ".", 1, 53},
		{COMMA, ",", 1, 55},
		{SEMICOLON, ";", 1, 57},
	})
}

func TestMutableReferenceLexesAsSeparateTokens(t *testing.T) {
	assertTokens(t, "&mut Context", []tokenExpectation{
		{AMPERSAND, "&", 1, 1},
		{IDENTIFIER, "mut", 1, 2},
		{IDENTIFIER, "Context", 1, 6},
	})
}

func TestEmitPath(t *testing.T) {
	assertTokens(t, "emit Emit::PdfMagic", []tokenExpectation{
		{IDENTIFIER, "emit", 1, 1},
		{IDENTIFIER, "Emit", 1, 6},
		{DOUBLE_COLON, "::", 1, 10},
		{IDENTIFIER, "PdfMagic", 1, 12},
	})
}

func TestBooleans(t *testing.T) {
	assertTokens(t, "true false truest", []tokenExpectation{
		{BOOLEAN, "true", 1, 1},
		{BOOLEAN, "false", 1, 6},
		{IDENTIFIER, "truest", 1, 12},
	})
}

func TestComments(t *testing.T) {
	input := "a // line\n/* block\n spans */ b"

	assertTokens(t, input, []tokenExpectation{
		{IDENTIFIER, "a", 1, 1},
		{IDENTIFIER, "b", 3, 11},
	})

	assertTokens(t, input, []tokenExpectation{
		{IDENTIFIER, "a", 1, 1},
		{COMMENT, "// line", 1, 3},
		{COMMENT, "/* block\n spans */", 2, 1},
		{IDENTIFIER, "b", 3, 11},
	}, WithComments())

	assertTokens(t, "/* never closed", []tokenExpectation{
		{ILLEGAL, "/* never closed", 1, 1},
	})
}

func TestIllegalCharacter(t *testing.T) {
	assertTokens(t, "a # b", []tokenExpectation{
		{IDENTIFIER, "a", 1, 1},
		{ILLEGAL, "#", 1, 3},
		{IDENTIFIER, "b", 1, 5},
	})
}

func TestOffsets(t *testing.T) {
	tokens := Tokenize([]byte("ab\n  cd"))
	if got := tokens[1].Position; got != (Position{Line: 2, Column: 3, Offset: 5}) {
		t.Errorf("position = %+v", got)
	}
	if !tokens[1].HasSpaceBefore {
		t.Error("expected HasSpaceBefore")
	}
}

func TestIsIdentifier(t *testing.T) {
	for s, want := range map[string]bool{
		"magic_probe": true,
		"_x1":         true,
		"1x":          false,
		"":            false,
		"a-b":         false,
	} {
		if got := IsIdentifier(s); got != want {
			t.Errorf("IsIdentifier(%q) = %v, want %v", s, got, want)
		}
	}
}
