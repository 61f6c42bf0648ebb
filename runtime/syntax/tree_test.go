package syntax_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dozer-project/lucius/runtime/lexer"
	"github.com/dozer-project/lucius/runtime/syntax"
)

func build(t *testing.T, src string) []syntax.Node {
	t.Helper()
	nodes, err := syntax.Build(lexer.Tokenize([]byte(src)))
	require.NoError(t, err)
	return nodes
}

func texts(tokens []lexer.Token) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.String())
	}
	return out
}

func TestBuildGroups(t *testing.T) {
	nodes := build(t, "operation magic { do a output b } // trailing")
	require.Len(t, nodes, 3)

	assert.True(t, nodes[0].Is("operation"))
	assert.False(t, nodes[1].IsGroup())
	require.True(t, nodes[2].IsGroup())
	assert.Equal(t, lexer.LBRACE, nodes[2].Token.Type)
	assert.Equal(t, lexer.RBRACE, nodes[2].Close.Type)
	assert.Len(t, nodes[2].Children, 4)
}

func TestFlattenDropsDelimiters(t *testing.T) {
	nodes := build(t, "a { b [ c , ( d ) ] } e")

	want := []string{"a", "b", "c", ",", "d", "e"}
	if diff := cmp.Diff(want, texts(syntax.Flatten(nodes))); diff != "" {
		t.Errorf("Flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestLinearizeKeepsDelimiters(t *testing.T) {
	src := "p.magic == [0x25, 0x50] && (p.ok)"
	nodes := build(t, src)

	want := []string{"p", ".", "magic", "==", "[", "0x25", ",", "0x50", "]", "&&", "(", "p", ".", "ok", ")"}
	if diff := cmp.Diff(want, texts(syntax.Linearize(nodes))); diff != "" {
		t.Errorf("Linearize mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenEmpty(t *testing.T) {
	assert.Empty(t, syntax.Flatten(nil))
	assert.Empty(t, syntax.Flatten(build(t, "{ { } }")))
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		message  string
		line     int
		column   int
		openedAt bool
	}{
		{"unclosed", "meta {\n  name = x\n", "unclosed '{' (after 'meta')", 3, 1, true},
		{"mismatched", "a [ b }", "mismatched brackets: '[' opened at 1:3 but '}' found", 1, 7, true},
		{"stray close", "a }", "unexpected '}' with no matching opening bracket", 1, 3, false},
		{"illegal char", "a # b", `unexpected character "#"`, 1, 3, false},
		{"unterminated string", `tag += "oops`, "unterminated string literal", 1, 8, false},
		{"bad number", "x == 0x", `malformed number "0x"`, 1, 6, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := syntax.Build(lexer.Tokenize([]byte(tt.src)))
			require.Error(t, err)

			var se *syntax.Error
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.message, se.Message)
			assert.Equal(t, tt.line, se.Token.Position.Line)
			assert.Equal(t, tt.column, se.Token.Position.Column)
			assert.Equal(t, tt.openedAt, se.OpenedAt != nil)
		})
	}
}
