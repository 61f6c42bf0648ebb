// Package syntax groups a token stream into a tree of brace, bracket and
// paren delimited groups, and flattens such trees back into token
// sequences for the positional scanners of the later stages.
package syntax

import (
	"fmt"

	"github.com/dozer-project/lucius/runtime/lexer"
)

// Node is either a leaf token or a delimited group. For a group, Token is
// the opening delimiter and Close the matching closing delimiter.
type Node struct {
	Token    lexer.Token
	Close    lexer.Token
	Children []Node
}

// IsGroup reports whether n is a delimited group.
func (n Node) IsGroup() bool {
	return n.Token.Type.IsOpen()
}

// Is reports whether n is the identifier word.
func (n Node) Is(word string) bool {
	return !n.IsGroup() && n.Token.Is(word)
}

// Error reports an illegal token or an unbalanced delimiter.
type Error struct {
	Message  string
	Token    lexer.Token
	OpenedAt *lexer.Token // opening delimiter for mismatch and unclosed errors
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Token.Position.Line, e.Token.Position.Column, e.Message)
}

// Build groups tokens into a forest. Comments are dropped and the stream
// ends at the first EOF.
func Build(tokens []lexer.Token) ([]Node, error) {
	var tracker BracketTracker
	// stack[0] collects the top level; each open group pushes a frame.
	stack := [][]Node{nil}

	for _, tok := range tokens {
		switch {
		case tok.Type == lexer.EOF:
			if !tracker.IsEmpty() {
				open := tracker.Top()
				return nil, &Error{
					Message:  fmt.Sprintf("unclosed '%s' (%s)", open.Token.Text, open.Context),
					Token:    tok,
					OpenedAt: &open.Token,
				}
			}
			return stack[0], nil

		case tok.Type == lexer.COMMENT:
			continue

		case tok.Type == lexer.ILLEGAL:
			return nil, &Error{Message: illegalMessage(tok), Token: tok}

		case tok.Type.IsOpen():
			tracker.Push(tok.Type, tok, contextFor(stack))
			stack = append(stack, nil)

		case tok.Type.IsClose():
			open, err := tracker.Pop(tok)
			if err != nil {
				return nil, err
			}
			children := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			parent := len(stack) - 1
			stack[parent] = append(stack[parent], Node{Token: open.Token, Close: tok, Children: children})

		default:
			top := len(stack) - 1
			stack[top] = append(stack[top], Node{Token: tok})
		}
	}

	// Token slices from the lexer always end in EOF; tolerate ones that don't.
	if !tracker.IsEmpty() {
		open := tracker.Top()
		return nil, &Error{
			Message:  fmt.Sprintf("unclosed '%s' (%s)", open.Token.Text, open.Context),
			Token:    open.Token,
			OpenedAt: &open.Token,
		}
	}
	return stack[0], nil
}

// contextFor names the group about to be opened after the last node of
// the current frame, e.g. "after 'magic'", for unclosed-bracket messages.
func contextFor(stack [][]Node) string {
	frame := stack[len(stack)-1]
	if len(frame) == 0 {
		return "at start of block"
	}
	last := frame[len(frame)-1]
	if last.IsGroup() {
		return fmt.Sprintf("after group opened at %d:%d", last.Token.Position.Line, last.Token.Position.Column)
	}
	return fmt.Sprintf("after '%s'", last.Token.Text)
}

func illegalMessage(tok lexer.Token) string {
	text := string(tok.Text)
	switch {
	case len(text) > 0 && text[0] == '"':
		return "unterminated string literal"
	case len(text) > 1 && text[:2] == "/*":
		return "unterminated block comment"
	case len(text) > 0 && text[0] >= '0' && text[0] <= '9':
		return fmt.Sprintf("malformed number %q", text)
	default:
		return fmt.Sprintf("unexpected character %q", text)
	}
}

// Flatten returns the leaf tokens of nodes in source order. Group
// delimiters are dropped; their contents are kept in place.
func Flatten(nodes []Node) []lexer.Token {
	var out []lexer.Token
	flattenInto(nodes, &out)
	return out
}

func flattenInto(nodes []Node, out *[]lexer.Token) {
	for _, n := range nodes {
		if n.IsGroup() {
			flattenInto(n.Children, out)
			continue
		}
		*out = append(*out, n.Token)
	}
}

// Linearize returns the tokens of nodes in source order with group
// delimiters kept, i.e. the original token sequence.
func Linearize(nodes []Node) []lexer.Token {
	var out []lexer.Token
	linearizeInto(nodes, &out)
	return out
}

func linearizeInto(nodes []Node, out *[]lexer.Token) {
	for _, n := range nodes {
		*out = append(*out, n.Token)
		if n.IsGroup() {
			linearizeInto(n.Children, out)
			*out = append(*out, n.Close)
		}
	}
}
