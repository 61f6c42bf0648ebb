package syntax

import (
	"fmt"

	"github.com/dozer-project/lucius/runtime/lexer"
)

// BracketTracker tracks opening delimiters for mismatch reporting
type BracketTracker struct {
	stack []BracketInfo
}

// BracketInfo records one open delimiter
type BracketInfo struct {
	Type    lexer.TokenType // LBRACE, LPAREN or LSQUARE
	Token   lexer.Token     // opening token with position
	Context string          // where it was opened, for messages
}

// Push records an opening delimiter
func (bt *BracketTracker) Push(tokenType lexer.TokenType, token lexer.Token, context string) {
	bt.stack = append(bt.stack, BracketInfo{Type: tokenType, Token: token, Context: context})
}

// Pop removes the innermost opening delimiter and checks that closing
// matches it.
func (bt *BracketTracker) Pop(closing lexer.Token) (BracketInfo, error) {
	if len(bt.stack) == 0 {
		return BracketInfo{}, &Error{
			Message: fmt.Sprintf("unexpected '%s' with no matching opening bracket", closing.Text),
			Token:   closing,
		}
	}

	top := bt.stack[len(bt.stack)-1]
	bt.stack = bt.stack[:len(bt.stack)-1]

	if top.Type.Closer() != closing.Type {
		return BracketInfo{}, &Error{
			Message: fmt.Sprintf("mismatched brackets: '%s' opened at %d:%d but '%s' found",
				top.Token.Text, top.Token.Position.Line, top.Token.Position.Column, closing.Text),
			Token:    closing,
			OpenedAt: &top.Token,
		}
	}
	return top, nil
}

// Top returns the innermost open delimiter. The tracker must not be empty.
func (bt *BracketTracker) Top() BracketInfo {
	return bt.stack[len(bt.stack)-1]
}

// IsEmpty returns true if all brackets are closed
func (bt *BracketTracker) IsEmpty() bool {
	return len(bt.stack) == 0
}
