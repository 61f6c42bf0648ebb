// Package predicate implements the boolean expression language of signal
// `when` clauses.
//
// A predicate is parsed once into an Expr and evaluated per run against
// the result record of one operation step. The grammar:
//
//	Expr    ::= Or
//	Or      ::= And ( '||' And )*
//	And     ::= Cmp ( '&&' Cmp )*
//	Cmp     ::= Operand ( CmpOp Operand )?
//	CmpOp   ::= '==' | '!=' | '>' | '<' | '>=' | '<='
//	Operand ::= Path | Literal | '(' Expr ')'
//	Path    ::= Ident ( '.' Ident | '[' IntLiteral ']' )*
//	Literal ::= ['-'] IntLiteral | ['-'] FloatLiteral | StringLiteral
//	          | '[' IntLiteral ( ',' IntLiteral )* ']'
//	          | BoolLiteral
//
// Nothing in a predicate can call functions or reach outside the bound
// record.
package predicate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dozer-project/lucius/runtime/lexer"
)

// ExprKind identifies the type of expression.
type ExprKind int

const (
	ExprLiteral ExprKind = iota // bool, int64, float64, string or []byte
	ExprPath                    // magic_probe.magic[0]
	ExprCompare                 // ==, !=, <, >, <=, >=
	ExprLogical                 // &&, ||
)

func (k ExprKind) String() string {
	switch k {
	case ExprLiteral:
		return "literal"
	case ExprPath:
		return "path"
	case ExprCompare:
		return "comparison"
	case ExprLogical:
		return "logical"
	default:
		return "unknown"
	}
}

// Expr is a node of a parsed predicate.
type Expr struct {
	Kind ExprKind
	Pos  lexer.Position

	// For ExprLiteral
	Value any

	// For ExprPath
	Path *Path

	// For ExprCompare and ExprLogical
	Op    string
	Left  *Expr
	Right *Expr
}

// Path is a binding name followed by field and index selectors.
type Path struct {
	Root     string
	Segments []Segment
	Pos      lexer.Position
}

// Segment is one `.field` or `[index]` selector.
type Segment struct {
	Field   string
	Index   int
	IsIndex bool
}

func (p *Path) String() string {
	var b strings.Builder
	b.WriteString(p.Root)
	for _, s := range p.Segments {
		if s.IsIndex {
			fmt.Fprintf(&b, "[%d]", s.Index)
		} else {
			b.WriteString(".")
			b.WriteString(s.Field)
		}
	}
	return b.String()
}

// Paths returns every path in e in source order.
func (e *Expr) Paths() []*Path {
	var out []*Path
	e.walk(func(n *Expr) {
		if n.Kind == ExprPath {
			out = append(out, n.Path)
		}
	})
	return out
}

func (e *Expr) walk(fn func(*Expr)) {
	if e == nil {
		return
	}
	fn(e)
	e.Left.walk(fn)
	e.Right.walk(fn)
}

// String renders e in source syntax with the minimum parentheses needed
// to preserve its structure.
func (e *Expr) String() string {
	switch e.Kind {
	case ExprLiteral:
		return FormatValue(e.Value)
	case ExprPath:
		return e.Path.String()
	case ExprCompare:
		return e.Left.operand() + " " + e.Op + " " + e.Right.operand()
	case ExprLogical:
		return e.Left.child(e.Op) + " " + e.Op + " " + e.Right.child(e.Op)
	default:
		return "<invalid>"
	}
}

// operand renders e as a comparison operand.
func (e *Expr) operand() string {
	if e.Kind == ExprCompare || e.Kind == ExprLogical {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// child renders e under a logical operator; || inside && needs parentheses.
func (e *Expr) child(parentOp string) string {
	if e.Kind == ExprLogical && e.Op == "||" && parentOp == "&&" {
		return "(" + e.String() + ")"
	}
	return e.String()
}

// FormatValue renders a literal or evaluated value in source syntax.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		s := strconv.FormatFloat(val, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") { // keep 7.0 distinct from 7
			s += ".0"
		}
		return s
	case string:
		return strconv.Quote(val)
	case []byte:
		parts := make([]string, len(val))
		for i, b := range val {
			parts[i] = fmt.Sprintf("0x%02X", b)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("<%s>", kindName(v))
	}
}
