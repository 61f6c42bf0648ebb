package predicate

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/dozer-project/lucius/runtime/lexer"
)

// Lookup resolves a binding name to the step result bound under it.
type Lookup func(name string) (any, bool)

// Bind returns a Lookup that knows exactly one binding.
func Bind(name string, value any) Lookup {
	return func(n string) (any, bool) {
		if n == name {
			return value, true
		}
		return nil, false
	}
}

// EvalError represents an error during predicate evaluation.
type EvalError struct {
	Message string
	Path    string // path or operator context, if any
	Pos     lexer.Position
}

func (e *EvalError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// Eval evaluates expr to a bool. The top-level value, and every operand of
// && and ||, must be a bool; anything else is a type error.
func Eval(expr *Expr, lookup Lookup) (bool, error) {
	v, err := evaluate(expr, lookup)
	if err != nil {
		return false, err
	}
	return asBool(v, expr)
}

func evaluate(expr *Expr, lookup Lookup) (any, error) {
	switch expr.Kind {
	case ExprLiteral:
		return expr.Value, nil

	case ExprPath:
		root, ok := lookup(expr.Path.Root)
		if !ok {
			return nil, &EvalError{Message: "unbound name", Path: expr.Path.Root, Pos: expr.Pos}
		}
		return resolve(root, expr.Path)

	case ExprLogical:
		return evaluateLogical(expr, lookup)

	case ExprCompare:
		left, err := evaluate(expr.Left, lookup)
		if err != nil {
			return nil, err
		}
		right, err := evaluate(expr.Right, lookup)
		if err != nil {
			return nil, err
		}
		return compare(expr, left, right)

	default:
		return nil, &EvalError{Message: "unknown expression kind " + expr.Kind.String(), Pos: expr.Pos}
	}
}

// evaluateLogical short-circuits left to right.
func evaluateLogical(expr *Expr, lookup Lookup) (any, error) {
	lv, err := evaluate(expr.Left, lookup)
	if err != nil {
		return nil, err
	}
	left, err := asBool(lv, expr.Left)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case "&&":
		if !left {
			return false, nil
		}
	case "||":
		if left {
			return true, nil
		}
	default:
		return nil, &EvalError{Message: "unknown operator " + expr.Op, Pos: expr.Pos}
	}

	rv, err := evaluate(expr.Right, lookup)
	if err != nil {
		return nil, err
	}
	return asBool(rv, expr.Right)
}

func asBool(v any, at *Expr) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, &EvalError{
			Message: fmt.Sprintf("type mismatch: expected bool, got %s", kindName(v)),
			Path:    at.String(),
			Pos:     at.Pos,
		}
	}
	return b, nil
}

func compare(expr *Expr, a, b any) (bool, error) {
	switch expr.Op {
	case "==":
		return compareEqual(expr, a, b)
	case "!=":
		eq, err := compareEqual(expr, a, b)
		return !eq, err
	case "<", ">", "<=", ">=":
		return compareOrder(expr, a, b)
	default:
		return false, &EvalError{Message: "unknown operator " + expr.Op, Pos: expr.Pos}
	}
}

// compareEqual compares two values of the same kind. Integers and floats
// compare numerically; byte sequences compare element-wise and are unequal
// when lengths differ.
func compareEqual(expr *Expr, a, b any) (bool, error) {
	if ai, bi, ok := toInt64Pair(a, b); ok {
		return ai == bi, nil
	}
	if af, bf, ok := toFloat64Pair(a, b); ok {
		return af == bf, nil
	}

	switch av := a.(type) {
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv, nil
		}
	case string:
		if bv, ok := b.(string); ok {
			return av == bv, nil
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Equal(av, bv), nil
		}
	}
	return false, mismatch(expr, a, b)
}

func compareOrder(expr *Expr, a, b any) (bool, error) {
	if ai, bi, ok := toInt64Pair(a, b); ok {
		switch expr.Op {
		case "<":
			return ai < bi, nil
		case ">":
			return ai > bi, nil
		case "<=":
			return ai <= bi, nil
		default:
			return ai >= bi, nil
		}
	}
	if af, bf, ok := toFloat64Pair(a, b); ok {
		switch expr.Op {
		case "<":
			return af < bf, nil
		case ">":
			return af > bf, nil
		case "<=":
			return af <= bf, nil
		default:
			return af >= bf, nil
		}
	}
	return false, mismatch(expr, a, b)
}

func mismatch(expr *Expr, a, b any) *EvalError {
	return &EvalError{
		Message: fmt.Sprintf("type mismatch: cannot apply %s to %s and %s", expr.Op, kindName(a), kindName(b)),
		Path:    expr.String(),
		Pos:     expr.Pos,
	}
}

// toInt64Pair returns both values if both are integers.
func toInt64Pair(a, b any) (int64, int64, bool) {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	return ai, bi, aok && bok
}

// toFloat64Pair converts both values to float64 if both are numeric.
func toFloat64Pair(a, b any) (float64, float64, bool) {
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	return af, bf, aok && bok
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}

func kindName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "bool"
	case int64:
		return "integer"
	case float64:
		return "float"
	case string:
		return "string"
	case []byte:
		return "bytes"
	case record:
		return "record"
	case list:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

func quote(s string) string {
	return strconv.Quote(s)
}
