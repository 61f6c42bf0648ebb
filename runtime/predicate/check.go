package predicate

import "fmt"

// Check rejects predicates whose literal operands make evaluation fail
// regardless of input: a non-bool literal where a bool is required, an
// ordering comparison on a non-numeric literal, or two literals of
// incomparable kinds.
func Check(expr *Expr) error {
	return check(expr, true)
}

func check(expr *Expr, wantBool bool) error {
	switch expr.Kind {
	case ExprLiteral:
		if wantBool {
			if _, ok := expr.Value.(bool); !ok {
				return &SyntaxError{Message: fmt.Sprintf("%s literal %s used as a condition", kindName(expr.Value), FormatValue(expr.Value))}
			}
		}
		return nil

	case ExprPath:
		return nil

	case ExprLogical:
		if err := check(expr.Left, true); err != nil {
			return err
		}
		return check(expr.Right, true)

	case ExprCompare:
		if err := check(expr.Left, false); err != nil {
			return err
		}
		if err := check(expr.Right, false); err != nil {
			return err
		}
		return checkComparison(expr)
	}
	return nil
}

func checkComparison(expr *Expr) error {
	l, lok := literalKind(expr.Left)
	r, rok := literalKind(expr.Right)

	switch expr.Op {
	case "<", ">", "<=", ">=":
		for _, k := range []string{l, r} {
			if k != "" && k != "number" {
				return &SyntaxError{Message: fmt.Sprintf("operator %s needs numeric operands, got %s literal", expr.Op, k)}
			}
		}
	}
	if lok && rok && l != r {
		return &SyntaxError{Message: fmt.Sprintf("cannot compare %s literal with %s literal", l, r)}
	}
	return nil
}

// literalKind classifies literal operands. Integers and floats share a kind
// since they compare numerically. Non-literals report ("", false); nested
// comparisons and logical expressions are bool-valued.
func literalKind(e *Expr) (string, bool) {
	switch e.Kind {
	case ExprLiteral:
		switch e.Value.(type) {
		case int64, float64:
			return "number", true
		default:
			return kindName(e.Value), true
		}
	case ExprCompare, ExprLogical:
		return "bool", true
	default:
		return "", false
	}
}
