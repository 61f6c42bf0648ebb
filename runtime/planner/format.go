package planner

import (
	"fmt"
	"strings"
)

// Format returns a human-readable text representation of the plan.
//
// Format:
//
//	component: <name>
//	meta: name=<name> version=<version>
//	step 1: <operation>.<step> -> <binding>
//	signal 1: signal.<family>.<name> <- <binding> when <predicate>
//	clause 1: signal.<family>.<name> { <action>; ... }
func Format(p *Plan) string {
	var b strings.Builder

	component := p.Component
	if component == "" {
		component = "(anonymous)"
	}
	fmt.Fprintf(&b, "component: %s\n", component)

	if len(p.Meta.Entries) > 0 {
		parts := make([]string, len(p.Meta.Entries))
		for i, e := range p.Meta.Entries {
			parts[i] = e.Key + "=" + e.Value
		}
		fmt.Fprintf(&b, "meta: %s\n", strings.Join(parts, " "))
	}

	for i, s := range p.Steps {
		fmt.Fprintf(&b, "step %d: %s.%s -> %s\n", i+1, s.Operation, s.Step, s.Binding)
	}
	for i, s := range p.Signals {
		fmt.Fprintf(&b, "signal %d: %s <- %s when %s\n", i+1, s.ID, s.Binding, s.Predicate)
	}
	for i, c := range p.Clauses {
		actions := make([]string, len(c.Actions))
		for j, a := range c.Actions {
			actions[j] = a.String()
		}
		fmt.Fprintf(&b, "clause %d: %s { %s }\n", i+1, c.Signal, strings.Join(actions, "; "))
	}

	return b.String()
}
