package errors

import (
	"fmt"
	"strings"
)

// Snippet renders a Rust/Clang style excerpt pointing at line:column of
// source:
//
//	  --> pipeline.lucius:4:33
//	   |
//	 4 |     derive from operation.magic.missing_step
//	   |                                 ^
//
// It returns "" when the location is unknown or outside source.
func Snippet(source, name string, line, column int) string {
	if source == "" || line <= 0 {
		return ""
	}

	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}
	content := strings.TrimRight(lines[line-1], "\r")

	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "  --> %s:%d:%d\n", name, line, column)
	} else {
		fmt.Fprintf(&b, "  --> %d:%d\n", line, column)
	}
	b.WriteString("   |\n")
	fmt.Fprintf(&b, "%2d | %s\n", line, content)
	b.WriteString("   | ")
	if column > 0 && column <= len(content)+1 {
		b.WriteString(strings.Repeat(" ", column-1) + "^")
	}
	return b.String()
}
