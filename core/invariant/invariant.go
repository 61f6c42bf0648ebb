// Package invariant provides contract assertions for the lucius compiler.
//
// Assertions guard states that only a bug in this module can produce: a
// scanner that stops advancing, an index built with a missing sequence
// number, a plan lowered from a nil index. User mistakes in pipeline
// source are never reported here; they surface as compile errors.
//
// All functions panic with a *Violation on failure.
package invariant

import (
	"fmt"
	"reflect"
	"runtime"
)

// Violation is the value passed to panic when a contract fails.
type Violation struct {
	Kind    string // PRECONDITION, POSTCONDITION or INVARIANT
	Message string
	File    string
	Line    int
}

func (v *Violation) Error() string {
	if v.File == "" {
		return fmt.Sprintf("%s VIOLATION: %s", v.Kind, v.Message)
	}
	return fmt.Sprintf("%s VIOLATION: %s\n  at %s:%d", v.Kind, v.Message, v.File, v.Line)
}

// Precondition checks an input contract at function entry.
//
//	func Lower(idx *compiler.PipelineIndex) *Plan {
//	    invariant.Precondition(idx != nil, "index must not be nil")
//	    ...
//	}
func Precondition(condition bool, format string, args ...any) {
	if !condition {
		fail("PRECONDITION", format, args...)
	}
}

// Postcondition checks an output contract before returning.
func Postcondition(condition bool, format string, args ...any) {
	if !condition {
		fail("POSTCONDITION", format, args...)
	}
}

// Invariant checks internal consistency, typically scanner progress:
//
//	prev := s.pos
//	for s.pos < len(s.toks) {
//	    ...
//	    invariant.Invariant(s.pos > prev, "scanner must advance")
//	    prev = s.pos
//	}
func Invariant(condition bool, format string, args ...any) {
	if !condition {
		fail("INVARIANT", format, args...)
	}
}

// NotNil panics if value is nil or a typed nil pointer, map, slice or func.
func NotNil(value any, name string) {
	if isNil(value) {
		fail("PRECONDITION", "%s must not be nil", name)
	}
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}

// InRange panics if value is outside [minVal, maxVal].
func InRange(value, minVal, maxVal int, name string) {
	if value < minVal || value > maxVal {
		fail("PRECONDITION", "%s must be in range [%d, %d], got %d", name, minVal, maxVal, value)
	}
}

func fail(kind, format string, args ...any) {
	v := &Violation{Kind: kind, Message: fmt.Sprintf(format, args...)}

	// Skip runtime.Callers, fail and the exported wrapper.
	pc := make([]uintptr, 1)
	if runtime.Callers(3, pc) > 0 {
		frame, _ := runtime.CallersFrames(pc).Next()
		v.File, v.Line = frame.File, frame.Line
	}

	panic(v)
}
