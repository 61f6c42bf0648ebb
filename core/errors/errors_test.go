package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dozer-project/lucius/core/errors"
)

func TestCompileErrorFormat(t *testing.T) {
	err := errors.NewCompile(errors.KindReference, errors.ErrUnknownStep,
		"step %q not found in operation %q", "missing_step", "magic").
		At(4, 33, "missing_step").
		WithSuggestion("entropy_probe")

	assert.Equal(t,
		`[E_UNKNOWN_STEP] 4:33: reference error: step "missing_step" not found in operation "magic" (did you mean "entropy_probe"?)`,
		err.Error())
}

func TestCompileErrorWithoutLocation(t *testing.T) {
	err := errors.NewCompile(errors.KindGrammar, errors.ErrEmptyActions, "empty action block")
	assert.Equal(t, "[E_EMPTY_ACTIONS] grammar error: empty action block", err.Error())
}

func TestCompileErrorUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := errors.NewCompile(errors.KindParse, errors.ErrParse, "bad block").WithCause(cause)

	assert.ErrorIs(t, err, cause)

	var ce *errors.CompileError
	require.ErrorAs(t, error(err), &ce)
	assert.Equal(t, errors.KindParse, ce.Kind)
}

func TestRuntimeErrorFormat(t *testing.T) {
	cause := stderrors.New("short read")

	op := &errors.RuntimeError{Kind: errors.KindOperation, Operation: "magic", Step: "inspect_magic", Function: "inspect_magic", Cause: cause}
	assert.Equal(t, `operation failed: operation.magic.inspect_magic (function "inspect_magic"): short read`, op.Error())
	assert.ErrorIs(t, op, cause)

	ev := &errors.RuntimeError{Kind: errors.KindEvaluation, Family: "format", Signal: "pe_magic", Cause: cause}
	assert.Equal(t, "evaluation failed: signal.format.pe_magic: short read", ev.Error())
}

func TestSuggest(t *testing.T) {
	steps := []string{"inspect_magic", "classify_format", "entropy_probe"}

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"subsequence", "magic", "inspect_magic"},
		{"typo", "inspooct_moogic", "inspect_magic"},
		{"case", "ENTROPY", "entropy_probe"},
		{"nothing close", "zzz", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Suggest(tt.target, steps))
		})
	}
}

func TestCompileErrorWithSnippet(t *testing.T) {
	src := "signals {\n  family f {\n    signal s { derive from operation.magic.nope when p.x }\n  }\n}"

	err := errors.NewCompile(errors.KindReference, errors.ErrUnknownStep, "step %q not found", "nope").
		At(3, 44, "nope").
		WithSnippet(src, "demo.lucius")

	want := `[E_UNKNOWN_STEP] reference error: step "nope" not found
  --> demo.lucius:3:44
   |
 3 |     signal s { derive from operation.magic.nope when p.x }
   |                                            ^`
	assert.Equal(t, want, err.Error())
}

func TestSnippetOutOfRange(t *testing.T) {
	assert.Empty(t, errors.Snippet("one line", "", 2, 1))
	assert.Empty(t, errors.Snippet("", "", 1, 1))
	assert.Empty(t, errors.Snippet("x", "", 0, 1))
}
