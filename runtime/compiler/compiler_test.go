package compiler

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/runtime/parser"
	"github.com/dozer-project/lucius/runtime/predicate"
)

const (
	baseOps     = `operation magic { do inspect_magic output magic_probe do classify_format output format_probe }`
	baseSignals = `family format { signal pdf { derive from operation.magic.inspect_magic when magic_probe.matched } }`
	baseClinch  = `when signal.format.pdf { tag += "pdf" }`
)

// pipeline assembles a source with one line per block body. Pass "-" to
// leave a block out.
func pipeline(ops, signals, clinch string) string {
	var b bytes.Buffer
	for _, blk := range []struct{ name, body string }{
		{"operations", ops},
		{"signals", signals},
		{"clinch", clinch},
	} {
		if blk.body == "-" {
			continue
		}
		b.WriteString(blk.name + " {\n" + blk.body + "\n}\n")
	}
	return b.String()
}

func compileSource(t *testing.T, src string, opts ...Option) (*PipelineIndex, error) {
	t.Helper()
	p, err := parser.Parse([]byte(src))
	require.NoError(t, err, "parse:\n%s", src)
	return Compile(p, opts...)
}

func actionStrings(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.String()
	}
	return out
}

func TestCompileDemoPipeline(t *testing.T) {
	src, err := os.ReadFile("../../testdata/lstran.lucius")
	require.NoError(t, err)

	index, err := compileSource(t, string(src))
	require.NoError(t, err)

	assert.Equal(t, "lstran", index.Component)
	assert.Equal(t, "structural_probe_poc", index.Meta.Name())

	// Operations
	require.Equal(t, []string{"magic"}, index.Operations.Names())
	magic, ok := index.Operations.Lookup("magic")
	require.True(t, ok)
	if diff := cmp.Diff([]Step{
		{Function: "inspect_magic", Binding: "magic_probe"},
		{Function: "classify_format", Binding: "format_probe"},
		{Function: "entropy_probe", Binding: "entropy_probe"},
	}, magic.Steps, cmpopts.IgnoreFields(Step{}, "Pos")); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}

	// Signals
	assert.Equal(t, []string{"format", "structural", "risk"}, index.Signals.FamilyNames())
	var ids []string
	for _, s := range index.Signals.All() {
		ids = append(ids, s.ID.String())
	}
	assert.Equal(t, []string{
		"signal.format.pdf_magic",
		"signal.format.pe_magic",
		"signal.format.classified_pdf",
		"signal.structural.high_entropy",
		"signal.risk.suspicious_pe",
	}, ids)

	pe, ok := index.Signals.Lookup(SignalID{Family: "format", Name: "pe_magic"})
	require.True(t, ok)
	assert.Equal(t, Derivation{Operation: "magic", Step: "inspect_magic", Binding: "magic_probe"}, pe.Derivation)
	assert.Equal(t, "magic_probe.magic[0] == 77 && magic_probe.magic[1] == 90", pe.Predicate.String())

	// Clinch
	require.Len(t, index.Clinch.Clauses, 5)
	for i, clause := range index.Clinch.Clauses {
		assert.Equal(t, i, clause.Seq)
	}
	assert.Equal(t, SignalID{Family: "risk", Name: "suspicious_pe"}, index.Clinch.Clauses[4].Signal)

	want := []string{
		`tag += "type:pdf"`,
		"emit Emit::PdfMagic",
		"run deferred PdfMagicHandler",
		"score risk += 1.0",
	}
	got := actionStrings(index.Clinch.Actions(SignalID{Family: "format", Name: "pdf_magic"}))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pdf_magic actions mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	src, err := os.ReadFile("../../testdata/lstran.lucius")
	require.NoError(t, err)

	first, err := compileSource(t, string(src))
	require.NoError(t, err)
	second, err := compileSource(t, string(src))
	require.NoError(t, err)

	opts := cmp.Options{
		cmp.AllowUnexported(OperationIndex{}, SignalIndex{}),
		cmpopts.EquateEmpty(),
		cmp.Comparer(func(a, b *predicate.Expr) bool { return a.String() == b.String() }),
	}
	if diff := cmp.Diff(first.Operations, second.Operations, opts); diff != "" {
		t.Errorf("operations differ:\n%s", diff)
	}
	if diff := cmp.Diff(first.Signals, second.Signals, opts); diff != "" {
		t.Errorf("signals differ:\n%s", diff)
	}
	if diff := cmp.Diff(first.Clinch, second.Clinch, opts); diff != "" {
		t.Errorf("clinch differs:\n%s", diff)
	}
}

func TestActionGrammar(t *testing.T) {
	clinch := `when signal.format.pdf {
		tag += "type:pdf"
		tag += plain
		emit Emit::PdfMagic
		emit events.pdf.seen
		emit single
		score a = 1
		score b += 2.5
		score c -= -1
		score d *= 0x10
		run deferred Handler
	}`
	index, err := compileSource(t, pipeline(baseOps, baseSignals, clinch))
	require.NoError(t, err)

	want := []Action{
		{Kind: ActionTag, Text: `"type:pdf"`},
		{Kind: ActionTag, Text: "plain"},
		{Kind: ActionEmit, Text: "Emit::PdfMagic"},
		{Kind: ActionEmit, Text: "events.pdf.seen"},
		{Kind: ActionEmit, Text: "single"},
		{Kind: ActionScore, Key: "a", Op: ScoreSet, Value: 1},
		{Kind: ActionScore, Key: "b", Op: ScoreAdd, Value: 2.5},
		{Kind: ActionScore, Key: "c", Op: ScoreSub, Value: -1},
		{Kind: ActionScore, Key: "d", Op: ScoreMul, Value: 16},
		{Kind: ActionRunDeferred, Text: "Handler"},
	}
	got := index.Clinch.Actions(SignalID{Family: "format", Name: "pdf"})
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Action{}, "Pos")); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestSameSignalClausesAccumulate(t *testing.T) {
	signals := `family format {
		signal pdf { derive from operation.magic.inspect_magic when magic_probe.matched }
		signal other { derive from operation.magic.classify_format when format_probe.format == "x" }
	}`
	clinch := `when signal.format.pdf { tag += first score s += 1 }
	when signal.format.other { tag += between }
	when signal.format.pdf { tag += second }`

	index, err := compileSource(t, pipeline(baseOps, signals, clinch))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"tag += first", "score s += 1.0", "tag += second"},
		actionStrings(index.Clinch.Actions(SignalID{Family: "format", Name: "pdf"})))

	var order []string
	for _, c := range index.Clinch.Clauses {
		order = append(order, c.Signal.Name)
	}
	assert.Equal(t, []string{"pdf", "other", "pdf"}, order)
}

func TestScoreOpApply(t *testing.T) {
	tests := []struct {
		op      ScoreOp
		current float64
		value   float64
		want    float64
	}{
		{ScoreSet, 5, 2, 2},
		{ScoreAdd, 5, 2, 7},
		{ScoreSub, 5, 2, 3},
		{ScoreMul, 5, 2, 10},
		{ScoreMul, 0, 2, 0}, // never-seen key
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.Apply(tt.current, tt.value))
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		kind       lerrors.Kind
		code       string
		message    string
		suggestion string
	}{
		// Blocks
		{"missing operations", pipeline("-", baseSignals, baseClinch),
			lerrors.KindParse, lerrors.ErrMissingBlock, "missing required `operations { ... }` block", ""},
		{"missing signals", pipeline(baseOps, "-", baseClinch),
			lerrors.KindParse, lerrors.ErrMissingBlock, "missing required `signals { ... }` block", ""},
		{"missing clinch", pipeline(baseOps, baseSignals, "-"),
			lerrors.KindParse, lerrors.ErrMissingBlock, "missing required `clinch { ... }` block", ""},

		// Operations
		{"duplicate operation", pipeline(baseOps+"\n"+baseOps, baseSignals, baseClinch),
			lerrors.KindDuplicate, lerrors.ErrDuplicateOperation, "operation 'magic' already defined at 2:11", ""},
		{"duplicate step", pipeline(`operation magic { do inspect_magic output a do inspect_magic output b }`, baseSignals, baseClinch),
			lerrors.KindDuplicate, lerrors.ErrDuplicateStep, "duplicate step 'inspect_magic' in operation 'magic' (first at 2:22)", ""},
		{"duplicate binding", pipeline(`operation magic { do inspect_magic output a do classify_format output a }`, baseSignals, baseClinch),
			lerrors.KindDuplicate, lerrors.ErrDuplicateBinding, "duplicate output binding 'a' in operation 'magic' (first at 2:43)", ""},
		{"empty operation", pipeline(`operation magic { }`, baseSignals, baseClinch),
			lerrors.KindGrammar, lerrors.ErrEmptyOperation, "operation 'magic' has no `do` statements", ""},
		{"missing output keyword", pipeline(`operation magic { do inspect_magic magic_probe }`, baseSignals, baseClinch),
			lerrors.KindGrammar, lerrors.ErrMalformedStatement, "expected `output` after step 'inspect_magic' in operation 'magic', got 'magic_probe'", ""},
		{"not a do statement", pipeline(`operation magic { run inspect_magic }`, baseSignals, baseClinch),
			lerrors.KindGrammar, lerrors.ErrMalformedStatement, "expected `do <step> output <binding>` in operation 'magic', got 'run'", ""},
		{"truncated statement", pipeline(`operation magic { do inspect_magic output }`, baseSignals, baseClinch),
			lerrors.KindGrammar, lerrors.ErrMalformedStatement, "expected binding name after `output` in operation 'magic', got '}'", ""},
		{"reserved keyword", pipeline(`operation magic { for x do inspect_magic output magic_probe }`, baseSignals, baseClinch),
			lerrors.KindSafety, lerrors.ErrReservedKeyword, "reserved keyword 'for' in operation 'magic'", ""},
		{"spawn in nested group", pipeline(`operation magic { do inspect_magic output magic_probe { spawn } }`, baseSignals, baseClinch),
			lerrors.KindSafety, lerrors.ErrReservedKeyword, "reserved keyword 'spawn' in operation 'magic'", ""},
		{"mutable context", pipeline(`operation magic { do inspect_magic output magic_probe & mut Context }`, baseSignals, baseClinch),
			lerrors.KindSafety, lerrors.ErrMutableContext, "operation 'magic' references `& mut Context`; only clinch actions may mutate the execution context", ""},
		{"double reference to mutable context", pipeline(`operation magic { do inspect_magic output magic_probe &&mut Context }`, baseSignals, baseClinch),
			lerrors.KindSafety, lerrors.ErrMutableContext, "operation 'magic' references `& mut Context`; only clinch actions may mutate the execution context", ""},

		// Signals
		{"duplicate family", pipeline(baseOps, baseSignals+"\n"+baseSignals, baseClinch),
			lerrors.KindDuplicate, lerrors.ErrDuplicateFamily, "family 'format' already defined at 5:8", ""},
		{"empty family", pipeline(baseOps, `family format { }`, baseClinch),
			lerrors.KindGrammar, lerrors.ErrEmptyFamily, "family 'format' has no signals", ""},
		{"duplicate signal", pipeline(baseOps, `family format {
			signal pdf { derive from operation.magic.inspect_magic when magic_probe.matched }
			signal pdf { derive from operation.magic.inspect_magic when magic_probe.matched }
		}`, baseClinch),
			lerrors.KindDuplicate, lerrors.ErrDuplicateSignal, "signal 'pdf' already defined in family 'format' at 6:11", ""},
		{"unknown operation", pipeline(baseOps, `family format { signal pdf { derive from operation.magik.inspect_magic when magic_probe.matched } }`, baseClinch),
			lerrors.KindReference, lerrors.ErrUnknownOperation, "unknown operation 'magik'", "magic"},
		{"unknown step", pipeline(baseOps, `family format { signal pdf { derive from operation.magic.missing_step when magic_probe.matched } }`, baseClinch),
			lerrors.KindReference, lerrors.ErrUnknownStep, "operation 'magic' has no step 'missing_step'", ""},
		{"misspelled step", pipeline(baseOps, `family format { signal pdf { derive from operation.magic.inspooct_moogic when magic_probe.matched } }`, baseClinch),
			lerrors.KindReference, lerrors.ErrUnknownStep, "operation 'magic' has no step 'inspooct_moogic'", "inspect_magic"},
		{"empty predicate", pipeline(baseOps, `family format { signal pdf { derive from operation.magic.inspect_magic when } }`, baseClinch),
			lerrors.KindGrammar, lerrors.ErrEmptyPredicate, "signal.format.pdf has an empty `when` predicate", ""},
		{"malformed predicate", pipeline(baseOps, `family format { signal pdf { derive from operation.magic.inspect_magic when magic_probe.magic == } }`, baseClinch),
			lerrors.KindGrammar, lerrors.ErrMalformedPredicate, "malformed predicate in signal.format.pdf: expected operand, got end of predicate", ""},
		{"literal condition", pipeline(baseOps, `family format { signal pdf { derive from operation.magic.inspect_magic when 3 } }`, baseClinch),
			lerrors.KindGrammar, lerrors.ErrMalformedPredicate, "malformed predicate in signal.format.pdf: integer literal 3 used as a condition", ""},
		{"foreign binding", pipeline(baseOps, `family format { signal pdf { derive from operation.magic.inspect_magic when format_probe.format == "pdf" } }`, baseClinch),
			lerrors.KindReference, lerrors.ErrUnknownBinding, "predicate of signal.format.pdf refers to 'format_probe', but step 'inspect_magic' binds its output as 'magic_probe'", ""},
		{"misspelled binding", pipeline(baseOps, `family format { signal pdf { derive from operation.magic.inspect_magic when magic_prob.matched } }`, baseClinch),
			lerrors.KindReference, lerrors.ErrUnknownBinding, "predicate of signal.format.pdf refers to 'magic_prob', but step 'inspect_magic' binds its output as 'magic_probe'", "magic_probe"},

		// Clinch
		{"unknown family", pipeline(baseOps, baseSignals, `when signal.fromat.pdf { tag += "pdf" }`),
			lerrors.KindReference, lerrors.ErrUnknownFamily, "unknown signal family 'fromat'", "format"},
		{"unknown signal", pipeline(baseOps, baseSignals, `when signal.format.pfd { tag += "pdf" }`),
			lerrors.KindReference, lerrors.ErrUnknownSignal, "family 'format' has no signal 'pfd'", "pdf"},
		{"empty actions", pipeline(baseOps, baseSignals, `when signal.format.pdf { }`),
			lerrors.KindGrammar, lerrors.ErrEmptyActions, "clause for signal.format.pdf has no actions", ""},
		{"unknown action", pipeline(baseOps, baseSignals, `when signal.format.pdf { tagg += "pdf" }`),
			lerrors.KindGrammar, lerrors.ErrUnknownAction, "unknown action 'tagg' in clause for signal.format.pdf", "tag"},
		{"unknown action token", pipeline(baseOps, baseSignals, `when signal.format.pdf { tag += "pdf" ; }`),
			lerrors.KindGrammar, lerrors.ErrUnknownAction, "unknown action ';' in clause for signal.format.pdf", ""},
		{"tag without +=", pipeline(baseOps, baseSignals, `when signal.format.pdf { tag = "pdf" }`),
			lerrors.KindGrammar, lerrors.ErrMalformedAction, "expected '+=' after `tag`, got '='", ""},
		{"tag without value", pipeline(baseOps, baseSignals, `when signal.format.pdf { tag += }`),
			lerrors.KindGrammar, lerrors.ErrMalformedAction, "expected tag value after `tag +=`, got '}'", ""},
		{"emit without path", pipeline(baseOps, baseSignals, `when signal.format.pdf { emit "x" }`),
			lerrors.KindGrammar, lerrors.ErrMalformedAction, "expected event path after `emit`, got '\"x\"'", ""},
		{"emit trailing separator", pipeline(baseOps, baseSignals, `when signal.format.pdf { emit Emit:: }`),
			lerrors.KindGrammar, lerrors.ErrMalformedAction, "expected identifier after '::' in event path, got '}'", ""},
		{"score bad operator", pipeline(baseOps, baseSignals, `when signal.format.pdf { score risk : 1 }`),
			lerrors.KindGrammar, lerrors.ErrMalformedAction, "expected score operator ('=', '+=', '-=' or '*=') after 'risk', got ':'", ""},
		{"score not a number", pipeline(baseOps, baseSignals, `when signal.format.pdf { score risk += high }`),
			lerrors.KindGrammar, lerrors.ErrNumericLiteral, "score value for 'risk' must be a number, got 'high'", ""},
		{"score string", pipeline(baseOps, baseSignals, `when signal.format.pdf { score risk = "1" }`),
			lerrors.KindGrammar, lerrors.ErrNumericLiteral, "score value for 'risk' must be a number, got '\"1\"'", ""},
		{"run without deferred", pipeline(baseOps, baseSignals, `when signal.format.pdf { run later Handler }`),
			lerrors.KindGrammar, lerrors.ErrMalformedAction, "expected `deferred` after `run`, got 'later'", ""},
		{"run without handler", pipeline(baseOps, baseSignals, `when signal.format.pdf { run deferred }`),
			lerrors.KindGrammar, lerrors.ErrMalformedAction, "expected handler name after `run deferred`, got '}'", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, err := compileSource(t, tt.src)
			require.Error(t, err)
			assert.Nil(t, index)

			var ce *lerrors.CompileError
			require.True(t, errors.As(err, &ce), "want *CompileError, got %T", err)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, tt.message, ce.Message)
			if tt.suggestion != "" {
				assert.Equal(t, tt.suggestion, ce.Suggestion)
			}
		})
	}
}

func TestUnknownStepLocation(t *testing.T) {
	src := pipeline(baseOps, `family format { signal pdf { derive from operation.magic.missing_step when magic_probe.matched } }`, baseClinch)

	_, err := compileSource(t, src, WithSource([]byte(src), "probe.lucius"))
	require.Error(t, err)

	var ce *lerrors.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 5, ce.Line)
	assert.Equal(t, 58, ce.Column)
	assert.Equal(t, "missing_step", ce.Token)
	assert.Contains(t, err.Error(), "  --> probe.lucius:5:58")
	assert.Contains(t, err.Error(), "missing_step")
}

func TestMalformedPredicateKeepsCause(t *testing.T) {
	src := pipeline(baseOps, `family format { signal pdf { derive from operation.magic.inspect_magic when magic_probe.magic == [1, 300] } }`, baseClinch)

	_, err := compileSource(t, src)
	require.Error(t, err)

	var se *predicate.SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "byte value 300 out of range 0..255", se.Message)
}

func TestStagesRequirePriorIndex(t *testing.T) {
	p, err := parser.Parse([]byte(pipeline(baseOps, baseSignals, baseClinch)))
	require.NoError(t, err)

	_, err = CompileSignals(p.Signals, nil)
	assert.Error(t, err)
	_, err = CompileClinch(p.Clinch, nil)
	assert.Error(t, err)

	ops, err := CompileOperations(p.Operations)
	require.NoError(t, err)
	signals, err := CompileSignals(p.Signals, ops)
	require.NoError(t, err)
	clinch, err := CompileClinch(p.Clinch, signals)
	require.NoError(t, err)
	assert.Len(t, clinch.Clauses, 1)
}

func TestCompileLogsStageSummaries(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := compileSource(t, pipeline(baseOps, baseSignals, baseClinch), WithLogger(logger))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "compiled operations")
	assert.Contains(t, out, "steps=2")
	assert.Contains(t, out, "compiled signals")
	assert.Contains(t, out, "compiled clinch")
}
