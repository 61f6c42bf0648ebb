// Package executor runs a Plan against one artifact.
//
// A run has three phases: invoke every step, evaluate every signal against
// the result of the step it derives from, then walk the clinch clauses in
// declaration order applying the actions of each clause whose signal is
// true. A failure in either of the first two phases aborts the run before
// any action is applied, so callers never see a partial context.
package executor

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dozer-project/lucius/core/artifact"
	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/core/invariant"
	"github.com/dozer-project/lucius/runtime/compiler"
	"github.com/dozer-project/lucius/runtime/planner"
	"github.com/dozer-project/lucius/runtime/predicate"
)

// Config configures a run.
type Config struct {
	ParallelSteps int            // >1 invokes up to this many steps concurrently
	Telemetry     TelemetryLevel // Telemetry collection
	Logger        *slog.Logger   // Run summary at debug level; nil discards
}

// TelemetryLevel controls telemetry collection
type TelemetryLevel int

const (
	TelemetryOff    TelemetryLevel = iota // Zero overhead (default)
	TelemetryBasic                        // Counts only
	TelemetryTiming                       // Counts + timing per step
)

// Report is the outcome of a run: the context plus the value of every
// signal in plan order.
type Report struct {
	Context   *artifact.ExecutionContext
	Signals   []SignalResult
	Duration  time.Duration
	Telemetry *Telemetry // nil if TelemetryOff
}

// SignalResult is one evaluated signal.
type SignalResult struct {
	ID    compiler.SignalID `json:"id" yaml:"id"`
	Value bool              `json:"value" yaml:"value"`
}

// Telemetry holds run metrics.
type Telemetry struct {
	StepCount      int
	SignalsTrue    int
	ClausesApplied int
	StepTimings    []StepTiming // if TelemetryTiming
}

// StepTiming is the wall time of one step invocation.
type StepTiming struct {
	Operation string
	Step      string
	Duration  time.Duration
}

// Run evaluates plan against art and returns the populated context.
func Run(plan *planner.Plan, art *artifact.Artifact) (*artifact.ExecutionContext, error) {
	report, err := RunWithReport(plan, art, Config{})
	if err != nil {
		return nil, err
	}
	return report.Context, nil
}

// RunWithReport is Run with per-signal values and optional telemetry.
func RunWithReport(plan *planner.Plan, art *artifact.Artifact, config Config) (*Report, error) {
	invariant.NotNil(plan, "plan")
	invariant.NotNil(art, "artifact")

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	start := time.Now()

	var telemetry *Telemetry
	if config.Telemetry != TelemetryOff {
		telemetry = &Telemetry{StepCount: len(plan.Steps)}
	}

	results, timings, err := invokeSteps(plan, art, config.ParallelSteps, config.Telemetry == TelemetryTiming)
	if err != nil {
		logger.Debug("run aborted", "error", err)
		return nil, err
	}

	signals, err := evaluateSignals(plan, results)
	if err != nil {
		logger.Debug("run aborted", "error", err)
		return nil, err
	}

	ctx, applied := applyClauses(plan, signals)

	report := &Report{
		Context:   ctx,
		Signals:   signals,
		Duration:  time.Since(start),
		Telemetry: telemetry,
	}
	if telemetry != nil {
		for _, s := range signals {
			if s.Value {
				telemetry.SignalsTrue++
			}
		}
		telemetry.ClausesApplied = applied
		telemetry.StepTimings = timings
	}

	logger.Debug("run complete",
		"artifact_size", len(art.Bytes),
		"clauses_applied", applied,
		"tags", len(ctx.Tags),
		"duration", report.Duration)
	return report, nil
}

// invokeSteps calls every step function. Steps are independent, so with
// parallel > 1 they run concurrently; the reported error is still that of
// the first failing step in plan order.
func invokeSteps(plan *planner.Plan, art *artifact.Artifact, parallel int, timed bool) ([]any, []StepTiming, error) {
	results := make([]any, len(plan.Steps))
	errs := make([]error, len(plan.Steps))
	var timings []StepTiming
	if timed {
		timings = make([]StepTiming, len(plan.Steps))
	}

	call := func(i int) {
		step := plan.Steps[i]
		begin := time.Now()
		results[i], errs[i] = callStep(step, art)
		if timed {
			timings[i] = StepTiming{Operation: step.Operation, Step: step.Step, Duration: time.Since(begin)}
		}
	}

	if parallel > 1 && len(plan.Steps) > 1 {
		var g errgroup.Group
		g.SetLimit(parallel)
		for i := range plan.Steps {
			g.Go(func() error {
				call(i)
				return nil
			})
		}
		_ = g.Wait() // failures are collected in errs
	} else {
		for i := range plan.Steps {
			call(i)
			if errs[i] != nil {
				break
			}
		}
	}

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}
	return results, timings, nil
}

// callStep invokes one operation function. A panic inside the function
// fails the run like a returned error.
func callStep(step planner.Step, art *artifact.Artifact) (result any, err error) {
	fail := func(cause error) error {
		return &lerrors.RuntimeError{
			Kind:      lerrors.KindOperation,
			Operation: step.Operation,
			Step:      step.Step,
			Function:  step.Function,
			Cause:     cause,
		}
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fail(fmt.Errorf("panic: %v", r))
		}
	}()

	fn := step.Func()
	invariant.Invariant(fn != nil, "step %s.%s has no function", step.Operation, step.Step)

	result, err = fn(art)
	if err != nil {
		return nil, fail(err)
	}
	return result, nil
}

func evaluateSignals(plan *planner.Plan, results []any) ([]SignalResult, error) {
	out := make([]SignalResult, len(plan.Signals))
	for i, s := range plan.Signals {
		value, err := predicate.Eval(s.Predicate, predicate.Bind(s.Binding, results[s.Source]))
		if err != nil {
			return nil, &lerrors.RuntimeError{
				Kind:   lerrors.KindEvaluation,
				Family: s.ID.Family,
				Signal: s.ID.Name,
				Cause:  err,
			}
		}
		out[i] = SignalResult{ID: s.ID, Value: value}
	}
	return out, nil
}

// applyClauses walks clauses in declaration order and returns the context
// with the number of clauses that fired.
func applyClauses(plan *planner.Plan, signals []SignalResult) (*artifact.ExecutionContext, int) {
	truth := make(map[compiler.SignalID]bool, len(signals))
	for _, s := range signals {
		truth[s.ID] = s.Value
	}

	ctx := artifact.NewExecutionContext()
	applied := 0
	for _, clause := range plan.Clauses {
		if !truth[clause.Signal] {
			continue
		}
		applied++
		for _, a := range clause.Actions {
			apply(ctx, a)
		}
	}
	return ctx, applied
}

func apply(ctx *artifact.ExecutionContext, a compiler.Action) {
	switch a.Kind {
	case compiler.ActionTag:
		ctx.Tags = append(ctx.Tags, "tag:"+a.Text)
	case compiler.ActionEmit:
		ctx.Emits = append(ctx.Emits, a.Text)
	case compiler.ActionScore:
		ctx.Scores[a.Key] = a.Op.Apply(ctx.Scores[a.Key], a.Value)
	case compiler.ActionRunDeferred:
		ctx.Deferred = append(ctx.Deferred, a.Text)
	default:
		invariant.Invariant(false, "unknown action kind %d", a.Kind)
	}
}
