package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dozer-project/lucius/core/artifact"
	"github.com/dozer-project/lucius/internal/config"
	"github.com/dozer-project/lucius/runtime/executor"
)

// runReport is the printed outcome for one artifact.
type runReport struct {
	RunID    string                     `json:"run_id" yaml:"run_id"`
	Artifact string                     `json:"artifact" yaml:"artifact"`
	Context  *artifact.ExecutionContext `json:"context,omitempty" yaml:"context,omitempty"`
	Signals  []executor.SignalResult    `json:"signals,omitempty" yaml:"signals,omitempty"`
	Error    string                     `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a *app) writeReports(reports []runReport, showSignals bool) error {
	if !showSignals {
		for i := range reports {
			reports[i].Signals = nil
		}
	}

	switch a.cfg.Output {
	case config.OutputJSON:
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case config.OutputYAML:
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	default:
		useColor := ShouldUseColor(a.noColor, a.stdout)
		for _, r := range reports {
			writeText(a.stdout, r, useColor)
		}
		return nil
	}
}

func writeText(w io.Writer, r runReport, useColor bool) {
	_, _ = fmt.Fprintf(w, "%s\n", Colorize("== "+r.Artifact, ColorCyan, useColor))
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("error: ", ColorRed, useColor), r.Error)
		return
	}

	ctx := r.Context
	_, _ = fmt.Fprintf(w, "tags:     %s\n", orNone(strings.Join(ctx.Tags, ", ")))
	_, _ = fmt.Fprintf(w, "emits:    %s\n", orNone(strings.Join(ctx.Emits, ", ")))
	_, _ = fmt.Fprintf(w, "deferred: %s\n", orNone(strings.Join(ctx.Deferred, ", ")))
	_, _ = fmt.Fprintf(w, "scores:   %s\n", orNone(formatScores(ctx.Scores)))

	for _, s := range r.Signals {
		value := Colorize("false", ColorGray, useColor)
		if s.Value {
			value = Colorize("true", ColorGreen, useColor)
		}
		_, _ = fmt.Fprintf(w, "  %s = %s\n", s.ID, value)
	}
}

func formatScores(scores map[string]float64) string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, scores[k]))
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
