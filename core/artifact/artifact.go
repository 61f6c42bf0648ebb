// Package artifact holds the data carriers that flow through a pipeline run:
// the Artifact under inspection and the ExecutionContext a run produces.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"unicode/utf8"
)

// Artifact is the input to one run. Nothing in the pipeline mutates it;
// operation functions receive it read-only.
type Artifact struct {
	Bytes   []byte            // raw payload
	Text    string            // decoded text, valid only when HasText is set
	HasText bool
	Meta    map[string]string // mime type, filename and similar
}

// FromBytes wraps b. Text is populated when b is valid UTF-8.
func FromBytes(b []byte) *Artifact {
	a := &Artifact{
		Bytes: b,
		Meta:  map[string]string{"size": strconv.Itoa(len(b))},
	}
	if len(b) > 0 && utf8.Valid(b) {
		a.Text = string(b)
		a.HasText = true
	}
	return a
}

// FromFile reads path into an Artifact and records its base name.
func FromFile(path string) (*Artifact, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	a := FromBytes(b)
	a.Meta["filename"] = filepath.Base(path)
	return a, nil
}

// ExecutionContext is the mutation record of one run. Tags, Emits and
// Deferred keep application order; Scores keys are unique.
type ExecutionContext struct {
	Tags     []string           `json:"tags" yaml:"tags"`
	Emits    []string           `json:"emits" yaml:"emits"`
	Deferred []string           `json:"deferred" yaml:"deferred"`
	Scores   map[string]float64 `json:"scores" yaml:"scores"`
}

// NewExecutionContext returns an empty context with non-nil collections so
// that an untouched context encodes as empty lists rather than null.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		Tags:     []string{},
		Emits:    []string{},
		Deferred: []string{},
		Scores:   map[string]float64{},
	}
}

// Empty reports whether no action touched the context.
func (c *ExecutionContext) Empty() bool {
	return len(c.Tags) == 0 && len(c.Emits) == 0 && len(c.Deferred) == 0 && len(c.Scores) == 0
}
