package planner

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/dozer-project/lucius/runtime/compiler"
)

// CanonicalPlan is the serializable form of a Plan used for hashing and
// inspection. Function values are dropped; predicates are rendered as
// source text.
type CanonicalPlan struct {
	Version   uint8             `cbor:"version"`
	Component string            `cbor:"component"`
	Meta      []MetaEntry       `cbor:"meta"`
	Steps     []CanonicalStep   `cbor:"steps"`
	Signals   []CanonicalSignal `cbor:"signals"`
	Clauses   []CanonicalClause `cbor:"clauses"`
}

// CanonicalStep is a step in canonical form.
type CanonicalStep struct {
	Operation string `cbor:"operation"`
	Step      string `cbor:"step"`
	Function  string `cbor:"function"`
	Binding   string `cbor:"binding"`
}

// CanonicalSignal is a signal in canonical form.
type CanonicalSignal struct {
	Family    string `cbor:"family"`
	Name      string `cbor:"name"`
	Binding   string `cbor:"binding"`
	Source    int    `cbor:"source"`
	Predicate string `cbor:"predicate"`
}

// CanonicalClause is a clinch clause in canonical form.
type CanonicalClause struct {
	Seq     int               `cbor:"seq"`
	Family  string            `cbor:"family"`
	Signal  string            `cbor:"signal"`
	Actions []CanonicalAction `cbor:"actions"`
}

// CanonicalAction is a clinch action in canonical form.
type CanonicalAction struct {
	Kind  string  `cbor:"kind"`
	Text  string  `cbor:"text,omitempty"`
	Key   string  `cbor:"key,omitempty"`
	Op    string  `cbor:"op,omitempty"`
	Value float64 `cbor:"value,omitempty"`
}

// Canonicalize converts the plan into canonical form. Meta keys keep
// source order; everything else is already in declaration order.
func (p *Plan) Canonicalize() *CanonicalPlan {
	cp := &CanonicalPlan{
		Version:   1,
		Component: p.Component,
		Meta:      append([]MetaEntry{}, p.Meta.Entries...),
		Steps:     make([]CanonicalStep, len(p.Steps)),
		Signals:   make([]CanonicalSignal, len(p.Signals)),
		Clauses:   make([]CanonicalClause, len(p.Clauses)),
	}

	for i, s := range p.Steps {
		cp.Steps[i] = CanonicalStep{
			Operation: s.Operation,
			Step:      s.Step,
			Function:  s.Function,
			Binding:   s.Binding,
		}
	}

	for i, s := range p.Signals {
		cp.Signals[i] = CanonicalSignal{
			Family:    s.ID.Family,
			Name:      s.ID.Name,
			Binding:   s.Binding,
			Source:    s.Source,
			Predicate: s.Predicate.String(),
		}
	}

	for i, c := range p.Clauses {
		cc := CanonicalClause{
			Seq:     c.Seq,
			Family:  c.Signal.Family,
			Signal:  c.Signal.Name,
			Actions: make([]CanonicalAction, len(c.Actions)),
		}
		for j, a := range c.Actions {
			ca := CanonicalAction{Kind: a.Kind.String(), Text: a.Text, Key: a.Key}
			if a.Kind == compiler.ActionScore {
				ca.Op = a.Op.String()
				ca.Value = a.Value
			}
			cc.Actions[j] = ca
		}
		cp.Clauses[i] = cc
	}

	return cp
}

// MarshalCanonical produces the deterministic CBOR encoding of the plan.
// Equal plans encode to identical bytes.
func (p *Plan) MarshalCanonical() ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	data, err := encMode.Marshal(p.Canonicalize())
	if err != nil {
		return nil, fmt.Errorf("CBOR encoding failed: %w", err)
	}
	return data, nil
}

// Digest computes the BLAKE2b-256 hash of the canonical encoding.
// Returns hex-encoded hash: "blake2b:a3f8b2c1d4e5f6a7..."
func (p *Plan) Digest() (string, error) {
	data, err := p.MarshalCanonical()
	if err != nil {
		return "", fmt.Errorf("failed to serialize plan for digest: %w", err)
	}
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("blake2b:%x", sum), nil
}

// UnmarshalCanonical decodes a canonical encoding produced by
// MarshalCanonical. The result describes a plan but cannot run it.
func UnmarshalCanonical(data []byte) (*CanonicalPlan, error) {
	var cp CanonicalPlan
	if err := cbor.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("CBOR decoding failed: %w", err)
	}
	return &cp, nil
}
