// Package ops provides the built-in structural probes. Importing it
// registers inspect_magic, classify_format and entropy_probe in the
// default registry.
package ops

import (
	"bytes"
	"math"

	"github.com/dozer-project/lucius/core/artifact"
	"github.com/dozer-project/lucius/runtime/registry"
)

// Module is the descriptor module for the built-in operations.
const Module = "ops"

var (
	pdfMagic = []byte{0x25, 0x50, 0x44, 0x46} // %PDF
	peMagic  = []byte{0x4D, 0x5A}             // MZ
)

// MagicResult is the output of inspect_magic.
type MagicResult struct {
	Matched bool    `triage:"matched" json:"matched"`
	Magic   [4]byte `triage:"magic" json:"magic"`
}

// FormatResult is the output of classify_format.
type FormatResult struct {
	Format string `triage:"format" json:"format"`
}

// EntropyResult is the output of entropy_probe.
type EntropyResult struct {
	Entropy float64 `triage:"entropy" json:"entropy"`
}

func init() {
	registry.MustRegister(registry.Descriptor{Function: "inspect_magic", Output: "MagicResult", Module: Module}, inspectMagic)
	registry.MustRegister(registry.Descriptor{Function: "classify_format", Output: "FormatResult", Module: Module}, classifyFormat)
	registry.MustRegister(registry.Descriptor{Function: "entropy_probe", Output: "EntropyResult", Module: Module}, entropyProbe)
}

// InspectMagic reads the first four bytes. Artifacts shorter than four
// bytes report all zeros. Matched is set for %PDF and for a leading MZ.
func InspectMagic(a *artifact.Artifact) MagicResult {
	var r MagicResult
	if len(a.Bytes) >= 4 {
		copy(r.Magic[:], a.Bytes[:4])
	}
	r.Matched = bytes.Equal(r.Magic[:], pdfMagic) || bytes.Equal(r.Magic[:2], peMagic)
	return r
}

// ClassifyFormat names the format from the first two bytes: "pe", "pdf"
// or "unknown".
func ClassifyFormat(a *artifact.Artifact) FormatResult {
	switch {
	case bytes.HasPrefix(a.Bytes, peMagic):
		return FormatResult{Format: "pe"}
	case bytes.HasPrefix(a.Bytes, pdfMagic[:2]):
		return FormatResult{Format: "pdf"}
	default:
		return FormatResult{Format: "unknown"}
	}
}

// EntropyProbe computes the Shannon entropy of the artifact bytes in bits
// per byte, from 0.0 (empty or constant) to 8.0 (uniform).
func EntropyProbe(a *artifact.Artifact) EntropyResult {
	return EntropyResult{Entropy: Entropy(a.Bytes)}
}

// Entropy returns the Shannon entropy of b in bits per byte.
func Entropy(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}

	var counts [256]int
	for _, c := range b {
		counts[c]++
	}

	n := float64(len(b))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

func inspectMagic(a *artifact.Artifact) (any, error)   { return InspectMagic(a), nil }
func classifyFormat(a *artifact.Artifact) (any, error) { return ClassifyFormat(a), nil }
func entropyProbe(a *artifact.Artifact) (any, error)   { return EntropyProbe(a), nil }
