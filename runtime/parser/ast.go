package parser

import (
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/dozer-project/lucius/runtime/lexer"
	"github.com/dozer-project/lucius/runtime/syntax"
)

// Pipeline is the parsed form of one pipeline source. Blocks are nil when
// absent; whether a block is required is decided by the compiler stages.
type Pipeline struct {
	Component  *Ident // set when the source uses `component = <name> { ... }`
	Meta       *Meta
	Operations *OperationsBlock
	Signals    *SignalsBlock
	Clinch     *ClinchBlock
}

// Ident is a name together with the token it was read from.
type Ident struct {
	Name  string
	Token lexer.Token
}

// Body is a brace-delimited statement list kept as an unparsed tree.
type Body struct {
	Open  lexer.Token
	Close lexer.Token
	Nodes []syntax.Node
}

// Tokens returns the body's statement tokens with grouping removed.
func (b Body) Tokens() []lexer.Token {
	return syntax.Flatten(b.Nodes)
}

// Meta is the descriptive `meta { key = value ... }` block.
type Meta struct {
	Keyword lexer.Token
	Entries []MetaEntry
}

// MetaEntry is one `key = value` line. Value is unquoted for strings and
// the raw token text otherwise.
type MetaEntry struct {
	Key   Ident
	Value string
	Raw   lexer.Token
}

// Get returns the value for key and whether it was present.
func (m *Meta) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, e := range m.Entries {
		if e.Key.Name == key {
			return e.Value, true
		}
	}
	return "", false
}

func (m *Meta) lookup(key string) string {
	v, _ := m.Get(key)
	return v
}

// Name returns the `name` entry.
func (m *Meta) Name() string { return m.lookup("name") }

// Author returns the `author` entry.
func (m *Meta) Author() string { return m.lookup("author") }

// Version returns the `version` entry as written.
func (m *Meta) Version() string { return m.lookup("version") }

// Scope returns the `scope` entry.
func (m *Meta) Scope() string { return m.lookup("scope") }

// SemVer returns the canonical semantic version of the `version` entry
// ("0.2" becomes "v0.2.0"), or "" if it is absent or not a version.
func (m *Meta) SemVer() string {
	v := m.Version()
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// OperationsBlock is `operations { operation ... }`.
type OperationsBlock struct {
	Keyword     lexer.Token
	Definitions []OperationDef
}

// OperationDef is `operation <name> { <statements> }`.
type OperationDef struct {
	Name Ident
	Body Body
}

// SignalsBlock is `signals { family ... }`.
type SignalsBlock struct {
	Keyword  lexer.Token
	Families []FamilyDef
}

// FamilyDef is `family <name> { signal ... }`.
type FamilyDef struct {
	Name    Ident
	Signals []SignalDef
}

// SignalDef is `signal <name> { derive from ... when ... }`.
type SignalDef struct {
	Name   Ident
	Derive DeriveFrom
	When   Predicate
}

// DeriveFrom is `derive from operation.<op>.<step>`.
type DeriveFrom struct {
	Keyword   lexer.Token
	Operation Ident
	Step      Ident
}

// Predicate is the token sequence following `when`, delimiters kept.
type Predicate struct {
	Keyword lexer.Token
	Tokens  []lexer.Token
}

// ClinchBlock is `clinch { when ... }`.
type ClinchBlock struct {
	Keyword lexer.Token
	Clauses []ClauseDef
}

// ClauseDef is `when signal.<family>.<name> { <actions> }`.
type ClauseDef struct {
	When   lexer.Token
	Family Ident
	Signal Ident
	Body   Body
}

func unquote(tok lexer.Token) string {
	if tok.Type == lexer.STRING {
		if s, err := strconv.Unquote(string(tok.Text)); err == nil {
			return s
		}
	}
	return string(tok.Text)
}
