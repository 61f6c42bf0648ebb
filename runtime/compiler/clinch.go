package compiler

import (
	"fmt"
	"strconv"
	"strings"

	lerrors "github.com/dozer-project/lucius/core/errors"
	"github.com/dozer-project/lucius/runtime/lexer"
	"github.com/dozer-project/lucius/runtime/parser"
	"github.com/dozer-project/lucius/runtime/predicate"
)

// ActionKind identifies one of the four clinch actions.
type ActionKind int

const (
	ActionTag ActionKind = iota
	ActionEmit
	ActionScore
	ActionRunDeferred
)

func (k ActionKind) String() string {
	switch k {
	case ActionTag:
		return "tag"
	case ActionEmit:
		return "emit"
	case ActionScore:
		return "score"
	case ActionRunDeferred:
		return "run deferred"
	default:
		return "unknown"
	}
}

// ScoreOp is the assignment operator of a score action.
type ScoreOp int

const (
	ScoreSet ScoreOp = iota // =
	ScoreAdd                // +=
	ScoreSub                // -=
	ScoreMul                // *=
)

func (op ScoreOp) String() string {
	switch op {
	case ScoreSet:
		return "="
	case ScoreAdd:
		return "+="
	case ScoreSub:
		return "-="
	case ScoreMul:
		return "*="
	default:
		return "?="
	}
}

// Apply returns the new score for a key currently at current. A key that
// was never set has current 0.0, so the first Mul on it yields 0.0.
func (op ScoreOp) Apply(current, value float64) float64 {
	switch op {
	case ScoreAdd:
		return current + value
	case ScoreSub:
		return current - value
	case ScoreMul:
		return current * value
	default:
		return value
	}
}

var scoreOps = map[lexer.TokenType]ScoreOp{
	lexer.EQUALS:          ScoreSet,
	lexer.PLUS_ASSIGN:     ScoreAdd,
	lexer.MINUS_ASSIGN:    ScoreSub,
	lexer.MULTIPLY_ASSIGN: ScoreMul,
}

// Action is one compiled clinch action. Text is the raw tag value (quotes
// kept), the emit path, or the deferred handler name; Key, Op and Value
// are set for scores.
type Action struct {
	Kind  ActionKind
	Text  string
	Key   string
	Op    ScoreOp
	Value float64
	Pos   lexer.Position
}

func (a Action) String() string {
	switch a.Kind {
	case ActionTag:
		return "tag += " + a.Text
	case ActionEmit:
		return "emit " + a.Text
	case ActionScore:
		return fmt.Sprintf("score %s %s %s", a.Key, a.Op, predicate.FormatValue(a.Value))
	case ActionRunDeferred:
		return "run deferred " + a.Text
	default:
		return "<invalid action>"
	}
}

// Clause is one `when signal.<family>.<name> { ... }` rule. Seq is its
// position among all clauses in source order.
type Clause struct {
	Seq     int
	Signal  SignalID
	Actions []Action
	Pos     lexer.Position
}

// ClinchIndex holds the clauses in declaration order and, per signal, the
// concatenated actions of every clause on that signal.
type ClinchIndex struct {
	Clauses  []Clause
	BySignal map[SignalID][]Action
}

// Actions returns the accumulated actions for a signal.
func (x *ClinchIndex) Actions(id SignalID) []Action {
	return x.BySignal[id]
}

// ActionKeywords lists the words that can start a clinch action.
var ActionKeywords = []string{"tag", "emit", "score", "run"}

func (c *config) compileClinch(block *parser.ClinchBlock, signals *SignalIndex) (*ClinchIndex, error) {
	if block == nil {
		return nil, missingBlock("clinch")
	}
	if signals == nil {
		return nil, lerrors.NewCompile(lerrors.KindReference, lerrors.ErrUnknownSignal,
			"clinch compiled without a signal index")
	}

	index := &ClinchIndex{BySignal: make(map[SignalID][]Action)}
	actionCount := 0

	for seq, def := range block.Clauses {
		id, err := c.resolveSignal(def, signals)
		if err != nil {
			return nil, err
		}

		tokens := def.Body.Tokens()
		if len(tokens) == 0 {
			return nil, c.errorAt(lerrors.KindGrammar, lerrors.ErrEmptyActions, def.Body.Open,
				"clause for %s has no actions", id)
		}

		actions, err := c.compileActions(id, &stream{tokens: tokens, end: def.Body.Close})
		if err != nil {
			return nil, err
		}

		index.Clauses = append(index.Clauses, Clause{
			Seq:     seq,
			Signal:  id,
			Actions: actions,
			Pos:     def.When.Position,
		})
		index.BySignal[id] = append(index.BySignal[id], actions...)
		actionCount += len(actions)
	}

	c.logger.Debug("compiled clinch", "clauses", len(index.Clauses), "actions", actionCount)
	return index, nil
}

func (c *config) resolveSignal(def parser.ClauseDef, signals *SignalIndex) (SignalID, error) {
	family, ok := signals.Family(def.Family.Name)
	if !ok {
		return SignalID{}, c.errorAt(lerrors.KindReference, lerrors.ErrUnknownFamily, def.Family.Token,
			"unknown signal family '%s'", def.Family.Name).
			WithSuggestion(lerrors.Suggest(def.Family.Name, signals.FamilyNames()))
	}

	id := SignalID{Family: family.Name, Name: def.Signal.Name}
	if _, ok := signals.Lookup(id); !ok {
		return SignalID{}, c.errorAt(lerrors.KindReference, lerrors.ErrUnknownSignal, def.Signal.Token,
			"family '%s' has no signal '%s'", family.Name, def.Signal.Name).
			WithSuggestion(lerrors.Suggest(def.Signal.Name, family.SignalNames()))
	}
	return id, nil
}

func (c *config) compileActions(id SignalID, s *stream) ([]Action, error) {
	var actions []Action
	for !s.done() {
		tok := s.peek()

		var (
			action Action
			err    error
		)
		switch {
		case tok.Is("tag"):
			action, err = c.parseTag(s)
		case tok.Is("emit"):
			action, err = c.parseEmit(s)
		case tok.Is("score"):
			action, err = c.parseScore(s)
		case tok.Is("run"):
			action, err = c.parseRunDeferred(s)
		default:
			e := c.errorAt(lerrors.KindGrammar, lerrors.ErrUnknownAction, tok,
				"unknown action %s in clause for %s", describe(tok), id)
			if tok.Type == lexer.IDENTIFIER {
				e.WithSuggestion(lerrors.Suggest(string(tok.Text), ActionKeywords))
			}
			return nil, e
		}
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func (c *config) malformedAction(tok lexer.Token, expected string) error {
	return c.errorAt(lerrors.KindGrammar, lerrors.ErrMalformedAction, tok,
		"expected %s, got %s", expected, describe(tok))
}

// parseTag reads `tag += <value>`. The value is kept exactly as written.
func (c *config) parseTag(s *stream) (Action, error) {
	kw := s.next()
	if !s.at(lexer.PLUS_ASSIGN) {
		return Action{}, c.malformedAction(s.peek(), "'+=' after `tag`")
	}
	s.next()

	switch s.peek().Type {
	case lexer.STRING, lexer.IDENTIFIER, lexer.INTEGER, lexer.FLOAT, lexer.BOOLEAN:
	default:
		return Action{}, c.malformedAction(s.peek(), "tag value after `tag +=`")
	}
	value := s.next()
	return Action{Kind: ActionTag, Text: string(value.Text), Pos: kw.Position}, nil
}

// parseEmit reads `emit <path>` where path is identifiers joined by '.'
// or '::'. Separators are kept as written.
func (c *config) parseEmit(s *stream) (Action, error) {
	kw := s.next()
	if !s.at(lexer.IDENTIFIER) {
		return Action{}, c.malformedAction(s.peek(), "event path after `emit`")
	}

	var path strings.Builder
	path.Write(s.next().Text)
	for s.at(lexer.DOT) || s.at(lexer.DOUBLE_COLON) {
		sep := s.next()
		if !s.at(lexer.IDENTIFIER) {
			return Action{}, c.malformedAction(s.peek(), fmt.Sprintf("identifier after '%s' in event path", sep.Text))
		}
		path.Write(sep.Text)
		path.Write(s.next().Text)
	}
	return Action{Kind: ActionEmit, Text: path.String(), Pos: kw.Position}, nil
}

// parseScore reads `score <key> <op> <number>`.
func (c *config) parseScore(s *stream) (Action, error) {
	kw := s.next()
	if !s.at(lexer.IDENTIFIER) {
		return Action{}, c.malformedAction(s.peek(), "score key after `score`")
	}
	key := s.next()

	op, ok := scoreOps[s.peek().Type]
	if !ok {
		return Action{}, c.malformedAction(s.peek(), fmt.Sprintf("score operator ('=', '+=', '-=' or '*=') after '%s'", key.Text))
	}
	s.next()

	value, err := c.scoreValue(string(key.Text), s)
	if err != nil {
		return Action{}, err
	}
	return Action{Kind: ActionScore, Key: string(key.Text), Op: op, Value: value, Pos: kw.Position}, nil
}

// scoreValue reads an optionally negated integer or float literal.
func (c *config) scoreValue(key string, s *stream) (float64, error) {
	negative := false
	if s.at(lexer.MINUS) {
		s.next()
		negative = true
	}

	tok := s.peek()
	notNumber := func() error {
		return c.errorAt(lerrors.KindGrammar, lerrors.ErrNumericLiteral, tok,
			"score value for '%s' must be a number, got %s", key, describe(tok))
	}
	if tok.Type != lexer.INTEGER && tok.Type != lexer.FLOAT {
		return 0, notNumber()
	}
	s.next()

	value, err := parseNumber(tok)
	if err != nil {
		return 0, notNumber()
	}
	if negative {
		value = -value
	}
	return value, nil
}

func parseNumber(tok lexer.Token) (float64, error) {
	text := string(tok.Text)
	if tok.Type == lexer.INTEGER {
		if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
			v, err := strconv.ParseInt(text[2:], 16, 64)
			return float64(v), err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		return float64(v), err
	}
	return strconv.ParseFloat(text, 64)
}

// parseRunDeferred reads `run deferred <handler>`.
func (c *config) parseRunDeferred(s *stream) (Action, error) {
	kw := s.next()
	if !s.peek().Is("deferred") {
		return Action{}, c.malformedAction(s.peek(), "`deferred` after `run`")
	}
	s.next()

	if !s.at(lexer.IDENTIFIER) {
		return Action{}, c.malformedAction(s.peek(), "handler name after `run deferred`")
	}
	handler := s.next()
	return Action{Kind: ActionRunDeferred, Text: string(handler.Text), Pos: kw.Position}, nil
}
