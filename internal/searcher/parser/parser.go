// Package parser turns query strings into query trees.
//
// Supported syntax: bare words, AND / &&, OR / ||, NOT / !, prefix + and -,
// parentheses, field:word and field:( ... ), and backslash escapes. NOT
// binds tighter than AND, which binds tighter than OR; juxtaposed clauses
// combine with the default operator at that operator's precedence.
package parser

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

type Options struct {
	// DefaultOperator combines juxtaposed clauses. Only query.Or and
	// query.And are meaningful.
	DefaultOperator query.Op
	// Fields is the set of searchable fields. A field: prefix naming a
	// field outside it is rejected. Parse falls back to it when called
	// without target fields.
	Fields []string
}

// Parser analyzes query words with the same schema the index was built
// with, so query terms match indexed terms. It is safe for concurrent use.
type Parser struct {
	schema *tokenizer.Schema
	opts   Options
}

func New(schema *tokenizer.Schema, opts Options) *Parser {
	if schema == nil {
		schema = tokenizer.CranfieldSchema()
	}
	if opts.DefaultOperator != query.And {
		opts.DefaultOperator = query.Or
	}
	return &Parser{schema: schema, opts: opts}
}

// Parse builds the query tree for raw. Words without a field prefix
// target every field in fields. Input that analyzes to no terms yields
// query.Empty.
func (p *Parser) Parse(raw string, fields []string) (query.Node, error) {
	if len(fields) == 0 {
		fields = p.opts.Fields
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields to search", apperrors.ErrInvalidInput)
	}
	for _, f := range fields {
		if !p.known(f) {
			return nil, invalid(raw, 0, fmt.Sprintf("unknown field %q", f))
		}
	}
	if !utf8.ValidString(raw) {
		return nil, &apperrors.DecodingError{Field: "query", Offset: invalidOffset(raw)}
	}
	toks, err := lex(raw)
	if err != nil {
		return nil, err
	}
	if len(toks) == 1 {
		return query.Empty{}, nil
	}
	st := &state{p: p, raw: raw, toks: toks}
	node, err := st.parseOr(fields)
	if err != nil {
		return nil, err
	}
	switch t := st.peek(); t.kind {
	case tokEOF:
	case tokRParen:
		return nil, invalid(raw, t.pos, "unbalanced closing parenthesis")
	default:
		return nil, invalid(raw, t.pos, "unexpected token")
	}
	if node == nil {
		return query.Empty{}, nil
	}
	return node, nil
}

func (p *Parser) known(field string) bool {
	if len(p.opts.Fields) == 0 {
		return true
	}
	return slices.Contains(p.opts.Fields, field)
}

type state struct {
	p    *Parser
	raw  string
	toks []token
	i    int
}

func (s *state) peek() token { return s.toks[s.i] }

func (s *state) next() token {
	t := s.toks[s.i]
	if t.kind != tokEOF {
		s.i++
	}
	return t
}

// startsClause reports whether t can begin a clause.
func startsClause(t token) bool {
	switch t.kind {
	case tokWord, tokField, tokNot, tokPlus, tokMinus, tokLParen:
		return true
	}
	return false
}

// clause is a parsed operand. A nil node means the operand analyzed to
// nothing (for example a stop word) and is dropped.
type clause struct {
	node     query.Node
	required bool
	negated  bool
}

func (s *state) parseOr(fields []string) (query.Node, error) {
	var clauses []clause
	c, err := s.parseAnd(fields)
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, c)
	for {
		t := s.peek()
		if t.kind == tokOr {
			s.next()
			if !startsClause(s.peek()) {
				return nil, invalid(s.raw, t.pos, "OR without a right operand")
			}
		} else if !(s.p.opts.DefaultOperator == query.Or && startsClause(t)) {
			break
		}
		c, err := s.parseAnd(fields)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return combine(query.Or, clauses).node, nil
}

func (s *state) parseAnd(fields []string) (clause, error) {
	var clauses []clause
	c, err := s.parseUnary(fields)
	if err != nil {
		return clause{}, err
	}
	clauses = append(clauses, c)
	for {
		t := s.peek()
		if t.kind == tokAnd {
			s.next()
			if !startsClause(s.peek()) {
				return clause{}, invalid(s.raw, t.pos, "AND without a right operand")
			}
		} else if !(s.p.opts.DefaultOperator == query.And && startsClause(t)) {
			break
		}
		c, err := s.parseUnary(fields)
		if err != nil {
			return clause{}, err
		}
		clauses = append(clauses, c)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return combine(query.And, clauses), nil
}

func (s *state) parseUnary(fields []string) (clause, error) {
	t := s.peek()
	switch t.kind {
	case tokNot, tokMinus:
		s.next()
		if !startsClause(s.peek()) || s.peek().kind == tokPlus {
			return clause{}, invalid(s.raw, t.pos, "negation without an operand")
		}
		c, err := s.parseUnary(fields)
		if err != nil {
			return clause{}, err
		}
		c.negated = !c.negated
		c.required = false
		return c, nil
	case tokPlus:
		s.next()
		if !startsClause(s.peek()) || s.peek().kind == tokPlus || s.peek().kind == tokMinus {
			return clause{}, invalid(s.raw, t.pos, "+ without an operand")
		}
		c, err := s.parseUnary(fields)
		if err != nil {
			return clause{}, err
		}
		if !c.negated {
			c.required = true
		}
		return c, nil
	case tokAnd, tokOr:
		return clause{}, invalid(s.raw, t.pos, "operator without a left operand")
	case tokRParen:
		return clause{}, invalid(s.raw, t.pos, "unbalanced closing parenthesis")
	case tokEOF:
		return clause{}, invalid(s.raw, t.pos, "unexpected end of query")
	}
	node, err := s.parsePrimary(fields)
	if err != nil {
		return clause{}, err
	}
	return clause{node: node}, nil
}

func (s *state) parsePrimary(fields []string) (query.Node, error) {
	t := s.next()
	switch t.kind {
	case tokLParen:
		if s.peek().kind == tokRParen {
			return nil, invalid(s.raw, t.pos, "empty group")
		}
		node, err := s.parseOr(fields)
		if err != nil {
			return nil, err
		}
		if s.peek().kind != tokRParen {
			return nil, invalid(s.raw, t.pos, "unbalanced opening parenthesis")
		}
		s.next()
		return node, nil
	case tokField:
		if !s.p.known(t.text) {
			return nil, invalid(s.raw, t.pos, fmt.Sprintf("unknown field %q", t.text))
		}
		scoped := []string{t.text}
		switch s.peek().kind {
		case tokLParen:
			return s.parsePrimary(scoped)
		case tokWord:
			return s.parsePrimary(scoped)
		default:
			return nil, invalid(s.raw, t.pos, fmt.Sprintf("field %q without a term", t.text))
		}
	case tokWord:
		node, err := s.p.analyzeWord(t.text, fields)
		if err != nil {
			return nil, fmt.Errorf("analyzing query word at offset %d: %w", t.pos, err)
		}
		return node, nil
	}
	return nil, invalid(s.raw, t.pos, "unexpected token")
}

// combine folds clauses under op. Required clauses in a disjunction turn
// it into a conjunction of the required clauses, with the remaining
// optional clauses kept under a Should node so they still score. Negated
// clauses become exclusions. The result is a plain clause; when every
// clause is negated its node is a bare Not, which matches nothing on its
// own.
func combine(op query.Op, clauses []clause) clause {
	var positives, required, optional, excluded []query.Node
	for _, c := range clauses {
		if c.node == nil {
			continue
		}
		switch {
		case c.negated:
			excluded = append(excluded, c.node)
			continue
		case c.required:
			required = append(required, c.node)
		default:
			optional = append(optional, c.node)
		}
		positives = append(positives, c.node)
	}
	core := positives
	if op == query.Or && len(required) > 0 {
		core, op = required, query.And
		if len(optional) > 0 {
			core = append(slices.Clone(required), query.Boolean{Op: query.Should, Children: optional})
		}
	}

	var node query.Node
	switch len(core) {
	case 0:
	case 1:
		node = core[0]
	default:
		node = query.Boolean{Op: op, Children: core}
	}

	if len(excluded) == 0 {
		return clause{node: node}
	}
	not := query.Boolean{Op: query.Not, Children: excluded}
	if node == nil {
		return clause{node: not}
	}
	return clause{node: query.Boolean{Op: query.And, Children: []query.Node{node, not}}}
}

// analyzeWord analyzes text for every target field. Fields whose analyzers
// agree share one Term node per produced term; the alternatives are OR-ed.
// It returns nil when no field produces a term.
func (p *Parser) analyzeWord(text string, fields []string) (query.Node, error) {
	type group struct {
		terms  []string
		fields []string
	}
	var groups []*group
	for _, f := range fields {
		toks, err := p.schema.Analyzer(f).Analyze(f, text)
		if err != nil {
			return nil, err
		}
		if len(toks) == 0 {
			continue
		}
		terms := make([]string, len(toks))
		for i, tok := range toks {
			terms[i] = tok.Term
		}
		var match *group
		for _, g := range groups {
			if slices.Equal(g.terms, terms) {
				match = g
				break
			}
		}
		if match == nil {
			match = &group{terms: terms}
			groups = append(groups, match)
		}
		match.fields = append(match.fields, f)
	}

	var leaves []query.Node
	for _, g := range groups {
		seen := make(map[string]bool, len(g.terms))
		for _, term := range g.terms {
			if seen[term] {
				continue
			}
			seen[term] = true
			leaves = append(leaves, query.Term{Term: term, Fields: g.fields})
		}
	}
	switch len(leaves) {
	case 0:
		return nil, nil
	case 1:
		return leaves[0], nil
	default:
		return query.Boolean{Op: query.Or, Children: leaves}, nil
	}
}

func invalidOffset(s string) int {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(s)
}
