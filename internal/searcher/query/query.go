// Package query defines the immutable query tree evaluated by the ranker.
package query

import (
	"strings"
)

// Node is a query tree node: Term, Boolean or Empty.
type Node interface {
	String() string
	isNode()
}

// Term matches documents containing an analyzed term in any of Fields.
type Term struct {
	Term   string
	Fields []string
}

func (Term) isNode() {}

func (t Term) String() string {
	if len(t.Fields) == 1 {
		return t.Fields[0] + ":" + t.Term
	}
	return "{" + strings.Join(t.Fields, ",") + "}:" + t.Term
}

// Op is a boolean operator.
type Op int

const (
	Or Op = iota
	And
	Not
	// Should marks score-only children: they never widen or narrow the
	// match set of their parent, but add to the score of documents the
	// parent matches.
	Should
)

func (o Op) String() string {
	switch o {
	case And:
		return "AND"
	case Not:
		return "NOT"
	case Should:
		return "SHOULD"
	default:
		return "OR"
	}
}

// ParseOp maps "AND" or "OR" (any case) to an operator.
func ParseOp(s string) (Op, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OR", "":
		return Or, true
	case "AND":
		return And, true
	default:
		return Or, false
	}
}

// Boolean combines children. And intersects the match sets of its
// non-Not children and removes the matches of its Not children; Or unions
// them. Not and Should nodes match nothing on their own; under an And or
// Or a Not child excludes and a Should child only scores.
type Boolean struct {
	Op       Op
	Children []Node
}

func (Boolean) isNode() {}

func (b Boolean) String() string {
	parts := make([]string, len(b.Children))
	for i, c := range b.Children {
		parts[i] = c.String()
	}
	if b.Op == Not || b.Op == Should {
		return b.Op.String() + "(" + strings.Join(parts, " ") + ")"
	}
	return "(" + strings.Join(parts, " "+b.Op.String()+" ") + ")"
}

// Empty matches no document.
type Empty struct{}

func (Empty) isNode() {}

func (Empty) String() string { return "<empty>" }

// Terms lists every Term leaf that is not below a Not, in tree order.
func Terms(n Node) []Term {
	var out []Term
	walkPositive(n, func(t Term) { out = append(out, t) })
	return out
}

func walkPositive(n Node, fn func(Term)) {
	switch v := n.(type) {
	case Term:
		fn(v)
	case Boolean:
		if v.Op == Not {
			return
		}
		for _, c := range v.Children {
			walkPositive(c, fn)
		}
	}
}
