// Package filter compiles client filter conditions into a typed expression
// tree and lowers that tree to SQL.
package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a node of a compiled filter.
type Expr interface {
	String() string
	expr()
}

// TextMode selects a case-insensitive text predicate.
type TextMode int

const (
	TextEquals TextMode = iota
	TextNotEquals
	TextContains
	TextNotContains
	TextStartsWith
	TextEndsWith
)

// Text matches a field against a literal, ignoring case.
type Text struct {
	Field  string
	Column string
	Mode   TextMode
	Value  string
}

// Negated reports whether the predicate excludes matches.
func (t Text) Negated() bool {
	return t.Mode == TextNotEquals || t.Mode == TextNotContains
}

func (t Text) String() string {
	ops := map[TextMode]string{
		TextEquals:      "=",
		TextNotEquals:   "!=",
		TextContains:    "CONTAINS",
		TextNotContains: "NOT CONTAINS",
		TextStartsWith:  "STARTS WITH",
		TextEndsWith:    "ENDS WITH",
	}
	return fmt.Sprintf("%s %s %s", t.Field, ops[t.Mode], strconv.Quote(t.Value))
}

// Emptiness matches null, empty and whitespace-only values, or the complement.
type Emptiness struct {
	Field  string
	Column string
	Empty  bool
}

func (e Emptiness) String() string {
	if e.Empty {
		return e.Field + " IS EMPTY"
	}
	return e.Field + " IS NOT EMPTY"
}

// CompareOp is an ordering operator.
type CompareOp string

const (
	OpGT  CompareOp = ">"
	OpLT  CompareOp = "<"
	OpGTE CompareOp = ">="
	OpLTE CompareOp = "<="
)

// Compare orders a field against a value. Numeric is set when the value
// parsed as a number; otherwise the comparison is lexicographic.
type Compare struct {
	Field   string
	Column  string
	Op      CompareOp
	Value   string
	Numeric bool
	Number  float64
}

func (c Compare) String() string {
	if c.Numeric {
		return fmt.Sprintf("%s %s %s", c.Field, c.Op, strconv.FormatFloat(c.Number, 'f', -1, 64))
	}
	return fmt.Sprintf("%s %s %s", c.Field, c.Op, strconv.Quote(c.Value))
}

// Bound is one end of a date range. An empty Date means unbounded.
type Bound struct {
	Date      string
	Inclusive bool
}

// DateRange matches YYYY-MM-DD string values between two bounds.
type DateRange struct {
	Field  string
	Column string
	From   Bound
	To     Bound
}

func (d DateRange) String() string {
	switch {
	case d.From.Date != "" && d.To.Date != "":
		open, closing := "(", ")"
		if d.From.Inclusive {
			open = "["
		}
		if d.To.Inclusive {
			closing = "]"
		}
		return fmt.Sprintf("%s IN %s%s, %s%s", d.Field, open, strconv.Quote(d.From.Date), strconv.Quote(d.To.Date), closing)
	case d.From.Date != "":
		op := ">"
		if d.From.Inclusive {
			op = ">="
		}
		return fmt.Sprintf("%s %s %s", d.Field, op, strconv.Quote(d.From.Date))
	default:
		op := "<"
		if d.To.Inclusive {
			op = "<="
		}
		return fmt.Sprintf("%s %s %s", d.Field, op, strconv.Quote(d.To.Date))
	}
}

// And matches when every child matches.
type And []Expr

// Or matches when any child matches.
type Or []Expr

func (a And) String() string { return join(a, " AND ") }
func (o Or) String() string  { return join(o, " OR ") }

func join(children []Expr, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		switch c.(type) {
		case And, Or:
			parts[i] = "(" + c.String() + ")"
		default:
			parts[i] = c.String()
		}
	}
	return strings.Join(parts, sep)
}

func (Text) expr()      {}
func (Emptiness) expr() {}
func (Compare) expr()   {}
func (DateRange) expr() {}
func (And) expr()       {}
func (Or) expr()        {}
