package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sjperalta/crm-api/internal/models"
)

// ErrInvalidCondition is returned for conditions that cannot be compiled.
var ErrInvalidCondition = errors.New("invalid filter condition")

const dateLayout = "2006-01-02"

type window struct {
	years, months, days int
}

// Relative date operators. Within windows run forward from today, past
// windows run backward to today; both ends are inclusive.
var (
	withinWindows = map[string]window{
		"dateWithin1Week":   {days: 7},
		"dateWithin2Weeks":  {days: 14},
		"dateWithin1Month":  {months: 1},
		"dateWithin2Months": {months: 2},
		"dateWithin3Months": {months: 3},
		"dateWithin6Months": {months: 6},
		"dateWithin1Year":   {years: 1},
	}
	pastWindows = map[string]window{
		"datePast1Week":   {days: 7},
		"datePast2Weeks":  {days: 14},
		"datePast1Month":  {months: 1},
		"datePast2Months": {months: 2},
		"datePast3Months": {months: 3},
		"datePast6Months": {months: 6},
		"datePast1Year":   {years: 1},
	}
	textModes = map[string]TextMode{
		"equals":      TextEquals,
		"notEquals":   TextNotEquals,
		"contains":    TextContains,
		"notContains": TextNotContains,
		"startsWith":  TextStartsWith,
		"endsWith":    TextEndsWith,
	}
	compareOps = map[string]CompareOp{
		"greaterThan":        OpGT,
		"lessThan":           OpLT,
		"greaterThanOrEqual": OpGTE,
		"lessThanOrEqual":    OpLTE,
	}
)

// Compile turns an ordered condition list into an expression tree.
//
// Conditions are grouped positionally: consecutive conditions sharing a
// logical operator form one group joined by that operator, and a change of
// operator closes the group. A single group is returned as-is; several groups
// are joined with AND. An empty list compiles to nil.
func Compile(conds []models.FilterCondition, now time.Time) (Expr, error) {
	if len(conds) == 0 {
		return nil, nil
	}

	type group struct {
		op    string
		preds []Expr
	}
	var groups []group
	var current group

	for i, cond := range conds {
		pred, err := compileCondition(cond, now)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i+1, err)
		}
		op, err := logicalOperator(cond.LogicalOperator)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i+1, err)
		}
		switch {
		case i == 0:
			current = group{op: op, preds: []Expr{pred}}
		case op == current.op:
			current.preds = append(current.preds, pred)
		default:
			groups = append(groups, current)
			current = group{op: op, preds: []Expr{pred}}
		}
	}
	groups = append(groups, current)

	junction := func(g group) Expr {
		if g.op == models.LogicalOr {
			return Or(g.preds)
		}
		return And(g.preds)
	}

	if len(groups) == 1 {
		return junction(groups[0]), nil
	}
	out := make(And, len(groups))
	for i, g := range groups {
		out[i] = junction(g)
	}
	return out, nil
}

func logicalOperator(op string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(op)) {
	case "", models.LogicalAnd:
		return models.LogicalAnd, nil
	case models.LogicalOr:
		return models.LogicalOr, nil
	default:
		return "", fmt.Errorf("%w: unknown logical operator %q", ErrInvalidCondition, op)
	}
}

func compileCondition(cond models.FilterCondition, now time.Time) (Expr, error) {
	field, ok := models.LookupField(cond.Field)
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q", ErrInvalidCondition, cond.Field)
	}
	key, col := field.Key, field.Column

	if mode, ok := textModes[cond.Operator]; ok {
		return Text{Field: key, Column: col, Mode: mode, Value: cond.Value}, nil
	}
	if op, ok := compareOps[cond.Operator]; ok {
		c := Compare{Field: key, Column: col, Op: op, Value: strings.TrimSpace(cond.Value)}
		if n, err := strconv.ParseFloat(c.Value, 64); err == nil {
			c.Numeric = true
			c.Number = n
		}
		return c, nil
	}

	switch cond.Operator {
	case "isEmpty":
		return Emptiness{Field: key, Column: col, Empty: true}, nil
	case "isNotEmpty":
		return Emptiness{Field: key, Column: col, Empty: false}, nil
	}

	if strings.HasPrefix(cond.Operator, "date") {
		return compileDate(key, col, cond, now)
	}
	return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, cond.Operator)
}

func compileDate(key, col string, cond models.FilterCondition, now time.Time) (Expr, error) {
	today := now.UTC()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	r := DateRange{Field: key, Column: col}

	if w, ok := withinWindows[cond.Operator]; ok {
		r.From = Bound{Date: today.Format(dateLayout), Inclusive: true}
		r.To = Bound{Date: today.AddDate(w.years, w.months, w.days).Format(dateLayout), Inclusive: true}
		return r, nil
	}
	if w, ok := pastWindows[cond.Operator]; ok {
		r.From = Bound{Date: today.AddDate(-w.years, -w.months, -w.days).Format(dateLayout), Inclusive: true}
		r.To = Bound{Date: today.Format(dateLayout), Inclusive: true}
		return r, nil
	}

	switch cond.Operator {
	case "dateEquals":
		day, err := parseDate(cond.Value)
		if err != nil {
			return nil, err
		}
		r.From = Bound{Date: day.Format(dateLayout), Inclusive: true}
		r.To = Bound{Date: day.AddDate(0, 0, 1).Format(dateLayout)}
	case "dateBefore":
		day, err := parseDate(cond.Value)
		if err != nil {
			return nil, err
		}
		r.To = Bound{Date: day.Format(dateLayout)}
	case "dateAfter":
		day, err := parseDate(cond.Value)
		if err != nil {
			return nil, err
		}
		r.From = Bound{Date: day.Format(dateLayout)}
	case "dateCustomRange":
		parts := strings.Split(cond.Value, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: dateCustomRange expects \"start,end\", got %q", ErrInvalidCondition, cond.Value)
		}
		start, err := parseDate(parts[0])
		if err != nil {
			return nil, err
		}
		end, err := parseDate(parts[1])
		if err != nil {
			return nil, err
		}
		r.From = Bound{Date: start.Format(dateLayout), Inclusive: true}
		r.To = Bound{Date: end.Format(dateLayout), Inclusive: true}
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, cond.Operator)
	}
	return r, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp and keeps the day.
func parseDate(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidCondition, value)
}
