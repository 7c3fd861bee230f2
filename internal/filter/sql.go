package filter

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Supported SQL dialects, named after gorm's Dialector.Name().
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE wildcards so user input matches literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ToSQL lowers an expression tree to a squirrel predicate. Placeholders are
// "?" so the result can be handed to gorm's Where.
func ToSQL(e Expr, dialect string) (sq.Sqlizer, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	return lower(e, dialect)
}

func lower(e Expr, dialect string) (sq.Sqlizer, error) {
	switch n := e.(type) {
	case And:
		out := make(sq.And, 0, len(n))
		for _, c := range n {
			s, err := lower(c, dialect)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case Or:
		out := make(sq.Or, 0, len(n))
		for _, c := range n {
			s, err := lower(c, dialect)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case Text:
		return lowerText(n), nil
	case Emptiness:
		return lowerEmptiness(n), nil
	case Compare:
		return lowerCompare(n, dialect), nil
	case DateRange:
		return lowerDate(n), nil
	default:
		return nil, fmt.Errorf("unsupported filter node %T", e)
	}
}

func lowerText(t Text) sq.Sqlizer {
	v := EscapeLike(strings.ToLower(t.Value))
	var pattern string
	switch t.Mode {
	case TextContains, TextNotContains:
		pattern = "%" + v + "%"
	case TextStartsWith:
		pattern = v + "%"
	case TextEndsWith:
		pattern = "%" + v
	default:
		pattern = v
	}
	match := fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, t.Column)
	if t.Negated() {
		return sq.Expr(fmt.Sprintf("(%s IS NULL OR NOT (%s))", t.Column, match), pattern)
	}
	return sq.Expr(match, pattern)
}

func lowerEmptiness(e Emptiness) sq.Sqlizer {
	if e.Empty {
		return sq.Expr(fmt.Sprintf("(%s IS NULL OR TRIM(%s) = '')", e.Column, e.Column))
	}
	return sq.Expr(fmt.Sprintf("(%s IS NOT NULL AND TRIM(%s) <> '')", e.Column, e.Column))
}

// lowerCompare casts only values that look numeric; others never match a
// numeric comparison. Non-numeric input compares as text.
func lowerCompare(c Compare, dialect string) sq.Sqlizer {
	if !c.Numeric {
		return sq.Expr(fmt.Sprintf("%s %s ?", c.Column, c.Op), c.Value)
	}
	var cast string
	switch dialect {
	case DialectSQLite:
		cast = fmt.Sprintf(
			"(CASE WHEN TRIM(%[1]s) <> '' AND TRIM(%[1]s) NOT GLOB '*[^0-9.-]*' THEN CAST(TRIM(%[1]s) AS REAL) END)",
			c.Column)
	default:
		cast = fmt.Sprintf(
			`(CASE WHEN TRIM(%[1]s) ~ '^-{0,1}[0-9]+(\.[0-9]+){0,1}$' THEN CAST(TRIM(%[1]s) AS NUMERIC) END)`,
			c.Column)
	}
	return sq.Expr(fmt.Sprintf("%s %s ?", cast, c.Op), c.Number)
}

func lowerDate(d DateRange) sq.Sqlizer {
	parts := sq.And{sq.Expr(fmt.Sprintf("TRIM(%s) <> ''", d.Column))}
	if d.From.Date != "" {
		op := ">"
		if d.From.Inclusive {
			op = ">="
		}
		parts = append(parts, sq.Expr(fmt.Sprintf("%s %s ?", d.Column, op), d.From.Date))
	}
	if d.To.Date != "" {
		op := "<"
		if d.To.Inclusive {
			op = "<="
		}
		parts = append(parts, sq.Expr(fmt.Sprintf("%s %s ?", d.Column, op), d.To.Date))
	}
	return parts
}
