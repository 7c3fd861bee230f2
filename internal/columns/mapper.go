// Package columns maps spreadsheet header spellings onto canonical client fields.
package columns

import (
	"slices"
	"strings"
)

// KeyField is the natural key every imported row must carry.
const KeyField = "tradingCode"

// KeyHeader is the required header that supplies KeyField.
const KeyHeader = "Trading Code"

const bom = "\ufeff"

// Spelling pairs a header as it appears in real exports with its canonical field.
type Spelling struct {
	Header string
	Field  string
}

// DefaultSpellings is the header table observed in broker exports. The first
// spelling listed for a field is its primary header.
var DefaultSpellings = []Spelling{
	{"Trading Code", "tradingCode"},
	{"Owner", "owner"},
	{"Name", "name"},
	{"Mobile No", "mobileNo"},
	{"Mobile", "mobileNo"},
	{"Email ID", "emailId"},
	{"Email", "emailId"},
	{"DP Client ID", "dpClientId"},
	{"DP Client id", "dpClientId"},
	{"Branch Code", "branchCode"},
	{"RMTL Code", "rmtlCode"},
	{"Investor Type", "investorType"},
	{"A/c Open Date", "accountOpenDate"},
	{"Account Open Date", "accountOpenDate"},
	{"Account Status", "accountStatus"},
	{"First Trade Date", "firstTradeDate"},
	{"First Trade", "firstTradeDate"},
	{"Holding Value", "holdingValue"},
	{"Ledger Balance", "ledgerBalance"},
	{"Last Trade Date", "lastTradeDate"},
	{"YTD Brok.", "ytdBrok"},
	{"YTD Brok", "ytdBrok"},
	{"Active Exchange", "activeExchange"},
	{"Active Exchang", "activeExchange"},
	{"POA/DDPI", "poaDdpi"},
	{"Nominee", "nominee"},
	{"Annual Income", "annualIncome"},
	{"Occupation", "occupation"},
	{"City", "city"},
	{"State", "state"},
	{"Last Login Date", "lastLoginDate"},
	{"Calling Status", "callingStatus"},
	{"Next Follow up Date", "nextFollowUpDate"},
	{"Remarks", "remarks"},
}

// Mapper resolves headers to canonical fields. It is immutable once built and
// safe for concurrent use.
type Mapper struct {
	byHeader map[string]string
	primary  map[string]string
	fields   []string
}

// NewMapper builds a mapper from a spelling table.
func NewMapper(spellings []Spelling) *Mapper {
	m := &Mapper{
		byHeader: make(map[string]string, len(spellings)),
		primary:  make(map[string]string),
	}
	for _, s := range spellings {
		m.byHeader[fold(s.Header)] = s.Field
		if _, seen := m.primary[s.Field]; !seen {
			m.primary[s.Field] = Normalize(s.Header)
			m.fields = append(m.fields, s.Field)
		}
	}
	return m
}

var defaultMapper = NewMapper(DefaultSpellings)

// DefaultMapper returns the shared mapper built from DefaultSpellings.
func DefaultMapper() *Mapper {
	return defaultMapper
}

// Normalize strips a leading byte-order mark and surrounding whitespace.
func Normalize(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, bom))
}

func fold(header string) string {
	return strings.ToLower(Normalize(header))
}

// Canonical returns the field a header maps to.
func (m *Mapper) Canonical(header string) (string, bool) {
	f, ok := m.byHeader[fold(header)]
	return f, ok
}

// Fields returns the canonical fields known to the mapper in table order.
func (m *Mapper) Fields() []string {
	out := make([]string, len(m.fields))
	copy(out, m.fields)
	return out
}

// PrimaryHeader returns the preferred header spelling for a field.
func (m *Mapper) PrimaryHeader(field string) (string, bool) {
	h, ok := m.primary[field]
	return h, ok
}

// Layout is the result of analysing a header row.
type Layout struct {
	Headers  []string // normalized header per column
	Detected []string
	Missing  []string
	Extra    []string
	HasKey   bool

	// TotalExpected is the number of canonical fields the mapper knows.
	TotalExpected int

	fieldAt []string
	present map[string]bool
}

// Analyze classifies a header row. A missing key header is reported through
// HasKey and is the only condition callers should treat as fatal.
func (m *Mapper) Analyze(headers []string) *Layout {
	l := &Layout{
		Headers:       make([]string, len(headers)),
		Detected:      []string{},
		Missing:       []string{},
		Extra:         []string{},
		TotalExpected: len(m.fields),
		fieldAt:       make([]string, len(headers)),
		present:       make(map[string]bool),
	}
	for i, h := range headers {
		norm := Normalize(h)
		l.Headers[i] = norm
		if norm == "" {
			continue
		}
		field, ok := m.Canonical(norm)
		if !ok {
			l.Extra = append(l.Extra, norm)
			continue
		}
		l.Detected = append(l.Detected, norm)
		l.fieldAt[i] = field
		l.present[field] = true
	}
	for _, f := range m.fields {
		if !l.present[f] {
			l.Missing = append(l.Missing, m.primary[f])
		}
	}
	l.HasKey = l.present[KeyField]
	return l
}

// PresentFields returns the canonical fields the sheet carries.
func (l *Layout) PresentFields() []string {
	out := make([]string, 0, len(l.present))
	for _, f := range l.fieldAt {
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// Row is one data row projected onto canonical fields.
type Row struct {
	// Values holds non-empty trimmed values only, so struct defaults apply.
	Values map[string]string
	// Cells holds every present field, blanks included.
	Cells map[string]string
	// Raw keeps the original cells for duplicate reports.
	Raw []string
}

// Key returns the row's natural key.
func (r Row) Key() string {
	return r.Values[KeyField]
}

// Blank reports whether every cell of the row is empty.
func (r Row) Blank() bool {
	for _, c := range r.Raw {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// MapRow projects a record onto the layout. When two headers map to the same
// field the later non-empty value wins.
func (l *Layout) MapRow(record []string) Row {
	row := Row{
		Values: make(map[string]string),
		Cells:  make(map[string]string),
		Raw:    record,
	}
	for i, cell := range record {
		if i >= len(l.fieldAt) || l.fieldAt[i] == "" {
			continue
		}
		field := l.fieldAt[i]
		v := strings.TrimSpace(cell)
		if v != "" {
			row.Values[field] = v
			row.Cells[field] = v
			continue
		}
		if _, ok := row.Cells[field]; !ok {
			row.Cells[field] = ""
		}
	}
	return row
}
