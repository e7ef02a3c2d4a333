package ledger

import (
	"fmt"
	"strings"
)

// Column names of a persisted ledger row
const (
	ColumnDateSent      = "date_sent"
	ColumnSenderName    = "sender_name"
	ColumnReceiverName  = "receiver_name"
	ColumnAccountNumber = "account_number"
	ColumnAmount        = "amount"
	ColumnTimestamp     = "timestamp"
)

var knownColumns = []string{
	ColumnDateSent,
	ColumnSenderName,
	ColumnReceiverName,
	ColumnAccountNumber,
	ColumnAmount,
	ColumnTimestamp,
}

// Layout is the ordered column list shared by the query planner and every
// store adapter. Stores write their header row and physical column order
// from it; the planner offers exactly these columns to the model.
type Layout struct {
	columns []string
}

// DefaultLayout returns the canonical column order:
// date_sent, sender_name, receiver_name, account_number, amount, timestamp.
func DefaultLayout() Layout {
	cols := make([]string, len(knownColumns))
	copy(cols, knownColumns)
	return Layout{columns: cols}
}

// NewLayout builds a Layout from an explicit column order. Every known
// column must appear exactly once; names are matched case-insensitively
// and stored in canonical lowercase form.
func NewLayout(columns ...string) (Layout, error) {
	if len(columns) != len(knownColumns) {
		return Layout{}, fmt.Errorf("layout needs %d columns, got %d", len(knownColumns), len(columns))
	}

	seen := make(map[string]bool, len(columns))
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		name, ok := canonicalColumn(c)
		if !ok {
			return Layout{}, fmt.Errorf("unknown column %q", c)
		}
		if seen[name] {
			return Layout{}, fmt.Errorf("duplicate column %q", c)
		}
		seen[name] = true
		cols = append(cols, name)
	}

	return Layout{columns: cols}, nil
}

// Columns returns a copy of the ordered column names.
func (l Layout) Columns() []string {
	cols := make([]string, len(l.columns))
	copy(cols, l.columns)
	return cols
}

// Index returns the position of a column, matched case-insensitively.
func (l Layout) Index(column string) (int, bool) {
	want := strings.ToLower(strings.TrimSpace(column))
	for i, c := range l.columns {
		if c == want {
			return i, true
		}
	}
	return -1, false
}

// Has reports whether column names one of the layout's columns.
func (l Layout) Has(column string) bool {
	_, ok := l.Index(column)
	return ok
}

// Row renders a result in layout order.
func (l Layout) Row(r SearchResult) []string {
	row := make([]string, len(l.columns))
	for i, c := range l.columns {
		row[i] = r.Field(c)
	}
	return row
}

// ParseRow reads a row written in layout order. Short rows are padded
// with empty cells, as spreadsheet backends drop trailing blanks.
func (l Layout) ParseRow(row []string) SearchResult {
	var r SearchResult
	for i, c := range l.columns {
		var v string
		if i < len(row) {
			v = row[i]
		}
		r.setField(c, v)
	}
	return r
}

// String lists the columns comma separated, for prompts and logs.
func (l Layout) String() string {
	return strings.Join(l.columns, ", ")
}

func canonicalColumn(name string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, c := range knownColumns {
		if c == want {
			return c, true
		}
	}
	return "", false
}
