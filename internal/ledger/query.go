package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Query is a validated search for one value in one column.
type Query struct {
	ColumnToSearch string `json:"column_to_search"`
	SearchValue    string `json:"search_value"`
}

// RawQuery holds query fields as a model produced them.
type RawQuery struct {
	ColumnToSearch string `json:"column_to_search"`
	SearchValue    string `json:"search_value"`
}

// ValidateQuery checks the column against the layout and returns the query
// with the column in canonical lowercase form.
func (l Layout) ValidateQuery(raw RawQuery) (Query, error) {
	idx, ok := l.Index(raw.ColumnToSearch)
	if !ok {
		return Query{}, invalid("column_to_search", raw.ColumnToSearch, "not one of "+l.String())
	}

	value := strings.TrimSpace(raw.SearchValue)
	if value == "" {
		return Query{}, invalid("search_value", "", "must not be empty")
	}

	return Query{
		ColumnToSearch: l.columns[idx],
		SearchValue:    value,
	}, nil
}

// Matches reports whether r satisfies q. Text columns match on a
// case-insensitive substring; the amount column compares numerically when
// the search value is a number.
func (q Query) Matches(r SearchResult) bool {
	cell := r.Field(q.ColumnToSearch)

	if want, ok := q.AmountValue(); ok {
		got, err := RawAmount(cell).Decimal()
		return err == nil && cell != "" && got.Equal(want)
	}

	return strings.Contains(strings.ToLower(cell), strings.ToLower(strings.TrimSpace(q.SearchValue)))
}

// AmountValue returns the numeric search value for amount queries.
func (q Query) AmountValue() (decimal.Decimal, bool) {
	if q.ColumnToSearch != ColumnAmount {
		return decimal.Zero, false
	}
	d, err := RawAmount(q.SearchValue).Decimal()
	if err != nil || strings.TrimSpace(q.SearchValue) == "" {
		return decimal.Zero, false
	}
	return d, true
}
