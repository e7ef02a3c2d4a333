// Package sheets stores the ledger in a Google Sheets worksheet: one header
// row followed by one row per record.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

// Config selects the worksheet the store reads and writes.
type Config struct {
	SpreadsheetID string
	// Sheet is the worksheet (tab) name. Defaults to "Sheet1".
	Sheet  string
	Layout ledger.Layout
	// Now stamps appended rows. Defaults to time.Now.
	Now func() time.Time
}

// Store implements the ledger store on a spreadsheet.
type Store struct {
	values *sheets.SpreadsheetsValuesService
	id     string
	sheet  string
	layout ledger.Layout
	now    func() time.Time
}

// New connects to the spreadsheet and writes the header row if the sheet is
// empty. A sheet whose header differs from the layout is rejected.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if cfg.Sheet == "" {
		cfg.Sheet = "Sheet1"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}

	s := &Store{
		values: srv.Spreadsheets.Values,
		id:     cfg.SpreadsheetID,
		sheet:  cfg.Sheet,
		layout: cfg.Layout,
		now:    cfg.Now,
	}
	if err := s.ensureHeader(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureHeader(ctx context.Context) error {
	headerRange := s.a1(1, 1)
	resp, err := s.values.Get(s.id, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading header row: %w", err)
	}

	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		slog.Info("Writing ledger header", "spreadsheet", s.id, "sheet", s.sheet)
		header := &sheets.ValueRange{Values: [][]interface{}{toCells(s.layout.Columns())}}
		if _, err := s.values.Update(s.id, headerRange, header).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("writing header row: %w", err)
		}
		return nil
	}

	got := toStrings(resp.Values[0])
	want := s.layout.Columns()
	if len(got) != len(want) {
		return fmt.Errorf("sheet header %v does not match layout %v", got, want)
	}
	for i := range want {
		if !strings.EqualFold(strings.TrimSpace(got[i]), want[i]) {
			return fmt.Errorf("sheet header %v does not match layout %v", got, want)
		}
	}
	return nil
}

// Append adds rec as a new row after the last one.
func (s *Store) Append(ctx context.Context, rec ledger.Record) error {
	row := s.layout.Row(rec.Result(s.now().Format(ledger.TimestampLayout)))
	vr := &sheets.ValueRange{Values: [][]interface{}{toCells(row)}}

	_, err := s.values.Append(s.id, s.a1(1, 0), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("appending row: %w", err)
	}
	return nil
}

// Search reads every data row and keeps those matching q.
func (s *Store) Search(ctx context.Context, q ledger.Query) ([]ledger.SearchResult, error) {
	resp, err := s.values.Get(s.id, s.a1(2, 0)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	rows := make([]ledger.SearchResult, 0, len(resp.Values))
	for _, cells := range resp.Values {
		rows = append(rows, s.layout.ParseRow(toStrings(cells)))
	}
	return ledger.Filter(rows, q), nil
}

// Close is a no-op; the sheets client holds no connection of its own.
func (s *Store) Close() error {
	return nil
}

// a1 builds an A1 range over the layout's columns starting at fromRow. A
// toRow of zero leaves the range open-ended.
func (s *Store) a1(fromRow, toRow int) string {
	last := columnLetter(len(s.layout.Columns()))
	sheet := quoteSheet(s.sheet)
	if toRow == 0 {
		return fmt.Sprintf("%s!A%d:%s", sheet, fromRow, last)
	}
	return fmt.Sprintf("%s!A%d:%s%d", sheet, fromRow, last, toRow)
}

// quoteSheet quotes a worksheet name for A1 notation so names with spaces
// or punctuation stay valid.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func columnLetter(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func toStrings(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = fmt.Sprint(c)
	}
	return out
}
