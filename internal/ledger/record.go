package ledger

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	// Unknown stands in for any field the extractor could not read.
	Unknown = "Unknown"
	// NotApplicable is accepted for receipts that carry no account number.
	NotApplicable = "N/A"

	// DateLayout is the only accepted date_sent format.
	DateLayout = "2006-01-02"
	// TimestampLayout formats the insertion time stores stamp on each row.
	TimestampLayout = "2006-01-02 15:04:05"
)

// Record is a validated transaction extracted from a receipt.
type Record struct {
	DateSent      string          `json:"date_sent"`
	SenderName    string          `json:"sender_name"`
	ReceiverName  string          `json:"receiver_name"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
}

// RawRecord holds record fields exactly as a model produced them.
type RawRecord struct {
	DateSent      string    `json:"date_sent"`
	SenderName    string    `json:"sender_name"`
	ReceiverName  string    `json:"receiver_name"`
	AccountNumber string    `json:"account_number"`
	Amount        RawAmount `json:"amount"`
}

// RawAmount accepts a JSON number, a numeric string such as "$1,250.00",
// or null.
type RawAmount string

// UnmarshalJSON implements json.Unmarshaler.
func (a *RawAmount) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	switch {
	case text == "null":
		*a = ""
	case strings.HasPrefix(text, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = RawAmount(s)
	default:
		*a = RawAmount(text)
	}
	return nil
}

var (
	plainAmount     = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	groupedAmount   = regexp.MustCompile(`^-?\d{1,3}(,\d{3})*(\.\d+)?$`)
	currencyCode    = regexp.MustCompile(`^[A-Z]{3}\s*|\s*[A-Z]{3}$`)
	currencyOrSpace = func(r rune) bool { return unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) }
)

// Decimal parses the amount. A JSON number is read as is; a string may
// carry one leading or trailing currency symbol or ISO code and comma
// thousands separators. Anything else is an error; an empty amount is zero.
func (a RawAmount) Decimal() (decimal.Decimal, error) {
	text := strings.TrimSpace(string(a))
	if text == "" {
		return decimal.Zero, nil
	}
	if d, err := decimal.NewFromString(text); err == nil {
		return d, nil
	}

	cleaned := strings.TrimFunc(text, currencyOrSpace)
	cleaned = currencyCode.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimFunc(cleaned, currencyOrSpace)

	switch {
	case plainAmount.MatchString(cleaned):
	case groupedAmount.MatchString(cleaned):
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	default:
		return decimal.Zero, fmt.Errorf("not a number: %q", text)
	}
	return decimal.NewFromString(cleaned)
}

// Validate turns raw model output into a Record. Text fields are trimmed
// and blanks become Unknown; the amount is rounded to two places. A zero
// amount is only accepted on the fully unknown record.
func Validate(raw RawRecord) (Record, error) {
	rec := Record{
		DateSent:      normalizeText(raw.DateSent),
		SenderName:    normalizeText(raw.SenderName),
		ReceiverName:  normalizeText(raw.ReceiverName),
		AccountNumber: normalizeAccount(raw.AccountNumber),
	}

	if rec.DateSent != Unknown {
		if _, err := time.Parse(DateLayout, rec.DateSent); err != nil {
			return Record{}, invalid(ColumnDateSent, rec.DateSent, "must be a YYYY-MM-DD date")
		}
	}

	amount, err := raw.Amount.Decimal()
	if err != nil {
		return Record{}, invalid(ColumnAmount, string(raw.Amount), "not a number")
	}
	rec.Amount = amount.Round(2)

	if rec.IsUnknown() {
		return rec, nil
	}
	if !rec.Amount.IsPositive() {
		return Record{}, invalid(ColumnAmount, string(raw.Amount), "must be greater than zero")
	}

	return rec, nil
}

// IsUnknown reports whether every field is a sentinel and the amount is
// zero.
func (r Record) IsUnknown() bool {
	return r.DateSent == Unknown &&
		r.SenderName == Unknown &&
		r.ReceiverName == Unknown &&
		(r.AccountNumber == Unknown || r.AccountNumber == NotApplicable) &&
		r.Amount.IsZero()
}

// AmountText renders the amount with exactly two decimals.
func (r Record) AmountText() string {
	return r.Amount.StringFixed(2)
}

// Result returns the row a store persists for r at the given timestamp.
func (r Record) Result(timestamp string) SearchResult {
	return SearchResult{
		DateSent:      r.DateSent,
		SenderName:    r.SenderName,
		ReceiverName:  r.ReceiverName,
		AccountNumber: r.AccountNumber,
		Amount:        r.AmountText(),
		Timestamp:     timestamp,
	}
}

func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, Unknown) {
		return Unknown
	}
	return s
}

func normalizeAccount(s string) string {
	s = normalizeText(s)
	if strings.EqualFold(s, NotApplicable) {
		return NotApplicable
	}
	return s
}
