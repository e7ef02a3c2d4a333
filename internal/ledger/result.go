package ledger

// SearchResult is one stored row as display text.
type SearchResult struct {
	DateSent      string `json:"date_sent"`
	SenderName    string `json:"sender_name"`
	ReceiverName  string `json:"receiver_name"`
	AccountNumber string `json:"account_number"`
	Amount        string `json:"amount"`
	Timestamp     string `json:"timestamp"`
}

// Field returns the value stored under a canonical column name.
func (r SearchResult) Field(column string) string {
	switch column {
	case ColumnDateSent:
		return r.DateSent
	case ColumnSenderName:
		return r.SenderName
	case ColumnReceiverName:
		return r.ReceiverName
	case ColumnAccountNumber:
		return r.AccountNumber
	case ColumnAmount:
		return r.Amount
	case ColumnTimestamp:
		return r.Timestamp
	}
	return ""
}

func (r *SearchResult) setField(column, value string) {
	switch column {
	case ColumnDateSent:
		r.DateSent = value
	case ColumnSenderName:
		r.SenderName = value
	case ColumnReceiverName:
		r.ReceiverName = value
	case ColumnAccountNumber:
		r.AccountNumber = value
	case ColumnAmount:
		r.Amount = value
	case ColumnTimestamp:
		r.Timestamp = value
	}
}

type recordKey struct {
	dateSent, sender, receiver, account, amount string
}

// Dedupe drops rows whose five record fields repeat an earlier row. A
// retried append leaves such duplicates behind with different timestamps;
// the first occurrence is kept.
func Dedupe(results []SearchResult) []SearchResult {
	seen := make(map[recordKey]bool, len(results))
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		k := recordKey{r.DateSent, r.SenderName, r.ReceiverName, r.AccountNumber, r.Amount}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// Filter returns the results that match q, preserving order. The returned
// slice is never nil.
func Filter(results []SearchResult, q Query) []SearchResult {
	out := make([]SearchResult, 0)
	for _, r := range results {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
