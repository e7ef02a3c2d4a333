package receipt

import (
	"fmt"
	"strings"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

// DisplayLimit is the number of search results listed in a reply.
const DisplayLimit = 5

// Inbound is one unit of work from a transport: an image, a text message,
// or an image with a caption.
type Inbound struct {
	Image       []byte
	ContentType string
	Filename    string
	Text        string
}

// Outcome classifies a Reply.
type Outcome int

const (
	OutcomeUsage Outcome = iota
	OutcomeSaved
	OutcomeNotSaved
	OutcomeExtractionFailed
	OutcomeNotUnderstood
	OutcomeUnavailable
	OutcomeNoMatches
	OutcomeResults
)

var outcomeNames = map[Outcome]string{
	OutcomeUsage:            "usage",
	OutcomeSaved:            "saved",
	OutcomeNotSaved:         "not_saved",
	OutcomeExtractionFailed: "extraction_failed",
	OutcomeNotUnderstood:    "not_understood",
	OutcomeUnavailable:      "unavailable",
	OutcomeNoMatches:        "no_matches",
	OutcomeResults:          "results",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Reply is what a transport sends back for one Inbound.
type Reply struct {
	Outcome Outcome
	Text    string
	// Record is set when a receipt was read, whether or not it was saved.
	Record *ledger.Record
	// Results holds the de-duplicated matches, including those beyond
	// DisplayLimit.
	Results []ledger.SearchResult
}

const (
	usageText = "Send me a photo of a receipt to record it, or ask a question " +
		"such as \"What did Jane Smith receive?\" to search the ledger."

	extractionFailedText = "I could not read that receipt. Please send a clearer image."
	waitSuffix           = " The AI service is busy right now, so wait a moment before trying again."

	notUnderstoodText = "Sorry, I could not understand your request. Try asking about a " +
		"sender, receiver, account number, date or amount."

	unavailableText = "The AI service is unavailable right now. Please wait a moment and try again."
)

func savedText(rec ledger.Record) string {
	return "Receipt saved.\n\n" + recordLines(rec)
}

func notSavedText(rec ledger.Record) string {
	return "Receipt read but NOT saved. The ledger could not be reached, " +
		"so please record these values manually or resend later.\n\n" + recordLines(rec)
}

func recordLines(rec ledger.Record) string {
	return strings.Join([]string{
		"Date: " + rec.DateSent,
		"Sender: " + rec.SenderName,
		"Receiver: " + rec.ReceiverName,
		"Account: " + rec.AccountNumber,
		"Amount: " + rec.AmountText(),
	}, "\n")
}

func noMatchesText(q ledger.Query) string {
	return fmt.Sprintf("No matches found for %s %q.", q.ColumnToSearch, q.SearchValue)
}

func resultsText(results []ledger.SearchResult) string {
	var b strings.Builder
	if len(results) == 1 {
		b.WriteString("Found 1 matching transaction:\n")
	} else {
		fmt.Fprintf(&b, "Found %d matching transactions:\n", len(results))
	}

	for i, r := range results {
		if i == DisplayLimit {
			fmt.Fprintf(&b, "\n...and %d more", len(results)-DisplayLimit)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s | %s -> %s | %s | account %s",
			i+1, r.DateSent, r.SenderName, r.ReceiverName, r.Amount, r.AccountNumber)
	}

	return b.String()
}
