package scanning

const receiptSystemPrompt = `You are an expert financial data extraction AI. You read bank transfer receipts and payment confirmations and extract transaction details accurately.`

// receiptScanPrompt is shared by the schema and tool tiers
const receiptScanPrompt = `Carefully read all text in the receipt image and extract the transaction details:

1. **date_sent**: The transaction date converted to YYYY-MM-DD.
2. **sender_name**: The full name of the sender or payer.
3. **receiver_name**: The full name of the receiver or beneficiary.
4. **account_number**: The account number or transfer reference. Use "N/A" if the receipt has none.
5. **amount**: The total amount transferred as a number, without currency symbols or thousands separators.

For any field you cannot read, use "Unknown" for text and 0.0 for the amount.`

// receiptFreeformPrompt is used when the model offers no structured output
const receiptFreeformPrompt = receiptScanPrompt + `

Return ONLY valid JSON in this exact format:
{
  "date_sent": "YYYY-MM-DD",
  "sender_name": "...",
  "receiver_name": "...",
  "account_number": "...",
  "amount": 0.00
}

Important:
- The amount must be a number (not a string)
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

const (
	extractToolName        = "extract_receipt_data"
	extractToolDescription = "Extracts structured financial transaction data from a bank receipt image."

	queryToolName = "create_search_query"
)

func querySystemPrompt(columns string) string {
	return "Analyze the user's request and formulate a precise search query based on the available columns: " +
		columns + ". The search value should be the exact value the user is looking for. " +
		"The column name must be one of the available columns."
}

func queryToolDescription(columns string) string {
	return "Converts a user's request into a structured query for the transaction ledger. " +
		"Available columns for searching are: " + columns + "."
}
