package scanning

import (
	"github.com/zombor/receipt-ledger/internal/ledger"
)

// SchemaType is a JSON schema primitive type.
type SchemaType string

const (
	TypeObject SchemaType = "object"
	TypeString SchemaType = "string"
	TypeNumber SchemaType = "number"
)

// Schema is a provider-neutral JSON schema. Each provider converts it into
// its own SDK type.
type Schema struct {
	Type        SchemaType
	Description string
	Format      string
	Enum        []string
	Properties  map[string]*Schema
	// Order lists property names in the order prompts should present them.
	Order    []string
	Required []string
}

// JSONSchema renders s as a plain JSON schema document.
func (s *Schema) JSONSchema() map[string]any {
	out := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Format != "" {
		out["format"] = s.Format
	}
	if len(s.Enum) > 0 {
		out["enum"] = s.Enum
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = p.JSONSchema()
		}
		out["properties"] = props
		out["additionalProperties"] = false
	}
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// recordSchema describes ledger.RawRecord.
func recordSchema() *Schema {
	order := []string{
		ledger.ColumnDateSent,
		ledger.ColumnSenderName,
		ledger.ColumnReceiverName,
		ledger.ColumnAccountNumber,
		ledger.ColumnAmount,
	}
	return &Schema{
		Type:        TypeObject,
		Description: "Structured financial transaction data read from a receipt.",
		Properties: map[string]*Schema{
			ledger.ColumnDateSent: {
				Type:        TypeString,
				Description: "The date of the transaction in YYYY-MM-DD format (e.g. '2025-11-20'), or 'Unknown'.",
			},
			ledger.ColumnSenderName: {
				Type:        TypeString,
				Description: "The full name of the sender/payer, or 'Unknown'.",
			},
			ledger.ColumnReceiverName: {
				Type:        TypeString,
				Description: "The full name of the receiver/recipient, or 'Unknown'.",
			},
			ledger.ColumnAccountNumber: {
				Type:        TypeString,
				Description: "The account number or transfer reference, or 'N/A' if the receipt has none.",
			},
			ledger.ColumnAmount: {
				Type:        TypeNumber,
				Description: "The numerical total amount of the transaction without currency symbols, or 0.0 if unreadable.",
			},
		},
		Order:    order,
		Required: order,
	}
}

// querySchema describes ledger.RawQuery, restricted to the layout columns.
func querySchema(layout ledger.Layout) *Schema {
	order := []string{"column_to_search", "search_value"}
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"column_to_search": {
				Type:        TypeString,
				Description: "The lowercase name of the column to search. One of: " + layout.String() + ".",
				Enum:        layout.Columns(),
			},
			"search_value": {
				Type:        TypeString,
				Description: "The exact value the user is looking for in that column (e.g. 'Michael IWA', '2500').",
			},
		},
		Order:    order,
		Required: order,
	}
}
