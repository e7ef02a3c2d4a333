package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

// Planner turns a free-text question into a ledger query.
type Planner struct {
	model  Model
	layout ledger.Layout
}

// NewPlanner creates a Planner that offers the layout's columns to model.
func NewPlanner(model Model, layout ledger.Layout) *Planner {
	return &Planner{
		model:  model,
		layout: layout,
	}
}

// Plan asks the model for a query. A nil query with a nil error means the
// request cannot be answered as a structured search. Provider failures are
// returned as *ProviderError; a model without tool calling returns an error
// wrapping ErrUnsupported.
func (p *Planner) Plan(ctx context.Context, text string) (*ledger.Query, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	columns := p.layout.String()
	resp, err := p.model.Generate(ctx, Request{
		Mode:   ModeTool,
		System: querySystemPrompt(columns),
		Prompt: text,
		Tool: &Tool{
			Name:        queryToolName,
			Description: queryToolDescription(columns),
			Parameters:  querySchema(p.layout),
		},
	})
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			slog.Error("Query planning needs tool calling", "provider", p.model.Name())
			return nil, fmt.Errorf("planning query with %s: %w", p.model.Name(), err)
		}
		return nil, asProviderError(p.model.Name(), err)
	}

	var raw ledger.RawQuery
	if err := decodeToolCall(resp, queryToolName, &raw); err != nil {
		slog.Info("Model produced no query", "provider", p.model.Name(), "reason", err, "text", resp.Text)
		return nil, nil
	}

	// The enum in the tool schema is advisory; models still invent columns.
	if !p.layout.Has(raw.ColumnToSearch) {
		slog.Warn("Invalid column selected by model",
			"provider", p.model.Name(),
			"column", raw.ColumnToSearch,
			"valid", columns,
		)
		return nil, nil
	}

	q, err := p.layout.ValidateQuery(raw)
	if err != nil {
		slog.Info("Model produced an invalid query", "provider", p.model.Name(), "error", err)
		return nil, nil
	}

	return &q, nil
}
