package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

// DefaultTiers is the extraction order, most structured first.
var DefaultTiers = []Mode{ModeSchema, ModeTool, ModeFreeform}

// Extractor turns receipt images into validated records, falling back
// through the tiers its model supports.
type Extractor struct {
	model Model
	tiers []Mode
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithTiers overrides the tiers tried, in order.
func WithTiers(tiers ...Mode) ExtractorOption {
	return func(e *Extractor) {
		e.tiers = tiers
	}
}

// NewExtractor creates an Extractor on top of model.
func NewExtractor(model Model, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		model: model,
		tiers: DefaultTiers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads a record from image bytes. The bytes are sent as given.
// On failure the returned error is an *ExtractionError describing the last
// tier attempted.
func (e *Extractor) Extract(ctx context.Context, image []byte) (ledger.Record, error) {
	if len(image) == 0 {
		return ledger.Record{}, &ExtractionError{
			Kind: KindNoParseableOutput,
			Tier: ModeSchema,
			Err:  fmt.Errorf("%w: empty image", ErrNoParseableOutput),
		}
	}

	mimeType := http.DetectContentType(image)

	var last *ExtractionError
	for _, tier := range e.tiers {
		rec, err := e.attempt(ctx, tier, image, mimeType)
		if err == nil {
			slog.Info("Extracted receipt", "provider", e.model.Name(), "tier", tier.String())
			return rec, nil
		}
		if errors.Is(err, ErrUnsupported) {
			slog.Debug("Skipping extraction tier", "provider", e.model.Name(), "tier", tier.String())
			continue
		}

		var ee *ExtractionError
		if !errors.As(err, &ee) {
			ee = &ExtractionError{Kind: KindNoParseableOutput, Tier: tier, Err: err}
		}
		slog.Warn("Extraction tier failed",
			"provider", e.model.Name(),
			"tier", tier.String(),
			"kind", ee.Kind.String(),
			"raw", ee.Raw,
			"error", ee.Err,
		)
		last = ee
	}

	if last == nil {
		return ledger.Record{}, &ExtractionError{
			Kind: KindNoParseableOutput,
			Tier: ModeFreeform,
			Err:  fmt.Errorf("%w: %s supports none of the configured tiers", ErrNoParseableOutput, e.model.Name()),
		}
	}
	return ledger.Record{}, last
}

func (e *Extractor) attempt(ctx context.Context, tier Mode, image []byte, mimeType string) (ledger.Record, error) {
	req := Request{
		Mode:      tier,
		System:    receiptSystemPrompt,
		Prompt:    receiptScanPrompt,
		Image:     image,
		ImageMIME: mimeType,
	}
	switch tier {
	case ModeSchema:
		req.Schema = recordSchema()
	case ModeTool:
		req.Tool = &Tool{
			Name:        extractToolName,
			Description: extractToolDescription,
			Parameters:  recordSchema(),
		}
	default:
		req.Prompt = receiptFreeformPrompt
	}

	resp, err := e.model.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			return ledger.Record{}, err
		}
		return ledger.Record{}, &ExtractionError{
			Kind: KindProvider,
			Tier: tier,
			Err:  asProviderError(e.model.Name(), err),
		}
	}

	raw := rawText(resp)
	var fields ledger.RawRecord
	if err := decodeResponse(resp, tier, extractToolName, &fields); err != nil {
		return ledger.Record{}, &ExtractionError{
			Kind: KindNoParseableOutput,
			Tier: tier,
			Raw:  raw,
			Err:  fmt.Errorf("%w: %w", ErrNoParseableOutput, err),
		}
	}

	rec, err := ledger.Validate(fields)
	if err != nil {
		return ledger.Record{}, &ExtractionError{
			Kind: KindNoParseableOutput,
			Tier: tier,
			Raw:  raw,
			Err:  fmt.Errorf("%w: %w", ErrNoParseableOutput, err),
		}
	}
	if rec.IsUnknown() {
		return ledger.Record{}, &ExtractionError{
			Kind: KindNoParseableOutput,
			Tier: tier,
			Raw:  raw,
			Err:  fmt.Errorf("%w: no field could be read", ErrNoParseableOutput),
		}
	}

	return rec, nil
}

// asProviderError wraps err in a *ProviderError unless it already is one
func asProviderError(provider string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Message: err.Error(), Err: err}
}
