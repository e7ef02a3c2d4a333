package scanning

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnsupported is returned by a Model that cannot serve the requested
// Mode. The extractor moves on to its next tier.
var ErrUnsupported = errors.New("mode not supported by model")

// Mode selects how a model is asked to structure its answer.
type Mode int

const (
	// ModeSchema asks for output constrained to Request.Schema.
	ModeSchema Mode = iota
	// ModeTool declares Request.Tool and forces the model to call it.
	ModeTool
	// ModeFreeform asks for plain text.
	ModeFreeform
)

func (m Mode) String() string {
	switch m {
	case ModeSchema:
		return "schema"
	case ModeTool:
		return "tool"
	case ModeFreeform:
		return "freeform"
	}
	return "unknown"
}

// Request is a single model call.
type Request struct {
	Mode   Mode
	System string
	Prompt string
	// Image is sent inline when present; ImageMIME names its type.
	Image     []byte
	ImageMIME string
	Schema    *Schema
	Tool      *Tool
}

// Tool is a function the model is forced to call.
type Tool struct {
	Name        string
	Description string
	Parameters  *Schema
}

// ResponseKind tags which field of a Response is populated.
type ResponseKind int

const (
	KindObject ResponseKind = iota
	KindToolCall
	KindText
)

// Response is the result of Model.Generate. Exactly one payload is set,
// according to Kind.
type Response struct {
	Kind ResponseKind

	// Object holds schema-constrained JSON (KindObject).
	Object json.RawMessage

	// ToolName and ToolArgs hold the function call (KindToolCall). An empty
	// ToolName means the model declined to call anything.
	ToolName string
	ToolArgs json.RawMessage

	// Text holds the raw answer (KindText). Providers also fill it for the
	// other kinds when the model returned text alongside, for diagnostics.
	Text string
}

// Model is a language model provider. Implementations must be safe for
// concurrent use; per-call settings travel in the Request.
type Model interface {
	// Name identifies the provider in logs and errors.
	Name() string
	// Generate performs one call. Transport, auth and quota failures are
	// returned as *ProviderError; unsupported modes as ErrUnsupported.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Close releases the provider's resources.
	Close() error
}
