package scanning

import (
	"errors"
	"fmt"
)

// ErrNoParseableOutput means the model answered but no valid record could
// be derived from the answer.
var ErrNoParseableOutput = errors.New("no parseable output")

// ProviderError is a transport, auth or quota failure from a model
// provider.
type ProviderError struct {
	Provider string
	Message  string
	// Throttled is set for rate limit and quota responses.
	Throttled bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies an ExtractionError.
type ErrorKind int

const (
	KindNoParseableOutput ErrorKind = iota
	KindProvider
)

func (k ErrorKind) String() string {
	if k == KindProvider {
		return "provider error"
	}
	return "no parseable output"
}

// ExtractionError is returned when no tier produced a valid record. It
// describes the last tier attempted.
type ExtractionError struct {
	Kind ErrorKind
	Tier Mode
	// Raw is the model's answer for diagnostics, when there was one.
	Raw string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting receipt (%s tier): %s: %v", e.Tier, e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err carries a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsThrottled reports whether err carries a throttled *ProviderError.
func IsThrottled(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Throttled
}
