package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below unwraps to one of these so
// callers can use errors.Is without caring about the concrete type.
var (
	ErrInvalidQuery   = errors.New("invalid query")
	ErrDiscovery      = errors.New("cannot determine result count")
	ErrFetch          = errors.New("fetch failed")
	ErrParseStructure = errors.New("results container missing")
	ErrDecode         = errors.New("cannot decode ad text")
	ErrNoData         = errors.New("no ads fetched")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// DiscoveryError means the total result count could not be determined.
// It is fatal: no pages are fetched.
type DiscoveryError struct {
	URL    string
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	msg := "discovery: " + e.Reason
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Unwrap() []error { return []error{ErrDiscovery, e.Err} }

// FetchKind classifies a failed request.
type FetchKind string

const (
	FetchTransport   FetchKind = "transport"
	FetchTimeout     FetchKind = "timeout"
	FetchRead        FetchKind = "read"
	FetchCircuitOpen FetchKind = "circuit_open"
	FetchCanceled    FetchKind = "canceled"
)

// FetchError is one failed GET. Recovered locally: the item is skipped.
type FetchError struct {
	URL  string
	Kind FetchKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrFetch, e.Err} }

// ParseStructureError means a results page lacked its ad-link container.
type ParseStructureError struct {
	URL      string
	Selector string
}

func (e *ParseStructureError) Error() string {
	return fmt.Sprintf("parse structure: %s not found in %s", e.Selector, e.URL)
}

func (e *ParseStructureError) Unwrap() error { return ErrParseStructure }

// DecodeError means an ad body could not be normalised into clean text.
// Treated like a FetchError: the ad is skipped.
type DecodeError struct {
	URL    string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.URL == "" {
		return "decode: " + e.Reason
	}
	return fmt.Sprintf("decode %s: %s", e.URL, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// NoDataError means zero ads were fetched, so percentages are undefined.
type NoDataError struct {
	PagesVisited int
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data: 0 ads fetched from %d pages", e.PagesVisited)
}

func (e *NoDataError) Unwrap() error { return ErrNoData }

// RunError stamps a fatal run error with the query that triggered it.
type RunError struct {
	Query SearchQuery
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: %v", e.Query, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
