package pricing

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/zenrsr/capx-stockfolio/internal/fetch"
)

type ErrorKind string

const (
	KindRateLimited     ErrorKind = "RateLimited"
	KindInvalidResponse ErrorKind = "InvalidProviderResponse"
	KindNetwork         ErrorKind = "NetworkError"
	KindProvider        ErrorKind = "ProviderError"
)

// Kind classifies a provider failure.
func Kind(err error) ErrorKind {
	var netErr *fetch.NetworkError
	switch {
	case errors.Is(err, fetch.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, fetch.ErrInvalidProviderResponse):
		return KindInvalidResponse
	case errors.As(err, &netErr):
		return KindNetwork
	default:
		return KindProvider
	}
}

// Describe turns a provider failure into the message shown next to a price.
func Describe(err error) string {
	if errors.Is(err, fetch.ErrRateLimited) {
		return fetch.ErrRateLimited.Error()
	}
	return "API error: " + err.Error()
}

// AggregateFetchFailure collects the per-holding failures of one historical
// resolution.
type AggregateFetchFailure struct {
	err error
}

// NewAggregateFetchFailure returns nil when errs holds no error.
func NewAggregateFetchFailure(errs ...error) error {
	combined := multierr.Combine(errs...)
	if combined == nil {
		return nil
	}
	return &AggregateFetchFailure{err: combined}
}

func (e *AggregateFetchFailure) Errors() []error { return multierr.Errors(e.err) }

func (e *AggregateFetchFailure) Count() int { return len(e.Errors()) }

func (e *AggregateFetchFailure) Error() string {
	errs := e.Errors()
	noun := "holding"
	if len(errs) > 1 {
		noun = "holdings"
	}
	msg := fmt.Sprintf("historical data unavailable for %d %s: %v", len(errs), noun, errs[0])
	if len(errs) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(errs)-1)
	}
	return msg
}

func (e *AggregateFetchFailure) Unwrap() []error { return e.Errors() }
