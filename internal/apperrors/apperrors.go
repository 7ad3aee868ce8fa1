// Package apperrors defines the error taxonomy for the sync pipeline and the
// transience classification consumed by the retry layer.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind categorizes a provider error
type Kind string

const (
	// KindRateLimit marks an HTTP 429 style rejection. Transient.
	KindRateLimit Kind = "rate_limit"
	// KindTimeout marks a request that exceeded its deadline. Transient.
	KindTimeout Kind = "timeout"
	// KindUnavailable marks an upstream that answered but could not serve
	KindUnavailable Kind = "unavailable"
	// KindBadResponse marks an upstream payload that failed to decode
	KindBadResponse Kind = "bad_response"
)

// ProviderError wraps a failure from an external data provider with enough
// context to decide whether retrying is worthwhile.
type ProviderError struct {
	Provider string
	Kind     Kind
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Provider, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// RateLimited creates a rate-limit provider error
func RateLimited(provider string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindRateLimit}
}

// Timeout creates a timeout provider error
func Timeout(provider string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindTimeout, Cause: cause}
}

// Unavailable creates an upstream-unavailable provider error
func Unavailable(provider string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindUnavailable, Cause: cause}
}

// BadResponse creates a malformed-payload provider error
func BadResponse(provider string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindBadResponse, Cause: cause}
}

// IsTransient reports whether an error should be retried with backoff:
// rate-limit rejections and timeouts qualify, everything else propagates
// immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind == KindRateLimit || perr.Kind == KindTimeout
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}

	return false
}

// IsRateLimited reports whether an error is a provider rate-limit rejection
func IsRateLimited(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Kind == KindRateLimit
}

// FetchFailure wraps an unrecoverable ledger ingestion failure. The
// orchestrator converts it into a failed sync state.
type FetchFailure struct {
	Wallet string
	Cause  error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("failed to fetch transactions for %s: %v", e.Wallet, e.Cause)
}

func (e *FetchFailure) Unwrap() error {
	return e.Cause
}
