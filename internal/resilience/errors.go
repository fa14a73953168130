// Package resilience provides the pipeline error taxonomy and bounded retry
// with exponential backoff for remote catalog and asset calls.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// AuthError marks an authentication/authorization failure (401/403). Never
// retried: it will not self-resolve, so it surfaces immediately.
type AuthError struct {
	Service    string
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (status %d)", e.Service, e.StatusCode)
}

// SourceUnavailableError marks one catalog backend as unreachable or
// unauthenticated for a query. Non-fatal to the pipeline: the entry is
// recorded as degraded and the other source's results are kept.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// AssetFetchError marks a single asset download failure after retries.
// Non-fatal to the run; recorded in the download report.
type AssetFetchError struct {
	ProductID string
	Kind      string
	Err       error
}

func (e *AssetFetchError) Error() string {
	return fmt.Sprintf("fetch %s asset for %s: %v", e.Kind, e.ProductID, e.Err)
}

func (e *AssetFetchError) Unwrap() error { return e.Err }

// CatalogCorruptError marks a catalog file that exists but fails to parse.
// Fatal for download-only mode.
type CatalogCorruptError struct {
	Path string
	Err  error
}

func (e *CatalogCorruptError) Error() string {
	return fmt.Sprintf("catalog file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CatalogCorruptError) Unwrap() error { return e.Err }

// InvalidInputError marks a malformed field-data table (missing columns, bad
// coordinates or dates). Fatal, surfaced before any network call.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// IsAuth reports whether the error chain contains an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common transient network patterns. Auth errors
// are never transient.
func IsTransient(err error) bool {
	if err == nil || IsAuth(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"unexpected eof",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true for status codes that indicate a
// server-side issue safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
