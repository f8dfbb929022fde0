// Package apperr holds error vocabulary shared across the proxy's
// components, kept separate to avoid import cycles between internal/store,
// internal/packagecache, and internal/httpapi.
package apperr

import "errors"

// ErrNotFound indicates a requested package has no cached repository and
// could not be materialized from upstream. internal/packagecache returns it
// once both the primary and mirror clone attempts are exhausted for
// retryable reasons; internal/gitgateway and internal/rpctranslator check
// for it with errors.Is to tell "genuinely absent upstream" apart from an
// internal failure.
var ErrNotFound = errors.New("repository not found in cache and could not be fetched from upstream")

// NonRetryableError marks a failure that should not trigger the
// clone→mirror fallback, e.g. the request context was cancelled before the
// primary clone finished, so retrying against the mirror would fail the
// same way.
type NonRetryableError struct {
	cause error
}

func (e *NonRetryableError) Error() string { return e.cause.Error() }
func (e *NonRetryableError) Unwrap() error { return e.cause }

// NonRetryable wraps err as non-retryable.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{cause: err}
}

// IsNonRetryable reports whether err should skip the clone→mirror fallback.
func IsNonRetryable(err error) bool {
	var e *NonRetryableError
	return errors.As(err, &e)
}
