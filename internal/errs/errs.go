// Package errs defines the sentinel errors shared across the pipeline.
// Callers classify failures with errors.Is; components wrap these with
// fmt.Errorf("...: %w", ...) to add context.
package errs

import "errors"

var (
	// ErrValidation marks a request that is missing required fields.
	// No external call is made once this is raised.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound marks an expected blob (profile text, source image)
	// that is absent from storage.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable marks a failed OCR or model backend call.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPersistence marks a failed warehouse query or insert.
	ErrPersistence = errors.New("persistence failure")
)
