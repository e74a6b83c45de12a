package extract

import (
	"errors"
	"net/http"

	"github.com/medx/lab-extractor/internal/ingest"
)

// Capability failure classes. Transient errors are retried with backoff;
// permanent errors skip the remaining attempts for the current model; both
// escalate to the next model in the fallback list.
var (
	// ErrUnavailable signals the upstream service is temporarily down.
	ErrUnavailable = errors.New("extraction service unavailable")

	// ErrQuotaExceeded signals a rate-limit or quota-exhaustion response.
	ErrQuotaExceeded = errors.New("extraction quota exceeded")

	// ErrModelNotFound signals the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidResponse signals the capability answered with something
	// that could not be parsed as the declared output contract.
	ErrInvalidResponse = errors.New("invalid response from AI model")
)

// Pipeline failure classes surfaced to the caller.
var (
	// ErrNotLabReport is the sentinel-empty-result rejection.
	ErrNotLabReport = errors.New("document does not appear to be a valid quantitative medical lab report")

	// ErrExhausted reports that every configured model failed. The message
	// deliberately names no model.
	ErrExhausted = errors.New("failed to process document with AI")
)

// transient reports whether an error should be retried on the same model.
func transient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// permanent reports whether an error rules out further attempts on the
// current model.
func permanent(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrModelNotFound)
}

// MapHTTPStatus converts pipeline errors to appropriate HTTP status codes.
// Intake errors surfaced through the pipeline keep their own mapping.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotLabReport) {
		return http.StatusUnsupportedMediaType
	}
	if errors.Is(err, ErrExhausted) {
		return http.StatusInternalServerError
	}
	return ingest.MapHTTPStatus(err)
}
