package reports

import (
	"errors"
	"net/http"
)

// Domain errors for stored-report operations.
var (
	ErrNoHistory     = errors.New("no history found for this user")
	ErrMissingUserID = errors.New("user ID is required")
)

// MapHTTPStatus converts domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNoHistory) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrMissingUserID) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
