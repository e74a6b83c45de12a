package ingest

import (
	"errors"
	"net/http"
)

// Domain errors for upload intake.
var (
	ErrNoFile           = errors.New("no file uploaded")
	ErrFileTooLarge     = errors.New("file exceeds maximum upload size")
	ErrUnsupportedMedia = errors.New("invalid file type, only PDF allowed")
	ErrInvalidFile      = errors.New("invalid file")
)

// MapHTTPStatus converts intake errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNoFile) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrFileTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, ErrUnsupportedMedia) {
		return http.StatusUnsupportedMediaType
	}
	if errors.Is(err, ErrInvalidFile) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
