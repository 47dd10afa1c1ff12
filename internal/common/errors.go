package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("requested resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden access")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")
	ErrValidation     = errors.New("validation failed")

	// ErrAlreadyProcessing means a callback for the same submitted testcase is
	// currently in flight; the judge may retry later.
	ErrAlreadyProcessing = errors.New("testcase result is already being processed")
	// ErrAlreadyEvaluated means the submitted testcase was finalized by an
	// earlier callback; a duplicate delivery must not count twice.
	ErrAlreadyEvaluated = errors.New("testcase result already recorded")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyEvaluated) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrAlreadyProcessing) {
		return http.StatusTooManyRequests
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// IsClientError reports whether err is the caller's fault: such errors must
// not mutate state (no Internal Error force-set on the submission).
func IsClientError(err error) bool {
	code := HTTPStatusFromError(err)
	return code >= 400 && code < 500
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
