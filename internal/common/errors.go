package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("requested resource not found")
	ErrUnauthorized   = errors.New("user not authenticated")
	ErrForbidden      = errors.New("forbidden access")
	ErrBadRequest     = errors.New("bad request")
	ErrConflict       = errors.New("resource conflict") // e.g., username already exists
	ErrInternalServer = errors.New("internal server error")
	ErrValidation     = errors.New("validation failed")

	// Script execution
	ErrAlreadyRunning        = errors.New("script is already running")
	ErrNotRunning            = errors.New("no running script found with the given ID")
	ErrUnsupportedScriptType = errors.New("unsupported script type")
	ErrLaunchFailure         = errors.New("script launch failed")
	ErrRuntimeFailure        = errors.New("script exited with a non-zero code")
	ErrStopped               = errors.New("script execution stopped by user")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotRunning):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrValidation),
		errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrUnsupportedScriptType):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict), errors.Is(err, ErrStopped):
		return http.StatusConflict
	case errors.Is(err, ErrLaunchFailure), errors.Is(err, ErrRuntimeFailure):
		return http.StatusInternalServerError
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // Unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
