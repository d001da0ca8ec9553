// Package errs defines the error taxonomy shared by every service: wrap one
// of the sentinels with fmt.Errorf("%w: ...") and let the HTTP layer map it.
package errs

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
)

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrInvalidState):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
