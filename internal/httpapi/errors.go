package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"sitcomledger/pkg/domain"
)

// statusFor maps ledger errors onto HTTP status codes.
func statusFor(err error) int {
	var rv domain.RuleViolationError
	switch {
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case domain.IsInvalidInput(err):
		return http.StatusBadRequest
	case errors.As(err, &rv):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func httpError(err error) *echo.HTTPError {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	return echo.NewHTTPError(status, msg).SetInternal(err)
}
