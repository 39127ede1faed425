// Package httpapi holds the command/query surface's cross-cutting concerns
// (§4.6, §6): error envelope translation and per-plot rate limiting.
// Grounded on the teacher's shared/middleware package, generalized from
// IP-keyed in-memory limiting to cache-backed per-plot limiting as §4.6
// requires ("enforce per-plot request rate limits via the shared cache's
// atomic counter + TTL").
package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/harvestguard/ingestcore/internal/apperr"
)

// ErrorBody is the §6 error envelope: {error:{code, message, path, details?}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
	Details string `json:"details,omitempty"`
}

// WriteError translates err into the §6 envelope, using apperr's taxonomy
// when err carries one and falling back to 500 otherwise.
func WriteError(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	return c.JSON(status, ErrorBody{Error: ErrorDetail{
		Code:    string(kind),
		Message: err.Error(),
		Path:    c.Request().URL.Path,
	}})
}

// ValidationError returns a 422 without requiring an apperr-tagged error,
// for request-binding/validation failures caught at the handler boundary.
func ValidationError(c echo.Context, message string) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorBody{Error: ErrorDetail{
		Code:    string(apperr.Permanent),
		Message: message,
		Path:    c.Request().URL.Path,
	}})
}
