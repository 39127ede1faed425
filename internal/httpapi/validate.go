package httpapi

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// validate is the shared struct-tag validator instance; go-playground's own
// docs recommend a single cached instance rather than one per call.
var validate = validator.New(validator.WithRequiredStructEnabled())

// BindAndValidate binds the request body into req and runs its `validate`
// struct tags, replacing the hand-rolled "if req.Field == ..." chains the
// teacher's handlers used with the tag-driven validation the teacher's
// shared module pulls in for the same purpose. On failure it writes the §6
// 422 envelope itself and returns a non-nil error, so handlers can just
// return when the returned error is non-nil.
func BindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		if writeErr := ValidationError(c, "malformed request body"); writeErr != nil {
			return writeErr
		}
		return err
	}
	if err := validate.Struct(req); err != nil {
		message := err.Error()
		if verrs, ok := err.(validator.ValidationErrors); ok {
			message = describeValidationErrors(verrs)
		}
		if writeErr := ValidationError(c, message); writeErr != nil {
			return writeErr
		}
		return err
	}
	return nil
}

func describeValidationErrors(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
