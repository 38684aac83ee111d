package apperror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Respond writes err as a structured JSON error response. Non-AppError
// values are treated as internal errors.
func Respond(c echo.Context, err error) error {
	var ae *AppError
	if errors.As(err, &ae) {
		body := map[string]any{
			"error":   ae.Code,
			"message": ae.Message,
		}
		if len(ae.Details) > 0 {
			body["details"] = ae.Details
		}
		return c.JSON(ae.HTTPStatus, body)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
