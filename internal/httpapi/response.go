package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// apiResponse is the envelope every JSON endpoint returns.
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func success(c echo.Context, status int, message string, data any) error {
	if status == 0 {
		status = http.StatusOK
	}
	return c.JSON(status, apiResponse{Status: "success", Message: message, Data: data})
}

func errorResponse(c echo.Context, status int, message string) error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, apiResponse{Status: "error", Message: message})
}
