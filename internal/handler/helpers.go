package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/taskflow/taskflow/internal/dualwrite"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// parseQueryInt parses an integer query parameter with a default value.
func parseQueryInt(c *fiber.Ctx, key string, defaultValue int) int {
	val := c.Query(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// errorResponse creates a standardized JSON error response.
func errorResponse(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(ErrorResponse{
		Error:   errorName(statusCode),
		Message: message,
	})
}

// appErrorResponse maps err onto its status code. Write errors from the
// coordinator are converted to their application error first.
func appErrorResponse(c *fiber.Ctx, err error) error {
	var werr *dualwrite.WriteError
	if errors.As(err, &werr) {
		err = werr.AppError()
	}

	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		return errorResponse(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(appErr.StatusCode).JSON(ErrorResponse{
		Error:   errorName(appErr.StatusCode),
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func errorName(statusCode int) string {
	switch statusCode {
	case fiber.StatusBadRequest:
		return "Bad Request"
	case fiber.StatusNotFound:
		return "Not Found"
	case fiber.StatusConflict:
		return "Conflict"
	case fiber.StatusUnprocessableEntity:
		return "Unprocessable Entity"
	case fiber.StatusBadGateway:
		return "Bad Gateway"
	case fiber.StatusServiceUnavailable:
		return "Service Unavailable"
	case fiber.StatusInternalServerError:
		return "Internal Server Error"
	}
	return "Error"
}
