package api

import (
	"errors"

	"github.com/example/collab-tracker/domain/apperror"
	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusOf maps an error category to its HTTP status.
func statusOf(code apperror.Code) int {
	switch code {
	case apperror.CodeNotFound:
		return fiber.StatusNotFound
	case apperror.CodeUnauthorized:
		return fiber.StatusForbidden
	case apperror.CodeInvalidShape, apperror.CodeInvalidInput:
		return fiber.StatusBadRequest
	case apperror.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders a service error.
func writeError(c *fiber.Ctx, err error) error {
	code := apperror.CodeOf(err)
	status := statusOf(code)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "Internal Server Error"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:   string(code),
		Message: message,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

// customErrorHandler handles errors returned from handlers and Fiber itself.
func customErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(ErrorResponse{
			Error:   "server_error",
			Message: fe.Message,
		})
	}
	return writeError(c, err)
}
