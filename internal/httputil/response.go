package httputil

import (
	"github.com/gofiber/fiber/v3"
)

// ErrorResponse wraps failed API responses. The body is a flat object so
// clients can read the message without unwrapping.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Success sends a 200 JSON response with the given payload.
func Success(c fiber.Ctx, data any) error {
	return c.JSON(data)
}

// SuccessStatus sends a JSON response with a custom status code.
func SuccessStatus(c fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(data)
}

// Fail sends a JSON error response with the given status and message.
func Fail(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorResponse{Error: message})
}
