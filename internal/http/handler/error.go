package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"imagegen/internal/apperr"
	"imagegen/internal/http/middleware"
	"imagegen/internal/logger"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func newErrorPayload(c *fiber.Ctx, code, message string) errorPayload {
	return errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "INVALID_ID", "NOT_FOUND", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(newErrorPayload(c, code, message))
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindAuth:
		return fiber.StatusUnauthorized
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindTimeout:
		return fiber.StatusGatewayTimeout
	case apperr.KindUpstream, apperr.KindStorage:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// serviceError classifies err and returns status and payload. Only the wrapped condition's message
// reaches the client; anything unclassified becomes INTERNAL_ERROR and is logged.
func serviceError(c *fiber.Ctx, err error) (int, errorPayload) {
	cause := apperr.Cause(err)
	if cause == nil {
		slog.ErrorContext(c.UserContext(), "unhandled error",
			slog.String("request_id", requestIDFromCtx(c)),
			slog.String("path", c.Path()),
			logger.Err(err),
		)
		return fiber.StatusInternalServerError, newErrorPayload(c, "INTERNAL_ERROR", "internal server error")
	}
	status := statusFor(apperr.KindOf(err))
	if status >= fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "request failed",
			slog.String("request_id", requestIDFromCtx(c)),
			slog.String("path", c.Path()),
			logger.Err(err),
		)
	}
	return status, newErrorPayload(c, apperr.Code(err), cause.Error())
}

// writeServiceError writes err returned by a service in the standardized envelope.
func writeServiceError(c *fiber.Ctx, err error) error {
	status, body := serviceError(c, err)
	return c.Status(status).JSON(body)
}

// unauthorized is the deny handler for API routes behind middleware.RequireAuth.
func unauthorized(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else if apperr.Cause(err) != nil {
			return writeServiceError(c, err)
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
