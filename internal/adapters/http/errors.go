package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// APIError is the error body of the v1 API.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, invalid_field, invalid_geometry, internal_error
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// errFromDomain answers err from the field service. op describes the failed
// operation in the 500 message; the cause itself is only logged.
func errFromDomain(c *fiber.Ctx, err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return errNotFound(c, "field not found")
	case errors.Is(err, domain.ErrNoFields):
		return errNotFound(c, "no fields")
	case errors.Is(err, domain.ErrInvalidField):
		return newError(c, fiber.StatusUnprocessableEntity, "invalid_field", err.Error())
	case errors.Is(err, domain.ErrInvalidGeometry):
		return newError(c, fiber.StatusUnprocessableEntity, "invalid_geometry", err.Error())
	}
	LoggerFromCtx(c.UserContext()).Error(op+" failed", "error", err)
	return errInternal(c, "failed to "+op)
}

// legacyError answers the /geo surface, whose clients only read "message".
func legacyError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"message": msg})
}

// legacyFromDomain maps err the way the /geo service did: validation
// problems are 400 with the bare reason.
func legacyFromDomain(c *fiber.Ctx, err error, op string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return legacyError(c, fiber.StatusNotFound, "polygon not found")
	case errors.Is(err, domain.ErrInvalidField):
		return legacyError(c, fiber.StatusBadRequest, domain.Reason(err, domain.ErrInvalidField))
	}
	LoggerFromCtx(c.UserContext()).Error(op+" failed", "error", err)
	return legacyError(c, fiber.StatusInternalServerError, "failed to "+op)
}
