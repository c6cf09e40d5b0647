package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/setshaba/mapdata/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, dataset_unavailable, internal_error
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
	// State is set on dataset_unavailable responses.
	State *domain.StateSnapshot `json:"state,omitempty"`
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

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errUnavailable returns a 503 carrying the dataset's load state, so clients
// can tell a dataset that is still loading from one that failed.
func errUnavailable(c *fiber.Ctx, snap domain.StateSnapshot) error {
	reqID, _ := c.Locals("requestid").(string)
	msg := "dataset " + snap.Dataset + " is " + string(snap.State)
	if snap.Error != "" {
		msg = snap.Error
	}
	if snap.State == domain.StateLoading || snap.State == domain.StateIdle {
		c.Set(fiber.HeaderRetryAfter, "5")
	}
	return c.Status(503).JSON(APIError{
		Status:    503,
		Code:      "dataset_unavailable",
		Message:   msg,
		RequestID: reqID,
		State:     &snap,
	})
}
