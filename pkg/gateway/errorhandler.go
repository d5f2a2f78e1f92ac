package gateway

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ryan12324/openassistant/pkg/errx"
	"github.com/ryan12324/openassistant/pkg/logx"
)

// ErrorHandler converts handler errors to JSON responses. With debug set,
// the underlying cause of an *errx.Error is included.
func ErrorHandler(debug bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		requestID := c.GetRespHeader(fiber.HeaderXRequestID)

		entry := logx.WithFields(logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"ip":         c.IP(),
			"request_id": requestID,
		})

		var fe *fiber.Error
		if errors.As(err, &fe) {
			entry.Debugf("request error: %v", err)
			return c.Status(fe.Code).JSON(fiber.Map{
				"error":      fe.Message,
				"code":       "FIBER_ERROR",
				"status":     fe.Code,
				"request_id": requestID,
			})
		}

		var e *errx.Error
		if errors.As(err, &e) {
			if e.HTTPStatus >= fiber.StatusInternalServerError {
				entry.Errorf("request error: %v", err)
			} else {
				entry.Infof("request rejected: %v", err)
			}

			status := e.HTTPStatus
			if status == 0 {
				status = fiber.StatusInternalServerError
			}
			response := fiber.Map{
				"error":      e.Message,
				"code":       e.Code,
				"type":       string(e.Type),
				"status":     status,
				"request_id": requestID,
			}
			if len(e.Details) > 0 {
				response["details"] = e.Details
			}
			if debug && e.Err != nil {
				response["underlying_error"] = e.Err.Error()
			}
			return c.Status(status).JSON(response)
		}

		entry.Errorf("request error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "Internal Server Error",
			"type":       "INTERNAL",
			"code":       "INTERNAL_ERROR",
			"message":    "An unexpected error occurred",
			"request_id": requestID,
		})
	}
}

// NotFound answers requests no route matched.
func NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
	})
}
