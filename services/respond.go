package services

import (
	"github.com/gofiber/fiber/v2"
)

// ok wraps successful payloads in the platform envelope. Failures go
// through the central error handler instead.
func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"status": true, "data": data})
}
