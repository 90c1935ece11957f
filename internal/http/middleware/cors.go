package middleware

import "github.com/gofiber/fiber/v2"

const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "POST, OPTIONS"
)

// CORS adds the browser access headers to every response and answers preflight with 200 "ok"
// (fiber's cors middleware answers 204).
func CORS(allowOrigin string) fiber.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowOrigin, allowOrigin)
		c.Set(fiber.HeaderAccessControlAllowHeaders, corsAllowHeaders)
		c.Set(fiber.HeaderAccessControlAllowMethods, corsAllowMethods)
		if c.Method() == fiber.MethodOptions {
			return c.Status(fiber.StatusOK).SendString("ok")
		}
		return c.Next()
	}
}
