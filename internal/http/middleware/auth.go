package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"imagegen/internal/auth"
	"imagegen/internal/model"
)

// IdentityLocalKey is the key under which the authenticated model.Identity is stored.
const IdentityLocalKey = "identity"

// RequireAuth resolves the bearer token through authn and stores the identity in locals.
// Requests without a valid token are answered by deny.
func RequireAuth(authn auth.Authenticator, deny fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return deny(c)
		}
		id, err := authn.Authenticate(c.UserContext(), token)
		if err != nil {
			return deny(c)
		}
		c.Locals(IdentityLocalKey, id)
		return c.Next()
	}
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header, or "".
func BearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// IdentityFrom returns the identity stored by RequireAuth, or the anonymous identity.
func IdentityFrom(c *fiber.Ctx) model.Identity {
	id, _ := c.Locals(IdentityLocalKey).(model.Identity)
	return id
}
