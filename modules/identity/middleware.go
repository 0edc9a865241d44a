package identity

import (
	"strings"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/gofiber/fiber/v2"
)

// ContextKey is the key used to store the identity in the Fiber context.
const ContextKey = "identity"

// Validator validates identity tokens.
type Validator interface {
	Validate(tokenString string) (*Claims, error)
}

// Middleware resolves the caller's identity from the Authorization header or,
// for browsers opening sockets, the token query parameter.
// When required is false, a missing or invalid token continues anonymously.
func Middleware(v Validator, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := tokenFrom(c)
		if token == "" {
			if required {
				return fiber.NewError(fiber.StatusUnauthorized, "authentication credentials were not provided")
			}
			return c.Next()
		}

		claims, err := v.Validate(token)
		if err != nil {
			if required {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
			}
			return c.Next()
		}

		c.Locals(ContextKey, claims.Identity())
		return c.Next()
	}
}

// FromContext returns the identity stored by Middleware, or nil.
func FromContext(c *fiber.Ctx) *domain.Identity {
	id, _ := c.Locals(ContextKey).(*domain.Identity)
	return id
}

func tokenFrom(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return c.Query("token")
}
