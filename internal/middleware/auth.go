package middleware

import (
	"civicfund-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const userLocal = "user"

// RequireAuth ensures a user is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals(userLocal)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		// Attach auth context for handlers (same key)
		c.Locals("auth", user)
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// GetSessionUser returns the typed session user, or nil when not logged in
// or the session shape is stale.
func GetSessionUser(c *fiber.Ctx) *SessionUser {
	m, ok := c.Locals(userLocal).(map[string]interface{})
	if !ok {
		return nil
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	u := &SessionUser{
		UserID:   str("user_id"),
		Fullname: str("fullname"),
		Email:    str("email"),
		Role:     str("role"),
		Zip:      str("zip"),
	}
	if u.UserID == "" {
		return nil
	}
	return u
}
