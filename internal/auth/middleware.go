package auth

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/enclave-chat/enclave-server/internal/httputil"
)

// RequireAuth returns Fiber middleware that validates a JWT session token and
// stores the user identity in c.Locals("userID") and c.Locals("username").
// The token is read from the Authorization Bearer header, or from the token
// query parameter so that browser WebSocket clients can authenticate without
// custom headers.
func RequireAuth(secret string) fiber.Handler {
	return func(c fiber.Ctx) error {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			return httputil.Fail(c, fiber.StatusUnauthorized, "missing authorization token")
		}

		claims, err := ValidateToken(tokenStr, secret)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				message = "token has expired"
			}
			return httputil.Fail(c, fiber.StatusUnauthorized, message)
		}

		c.Locals("userID", claims.UserID)
		c.Locals("username", claims.Username)
		return c.Next()
	}
}

// UserID returns the authenticated user id stored by RequireAuth.
func UserID(c fiber.Ctx) int64 {
	id, _ := c.Locals("userID").(int64)
	return id
}

// Username returns the authenticated username stored by RequireAuth.
func Username(c fiber.Ctx) string {
	name, _ := c.Locals("username").(string)
	return name
}

func bearerToken(c fiber.Ctx) string {
	header := c.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}
