package auth

import (
	"github.com/gofiber/fiber/v2"
)

const (
	LocalUserID   = "user_id"
	localIdentity = "identity"
)

// CredentialVerifier is satisfied by *Service.
type CredentialVerifier interface {
	VerifyCredential(token string) (Identity, error)
}

// JWTMiddleware rejects requests without a bearer token with 401 and requests
// whose token fails verification with 403. The verified user id is stored in locals.
func JWTMiddleware(v CredentialVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := parseBearer(c.Get("Authorization"))
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "No token provided")
		}

		id, err := v.VerifyCredential(token)
		if err != nil {
			return fiber.NewError(fiber.StatusForbidden, "Failed to authenticate token")
		}

		c.Locals(LocalUserID, id.UserID)
		c.Locals(localIdentity, id)
		return c.Next()
	}
}

// UserID returns the identity placed in locals by JWTMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

func identityOf(c *fiber.Ctx) (Identity, bool) {
	id, ok := c.Locals(localIdentity).(Identity)
	return id, ok
}
