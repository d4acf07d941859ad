package middleware

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/walletflow/walletflow/internal/identity"
)

// Authenticate verifies the bearer token and attaches the resulting identity to
// the request's user context. Downstream handlers read it with
// identity.FromContext and hand it to the services explicitly.
func Authenticate(verifier *identity.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := identity.ParseBearer(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		caller, err := verifier.Verify(token)
		if err != nil {
			if errors.Is(err, identity.ErrExpiredCredential) {
				return fiber.NewError(http.StatusUnauthorized, "token has expired")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals("user_id", caller.OwnerID())
		c.SetUserContext(identity.WithIdentity(c.UserContext(), caller))
		return c.Next()
	}
}
