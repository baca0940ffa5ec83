package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/morebnyemba/smart-contracts-escrow/internal/authz"
	"github.com/morebnyemba/smart-contracts-escrow/internal/jwt"
)

const actorKey = "actor"

// WithAuth verifies the bearer token and stores the resulting actor in the
// request locals. The identity service mints tokens with a `sub` claim and,
// for arbitration staff, an `arbiter` boolean.
func WithAuth(verifier *jwt.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)

		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			return Unauthorized(c, "A bearer token is required.")
		}

		claims, err := verifier.Verify(token, time.Now().UTC())
		if err != nil {
			return Unauthorized(c, "The bearer token is invalid or expired.")
		}

		sub, _ := claims["sub"].(string)
		if sub == "" {
			return Unauthorized(c, "The bearer token carries no subject.")
		}

		arbiter, _ := claims["arbiter"].(bool)

		c.Locals(actorKey, authz.Actor{ID: sub, Arbiter: arbiter})

		return c.Next()
	}
}

// ActorFromContext returns the authenticated actor stored by WithAuth.
func ActorFromContext(c *fiber.Ctx) authz.Actor {
	actor, _ := c.Locals(actorKey).(authz.Actor)
	return actor
}
