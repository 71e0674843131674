package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/models"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserNameKey = "user_name"
	CtxUserRoleKey = "user_role"
)

// Customer edits come in on public routes marked with this header.
const (
	ActorHeader        = "X-Actor"
	CustomerNameHeader = "X-Customer-Name"
)

func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization must be 'Bearer <token>'")
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		actor, err := claims.Actor()
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(CtxUserIDKey, actor.UserID)
		c.Locals(CtxUserNameKey, actor.Name)
		c.Locals(CtxUserRoleKey, actor.Role)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "role is missing")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "your role cannot do this")
	}
}

// ActorFromCtx returns the staff member set by JWTMiddleware, or the customer
// when the request carries "X-Actor: customer" and no token.
func ActorFromCtx(c *fiber.Ctx) (models.Actor, error) {
	if id, ok := c.Locals(CtxUserIDKey).(uint); ok && id != 0 {
		name, _ := c.Locals(CtxUserNameKey).(string)
		role, _ := c.Locals(CtxUserRoleKey).(models.UserRole)
		return models.Actor{UserID: id, Name: name, Role: role}, nil
	}
	if strings.EqualFold(c.Get(ActorHeader), models.CustomerActorID) {
		name := strings.TrimSpace(c.Get(CustomerNameHeader))
		if name == "" {
			name = "customer"
		}
		return models.CustomerActor(name), nil
	}
	return models.Actor{}, apperr.Unauthorized("no acting user on the request")
}
