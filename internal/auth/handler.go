package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/config"
	"storefront-backend/internal/models"
	"storefront-backend/internal/staff"
)

type RegisterOwnerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterOwnerHandler creates the first owner account. Once an owner exists
// the route is closed and new staff go through the staff endpoints.
func RegisterOwnerHandler(dir staff.Directory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterOwnerRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		owners, err := dir.List(c.UserContext(), models.RoleOwner)
		if err != nil {
			return err
		}
		if len(owners) > 0 {
			return fiber.NewError(fiber.StatusForbidden, "an owner already exists")
		}

		user, err := staff.Register(c.UserContext(), dir, staff.NewUser{
			Name:     body.Name,
			Email:    body.Email,
			Password: body.Password,
			Role:     models.RoleOwner,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		})
	}
}

func LoginHandler(cfg *config.Config, dir staff.Directory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		user, err := staff.Authenticate(c.UserContext(), dir, body.Email, body.Password)
		if errors.Is(err, apperr.ErrUnauthorized) {
			return fiber.NewError(fiber.StatusUnauthorized, "wrong email or password")
		}
		if err != nil {
			return err
		}

		token, err := GenerateToken(cfg.JWTSecret, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not issue token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  user,
		})
	}
}

func MeHandler(dir staff.Directory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := ActorFromCtx(c)
		if err != nil {
			return err
		}
		user, err := dir.Get(c.UserContext(), actor.UserID)
		if err != nil {
			// token outlived the user row, answer from the claims
			return c.JSON(fiber.Map{
				"user_id": actor.UserID,
				"name":    actor.Name,
				"role":    actor.Role,
			})
		}
		return c.JSON(user)
	}
}
