package staff

import (
	"github.com/gofiber/fiber/v2"

	"storefront-backend/internal/models"
)

// POST /api/staff
func CreateUserHandler(dir Directory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body NewUser
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		u, err := Register(c.UserContext(), dir, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(u)
	}
}

// GET /api/staff?role=courier
func ListUsersHandler(dir Directory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := models.UserRole(c.Query("role"))
		if role != "" && !role.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "unknown role")
		}
		users, err := dir.List(c.UserContext(), role)
		if err != nil {
			return err
		}
		return c.JSON(users)
	}
}
