package orders

import (
	"github.com/gofiber/fiber/v2"

	"storefront-backend/internal/auth"
	"storefront-backend/internal/models"
)

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

// POST /api/orders
func CreateOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body NewOrder
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		o, err := svc.CreateOrder(c.UserContext(), body, actor)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(o)
	}
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}

// GET /api/orders?status=paid&assigned_to=3&courier=5&limit=50
func ListOrdersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{
			Status:     models.OrderStatus(c.Query("status")),
			AssignedTo: uint(c.QueryInt("assigned_to")),
			Courier:    uint(c.QueryInt("courier")),
			Limit:      clampLimit(c.QueryInt("limit", defaultListLimit)),
		}
		orders, err := svc.ListOrders(c.UserContext(), f)
		if err != nil {
			return err
		}
		return c.JSON(orders)
	}
}

// GET /api/orders/:id
func GetOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		o, err := svc.GetOrder(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(o)
	}
}

// GET /api/public/orders/:token
func PublicGetOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		o, err := svc.GetOrderByToken(c.UserContext(), c.Params("token"))
		if err != nil {
			return err
		}
		return c.JSON(o)
	}
}

// PATCH /api/public/orders/:token
func PublicUpdateOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body Patch
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		o, err := svc.UpdateOrderByToken(c.UserContext(), c.Params("token"), body, actor)
		if err != nil {
			return err
		}
		return c.JSON(o)
	}
}

// PATCH /api/orders/:id
func UpdateOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body Patch
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		o, err := svc.UpdateOrder(c.UserContext(), id, body, actor)
		if err != nil {
			return err
		}
		return c.JSON(o)
	}
}

type transitionRequest struct {
	Status models.OrderStatus `json:"status"`
}

// POST /api/orders/:id/status
func TransitionHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body transitionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		o, entry, err := svc.Transition(c.UserContext(), id, body.Status, actor)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"order": o,
			"entry": entry,
		})
	}
}

// POST /api/orders/:id/photos
func AttachPhotoHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body NewPhoto
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		o, err := svc.AttachPhoto(c.UserContext(), id, body, actor)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(o)
	}
}

// DELETE /api/orders/:id/photos/:photoId
func RemovePhotoHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		o, err := svc.RemovePhoto(c.UserContext(), id, c.Params("photoId"), actor)
		if err != nil {
			return err
		}
		return c.JSON(o)
	}
}

type assignRequest struct {
	Slot   Slot `json:"slot"`
	UserID uint `json:"user_id"`
}

// PUT /api/orders/:id/team
func AssignHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body assignRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		o, err := svc.Assign(c.UserContext(), id, body.Slot, body.UserID, actor)
		if err != nil {
			return err
		}
		return c.JSON(o)
	}
}

// DELETE /api/orders/:id/team/:slot
func UnassignHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		o, err := svc.Unassign(c.UserContext(), id, Slot(c.Params("slot")), actor)
		if err != nil {
			return err
		}
		return c.JSON(o)
	}
}

// POST /api/orders/:id/history/:entryId/revert
func RevertEntryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		entryID, err := paramID(c, "entryId")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		o, err := svc.RevertEntry(c.UserContext(), id, entryID, actor)
		if err != nil {
			return err
		}
		return c.JSON(o)
	}
}
