package audit

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"storefront-backend/internal/models"
)

// HistorySource is anything that can list an order's history entries.
type HistorySource interface {
	History(ctx context.Context, orderID uint, newestFirst bool) ([]models.OrderHistoryEntry, error)
}

// GET /api/orders/:id/history?order=desc&field=status
func ListHistoryHandler(src HistorySource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
		}

		entries, err := src.History(c.UserContext(), uint(id), c.Query("order") == "desc")
		if err != nil {
			return err
		}

		field := c.Query("field")
		if field == "" {
			return c.JSON(entries)
		}
		filtered := make([]models.OrderHistoryEntry, 0, len(entries))
		for _, e := range entries {
			if e.FieldName == field {
				filtered = append(filtered, e)
			}
		}
		return c.JSON(filtered)
	}
}
