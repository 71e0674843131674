package inventory

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/auth"
	"storefront-backend/internal/models"
	"storefront-backend/internal/pricing"
)

// ItemView adds the derived margin and markup to an item.
type ItemView struct {
	models.WarehouseItem
	Margin decimal.Decimal `json:"margin"`
	Markup decimal.Decimal `json:"markup"`
	IsLow  bool            `json:"is_low"`
}

func viewOf(item models.WarehouseItem) ItemView {
	return ItemView{
		WarehouseItem: item,
		Margin:        pricing.Margin(item.CostPrice, item.RetailPrice),
		Markup:        pricing.Markup(item.CostPrice, item.RetailPrice),
		IsLow:         item.IsLow(),
	}
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

// POST /api/warehouse-items
func CreateItemHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body NewItem
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		item, err := svc.CreateItem(c.UserContext(), body, actor)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(viewOf(item))
	}
}

// GET /api/warehouse-items?low=true
func ListItemsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var (
			items []models.WarehouseItem
			err   error
		)
		if c.QueryBool("low") {
			items, err = svc.ListLowStock(c.UserContext())
		} else {
			items, err = svc.ListItems(c.UserContext())
		}
		if err != nil {
			return err
		}
		out := make([]ItemView, 0, len(items))
		for _, item := range items {
			out = append(out, viewOf(item))
		}
		return c.JSON(out)
	}
}

// GET /api/warehouse-items/:id
func GetItemHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		item, err := svc.GetItem(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(viewOf(item))
	}
}

// POST /api/warehouse-items/:id/operations
func ApplyOperationHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body ApplyRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.ItemID = id
		op, err := svc.Apply(c.UserContext(), body, actor)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(op)
	}
}

// PUT /api/warehouse-items/:id/price
func ChangePriceHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body pricing.Edit
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		op, err := svc.ChangePrice(c.UserContext(), id, body, actor)
		if err != nil {
			return err
		}
		item, err := svc.GetItem(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"operation": op,
			"item":      viewOf(item),
		})
	}
}

type recountRequest struct {
	Counted int64  `json:"counted"`
	Reason  string `json:"reason"`
}

// POST /api/warehouse-items/:id/recount
func RecountHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body recountRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		op, err := svc.Recount(c.UserContext(), id, body.Counted, body.Reason, actor)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(op)
	}
}

// GET /api/warehouse-items/:id/operations
func ListOperationsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		ops, err := svc.Operations(c.UserContext(), id)
		if err != nil {
			return err
		}
		if c.Query("order") == "desc" {
			for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
				ops[i], ops[j] = ops[j], ops[i]
			}
		}
		return c.JSON(ops)
	}
}

// GET /api/warehouse-items/:id/verify
func VerifyLedgerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		report, err := svc.VerifyLedger(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"ok":     report.OK(),
			"report": report,
		})
	}
}

// POST /api/products
func CreateProductHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body NewProduct
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		p, err := svc.CreateProduct(c.UserContext(), body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// GET /api/products/:id/recipe
func GetRecipeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		lines, err := svc.Recipe(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(lines)
	}
}

// PUT /api/products/:id/recipe
func SetRecipeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		var body []RecipeLineInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		lines, err := svc.SetRecipe(c.UserContext(), id, body)
		if err != nil {
			return err
		}
		return c.JSON(lines)
	}
}

// GET /api/products/:id/availability
func AvailabilityHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		avail, err := svc.Availability(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(avail)
	}
}

// POST /api/products/:id/sales
func SellProductHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		actor, err := auth.ActorFromCtx(c)
		if err != nil {
			return err
		}
		var body SaleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.ProductID = id
		ops, err := svc.SellProduct(c.UserContext(), body, actor)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(ops)
	}
}
