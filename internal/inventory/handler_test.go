package inventory

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/auth"
	"storefront-backend/internal/models"
)

func newTestApp(t *testing.T) (*fiber.App, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t)
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperr.StatusCode(err)).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CtxUserIDKey, manager.UserID)
		c.Locals(auth.CtxUserNameKey, manager.Name)
		c.Locals(auth.CtxUserRoleKey, manager.Role)
		return c.Next()
	})
	app.Post("/warehouse-items", CreateItemHandler(svc))
	app.Get("/warehouse-items", ListItemsHandler(svc))
	app.Get("/warehouse-items/:id", GetItemHandler(svc))
	app.Post("/warehouse-items/:id/operations", ApplyOperationHandler(svc))
	app.Get("/warehouse-items/:id/operations", ListOperationsHandler(svc))
	app.Get("/warehouse-items/:id/operations/export", ExportOperationsHandler(svc))
	app.Put("/warehouse-items/:id/price", ChangePriceHandler(svc))
	app.Post("/warehouse-items/:id/recount", RecountHandler(svc))
	app.Get("/warehouse-items/:id/verify", VerifyLedgerHandler(svc))
	app.Post("/products", CreateProductHandler(svc))
	app.Put("/products/:id/recipe", SetRecipeHandler(svc))
	app.Get("/products/:id/recipe", GetRecipeHandler(svc))
	app.Get("/products/:id/availability", AvailabilityHandler(svc))
	app.Post("/products/:id/sales", SellProductHandler(svc))
	return app, svc
}

func do(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestItemLifecycleOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)

	resp := do(t, app, fiber.MethodPost, "/warehouse-items",
		`{"name":"Rose","unit":"stem","cost_price":1000,"retail_price":1500,"min_quantity":5,"initial_quantity":12}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created ItemView
	decode(t, resp, &created)
	assert.Equal(t, int64(12), created.Quantity)
	assert.Equal(t, "33.3", created.Margin.String())
	assert.Equal(t, "50", created.Markup.String())

	resp = do(t, app, fiber.MethodPost, "/warehouse-items/1/operations",
		`{"operation_type":"writeoff","quantity_change":-2}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = do(t, app, fiber.MethodPost, "/warehouse-items/1/operations",
		`{"operation_type":"writeoff","quantity_change":-20,"reason":"frost"}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = do(t, app, fiber.MethodPost, "/warehouse-items/1/operations",
		`{"operation_type":"sale","quantity_change":-4}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var op models.WarehouseOperation
	decode(t, resp, &op)
	assert.Equal(t, int64(8), op.BalanceAfter)
	assert.Equal(t, "7", op.Actor)

	resp = do(t, app, fiber.MethodPut, "/warehouse-items/1/price", `{"markup":"60"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var priced struct {
		Operation models.WarehouseOperation `json:"operation"`
		Item      ItemView                  `json:"item"`
	}
	decode(t, resp, &priced)
	assert.Equal(t, int64(1600), priced.Item.RetailPrice)
	assert.Equal(t, models.OperationPriceChange, priced.Operation.OperationType)

	resp = do(t, app, fiber.MethodPost, "/warehouse-items/1/recount", `{"counted":7,"reason":"evening count"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = do(t, app, fiber.MethodGet, "/warehouse-items/1/operations?order=desc", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var ops []models.WarehouseOperation
	decode(t, resp, &ops)
	require.Len(t, ops, 4)
	assert.Equal(t, models.OperationInventory, ops[0].OperationType)
	assert.Equal(t, int64(7), ops[0].BalanceAfter)

	resp = do(t, app, fiber.MethodGet, "/warehouse-items/1/verify", "")
	var verify struct {
		OK bool `json:"ok"`
	}
	decode(t, resp, &verify)
	assert.True(t, verify.OK)

	resp = do(t, app, fiber.MethodGet, "/warehouse-items/99", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp = do(t, app, fiber.MethodGet, "/warehouse-items/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListLowOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)
	do(t, app, fiber.MethodPost, "/warehouse-items", `{"name":"Moss","unit":"kg","min_quantity":3,"initial_quantity":1}`)
	do(t, app, fiber.MethodPost, "/warehouse-items", `{"name":"Fern","unit":"stem","min_quantity":3,"initial_quantity":30}`)

	resp := do(t, app, fiber.MethodGet, "/warehouse-items?low=true", "")
	var low []ItemView
	decode(t, resp, &low)
	require.Len(t, low, 1)
	assert.Equal(t, "Moss", low[0].Name)
	assert.True(t, low[0].IsLow)
}

func TestProductSaleOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)
	do(t, app, fiber.MethodPost, "/warehouse-items", `{"name":"A","unit":"pcs","initial_quantity":9}`)
	do(t, app, fiber.MethodPost, "/warehouse-items", `{"name":"B","unit":"pcs","initial_quantity":10}`)

	resp := do(t, app, fiber.MethodPost, "/products", `{"name":"Bouquet","price":9900}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = do(t, app, fiber.MethodPut, "/products/1/recipe",
		`[{"warehouse_item_id":1,"quantity_per_unit":3},{"warehouse_item_id":2,"quantity_per_unit":2}]`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = do(t, app, fiber.MethodGet, "/products/1/availability", "")
	var avail Availability
	decode(t, resp, &avail)
	assert.Equal(t, int64(3), avail.Units)
	assert.False(t, avail.Unbounded)

	resp = do(t, app, fiber.MethodPost, "/products/1/sales", `{"units":4}`)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = do(t, app, fiber.MethodPost, "/products/1/sales", `{"units":3,"reference":"order-1"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var rows []models.WarehouseOperation
	decode(t, resp, &rows)
	assert.Len(t, rows, 2)

	resp = do(t, app, fiber.MethodGet, "/products/1/recipe", "")
	var lines []models.ProductRecipeLine
	decode(t, resp, &lines)
	assert.Len(t, lines, 2)
}

func TestExportOperations(t *testing.T) {
	app, svc := newTestApp(t)
	item := mustItem(t, svc, "Hydrangea", 6)

	resp := do(t, app, fiber.MethodGet, "/warehouse-items/1/operations/export", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "ledger-1.xlsx")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue(ledgerSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, item.Name+" (pcs), quantity 6", title)

	heading, err := f.GetCellValue(ledgerSheet, "E3")
	require.NoError(t, err)
	assert.Equal(t, "Balance", heading)

	kind, err := f.GetCellValue(ledgerSheet, "C4")
	require.NoError(t, err)
	assert.Equal(t, "delivery", kind)
	balance, err := f.GetCellValue(ledgerSheet, "E4")
	require.NoError(t, err)
	assert.Equal(t, "6", balance)
}
