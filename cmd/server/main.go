package main

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/audit"
	"storefront-backend/internal/auth"
	"storefront-backend/internal/config"
	"storefront-backend/internal/database"
	"storefront-backend/internal/inventory"
	"storefront-backend/internal/locker"
	"storefront-backend/internal/models"
	"storefront-backend/internal/orders"
	"storefront-backend/internal/staff"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	var (
		invStore   inventory.Store
		orderStore orders.Store
		dir        staff.Directory
	)
	if cfg.StoreDriver == "memory" {
		logger.Warn("STORE_DRIVER=memory, nothing survives a restart")
		invStore = inventory.NewMemoryStore()
		orderStore = orders.NewMemoryStore()
		dir = staff.NewMemoryDirectory()
	} else {
		db := database.MustOpen(cfg, logger)
		invStore = inventory.NewGormStore(db)
		orderStore = orders.NewGormStore(db)
		dir = staff.NewGormDirectory(db)
	}

	locks := newLocker(cfg, logger)
	invSvc := inventory.NewService(invStore, locks, logger,
		inventory.WithUnboundedCap(cfg.UnboundedAvailabilityCap))
	orderSvc := orders.NewService(orderStore, locks, invSvc, dir, logger,
		orders.WithPhoneRegion(cfg.PhoneRegion))

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := apperr.StatusCode(err)
			if code >= fiber.StatusInternalServerError {
				logger.WithFields(logrus.Fields{
					"method": c.Method(),
					"path":   c.Path(),
				}).WithError(err).Error("unexpected error")
				return c.Status(code).JSON(fiber.Map{"error": "unexpected server error"})
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + auth.ActorHeader + ", " + auth.CustomerNameHeader,
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public
	api.Post("/auth/register-owner", auth.RegisterOwnerHandler(dir))
	api.Post("/auth/login", auth.LoginHandler(cfg, dir))

	// Customer side: the storefront sends X-Actor: customer
	public := api.Group("/public")
	public.Post("/orders", orders.CreateOrderHandler(orderSvc))
	public.Get("/orders/:token", orders.PublicGetOrderHandler(orderSvc))
	public.Patch("/orders/:token", orders.PublicUpdateOrderHandler(orderSvc))
	public.Get("/products/:id/availability", inventory.AvailabilityHandler(invSvc))

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))
	protected.Get("/auth/me", auth.MeHandler(dir))

	managers := auth.RequireRole(models.RoleOwner, models.RoleManager)

	// Staff accounts
	protected.Post("/staff", managers, staff.CreateUserHandler(dir))
	protected.Get("/staff", staff.ListUsersHandler(dir))

	// Warehouse
	protected.Post("/warehouse-items", managers, inventory.CreateItemHandler(invSvc))
	protected.Get("/warehouse-items", inventory.ListItemsHandler(invSvc))
	protected.Get("/warehouse-items/:id", inventory.GetItemHandler(invSvc))
	protected.Post("/warehouse-items/:id/operations", inventory.ApplyOperationHandler(invSvc))
	protected.Get("/warehouse-items/:id/operations", inventory.ListOperationsHandler(invSvc))
	protected.Get("/warehouse-items/:id/operations/export", inventory.ExportOperationsHandler(invSvc))
	protected.Put("/warehouse-items/:id/price", managers, inventory.ChangePriceHandler(invSvc))
	protected.Post("/warehouse-items/:id/recount", inventory.RecountHandler(invSvc))
	protected.Get("/warehouse-items/:id/verify", managers, inventory.VerifyLedgerHandler(invSvc))

	// Catalog
	protected.Post("/products", managers, inventory.CreateProductHandler(invSvc))
	protected.Get("/products/:id/recipe", inventory.GetRecipeHandler(invSvc))
	protected.Put("/products/:id/recipe", managers, inventory.SetRecipeHandler(invSvc))
	protected.Get("/products/:id/availability", inventory.AvailabilityHandler(invSvc))
	protected.Post("/products/:id/sales", inventory.SellProductHandler(invSvc))

	// Orders
	protected.Post("/orders", orders.CreateOrderHandler(orderSvc))
	protected.Get("/orders", orders.ListOrdersHandler(orderSvc))
	protected.Get("/orders/:id", orders.GetOrderHandler(orderSvc))
	protected.Patch("/orders/:id", orders.UpdateOrderHandler(orderSvc))
	protected.Post("/orders/:id/status", orders.TransitionHandler(orderSvc))
	protected.Post("/orders/:id/photos", orders.AttachPhotoHandler(orderSvc))
	protected.Delete("/orders/:id/photos/:photoId", orders.RemovePhotoHandler(orderSvc))
	protected.Put("/orders/:id/team", orders.AssignHandler(orderSvc))
	protected.Delete("/orders/:id/team/:slot", orders.UnassignHandler(orderSvc))
	protected.Get("/orders/:id/history", audit.ListHistoryHandler(orderSvc))
	protected.Post("/orders/:id/history/:entryId/revert", managers, orders.RevertEntryHandler(orderSvc))

	logger.WithFields(logrus.Fields{
		"port":   cfg.HTTPPort,
		"store":  cfg.StoreDriver,
		"region": cfg.PhoneRegion,
	}).Info("server starting")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

// newLocker uses Redis when REDIS_ADDRESS is set so several instances share
// one set of item and order locks.
func newLocker(cfg *config.Config, logger *logrus.Logger) locker.Locker {
	if cfg.RedisAddress == "" {
		return locker.NewLocal()
	}
	rdb, err := locker.DialRedis(context.Background(), cfg.RedisAddress)
	if err != nil {
		logger.WithError(err).WithField("addr", cfg.RedisAddress).Fatal("redis unavailable")
	}
	logger.WithField("addr", cfg.RedisAddress).Info("using redis locks")
	return locker.NewRedis(rdb, cfg.LockTTL, logger)
}
