package inventory

import (
	"context"
	"time"

	"storefront-backend/internal/models"
)

// LockedItem is an item as seen inside Store.Commit, together with the time of
// its newest ledger row (zero when the ledger is empty).
type LockedItem struct {
	models.WarehouseItem
	LastOperationAt time.Time
}

// CommitFunc mutates the locked items in place and returns the ledger rows to
// append. Returning an error aborts the commit with nothing written.
type CommitFunc func(items map[uint]*LockedItem) ([]models.WarehouseOperation, error)

// Store is the durable side of the ledger. Only Service writes through it.
type Store interface {
	CreateItem(ctx context.Context, item *models.WarehouseItem) error
	GetItem(ctx context.Context, id uint) (models.WarehouseItem, error)
	ListItems(ctx context.Context) ([]models.WarehouseItem, error)
	// Operations returns an item's ledger oldest first.
	Operations(ctx context.Context, itemID uint) ([]models.WarehouseOperation, error)
	// Commit reads the items, runs fn and persists the rows plus the item
	// changes as one unit. Either everything is written or nothing is.
	Commit(ctx context.Context, itemIDs []uint, fn CommitFunc) ([]models.WarehouseOperation, error)

	CreateProduct(ctx context.Context, p *models.Product) error
	// GetProduct loads the product with its recipe lines.
	GetProduct(ctx context.Context, id uint) (models.Product, error)
	ReplaceRecipe(ctx context.Context, productID uint, lines []models.ProductRecipeLine) error
}
