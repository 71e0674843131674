package orders

import (
	"context"
	"time"

	"storefront-backend/internal/models"
)

// LockedOrder is an order as seen inside Store.Update, with the time of its
// newest history entry.
type LockedOrder struct {
	models.Order
	LastChangeAt time.Time
}

// Change is what one Update persists next to the order's own columns.
type Change struct {
	Entries      []models.OrderHistoryEntry
	AddPhotos    []models.OrderPhoto
	RemovePhotos []string
}

func (c *Change) empty() bool {
	return c == nil || (len(c.Entries) == 0 && len(c.AddPhotos) == 0 && len(c.RemovePhotos) == 0)
}

// UpdateFunc edits o in place. A nil or empty Change means nothing is written.
type UpdateFunc func(o *LockedOrder) (*Change, error)

type Filter struct {
	Status     models.OrderStatus
	AssignedTo uint
	Courier    uint
	Limit      int
}

type Store interface {
	// Create inserts the order with its items and stamps entries with the new id.
	Create(ctx context.Context, o *models.Order, entries []models.OrderHistoryEntry) error
	Get(ctx context.Context, id uint) (models.Order, error)
	GetByToken(ctx context.Context, token string) (models.Order, error)
	List(ctx context.Context, f Filter) ([]models.Order, error)
	// History returns entries oldest first by changed_at, then id.
	History(ctx context.Context, orderID uint) ([]models.OrderHistoryEntry, error)
	Entry(ctx context.Context, orderID, entryID uint) (models.OrderHistoryEntry, error)
	// Update loads the order exclusively, runs fn and saves the order, the
	// photo changes and the entries as one unit.
	Update(ctx context.Context, id uint, fn UpdateFunc) (models.Order, error)
}
