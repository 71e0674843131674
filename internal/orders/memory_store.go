package orders

import (
	"context"
	"sort"
	"sync"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/models"
)

// MemoryStore serializes Update per store: fn runs under the write lock.
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[uint]models.Order
	history map[uint][]models.OrderHistoryEntry

	lastOrderID, lastItemID, lastEntryID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[uint]models.Order),
		history: make(map[uint][]models.OrderHistoryEntry),
	}
}

func clone(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	o.Photos = append([]models.OrderPhoto(nil), o.Photos...)
	return o
}

func (s *MemoryStore) Create(_ context.Context, o *models.Order, entries []models.OrderHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.orders {
		if existing.OrderNumber == o.OrderNumber {
			return apperr.Validation("order number %q is taken", o.OrderNumber)
		}
	}
	s.lastOrderID++
	o.ID = s.lastOrderID
	for i := range o.Items {
		s.lastItemID++
		o.Items[i].ID = s.lastItemID
		o.Items[i].OrderID = o.ID
	}
	s.orders[o.ID] = clone(*o)
	s.appendEntries(o.ID, entries)
	return nil
}

func (s *MemoryStore) appendEntries(orderID uint, entries []models.OrderHistoryEntry) {
	for i := range entries {
		s.lastEntryID++
		entries[i].ID = s.lastEntryID
		entries[i].OrderID = orderID
		s.history[orderID] = append(s.history[orderID], entries[i])
	}
}

func (s *MemoryStore) Get(_ context.Context, id uint) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, apperr.NotFound("order %d not found", id)
	}
	return clone(o), nil
}

func (s *MemoryStore) GetByToken(_ context.Context, token string) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.PublicToken == token {
			return clone(o), nil
		}
	}
	return models.Order{}, apperr.NotFound("order not found")
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.AssignedTo != 0 && (o.AssignedTo == nil || *o.AssignedTo != f.AssignedTo) {
			continue
		}
		if f.Courier != 0 && (o.Courier == nil || *o.Courier != f.Courier) {
			continue
		}
		out = append(out, clone(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) History(_ context.Context, orderID uint) ([]models.OrderHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.OrderHistoryEntry(nil), s.history[orderID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ChangedAt.Before(out[j].ChangedAt)
	})
	return out, nil
}

func (s *MemoryStore) Entry(_ context.Context, orderID, entryID uint) (models.OrderHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.history[orderID] {
		if e.ID == entryID {
			return e, nil
		}
	}
	return models.OrderHistoryEntry{}, apperr.NotFound("history entry %d of order %d not found", entryID, orderID)
}

func (s *MemoryStore) Update(_ context.Context, id uint, fn UpdateFunc) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[id]
	if !ok {
		return models.Order{}, apperr.NotFound("order %d not found", id)
	}
	locked := &LockedOrder{Order: clone(cur)}
	if rows := s.history[id]; len(rows) > 0 {
		locked.LastChangeAt = rows[len(rows)-1].ChangedAt
	}

	change, err := fn(locked)
	if err != nil {
		return models.Order{}, err
	}
	if change.empty() {
		return clone(cur), nil
	}

	next := locked.Order
	next.ID = id
	if len(change.Entries) > 0 {
		next.UpdatedAt = change.Entries[0].ChangedAt
	}
	s.orders[id] = clone(next)
	s.appendEntries(id, change.Entries)
	return clone(next), nil
}
