package inventory

import (
	"context"
	"sort"
	"sync"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/models"
)

// MemoryStore keeps everything in maps. Commit does not hold the store mutex
// while fn runs, so callers must serialize per item (Service does, via locker).
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[uint]models.WarehouseItem
	ops      map[uint][]models.WarehouseOperation
	products map[uint]models.Product
	recipes  map[uint][]models.ProductRecipeLine

	lastItemID, lastOpID, lastProductID, lastLineID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[uint]models.WarehouseItem),
		ops:      make(map[uint][]models.WarehouseOperation),
		products: make(map[uint]models.Product),
		recipes:  make(map[uint][]models.ProductRecipeLine),
	}
}

func (s *MemoryStore) CreateItem(_ context.Context, item *models.WarehouseItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.Name == item.Name {
			return apperr.Validation("warehouse item %q already exists", item.Name)
		}
	}
	s.lastItemID++
	item.ID = s.lastItemID
	s.items[item.ID] = *item
	return nil
}

func (s *MemoryStore) GetItem(_ context.Context, id uint) (models.WarehouseItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return models.WarehouseItem{}, apperr.NotFound("warehouse item %d not found", id)
	}
	return item, nil
}

func (s *MemoryStore) ListItems(_ context.Context) ([]models.WarehouseItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.WarehouseItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Operations(_ context.Context, itemID uint) ([]models.WarehouseOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.WarehouseOperation(nil), s.ops[itemID]...), nil
}

func (s *MemoryStore) Commit(_ context.Context, itemIDs []uint, fn CommitFunc) ([]models.WarehouseOperation, error) {
	s.mu.RLock()
	locked := make(map[uint]*LockedItem, len(itemIDs))
	for _, id := range itemIDs {
		item, ok := s.items[id]
		if !ok {
			s.mu.RUnlock()
			return nil, apperr.NotFound("warehouse item %d not found", id)
		}
		li := &LockedItem{WarehouseItem: item}
		if rows := s.ops[id]; len(rows) > 0 {
			li.LastOperationAt = rows[len(rows)-1].CreatedAt
		}
		locked[id] = li
	}
	s.mu.RUnlock()

	rows, err := fn(locked)
	if err != nil {
		return nil, err
	}
	for _, li := range locked {
		if li.Quantity < 0 {
			return nil, apperr.InsufficientStock("warehouse item %d would go below zero", li.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range rows {
		s.lastOpID++
		rows[i].ID = s.lastOpID
		s.ops[rows[i].WarehouseItemID] = append(s.ops[rows[i].WarehouseItemID], rows[i])
	}
	for id, li := range locked {
		item := li.WarehouseItem
		if len(rows) > 0 {
			item.UpdatedAt = rows[len(rows)-1].CreatedAt
		}
		s.items[id] = item
	}
	return rows, nil
}

func (s *MemoryStore) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProductID++
	p.ID = s.lastProductID
	stored := *p
	stored.Recipe = nil
	s.products[p.ID] = stored
	return nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id uint) (models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, apperr.NotFound("product %d not found", id)
	}
	p.Recipe = append([]models.ProductRecipeLine(nil), s.recipes[id]...)
	return p, nil
}

func (s *MemoryStore) ReplaceRecipe(_ context.Context, productID uint, lines []models.ProductRecipeLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return apperr.NotFound("product %d not found", productID)
	}
	stored := make([]models.ProductRecipeLine, len(lines))
	for i, l := range lines {
		s.lastLineID++
		l.ID = s.lastLineID
		l.ProductID = productID
		stored[i] = l
	}
	s.recipes[productID] = stored
	return nil
}
