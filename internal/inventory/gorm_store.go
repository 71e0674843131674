package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/models"
)

// GormStore keeps the ledger in SQL. Commit takes SELECT ... FOR UPDATE row
// locks on the items, so it stays correct even across processes without redis.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}

func (s *GormStore) CreateItem(ctx context.Context, item *models.WarehouseItem) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.WarehouseItem{}).Where("name = ?", item.Name).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.Validation("warehouse item %q already exists", item.Name)
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *GormStore) GetItem(ctx context.Context, id uint) (models.WarehouseItem, error) {
	var item models.WarehouseItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return item, notFound(err, "warehouse item %d not found", id)
	}
	return item, nil
}

func (s *GormStore) ListItems(ctx context.Context) ([]models.WarehouseItem, error) {
	var items []models.WarehouseItem
	err := s.db.WithContext(ctx).Order("name ASC").Find(&items).Error
	return items, err
}

func (s *GormStore) Operations(ctx context.Context, itemID uint) ([]models.WarehouseOperation, error) {
	var ops []models.WarehouseOperation
	err := s.db.WithContext(ctx).
		Where("warehouse_item_id = ?", itemID).
		Order("created_at ASC, id ASC").
		Find(&ops).Error
	return ops, err
}

func (s *GormStore) Commit(ctx context.Context, itemIDs []uint, fn CommitFunc) ([]models.WarehouseOperation, error) {
	var rows []models.WarehouseOperation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []models.WarehouseItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", itemIDs).
			Order("id ASC").
			Find(&items).Error; err != nil {
			return err
		}

		locked := make(map[uint]*LockedItem, len(items))
		for _, item := range items {
			var last sql.NullTime
			if err := tx.Model(&models.WarehouseOperation{}).
				Select("MAX(created_at)").
				Where("warehouse_item_id = ?", item.ID).
				Row().Scan(&last); err != nil {
				return fmt.Errorf("last operation of item %d: %w", item.ID, err)
			}
			li := &LockedItem{WarehouseItem: item}
			if last.Valid {
				li.LastOperationAt = last.Time
			}
			locked[item.ID] = li
		}
		for _, id := range itemIDs {
			if _, ok := locked[id]; !ok {
				return apperr.NotFound("warehouse item %d not found", id)
			}
		}

		var err error
		rows, err = fn(locked)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("append ledger rows: %w", err)
			}
		}
		for id, li := range locked {
			if err := tx.Model(&models.WarehouseItem{}).Where("id = ?", id).Updates(map[string]any{
				"quantity":     li.Quantity,
				"cost_price":   li.CostPrice,
				"retail_price": li.RetailPrice,
			}).Error; err != nil {
				return fmt.Errorf("update item %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormStore) CreateProduct(ctx context.Context, p *models.Product) error {
	return s.db.WithContext(ctx).Omit("Recipe").Create(p).Error
}

func (s *GormStore) GetProduct(ctx context.Context, id uint) (models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).
		Preload("Recipe", func(db *gorm.DB) *gorm.DB { return db.Order("warehouse_item_id ASC") }).
		First(&p, "id = ?", id).Error
	if err != nil {
		return p, notFound(err, "product %d not found", id)
	}
	return p, nil
}

func (s *GormStore) ReplaceRecipe(ctx context.Context, productID uint, lines []models.ProductRecipeLine) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperr.NotFound("product %d not found", productID)
		}
		if err := tx.Where("product_id = ?", productID).Delete(&models.ProductRecipeLine{}).Error; err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		for i := range lines {
			lines[i].ID = 0
			lines[i].ProductID = productID
		}
		return tx.Create(&lines).Error
	})
}
