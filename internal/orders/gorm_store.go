package orders

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

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func orderNotFound(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("order %d not found", id)
	}
	return err
}

func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Photos", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") })
}

func (s *GormStore) Create(ctx context.Context, o *models.Order, entries []models.OrderHistoryEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Photos").Create(o).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		for i := range entries {
			entries[i].OrderID = o.ID
		}
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("create order history: %w", err)
		}
		return nil
	})
}

func (s *GormStore) Get(ctx context.Context, id uint) (models.Order, error) {
	var o models.Order
	if err := withChildren(s.db.WithContext(ctx)).First(&o, "id = ?", id).Error; err != nil {
		return o, orderNotFound(err, id)
	}
	return o, nil
}

func (s *GormStore) GetByToken(ctx context.Context, token string) (models.Order, error) {
	var o models.Order
	err := withChildren(s.db.WithContext(ctx)).First(&o, "public_token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return o, apperr.NotFound("order not found")
	}
	return o, err
}

func (s *GormStore) List(ctx context.Context, f Filter) ([]models.Order, error) {
	q := withChildren(s.db.WithContext(ctx)).Order("id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AssignedTo != 0 {
		q = q.Where("assigned_to = ?", f.AssignedTo)
	}
	if f.Courier != 0 {
		q = q.Where("courier = ?", f.Courier)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.Order
	err := q.Find(&out).Error
	return out, err
}

func (s *GormStore) History(ctx context.Context, orderID uint) ([]models.OrderHistoryEntry, error) {
	var entries []models.OrderHistoryEntry
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("changed_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (s *GormStore) Entry(ctx context.Context, orderID, entryID uint) (models.OrderHistoryEntry, error) {
	var e models.OrderHistoryEntry
	err := s.db.WithContext(ctx).First(&e, "id = ? AND order_id = ?", entryID, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e, apperr.NotFound("history entry %d of order %d not found", entryID, orderID)
	}
	return e, err
}

func (s *GormStore) Update(ctx context.Context, id uint, fn UpdateFunc) (models.Order, error) {
	var out models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, "id = ?", id).Error; err != nil {
			return orderNotFound(err, id)
		}
		if err := tx.Where("order_id = ?", id).Order("id ASC").Find(&cur.Items).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Order("created_at ASC, id ASC").Find(&cur.Photos).Error; err != nil {
			return err
		}

		var last sql.NullTime
		if err := tx.Model(&models.OrderHistoryEntry{}).
			Select("MAX(changed_at)").
			Where("order_id = ?", id).
			Row().Scan(&last); err != nil {
			return fmt.Errorf("last history entry of order %d: %w", id, err)
		}
		locked := &LockedOrder{Order: cur}
		if last.Valid {
			locked.LastChangeAt = last.Time
		}

		change, err := fn(locked)
		if err != nil {
			return err
		}
		if change.empty() {
			out = cur
			return nil
		}

		locked.ID = id
		if err := tx.Omit(clause.Associations).Save(&locked.Order).Error; err != nil {
			return fmt.Errorf("save order %d: %w", id, err)
		}
		if len(change.RemovePhotos) > 0 {
			if err := tx.Where("order_id = ? AND id IN ?", id, change.RemovePhotos).Delete(&models.OrderPhoto{}).Error; err != nil {
				return fmt.Errorf("remove photos of order %d: %w", id, err)
			}
		}
		if len(change.AddPhotos) > 0 {
			if err := tx.Create(&change.AddPhotos).Error; err != nil {
				return fmt.Errorf("add photos to order %d: %w", id, err)
			}
		}
		if len(change.Entries) > 0 {
			for i := range change.Entries {
				change.Entries[i].OrderID = id
			}
			if err := tx.Create(&change.Entries).Error; err != nil {
				return fmt.Errorf("append history of order %d: %w", id, err)
			}
		}
		out = locked.Order
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	return out, nil
}
