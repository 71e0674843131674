package models

import "time"

type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:150;not null" json:"name"`
	Price     int64     `gorm:"not null;default:0" json:"price"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Recipe []ProductRecipeLine `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"recipe,omitempty"`
}

// ProductRecipeLine says how many units of a warehouse item one produced unit consumes.
type ProductRecipeLine struct {
	ID              uint  `gorm:"primaryKey" json:"id"`
	ProductID       uint  `gorm:"uniqueIndex:idx_recipe_product_item;not null" json:"product_id"`
	WarehouseItemID uint  `gorm:"uniqueIndex:idx_recipe_product_item;not null" json:"warehouse_item_id"`
	QuantityPerUnit int64 `gorm:"not null;check:quantity_per_unit > 0" json:"quantity_per_unit"`
	IsOptional      bool  `gorm:"not null;default:false" json:"is_optional"`
}
