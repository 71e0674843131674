package models

import "time"

// WarehouseItem is a stock-keeping unit. Quantity and prices are only ever
// changed by applying a WarehouseOperation; money is in minor units (tiyn).
type WarehouseItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:150;not null;uniqueIndex" json:"name"`
	Unit        string    `gorm:"size:20;not null" json:"unit"` // pcs, stem, kg ...
	Quantity    int64     `gorm:"not null;default:0;check:quantity >= 0" json:"quantity"`
	CostPrice   int64     `gorm:"not null;default:0" json:"cost_price"`
	RetailPrice int64     `gorm:"not null;default:0" json:"retail_price"`
	MinQuantity int64     `gorm:"not null;default:0" json:"min_quantity"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (i WarehouseItem) IsLow() bool {
	return i.Quantity <= i.MinQuantity
}

type OperationType string

const (
	OperationDelivery    OperationType = "delivery"
	OperationSale        OperationType = "sale"
	OperationWriteoff    OperationType = "writeoff"
	OperationPriceChange OperationType = "price_change"
	OperationInventory   OperationType = "inventory"
)

var OperationTypes = []OperationType{
	OperationDelivery,
	OperationSale,
	OperationWriteoff,
	OperationPriceChange,
	OperationInventory,
}

func (t OperationType) Valid() bool {
	for _, ot := range OperationTypes {
		if ot == t {
			return true
		}
	}
	return false
}

// WarehouseOperation is one immutable ledger row.
// BalanceAfter == previous BalanceAfter + QuantityChange.
type WarehouseOperation struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	WarehouseItemID uint          `gorm:"index:idx_ledger_item_time,priority:1;not null" json:"warehouse_item_id"`
	OperationType   OperationType `gorm:"size:20;not null" json:"operation_type"`
	QuantityChange  int64         `gorm:"not null" json:"quantity_change"`
	BalanceAfter    int64         `gorm:"not null" json:"balance_after"`
	Description     string        `gorm:"size:255" json:"description"`
	Reason          string        `gorm:"size:255" json:"reason,omitempty"`
	Reference       string        `gorm:"size:64;index" json:"reference,omitempty"` // groups rows of one product sale
	Actor           string        `gorm:"size:32;not null" json:"actor"`
	ActorName       string        `gorm:"size:100" json:"actor_name"`
	CreatedAt       time.Time     `gorm:"index:idx_ledger_item_time,priority:2;not null" json:"created_at"`
}
