package models

import "time"

type OrderStatus string

const (
	StatusNew        OrderStatus = "new"
	StatusPaid       OrderStatus = "paid"
	StatusAccepted   OrderStatus = "accepted"
	StatusAssembled  OrderStatus = "assembled"
	StatusInDelivery OrderStatus = "in_delivery"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{
	StatusNew,
	StatusPaid,
	StatusAccepted,
	StatusAssembled,
	StatusInDelivery,
	StatusDelivered,
	StatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if st == s {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentOnline   PaymentMethod = "online"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Order amounts are minor currency units.
type Order struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	OrderNumber   string        `gorm:"size:32;uniqueIndex;not null" json:"order_number"`
	// PublicToken is the customer's handle on the order; sequential ids are
	// never accepted on customer routes.
	PublicToken string `gorm:"size:36;uniqueIndex;not null" json:"public_token"`
	Status        OrderStatus   `gorm:"size:20;index;not null" json:"status"`
	AssignedTo    *uint         `gorm:"index" json:"assigned_to"`
	Courier       *uint         `gorm:"index" json:"courier"`
	PaymentMethod PaymentMethod `gorm:"size:20" json:"payment_method"`
	PaymentStatus PaymentStatus `gorm:"size:20" json:"payment_status"`
	Total         int64         `gorm:"not null;default:0" json:"total"`

	RecipientName   string     `gorm:"size:100" json:"recipient_name"`
	RecipientPhone  string     `gorm:"size:32" json:"recipient_phone"`
	DeliveryAddress string     `gorm:"size:255" json:"delivery_address"`
	DeliveryDate    *time.Time `json:"delivery_date"`
	DeliveryTime    string     `gorm:"size:32" json:"delivery_time"` // "14:00-16:00"
	DeliveryNotes   string     `gorm:"size:500" json:"delivery_notes"`

	CustomerName  string `gorm:"size:100" json:"customer_name"`
	CustomerPhone string `gorm:"size:32" json:"customer_phone"`
	CustomerEmail string `gorm:"size:100" json:"customer_email"`
	Comment       string `gorm:"size:1000" json:"comment"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items  []OrderItem  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Photos []OrderPhoto `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"photos"`
}

type OrderItem struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	OrderID   uint   `gorm:"index;not null" json:"order_id"`
	ProductID uint   `gorm:"not null" json:"product_id"`
	Name      string `gorm:"size:150" json:"name"`
	Quantity  int64  `gorm:"not null;check:quantity > 0" json:"quantity"`
	Price     int64  `gorm:"not null" json:"price"`
}

// OrderPhoto only stores the URL, the file itself lives in external storage.
type OrderPhoto struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	OrderID   uint      `gorm:"index;not null" json:"order_id"`
	URL       string    `gorm:"size:500;not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderHistoryEntry is append-only: never updated, never deleted.
type OrderHistoryEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	OrderID       uint      `gorm:"index:idx_history_order_time,priority:1;not null" json:"order_id"`
	FieldName     string    `gorm:"size:50;not null" json:"field_name"`
	OldValue      string    `gorm:"type:text" json:"old_value"`
	NewValue      string    `gorm:"type:text" json:"new_value"`
	ChangedBy     string    `gorm:"size:32;not null" json:"changed_by"`
	ChangedByName string    `gorm:"size:100" json:"changed_by_name"`
	ChangedAt     time.Time `gorm:"index:idx_history_order_time,priority:2;not null" json:"changed_at"`
}
