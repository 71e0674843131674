// Package audit turns order mutations into append-only history entries.
//
// Only the fields in WatchedFields are tracked. Each changed field yields one
// entry; entries of one order never go back in time.
package audit

import (
	"strconv"
	"time"

	"storefront-backend/internal/models"
)

type Field string

const (
	FieldStatus          Field = "status"
	FieldRecipientName   Field = "recipient_name"
	FieldRecipientPhone  Field = "recipient_phone"
	FieldDeliveryAddress Field = "delivery_address"
	FieldDeliveryDate    Field = "delivery_date"
	FieldDeliveryTime    Field = "delivery_time"
	FieldDeliveryNotes   Field = "delivery_notes"
	FieldAssignedTo      Field = "assigned_to"
	FieldCourier         Field = "courier"
	FieldCustomerName    Field = "customer_name"
	FieldCustomerPhone   Field = "customer_phone"
	FieldCustomerEmail   Field = "customer_email"
	FieldComment         Field = "comment"
)

// WatchedFields is also the order in which entries of one diff are emitted.
var WatchedFields = []Field{
	FieldStatus,
	FieldRecipientName,
	FieldRecipientPhone,
	FieldDeliveryAddress,
	FieldDeliveryDate,
	FieldDeliveryTime,
	FieldDeliveryNotes,
	FieldAssignedTo,
	FieldCourier,
	FieldCustomerName,
	FieldCustomerPhone,
	FieldCustomerEmail,
	FieldComment,
}

const dateLayout = "2006-01-02"

// Snapshot holds the stringified watched fields of an order.
type Snapshot map[Field]string

func SnapshotOf(o models.Order) Snapshot {
	return Snapshot{
		FieldStatus:          string(o.Status),
		FieldRecipientName:   o.RecipientName,
		FieldRecipientPhone:  o.RecipientPhone,
		FieldDeliveryAddress: o.DeliveryAddress,
		FieldDeliveryDate:    formatDate(o.DeliveryDate),
		FieldDeliveryTime:    o.DeliveryTime,
		FieldDeliveryNotes:   o.DeliveryNotes,
		FieldAssignedTo:      FormatUserID(o.AssignedTo),
		FieldCourier:         FormatUserID(o.Courier),
		FieldCustomerName:    o.CustomerName,
		FieldCustomerPhone:   o.CustomerPhone,
		FieldCustomerEmail:   o.CustomerEmail,
		FieldComment:         o.Comment,
	}
}

func FormatUserID(id *uint) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*id), 10)
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.UTC().Format(dateLayout)
}

// Recorder stamps entries with its clock, but never earlier than the newest
// entry already stored for the order.
type Recorder struct {
	now func() time.Time
}

func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Stamp returns the time to use for the next entries of an order whose newest
// entry is at lastAt.
func (r *Recorder) Stamp(lastAt time.Time) time.Time {
	at := r.now().UTC()
	if at.Before(lastAt) {
		return lastAt
	}
	return at
}

// RecordDiff compares before and after and returns one entry per changed
// watched field. All entries share one timestamp.
func (r *Recorder) RecordDiff(orderID uint, before, after Snapshot, actor models.Actor, lastAt time.Time) []models.OrderHistoryEntry {
	var entries []models.OrderHistoryEntry
	at := r.Stamp(lastAt)
	for _, f := range WatchedFields {
		if before[f] == after[f] {
			continue
		}
		entries = append(entries, entry(orderID, f, before[f], after[f], actor, at))
	}
	return entries
}

// Record builds a single entry for one field, or nil when nothing changed.
func (r *Recorder) Record(orderID uint, field Field, oldValue, newValue string, actor models.Actor, lastAt time.Time) []models.OrderHistoryEntry {
	if oldValue == newValue {
		return nil
	}
	return []models.OrderHistoryEntry{entry(orderID, field, oldValue, newValue, actor, r.Stamp(lastAt))}
}

func entry(orderID uint, f Field, oldValue, newValue string, actor models.Actor, at time.Time) models.OrderHistoryEntry {
	return models.OrderHistoryEntry{
		OrderID:       orderID,
		FieldName:     string(f),
		OldValue:      oldValue,
		NewValue:      newValue,
		ChangedBy:     actor.ID(),
		ChangedByName: actor.Name,
		ChangedAt:     at,
	}
}

// Newest returns the latest ChangedAt in entries, zero for none.
func Newest(entries []models.OrderHistoryEntry) time.Time {
	var last time.Time
	for _, e := range entries {
		if e.ChangedAt.After(last) {
			last = e.ChangedAt
		}
	}
	return last
}
