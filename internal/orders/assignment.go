package orders

import (
	"context"

	"github.com/sirupsen/logrus"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/audit"
	"storefront-backend/internal/models"
)

// Slot is one of the two team fields of an order.
type Slot string

const (
	SlotResponsible Slot = "responsible"
	SlotCourier     Slot = "courier"
)

func (s Slot) Valid() bool {
	return s == SlotResponsible || s == SlotCourier
}

func (s Slot) field() audit.Field {
	if s == SlotCourier {
		return audit.FieldCourier
	}
	return audit.FieldAssignedTo
}

func (s Slot) target(o *models.Order) **uint {
	if s == SlotCourier {
		return &o.Courier
	}
	return &o.AssignedTo
}

// checkRole: the courier slot takes couriers only, the responsible slot
// anyone but a courier.
func checkRole(slot Slot, u models.User) error {
	switch {
	case slot == SlotCourier && u.Role != models.RoleCourier:
		return apperr.Unauthorized("%s is a %s and cannot be the courier", u.Name, u.Role)
	case slot == SlotResponsible && u.Role == models.RoleCourier:
		return apperr.Unauthorized("%s is a courier and cannot be responsible for an order", u.Name)
	}
	return nil
}

// Assign puts userID into slot. Assigning the user already in the slot
// changes nothing and records nothing.
func (s *Service) Assign(ctx context.Context, orderID uint, slot Slot, userID uint, actor models.Actor) (models.Order, error) {
	if !slot.Valid() {
		return models.Order{}, apperr.Validation("unknown slot %q", slot)
	}
	if !actor.IsStaff() {
		return models.Order{}, apperr.Unauthorized("only staff can assign the team")
	}
	user, err := s.staff.Get(ctx, userID)
	if err != nil {
		return models.Order{}, err
	}
	if !user.IsActive {
		return models.Order{}, apperr.Validation("user %d is deactivated", userID)
	}
	if err := checkRole(slot, user); err != nil {
		s.logger.WithFields(logrus.Fields{
			"module":   moduleName,
			"order_id": orderID,
			"slot":     slot,
			"user_id":  userID,
			"role":     user.Role,
		}).Warn("assignment refused")
		return models.Order{}, err
	}

	return s.update(ctx, orderID, "Assign", func(o *LockedOrder) (*Change, error) {
		cur := slot.target(&o.Order)
		if *cur != nil && **cur == user.ID {
			return nil, nil
		}
		oldValue := audit.FormatUserID(*cur)
		id := user.ID
		*cur = &id
		return &Change{
			Entries: s.recorder.Record(o.ID, slot.field(), oldValue, audit.FormatUserID(*cur), actor, o.LastChangeAt),
		}, nil
	})
}

// Unassign empties slot. An empty slot stays as it is with no entry.
func (s *Service) Unassign(ctx context.Context, orderID uint, slot Slot, actor models.Actor) (models.Order, error) {
	if !slot.Valid() {
		return models.Order{}, apperr.Validation("unknown slot %q", slot)
	}
	if !actor.IsStaff() {
		return models.Order{}, apperr.Unauthorized("only staff can change the team")
	}
	return s.update(ctx, orderID, "Unassign", func(o *LockedOrder) (*Change, error) {
		cur := slot.target(&o.Order)
		if *cur == nil {
			return nil, nil
		}
		oldValue := audit.FormatUserID(*cur)
		*cur = nil
		return &Change{
			Entries: s.recorder.Record(o.ID, slot.field(), oldValue, "", actor, o.LastChangeAt),
		}, nil
	})
}
