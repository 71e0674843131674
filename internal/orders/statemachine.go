package orders

import (
	"storefront-backend/internal/apperr"
	"storefront-backend/internal/models"
)

var forward = map[models.OrderStatus]models.OrderStatus{
	models.StatusNew:        models.StatusPaid,
	models.StatusPaid:       models.StatusAccepted,
	models.StatusAccepted:   models.StatusAssembled,
	models.StatusAssembled:  models.StatusInDelivery,
	models.StatusInDelivery: models.StatusDelivered,
}

func IsTerminal(s models.OrderStatus) bool {
	return s == models.StatusDelivered || s == models.StatusCancelled
}

// Next is the single forward successor of s. Terminal states have none.
func Next(s models.OrderStatus) (models.OrderStatus, bool) {
	next, ok := forward[s]
	return next, ok
}

// CanTransition reports whether to may follow from: one step forward, or
// cancelled from any non-terminal state.
func CanTransition(from, to models.OrderStatus) bool {
	if !from.Valid() || !to.Valid() || IsTerminal(from) {
		return false
	}
	if to == models.StatusCancelled {
		return true
	}
	next, ok := Next(from)
	return ok && next == to
}

func checkTransition(from, to models.OrderStatus) error {
	if !to.Valid() {
		return apperr.Validation("unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return apperr.InvalidTransition("order cannot move from %s to %s", from, to)
	}
	return nil
}

// PhotoRule ties delivery-proof photos to status. The first photo attached
// while the order is in From moves it to To; removing the last photo while in
// To moves it back to From. Any other state keeps its status.
type PhotoRule struct {
	From models.OrderStatus
	To   models.OrderStatus
}

var DefaultPhotoRule = PhotoRule{From: models.StatusAccepted, To: models.StatusAssembled}

// OnAttach returns the status after a photo is attached to an order that had
// photosBefore photos.
func (r PhotoRule) OnAttach(status models.OrderStatus, photosBefore int) models.OrderStatus {
	if photosBefore == 0 && status == r.From {
		return r.To
	}
	return status
}

// OnRemove returns the status after a photo is removed, leaving photosAfter.
func (r PhotoRule) OnRemove(status models.OrderStatus, photosAfter int) models.OrderStatus {
	if photosAfter == 0 && status == r.To {
		return r.From
	}
	return status
}
