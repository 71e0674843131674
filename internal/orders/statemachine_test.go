package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/models"
)

func TestTransitionGraph(t *testing.T) {
	allowed := map[[2]models.OrderStatus]bool{
		{models.StatusNew, models.StatusPaid}:             true,
		{models.StatusPaid, models.StatusAccepted}:        true,
		{models.StatusAccepted, models.StatusAssembled}:   true,
		{models.StatusAssembled, models.StatusInDelivery}: true,
		{models.StatusInDelivery, models.StatusDelivered}: true,
		{models.StatusNew, models.StatusCancelled}:        true,
		{models.StatusPaid, models.StatusCancelled}:       true,
		{models.StatusAccepted, models.StatusCancelled}:   true,
		{models.StatusAssembled, models.StatusCancelled}:  true,
		{models.StatusInDelivery, models.StatusCancelled}: true,
	}

	for _, from := range models.OrderStatuses {
		for _, to := range models.OrderStatuses {
			want := allowed[[2]models.OrderStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)

			err := checkTransition(from, to)
			if want {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestTransitionExamples(t *testing.T) {
	assert.False(t, CanTransition(models.StatusNew, models.StatusAssembled))
	assert.True(t, CanTransition(models.StatusNew, models.StatusPaid))
	assert.True(t, CanTransition(models.StatusPaid, models.StatusAccepted))
	assert.True(t, CanTransition(models.StatusAccepted, models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusDelivered, models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusCancelled, models.StatusCancelled))
	assert.False(t, CanTransition(models.StatusAssembled, models.StatusAccepted))

	assert.ErrorIs(t, checkTransition(models.StatusNew, "lost"), apperr.ErrValidation)
}

func TestNextAndTerminal(t *testing.T) {
	next, ok := Next(models.StatusAssembled)
	assert.True(t, ok)
	assert.Equal(t, models.StatusInDelivery, next)

	_, ok = Next(models.StatusDelivered)
	assert.False(t, ok)
	_, ok = Next(models.StatusCancelled)
	assert.False(t, ok)

	assert.True(t, IsTerminal(models.StatusDelivered))
	assert.True(t, IsTerminal(models.StatusCancelled))
	assert.False(t, IsTerminal(models.StatusInDelivery))
}

func TestPhotoRule(t *testing.T) {
	r := DefaultPhotoRule

	assert.Equal(t, models.StatusAssembled, r.OnAttach(models.StatusAccepted, 0))
	assert.Equal(t, models.StatusAccepted, r.OnAttach(models.StatusAccepted, 1), "only the first photo advances")
	assert.Equal(t, models.StatusPaid, r.OnAttach(models.StatusPaid, 0))
	assert.Equal(t, models.StatusInDelivery, r.OnAttach(models.StatusInDelivery, 0))

	assert.Equal(t, models.StatusAccepted, r.OnRemove(models.StatusAssembled, 0))
	assert.Equal(t, models.StatusAssembled, r.OnRemove(models.StatusAssembled, 1))
	assert.Equal(t, models.StatusInDelivery, r.OnRemove(models.StatusInDelivery, 0))
	assert.Equal(t, models.StatusDelivered, r.OnRemove(models.StatusDelivered, 0))
}
