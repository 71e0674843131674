package orders

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/audit"
	"storefront-backend/internal/locker"
	"storefront-backend/internal/models"
	"storefront-backend/internal/staff"
)

type catalog map[uint]models.Product

func (c catalog) GetProduct(_ context.Context, id uint) (models.Product, error) {
	p, ok := c[id]
	if !ok {
		return models.Product{}, apperr.NotFound("product %d not found", id)
	}
	return p, nil
}

type refunds struct {
	mu     sync.Mutex
	orders []uint
}

func (r *refunds) InitiateRefund(_ context.Context, o models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o.ID)
	return nil
}

type fixture struct {
	svc      *Service
	dir      *staff.MemoryDirectory
	refunds  *refunds
	manager  models.Actor
	florist  models.User
	courier  models.User
	customer models.Actor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	logger, _ := logtest.NewNullLogger()
	dir := staff.NewMemoryDirectory()

	users := map[models.UserRole]*models.User{}
	for _, u := range []models.User{
		{Name: "Dana", Email: "dana@shop.kz", Role: models.RoleManager, IsActive: true},
		{Name: "Aruzhan", Email: "aruzhan@shop.kz", Role: models.RoleFlorist, IsActive: true},
		{Name: "Timur", Email: "timur@shop.kz", Role: models.RoleCourier, IsActive: true},
	} {
		u := u
		require.NoError(t, dir.Create(ctx, &u))
		users[u.Role] = &u
	}

	f := &fixture{
		dir:      dir,
		refunds:  &refunds{},
		manager:  models.StaffActor(*users[models.RoleManager]),
		florist:  *users[models.RoleFlorist],
		courier:  *users[models.RoleCourier],
		customer: models.CustomerActor("Aliya"),
	}
	products := catalog{
		1: {ID: 1, Name: "Spring bouquet", Price: 12000, IsActive: true},
		2: {ID: 2, Name: "Card", Price: 500, IsActive: true},
		3: {ID: 3, Name: "Retired", Price: 100},
		4: {ID: 4, Name: "Gold wreath", Price: math.MaxInt64 / 2, IsActive: true},
	}
	opts = append([]Option{WithRefunder(f.refunds)}, opts...)
	f.svc = NewService(NewMemoryStore(), locker.NewLocal(), products, dir, logger, opts...)
	return f
}

func (f *fixture) order(t *testing.T) models.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), NewOrder{
		Items:           []NewOrderItem{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
		PaymentMethod:   models.PaymentCard,
		RecipientName:   "Aliya",
		RecipientPhone:  "+7 (701) 123-45-67",
		DeliveryAddress: "Abay 10",
		DeliveryDate:    "2024-03-08",
	}, f.customer)
	require.NoError(t, err)
	return o
}

func (f *fixture) walk(t *testing.T, id uint, to ...models.OrderStatus) {
	t.Helper()
	for _, s := range to {
		_, _, err := f.svc.Transition(context.Background(), id, s, f.manager)
		require.NoError(t, err)
	}
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)

	assert.Equal(t, models.StatusNew, o.Status)
	assert.Equal(t, int64(24500), o.Total)
	assert.Equal(t, models.PaymentPending, o.PaymentStatus)
	assert.Equal(t, "+77011234567", o.RecipientPhone)
	require.NotNil(t, o.DeliveryDate)
	assert.Equal(t, "2024-03-08", o.DeliveryDate.Format("2006-01-02"))
	assert.NotEmpty(t, o.OrderNumber)
	byToken, err := f.svc.GetOrderByToken(ctx, o.PublicToken)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byToken.ID)
	_, err = f.svc.GetOrderByToken(ctx, o.OrderNumber)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Spring bouquet", o.Items[0].Name)

	history, err := f.svc.History(ctx, o.ID, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "status", history[0].FieldName)
	assert.Equal(t, "", history[0].OldValue)
	assert.Equal(t, "new", history[0].NewValue)
	assert.Equal(t, models.CustomerActorID, history[0].ChangedBy)
}

func TestCreateOrderRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   NewOrder
		kind error
	}{
		{"no items", NewOrder{PaymentMethod: models.PaymentCash}, apperr.ErrValidation},
		{"zero quantity", NewOrder{PaymentMethod: models.PaymentCash, Items: []NewOrderItem{{ProductID: 1}}}, apperr.ErrValidation},
		{"bad payment", NewOrder{PaymentMethod: "barter", Items: []NewOrderItem{{ProductID: 1, Quantity: 1}}}, apperr.ErrValidation},
		{"bad date", NewOrder{PaymentMethod: models.PaymentCash, DeliveryDate: "08.03.2024", Items: []NewOrderItem{{ProductID: 1, Quantity: 1}}}, apperr.ErrValidation},
		{"unknown product", NewOrder{PaymentMethod: models.PaymentCash, Items: []NewOrderItem{{ProductID: 9, Quantity: 1}}}, apperr.ErrNotFound},
		{"inactive product", NewOrder{PaymentMethod: models.PaymentCash, Items: []NewOrderItem{{ProductID: 3, Quantity: 1}}}, apperr.ErrValidation},
		{"quantity above the bound", NewOrder{PaymentMethod: models.PaymentCash, Items: []NewOrderItem{{ProductID: 1, Quantity: 10001}}}, apperr.ErrValidation},
		{"total overflows", NewOrder{PaymentMethod: models.PaymentCash, Items: []NewOrderItem{{ProductID: 4, Quantity: 3}}}, apperr.ErrValidation},
		{"total overflows across lines", NewOrder{PaymentMethod: models.PaymentCash, Items: []NewOrderItem{{ProductID: 4, Quantity: 2}, {ProductID: 1, Quantity: 1}}}, apperr.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, tc.in, f.manager)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)

	_, _, err := f.svc.Transition(ctx, o.ID, models.StatusAssembled, f.manager)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	o2, entry, err := f.svc.Transition(ctx, o.ID, models.StatusPaid, f.manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, o2.Status)
	assert.Equal(t, models.PaymentPaid, o2.PaymentStatus)
	assert.Equal(t, "new", entry.OldValue)
	assert.Equal(t, "paid", entry.NewValue)
	assert.Equal(t, f.manager.ID(), entry.ChangedBy)

	f.walk(t, o.ID, models.StatusAccepted, models.StatusCancelled)
	_, _, err = f.svc.Transition(ctx, o.ID, models.StatusCancelled, f.manager)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, []uint{o.ID}, f.refunds.orders)

	history, err := f.svc.History(ctx, o.ID, false)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].ChangedAt.Before(history[i-1].ChangedAt))
	}

	_, _, err = f.svc.Transition(ctx, 404, models.StatusPaid, f.manager)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeliveredCannotBeCancelled(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	f.walk(t, o.ID, models.StatusPaid, models.StatusAccepted, models.StatusAssembled, models.StatusInDelivery, models.StatusDelivered)

	_, _, err := f.svc.Transition(context.Background(), o.ID, models.StatusCancelled, f.manager)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Empty(t, f.refunds.orders)
}

func TestUpdateOrderRecordsChangedFieldsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)

	address := "Dostyk 5, apt 12"
	notes := "ring twice"
	sameName := "Aliya"
	updated, err := f.svc.UpdateOrder(ctx, o.ID, Patch{
		DeliveryAddress: &address,
		DeliveryNotes:   &notes,
		RecipientName:   &sameName,
	}, f.manager)
	require.NoError(t, err)
	assert.Equal(t, address, updated.DeliveryAddress)

	history, err := f.svc.History(ctx, o.ID, false)
	require.NoError(t, err)
	require.Len(t, history, 3)
	created := history[0]
	for _, e := range history[1:] {
		assert.False(t, e.ChangedAt.Before(created.ChangedAt))
	}
	assert.Equal(t, "delivery_address", history[1].FieldName)
	assert.Equal(t, "Abay 10", history[1].OldValue)
	assert.Equal(t, address, history[1].NewValue)
	assert.Equal(t, "delivery_notes", history[2].FieldName)
	assert.Equal(t, "", history[2].OldValue)
	assert.Equal(t, notes, history[2].NewValue)
}

func TestUpdateOrderPhoneFormattingIsNotAChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)

	same := "+7 701 123 45 67"
	_, err := f.svc.UpdateOrder(ctx, o.ID, Patch{RecipientPhone: &same}, f.customer)
	require.NoError(t, err)

	history, err := f.svc.History(ctx, o.ID, false)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	email := "not-an-email"
	_, err = f.svc.UpdateOrder(ctx, o.ID, Patch{CustomerEmail: &email}, f.customer)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	cleared := ""
	updated, err := f.svc.UpdateOrder(ctx, o.ID, Patch{DeliveryDate: &cleared}, f.customer)
	require.NoError(t, err)
	assert.Nil(t, updated.DeliveryDate)
}

func TestPhotoRuleThroughService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)
	f.walk(t, o.ID, models.StatusPaid, models.StatusAccepted)

	withPhoto, err := f.svc.AttachPhoto(ctx, o.ID, NewPhoto{URL: "https://cdn.example.com/p/1.jpg"}, f.manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssembled, withPhoto.Status)
	require.Len(t, withPhoto.Photos, 1)

	second, err := f.svc.AttachPhoto(ctx, o.ID, NewPhoto{URL: "https://cdn.example.com/p/2.jpg"}, f.manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssembled, second.Status)

	afterOne, err := f.svc.RemovePhoto(ctx, o.ID, withPhoto.Photos[0].ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssembled, afterOne.Status)
	require.Len(t, afterOne.Photos, 1)

	reverted, err := f.svc.RemovePhoto(ctx, o.ID, afterOne.Photos[0].ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, reverted.Status)
	assert.Empty(t, reverted.Photos)

	_, err = f.svc.RemovePhoto(ctx, o.ID, "missing", f.manager)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.AttachPhoto(ctx, o.ID, NewPhoto{URL: "not a url"}, f.manager)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	history, err := f.svc.History(ctx, o.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "assembled", history[0].OldValue)
	assert.Equal(t, "accepted", history[0].NewValue)
	assert.Equal(t, "accepted", history[1].OldValue)
	assert.Equal(t, "assembled", history[1].NewValue)
}

func TestPhotoOnNewOrderKeepsStatus(t *testing.T) {
	f := newFixture(t)
	o := f.order(t)
	got, err := f.svc.AttachPhoto(context.Background(), o.ID, NewPhoto{URL: "https://cdn.example.com/p/1.jpg"}, f.manager)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, got.Status)

	history, err := f.svc.History(context.Background(), o.ID, false)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRevertEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)

	address := "Wrong street 1"
	_, err := f.svc.UpdateOrder(ctx, o.ID, Patch{DeliveryAddress: &address}, f.customer)
	require.NoError(t, err)
	history, err := f.svc.History(ctx, o.ID, true)
	require.NoError(t, err)

	reverted, err := f.svc.RevertEntry(ctx, o.ID, history[0].ID, f.manager)
	require.NoError(t, err)
	assert.Equal(t, "Abay 10", reverted.DeliveryAddress)

	history, err = f.svc.History(ctx, o.ID, false)
	require.NoError(t, err)
	require.Len(t, history, 3, "the correction is a new entry, the mistake stays")
	assert.Equal(t, "Wrong street 1", history[1].NewValue)
	assert.Equal(t, "Abay 10", history[2].NewValue)

	statusEntry := history[0]
	_, err = f.svc.RevertEntry(ctx, o.ID, statusEntry.ID, f.manager)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHistoryNewestFirstBreaksTiesByID(t *testing.T) {
	at := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return at }))
	ctx := context.Background()
	o := f.order(t)

	a, b := "a", "b"
	_, err := f.svc.UpdateOrder(ctx, o.ID, Patch{Comment: &a, DeliveryNotes: &b}, f.manager)
	require.NoError(t, err)

	newest, err := f.svc.History(ctx, o.ID, true)
	require.NoError(t, err)
	oldest, err := f.svc.History(ctx, o.ID, false)
	require.NoError(t, err)
	require.Len(t, newest, 3)
	for i := range newest {
		assert.Equal(t, oldest[len(oldest)-1-i].ID, newest[i].ID)
	}
}

func TestConcurrentEditsKeepHistoryMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			note := string(rune('a' + i))
			_, err := f.svc.UpdateOrder(ctx, o.ID, Patch{DeliveryNotes: &note}, f.manager)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := f.svc.History(ctx, o.ID, false)
	require.NoError(t, err)
	require.Len(t, history, 21)
	for i := 2; i < len(history); i++ {
		assert.Equal(t, history[i-1].NewValue, history[i].OldValue, "entry %d must start where the previous ended", i)
	}
}

func TestAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)

	updated, err := f.svc.Assign(ctx, o.ID, SlotCourier, f.courier.ID, f.manager)
	require.NoError(t, err)
	require.NotNil(t, updated.Courier)
	assert.Equal(t, f.courier.ID, *updated.Courier)

	updated, err = f.svc.Assign(ctx, o.ID, SlotResponsible, f.florist.ID, f.manager)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, f.florist.ID, *updated.AssignedTo)

	_, err = f.svc.Assign(ctx, o.ID, SlotCourier, f.florist.ID, f.manager)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Assign(ctx, o.ID, SlotResponsible, f.courier.ID, f.manager)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Assign(ctx, o.ID, SlotCourier, f.courier.ID, f.customer)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Assign(ctx, o.ID, "driver", f.courier.ID, f.manager)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Assign(ctx, o.ID, SlotCourier, 99, f.manager)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	history, err := f.svc.History(ctx, o.ID, false)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, string(audit.FieldCourier), history[1].FieldName)
	assert.Equal(t, "", history[1].OldValue)
	assert.Equal(t, audit.FormatUserID(&f.courier.ID), history[1].NewValue)
	assert.Equal(t, string(audit.FieldAssignedTo), history[2].FieldName)
}

func TestReassigningSameUserIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)

	_, err := f.svc.Assign(ctx, o.ID, SlotCourier, f.courier.ID, f.manager)
	require.NoError(t, err)
	again, err := f.svc.Assign(ctx, o.ID, SlotCourier, f.courier.ID, f.manager)
	require.NoError(t, err)
	require.NotNil(t, again.Courier)

	history, err := f.svc.History(ctx, o.ID, false)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestUnassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t)

	_, err := f.svc.Unassign(ctx, o.ID, SlotCourier, f.manager)
	require.NoError(t, err)

	_, err = f.svc.Assign(ctx, o.ID, SlotCourier, f.courier.ID, f.manager)
	require.NoError(t, err)
	cleared, err := f.svc.Unassign(ctx, o.ID, SlotCourier, f.manager)
	require.NoError(t, err)
	assert.Nil(t, cleared.Courier)

	history, err := f.svc.History(ctx, o.ID, true)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "courier", history[0].FieldName)
	assert.Equal(t, "", history[0].NewValue)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.order(t)
	second := f.order(t)
	f.walk(t, second.ID, models.StatusPaid)
	_, err := f.svc.Assign(ctx, first.ID, SlotCourier, f.courier.ID, f.manager)
	require.NoError(t, err)

	paid, err := f.svc.ListOrders(ctx, Filter{Status: models.StatusPaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, second.ID, paid[0].ID)

	mine, err := f.svc.ListOrders(ctx, Filter{Courier: f.courier.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	all, err := f.svc.ListOrders(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	_, err = f.svc.ListOrders(ctx, Filter{Status: "lost"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}
