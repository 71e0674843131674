package orders

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/audit"
	"storefront-backend/internal/config"
	"storefront-backend/internal/locker"
	"storefront-backend/internal/models"
	"storefront-backend/internal/staff"
)

const moduleName = "orders"

var validate = validator.New()

// Catalog resolves product ids on order lines.
type Catalog interface {
	GetProduct(ctx context.Context, id uint) (models.Product, error)
}

// Refunder starts a refund for a paid order that got cancelled. The gateway
// call itself lives outside this service.
type Refunder interface {
	InitiateRefund(ctx context.Context, order models.Order) error
}

type Service struct {
	store     Store
	locks     locker.Locker
	catalog   Catalog
	staff     staff.Directory
	recorder  *audit.Recorder
	phones    *PhoneNormalizer
	photoRule PhotoRule
	refunds   Refunder
	logger    logrus.FieldLogger
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPhotoRule(r PhotoRule) Option {
	return func(s *Service) { s.photoRule = r }
}

func WithRefunder(r Refunder) Option {
	return func(s *Service) { s.refunds = r }
}

func WithPhoneRegion(region string) Option {
	return func(s *Service) { s.phones = NewPhoneNormalizer(region) }
}

func NewService(store Store, locks locker.Locker, catalog Catalog, dir staff.Directory, logger logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		locks:     locks,
		catalog:   catalog,
		staff:     dir,
		phones:    NewPhoneNormalizer("KZ"),
		photoRule: DefaultPhotoRule,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = audit.NewRecorder(s.now)
	return s
}

type NewOrderItem struct {
	ProductID uint  `json:"product_id" validate:"required"`
	Quantity  int64 `json:"quantity" validate:"gt=0,lte=10000"`
}

type NewOrder struct {
	Items         []NewOrderItem       `json:"items" validate:"required,min=1,max=100,dive"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"required,oneof=cash card transfer online"`

	RecipientName   string `json:"recipient_name" validate:"max=100"`
	RecipientPhone  string `json:"recipient_phone" validate:"max=32"`
	DeliveryAddress string `json:"delivery_address" validate:"max=255"`
	DeliveryDate    string `json:"delivery_date" validate:"omitempty,datetime=2006-01-02"`
	DeliveryTime    string `json:"delivery_time" validate:"max=32"`
	DeliveryNotes   string `json:"delivery_notes" validate:"max=500"`

	CustomerName  string `json:"customer_name" validate:"max=100"`
	CustomerPhone string `json:"customer_phone" validate:"max=32"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email,max=100"`
	Comment       string `json:"comment" validate:"max=1000"`
}

// CreateOrder prices the lines from the catalog and stores the order as new
// together with its first history entry.
func (s *Service) CreateOrder(ctx context.Context, in NewOrder, actor models.Actor) (models.Order, error) {
	if err := validate.Struct(in); err != nil {
		return models.Order{}, apperr.FromValidator(err)
	}
	date, err := parseDate(in.DeliveryDate)
	if err != nil {
		return models.Order{}, err
	}

	at := s.now().UTC()
	o := models.Order{
		OrderNumber:     orderNumber(at),
		PublicToken:     uuid.NewString(),
		Status:          models.StatusNew,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   models.PaymentPending,
		RecipientName:   strings.TrimSpace(in.RecipientName),
		RecipientPhone:  s.phones.Normalize(in.RecipientPhone),
		DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
		DeliveryDate:    date,
		DeliveryTime:    strings.TrimSpace(in.DeliveryTime),
		DeliveryNotes:   strings.TrimSpace(in.DeliveryNotes),
		CustomerName:    strings.TrimSpace(in.CustomerName),
		CustomerPhone:   s.phones.Normalize(in.CustomerPhone),
		CustomerEmail:   strings.TrimSpace(strings.ToLower(in.CustomerEmail)),
		Comment:         strings.TrimSpace(in.Comment),
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	for _, line := range in.Items {
		p, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			return models.Order{}, err
		}
		if !p.IsActive {
			return models.Order{}, apperr.Validation("product %q is not for sale", p.Name)
		}
		o.Items = append(o.Items, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			Price:     p.Price,
		})
		if p.Price < 0 || p.Price > (math.MaxInt64-o.Total)/line.Quantity {
			return models.Order{}, apperr.Validation("order total of %d × %q does not fit", line.Quantity, p.Name)
		}
		o.Total += p.Price * line.Quantity
	}

	entries := s.recorder.Record(0, audit.FieldStatus, "", string(models.StatusNew), actor, time.Time{})
	if err := s.store.Create(ctx, &o, entries); err != nil {
		config.LogError(s.logger, moduleName, "CreateOrder", "could not store order", o.OrderNumber, err)
		return models.Order{}, err
	}
	s.logger.WithFields(logrus.Fields{
		"module":       moduleName,
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
		"total":        o.Total,
		"actor":        actor.ID(),
	}).Info("order created")
	return o, nil
}

func orderNumber(at time.Time) string {
	return at.Format("060102") + "-" + strings.ToUpper(uuid.NewString()[:8])
}

func parseDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation("2006-01-02", v, time.UTC)
	if err != nil {
		return nil, apperr.Validation("delivery_date must be YYYY-MM-DD, got %q", v)
	}
	return &d, nil
}

func (s *Service) GetOrder(ctx context.Context, id uint) (models.Order, error) {
	return s.store.Get(ctx, id)
}

// GetOrderByToken finds an order by its public token. Anything that is not a
// well-formed token is reported as not found without a lookup.
func (s *Service) GetOrderByToken(ctx context.Context, token string) (models.Order, error) {
	if _, err := uuid.Parse(token); err != nil {
		return models.Order{}, apperr.NotFound("order not found")
	}
	return s.store.GetByToken(ctx, token)
}

// UpdateOrderByToken is UpdateOrder for the customer side.
func (s *Service) UpdateOrderByToken(ctx context.Context, token string, patch Patch, actor models.Actor) (models.Order, error) {
	o, err := s.GetOrderByToken(ctx, token)
	if err != nil {
		return models.Order{}, err
	}
	return s.UpdateOrder(ctx, o.ID, patch, actor)
}

func (s *Service) ListOrders(ctx context.Context, f Filter) ([]models.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", f.Status)
	}
	return s.store.List(ctx, f)
}

// History returns the order's entries oldest first, or newest first. Entries
// are only ever ordered by changed_at (ties by id).
func (s *Service) History(ctx context.Context, orderID uint, newestFirst bool) ([]models.OrderHistoryEntry, error) {
	if _, err := s.store.Get(ctx, orderID); err != nil {
		return nil, err
	}
	entries, err := s.store.History(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if newestFirst {
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].ChangedAt.Equal(entries[j].ChangedAt) {
				return entries[i].ID > entries[j].ID
			}
			return entries[i].ChangedAt.After(entries[j].ChangedAt)
		})
	}
	return entries, nil
}

// Patch carries the editable watched fields; nil means unchanged and an
// empty string clears the field. Email and date formats are checked in apply
// because clearing must stay possible.
type Patch struct {
	RecipientName   *string `json:"recipient_name" validate:"omitempty,max=100"`
	RecipientPhone  *string `json:"recipient_phone" validate:"omitempty,max=32"`
	DeliveryAddress *string `json:"delivery_address" validate:"omitempty,max=255"`
	DeliveryDate    *string `json:"delivery_date" validate:"omitempty,max=10"`
	DeliveryTime    *string `json:"delivery_time" validate:"omitempty,max=32"`
	DeliveryNotes   *string `json:"delivery_notes" validate:"omitempty,max=500"`
	CustomerName    *string `json:"customer_name" validate:"omitempty,max=100"`
	CustomerPhone   *string `json:"customer_phone" validate:"omitempty,max=32"`
	CustomerEmail   *string `json:"customer_email" validate:"omitempty,max=100"`
	Comment         *string `json:"comment" validate:"omitempty,max=1000"`
}

func (p Patch) apply(o *models.Order, phones *PhoneNormalizer) error {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&o.RecipientName, p.RecipientName)
	set(&o.DeliveryAddress, p.DeliveryAddress)
	set(&o.DeliveryTime, p.DeliveryTime)
	set(&o.DeliveryNotes, p.DeliveryNotes)
	set(&o.CustomerName, p.CustomerName)
	set(&o.Comment, p.Comment)
	if p.CustomerEmail != nil {
		email := strings.TrimSpace(strings.ToLower(*p.CustomerEmail))
		if email != "" {
			if err := validate.Var(email, "email"); err != nil {
				return apperr.Validation("customer_email %q is not an email address", email)
			}
		}
		o.CustomerEmail = email
	}
	if p.RecipientPhone != nil {
		o.RecipientPhone = phones.Normalize(*p.RecipientPhone)
	}
	if p.CustomerPhone != nil {
		o.CustomerPhone = phones.Normalize(*p.CustomerPhone)
	}
	if p.DeliveryDate != nil {
		d, err := parseDate(*p.DeliveryDate)
		if err != nil {
			return err
		}
		o.DeliveryDate = d
	}
	return nil
}

// UpdateOrder applies a patch and records one history entry per field whose
// value actually changed. A patch that changes nothing writes nothing.
func (s *Service) UpdateOrder(ctx context.Context, id uint, patch Patch, actor models.Actor) (models.Order, error) {
	if err := validate.Struct(patch); err != nil {
		return models.Order{}, apperr.FromValidator(err)
	}
	return s.update(ctx, id, "UpdateOrder", func(o *LockedOrder) (*Change, error) {
		before := audit.SnapshotOf(o.Order)
		if err := patch.apply(&o.Order, s.phones); err != nil {
			return nil, err
		}
		entries := s.recorder.RecordDiff(o.ID, before, audit.SnapshotOf(o.Order), actor, o.LastChangeAt)
		return &Change{Entries: entries}, nil
	})
}

// Transition moves the order along the status graph and records the status entry.
func (s *Service) Transition(ctx context.Context, id uint, requested models.OrderStatus, actor models.Actor) (models.Order, models.OrderHistoryEntry, error) {
	var (
		entry  models.OrderHistoryEntry
		refund bool
	)
	o, err := s.update(ctx, id, "Transition", func(o *LockedOrder) (*Change, error) {
		if err := checkTransition(o.Status, requested); err != nil {
			return nil, err
		}
		from := o.Status
		o.Status = requested
		switch requested {
		case models.StatusPaid:
			o.PaymentStatus = models.PaymentPaid
		case models.StatusCancelled:
			refund = o.PaymentStatus == models.PaymentPaid
		}
		entries := s.recorder.Record(o.ID, audit.FieldStatus, string(from), string(requested), actor, o.LastChangeAt)
		entry = entries[0]
		return &Change{Entries: entries}, nil
	})
	if err != nil {
		return models.Order{}, models.OrderHistoryEntry{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"module":   moduleName,
		"order_id": id,
		"from":     entry.OldValue,
		"to":       entry.NewValue,
		"actor":    actor.ID(),
	}).Info("order status changed")

	if refund && s.refunds != nil {
		if err := s.refunds.InitiateRefund(ctx, o); err != nil {
			config.LogError(s.logger, moduleName, "Transition", "refund of cancelled order was not started", id, err)
		}
	}
	return o, entry, nil
}

type NewPhoto struct {
	URL string `json:"url" validate:"required,url,max=500"`
}

// AttachPhoto stores a delivery-proof photo. The photo rule may advance status.
func (s *Service) AttachPhoto(ctx context.Context, orderID uint, in NewPhoto, actor models.Actor) (models.Order, error) {
	in.URL = strings.TrimSpace(in.URL)
	if err := validate.Struct(in); err != nil {
		return models.Order{}, apperr.FromValidator(err)
	}
	return s.update(ctx, orderID, "AttachPhoto", func(o *LockedOrder) (*Change, error) {
		at := s.recorder.Stamp(o.LastChangeAt)
		photo := models.OrderPhoto{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			URL:       in.URL,
			CreatedAt: at,
		}
		before := len(o.Photos)
		o.Photos = append(o.Photos, photo)

		change := &Change{AddPhotos: []models.OrderPhoto{photo}}
		if next := s.photoRule.OnAttach(o.Status, before); next != o.Status {
			change.Entries = s.recorder.Record(o.ID, audit.FieldStatus, string(o.Status), string(next), actor, o.LastChangeAt)
			o.Status = next
		}
		return change, nil
	})
}

// RemovePhoto deletes a photo. Removing the last one may revert status.
func (s *Service) RemovePhoto(ctx context.Context, orderID uint, photoID string, actor models.Actor) (models.Order, error) {
	return s.update(ctx, orderID, "RemovePhoto", func(o *LockedOrder) (*Change, error) {
		kept := make([]models.OrderPhoto, 0, len(o.Photos))
		for _, p := range o.Photos {
			if p.ID != photoID {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(o.Photos) {
			return nil, apperr.NotFound("photo %s not found on order %d", photoID, o.ID)
		}
		o.Photos = kept

		change := &Change{RemovePhotos: []string{photoID}}
		if next := s.photoRule.OnRemove(o.Status, len(kept)); next != o.Status {
			change.Entries = s.recorder.Record(o.ID, audit.FieldStatus, string(o.Status), string(next), actor, o.LastChangeAt)
			o.Status = next
		}
		return change, nil
	})
}

// RevertEntry writes the old value of a history entry back through a normal
// patch, so the correction is itself a new entry. Status and team fields have
// their own operations and cannot be reverted here.
func (s *Service) RevertEntry(ctx context.Context, orderID, entryID uint, actor models.Actor) (models.Order, error) {
	e, err := s.store.Entry(ctx, orderID, entryID)
	if err != nil {
		return models.Order{}, err
	}
	old := e.OldValue
	var patch Patch
	switch audit.Field(e.FieldName) {
	case audit.FieldRecipientName:
		patch.RecipientName = &old
	case audit.FieldRecipientPhone:
		patch.RecipientPhone = &old
	case audit.FieldDeliveryAddress:
		patch.DeliveryAddress = &old
	case audit.FieldDeliveryDate:
		patch.DeliveryDate = &old
	case audit.FieldDeliveryTime:
		patch.DeliveryTime = &old
	case audit.FieldDeliveryNotes:
		patch.DeliveryNotes = &old
	case audit.FieldCustomerName:
		patch.CustomerName = &old
	case audit.FieldCustomerPhone:
		patch.CustomerPhone = &old
	case audit.FieldCustomerEmail:
		patch.CustomerEmail = &old
	case audit.FieldComment:
		patch.Comment = &old
	default:
		return models.Order{}, apperr.Validation("%s changes cannot be reverted, use the %s operation", e.FieldName, e.FieldName)
	}
	return s.UpdateOrder(ctx, orderID, patch, actor)
}

// update runs fn inside the order's exclusive section.
func (s *Service) update(ctx context.Context, id uint, funcName string, fn UpdateFunc) (models.Order, error) {
	release, err := s.locks.Lock(ctx, locker.OrderKey(id))
	if err != nil {
		config.LogError(s.logger, moduleName, funcName, "could not lock order", id, err)
		return models.Order{}, err
	}
	defer release()

	o, err := s.store.Update(ctx, id, fn)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			config.LogError(s.logger, moduleName, funcName, "order update failed", id, err)
		} else {
			s.logger.WithFields(logrus.Fields{
				"module":   moduleName,
				"funcName": funcName,
				"order_id": id,
				"kind":     apperr.KindOf(err).String(),
			}).Info("order change rejected: " + err.Error())
		}
		return models.Order{}, err
	}
	return o, nil
}
