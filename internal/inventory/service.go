package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/config"
	"storefront-backend/internal/locker"
	"storefront-backend/internal/models"
	"storefront-backend/internal/pricing"
)

const moduleName = "inventory"

var validate = validator.New()

// Service is the only writer of the ledger. Every mutation runs inside a
// per-item exclusive section and commits the ledger row together with the
// cached quantity.
type Service struct {
	store   Store
	locks   locker.Locker
	recipes *RecipeResolver
	logger  logrus.FieldLogger
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithUnboundedCap(n int64) Option {
	return func(s *Service) { s.recipes.unboundedCap = n }
}

func NewService(store Store, locks locker.Locker, logger logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		locks:   locks,
		recipes: NewRecipeResolver(store, 999),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	// MaxQuantity bounds a single movement, sale size and recipe quantity so
	// that products of them stay far from int64 overflow.
	MaxQuantity int64 = 1_000_000_000

	maxTextLen = 255
)

type NewItem struct {
	Name            string `json:"name" validate:"required,max=150"`
	Unit            string `json:"unit" validate:"required,max=20"`
	CostPrice       int64  `json:"cost_price" validate:"gte=0"`
	RetailPrice     int64  `json:"retail_price" validate:"gte=0"`
	MinQuantity     int64  `json:"min_quantity" validate:"gte=0"`
	InitialQuantity int64  `json:"initial_quantity" validate:"gte=0,lte=1000000000"`
}

// CreateItem registers an item with zero stock. A positive InitialQuantity is
// booked as a delivery so the ledger replays to the cached quantity.
func (s *Service) CreateItem(ctx context.Context, in NewItem, actor models.Actor) (models.WarehouseItem, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Unit = strings.TrimSpace(in.Unit)
	if err := validate.Struct(in); err != nil {
		return models.WarehouseItem{}, apperr.FromValidator(err)
	}

	item := models.WarehouseItem{
		Name:        in.Name,
		Unit:        in.Unit,
		CostPrice:   in.CostPrice,
		RetailPrice: in.RetailPrice,
		MinQuantity: in.MinQuantity,
	}
	if err := s.store.CreateItem(ctx, &item); err != nil {
		return item, err
	}
	if in.InitialQuantity == 0 {
		return item, nil
	}

	if _, err := s.Apply(ctx, ApplyRequest{
		ItemID:         item.ID,
		Type:           models.OperationDelivery,
		QuantityChange: in.InitialQuantity,
		Description:    fmt.Sprintf("initial stock +%d", in.InitialQuantity),
	}, actor); err != nil {
		return item, err
	}
	return s.store.GetItem(ctx, item.ID)
}

func (s *Service) GetItem(ctx context.Context, id uint) (models.WarehouseItem, error) {
	return s.store.GetItem(ctx, id)
}

func (s *Service) ListItems(ctx context.Context) ([]models.WarehouseItem, error) {
	return s.store.ListItems(ctx)
}

// ListLowStock returns items at or below their minimum quantity.
func (s *Service) ListLowStock(ctx context.Context) ([]models.WarehouseItem, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]models.WarehouseItem, 0)
	for _, item := range items {
		if item.IsLow() {
			low = append(low, item)
		}
	}
	return low, nil
}

// Operations returns the item's ledger oldest first.
func (s *Service) Operations(ctx context.Context, itemID uint) ([]models.WarehouseOperation, error) {
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.Operations(ctx, itemID)
}

type ApplyRequest struct {
	ItemID         uint                 `json:"-"`
	Type           models.OperationType `json:"operation_type"`
	QuantityChange int64                `json:"quantity_change"`
	Reason         string               `json:"reason" validate:"max=255"`
	Description    string               `json:"description" validate:"max=255"`
	Reference      string               `json:"reference" validate:"max=64"`
	// Price is required for price_change and rejected otherwise.
	Price *pricing.Edit `json:"price,omitempty" validate:"-"`
}

func (r *ApplyRequest) validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Description = strings.TrimSpace(r.Description)
	if err := validate.Struct(r); err != nil {
		return apperr.FromValidator(err)
	}
	if r.QuantityChange > MaxQuantity || r.QuantityChange < -MaxQuantity {
		return apperr.Validation("quantity_change must be within ±%d, got %d", MaxQuantity, r.QuantityChange)
	}
	if r.ItemID == 0 {
		return apperr.Validation("warehouse item id is required")
	}
	if !r.Type.Valid() {
		return apperr.Validation("unknown operation type %q", r.Type)
	}
	if r.Price != nil && r.Type != models.OperationPriceChange {
		return apperr.Validation("price can only be set on %s operations", models.OperationPriceChange)
	}

	switch r.Type {
	case models.OperationDelivery:
		if r.QuantityChange <= 0 {
			return apperr.Validation("delivery quantity_change must be positive, got %d", r.QuantityChange)
		}
	case models.OperationSale:
		if r.QuantityChange >= 0 {
			return apperr.Validation("sale quantity_change must be negative, got %d", r.QuantityChange)
		}
	case models.OperationWriteoff:
		if r.QuantityChange >= 0 {
			return apperr.Validation("writeoff quantity_change must be negative, got %d", r.QuantityChange)
		}
		if r.Reason == "" {
			return apperr.Validation("writeoff requires a reason")
		}
	case models.OperationPriceChange:
		if r.QuantityChange != 0 {
			return apperr.Validation("price_change cannot move stock, got quantity_change %d", r.QuantityChange)
		}
		if r.Price == nil || r.Price.Empty() {
			return apperr.Validation("price_change requires new prices")
		}
	case models.OperationInventory:
		// recounts may move stock either way
	}
	return nil
}

// Apply validates and books one ledger row. The read-check-write is atomic per item.
func (s *Service) Apply(ctx context.Context, req ApplyRequest, actor models.Actor) (models.WarehouseOperation, error) {
	if err := req.validate(); err != nil {
		s.reject(req.ItemID, req.Type, err)
		return models.WarehouseOperation{}, err
	}

	rows, err := s.commit(ctx, []uint{req.ItemID}, func(items map[uint]*LockedItem) ([]models.WarehouseOperation, error) {
		item := items[req.ItemID]
		row, err := s.book(item, req, actor)
		if err != nil {
			return nil, err
		}
		return []models.WarehouseOperation{row}, nil
	})
	if err != nil {
		s.reject(req.ItemID, req.Type, err)
		return models.WarehouseOperation{}, err
	}
	s.committed(rows)
	return rows[0], nil
}

// ChangePrice records a price edit as a price_change row; stock does not move.
func (s *Service) ChangePrice(ctx context.Context, itemID uint, edit pricing.Edit, actor models.Actor) (models.WarehouseOperation, error) {
	return s.Apply(ctx, ApplyRequest{
		ItemID: itemID,
		Type:   models.OperationPriceChange,
		Price:  &edit,
	}, actor)
}

// Recount books the difference between a physical count and the cached
// quantity. A count equal to the stock still leaves a zero row.
func (s *Service) Recount(ctx context.Context, itemID uint, counted int64, reason string, actor models.Actor) (models.WarehouseOperation, error) {
	if counted < 0 || counted > MaxQuantity {
		err := apperr.Validation("counted quantity must be between 0 and %d, got %d", MaxQuantity, counted)
		s.reject(itemID, models.OperationInventory, err)
		return models.WarehouseOperation{}, err
	}

	rows, err := s.commit(ctx, []uint{itemID}, func(items map[uint]*LockedItem) ([]models.WarehouseOperation, error) {
		item := items[itemID]
		row, err := s.book(item, ApplyRequest{
			ItemID:         itemID,
			Type:           models.OperationInventory,
			QuantityChange: counted - item.Quantity,
			Reason:         strings.TrimSpace(reason),
			Description:    fmt.Sprintf("recount %d → %d", item.Quantity, counted),
		}, actor)
		if err != nil {
			return nil, err
		}
		return []models.WarehouseOperation{row}, nil
	})
	if err != nil {
		s.reject(itemID, models.OperationInventory, err)
		return models.WarehouseOperation{}, err
	}
	s.committed(rows)
	return rows[0], nil
}

type SaleRequest struct {
	ProductID uint   `json:"-" validate:"required"`
	Units     int64  `json:"units" validate:"gt=0,lte=1000000000"`
	Reference string `json:"reference" validate:"max=64"`
}

// SellProduct decrements every recipe line of a product in one commit. If the
// mandatory lines cannot cover the units nothing is written. Optional lines
// are consumed only when their item holds enough stock.
func (s *Service) SellProduct(ctx context.Context, req SaleRequest, actor models.Actor) ([]models.WarehouseOperation, error) {
	if err := validate.Struct(req); err != nil {
		return nil, apperr.FromValidator(err)
	}
	product, err := s.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if len(product.Recipe) == 0 {
		s.logger.WithFields(logrus.Fields{
			"module":     moduleName,
			"product_id": product.ID,
		}).Info("product has no recipe, sale does not touch stock")
		return []models.WarehouseOperation{}, nil
	}
	if req.Reference == "" {
		req.Reference = uuid.NewString()
	}

	ids := make([]uint, 0, len(product.Recipe))
	for _, line := range product.Recipe {
		ids = append(ids, line.WarehouseItemID)
	}

	rows, err := s.commit(ctx, ids, func(items map[uint]*LockedItem) ([]models.WarehouseOperation, error) {
		stock := make(map[uint]int64, len(items))
		for id, item := range items {
			stock[id] = item.Quantity
		}
		avail := s.recipes.available(product.ID, product.Recipe, stock)
		if !avail.Unbounded && avail.Units < req.Units {
			return nil, apperr.InsufficientStock("product %q: %d available, %d requested", product.Name, avail.Units, req.Units)
		}

		needs, err := Requirements(product.Recipe, req.Units)
		if err != nil {
			return nil, err
		}
		rows := make([]models.WarehouseOperation, 0, len(product.Recipe))
		for _, need := range needs {
			item := items[need.WarehouseItemID]
			if need.Optional && item.Quantity < need.Quantity {
				s.logger.WithFields(logrus.Fields{
					"module":            moduleName,
					"product_id":        product.ID,
					"warehouse_item_id": item.ID,
					"needed":            need.Quantity,
					"in_stock":          item.Quantity,
				}).Warn("optional recipe line skipped, not enough stock")
				continue
			}
			row, err := s.book(item, ApplyRequest{
				ItemID:         item.ID,
				Type:           models.OperationSale,
				QuantityChange: -need.Quantity,
				Reference:      req.Reference,
				Description:    fmt.Sprintf("sale of %d × %s", req.Units, product.Name),
			}, actor)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, nil
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"module":     moduleName,
			"product_id": req.ProductID,
			"units":      req.Units,
			"kind":       apperr.KindOf(err).String(),
		}).Info("product sale rejected: " + err.Error())
		return nil, err
	}
	s.committed(rows)
	return rows, nil
}

// Availability reports how many units of a product the stock can produce.
func (s *Service) Availability(ctx context.Context, productID uint) (Availability, error) {
	return s.recipes.AvailableQuantity(ctx, productID)
}

type NewProduct struct {
	Name  string `json:"name" validate:"required,max=150"`
	Price int64  `json:"price" validate:"gte=0"`
}

func (s *Service) CreateProduct(ctx context.Context, in NewProduct) (models.Product, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return models.Product{}, apperr.FromValidator(err)
	}
	p := models.Product{Name: in.Name, Price: in.Price, IsActive: true}
	if err := s.store.CreateProduct(ctx, &p); err != nil {
		return p, err
	}
	return p, nil
}

type RecipeLineInput struct {
	WarehouseItemID uint  `json:"warehouse_item_id" validate:"required"`
	QuantityPerUnit int64 `json:"quantity_per_unit" validate:"gt=0,lte=1000000000"`
	IsOptional      bool  `json:"is_optional"`
}

// SetRecipe replaces a product's recipe. An empty list leaves the product
// without a recipe, which makes its availability unbounded.
func (s *Service) SetRecipe(ctx context.Context, productID uint, lines []RecipeLineInput) ([]models.ProductRecipeLine, error) {
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	seen := make(map[uint]bool, len(lines))
	out := make([]models.ProductRecipeLine, 0, len(lines))
	for i, in := range lines {
		if err := validate.Struct(in); err != nil {
			return nil, apperr.Validation("recipe line %d: %s", i+1, apperr.FromValidator(err).Error())
		}
		if seen[in.WarehouseItemID] {
			return nil, apperr.Validation("recipe line %d: warehouse item %d listed twice", i+1, in.WarehouseItemID)
		}
		seen[in.WarehouseItemID] = true
		if _, err := s.store.GetItem(ctx, in.WarehouseItemID); err != nil {
			return nil, err
		}
		out = append(out, models.ProductRecipeLine{
			ProductID:       productID,
			WarehouseItemID: in.WarehouseItemID,
			QuantityPerUnit: in.QuantityPerUnit,
			IsOptional:      in.IsOptional,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WarehouseItemID < out[j].WarehouseItemID })

	if err := s.store.ReplaceRecipe(ctx, productID, out); err != nil {
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return p.Recipe, nil
}

// GetProduct returns the product with its recipe lines.
func (s *Service) GetProduct(ctx context.Context, id uint) (models.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) Recipe(ctx context.Context, productID uint) ([]models.ProductRecipeLine, error) {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return p.Recipe, nil
}

// commit wraps Store.Commit in the per-item exclusive sections.
func (s *Service) commit(ctx context.Context, ids []uint, fn CommitFunc) ([]models.WarehouseOperation, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, locker.ItemKey(id))
	}
	release, err := s.locks.Lock(ctx, keys...)
	if err != nil {
		config.LogError(s.logger, moduleName, "commit", "could not lock warehouse items", ids, err)
		return nil, err
	}
	defer release()

	rows, err := s.store.Commit(ctx, ids, fn)
	if err != nil && apperr.KindOf(err) == apperr.KindInternal {
		config.LogError(s.logger, moduleName, "commit", "ledger commit failed", ids, err)
	}
	return rows, err
}

// book applies req to item in place and builds its ledger row. It runs under
// the item's exclusive section.
func (s *Service) book(item *LockedItem, req ApplyRequest, actor models.Actor) (models.WarehouseOperation, error) {
	before := item.Quantity
	after := before + req.QuantityChange
	if req.QuantityChange > 0 && after < before {
		return models.WarehouseOperation{}, apperr.Validation(
			"%s: adding %d to %d overflows the stock counter", item.Name, req.QuantityChange, before)
	}
	if after < 0 {
		return models.WarehouseOperation{}, apperr.InsufficientStock(
			"%s: %d in stock, %d requested", item.Name, before, -req.QuantityChange)
	}

	description := req.Description
	if req.Type == models.OperationPriceChange {
		cur := pricing.Prices{Cost: item.CostPrice, Retail: item.RetailPrice}
		next, err := req.Price.Apply(cur)
		if err != nil {
			return models.WarehouseOperation{}, err
		}
		item.CostPrice = next.Cost
		item.RetailPrice = next.Retail
		summary := fmt.Sprintf("cost %d→%d, retail %d→%d", cur.Cost, next.Cost, cur.Retail, next.Retail)
		if description != "" {
			summary += ": " + description
		}
		description = summary
	}
	if description == "" {
		description = defaultDescription(req.Type, req.QuantityChange, req.Reason)
	}
	description = clip(description, maxTextLen)

	at := s.now().UTC()
	if at.Before(item.LastOperationAt) {
		at = item.LastOperationAt
	}
	item.Quantity = after
	item.LastOperationAt = at

	return models.WarehouseOperation{
		WarehouseItemID: item.ID,
		OperationType:   req.Type,
		QuantityChange:  req.QuantityChange,
		BalanceAfter:    after,
		Description:     description,
		Reason:          req.Reason,
		Reference:       req.Reference,
		Actor:           actor.ID(),
		ActorName:       actor.Name,
		CreatedAt:       at,
	}, nil
}

func defaultDescription(t models.OperationType, change int64, reason string) string {
	var d string
	switch t {
	case models.OperationDelivery:
		d = fmt.Sprintf("delivery %+d", change)
	case models.OperationSale:
		d = fmt.Sprintf("sale %+d", change)
	case models.OperationWriteoff:
		d = fmt.Sprintf("write-off %+d", change)
	case models.OperationInventory:
		d = fmt.Sprintf("inventory %+d", change)
	default:
		d = string(t)
	}
	if reason != "" {
		d += ": " + reason
	}
	return d
}

// clip cuts s to at most n characters without splitting a rune.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func (s *Service) reject(itemID uint, t models.OperationType, err error) {
	s.logger.WithFields(logrus.Fields{
		"module":            moduleName,
		"warehouse_item_id": itemID,
		"operation_type":    t,
		"kind":              apperr.KindOf(err).String(),
	}).Info("warehouse operation rejected: " + err.Error())
}

func (s *Service) committed(rows []models.WarehouseOperation) {
	for _, row := range rows {
		s.logger.WithFields(logrus.Fields{
			"module":            moduleName,
			"warehouse_item_id": row.WarehouseItemID,
			"operation_id":      row.ID,
			"operation_type":    row.OperationType,
			"quantity_change":   row.QuantityChange,
			"balance_after":     row.BalanceAfter,
			"actor":             row.Actor,
		}).Debug("warehouse operation committed")
	}
}
