package inventory

import (
	"context"
	"math"
	"sort"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/models"
)

// Availability is how many units of a product the current stock can produce.
// A product without mandatory recipe lines is Unbounded; Units then carries the
// configured cap because no consumer can display infinity.
type Availability struct {
	ProductID uint  `json:"product_id"`
	Units     int64 `json:"units"`
	Unbounded bool  `json:"unbounded"`
}

// Requirement is what selling some units of a product takes from one item.
type Requirement struct {
	WarehouseItemID uint  `json:"warehouse_item_id"`
	Quantity        int64 `json:"quantity"`
	Optional        bool  `json:"optional"`
}

type RecipeResolver struct {
	store        Store
	unboundedCap int64
}

func NewRecipeResolver(store Store, unboundedCap int64) *RecipeResolver {
	return &RecipeResolver{store: store, unboundedCap: unboundedCap}
}

// AvailableQuantity reads a snapshot without taking item locks; sales re-check
// under lock before committing.
func (r *RecipeResolver) AvailableQuantity(ctx context.Context, productID uint) (Availability, error) {
	product, err := r.store.GetProduct(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	stock := make(map[uint]int64, len(product.Recipe))
	for _, line := range product.Recipe {
		if line.IsOptional {
			continue
		}
		item, err := r.store.GetItem(ctx, line.WarehouseItemID)
		if err != nil {
			return Availability{}, err
		}
		stock[item.ID] = item.Quantity
	}
	return r.available(productID, product.Recipe, stock), nil
}

// available is min(floor(quantity / quantity_per_unit)) over mandatory lines.
func (r *RecipeResolver) available(productID uint, lines []models.ProductRecipeLine, stock map[uint]int64) Availability {
	out := Availability{ProductID: productID, Unbounded: true, Units: r.unboundedCap}
	for _, line := range lines {
		if line.IsOptional || line.QuantityPerUnit <= 0 {
			continue
		}
		units := stock[line.WarehouseItemID] / line.QuantityPerUnit
		if units < 0 {
			units = 0
		}
		if out.Unbounded || units < out.Units {
			out.Units = units
			out.Unbounded = false
		}
	}
	return out
}

// Requirements lists per-item consumption for units of a product, ordered by
// item id. A product of units and a per-unit quantity that does not fit in
// int64 is a Validation error.
func Requirements(lines []models.ProductRecipeLine, units int64) ([]Requirement, error) {
	if units <= 0 {
		return nil, apperr.Validation("units must be positive, got %d", units)
	}
	reqs := make([]Requirement, 0, len(lines))
	for _, line := range lines {
		if line.QuantityPerUnit > 0 && units > math.MaxInt64/line.QuantityPerUnit {
			return nil, apperr.Validation("%d units × %d of item %d is too large", units, line.QuantityPerUnit, line.WarehouseItemID)
		}
		reqs = append(reqs, Requirement{
			WarehouseItemID: line.WarehouseItemID,
			Quantity:        line.QuantityPerUnit * units,
			Optional:        line.IsOptional,
		})
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].WarehouseItemID < reqs[j].WarehouseItemID })
	return reqs, nil
}
