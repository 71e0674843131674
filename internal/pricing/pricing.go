// Package pricing converts between cost price, retail price, margin and markup.
//
// Prices are int64 minor currency units. Percentages are decimals rounded to
// one place; nothing here ever goes through float64.
package pricing

import (
	"github.com/shopspring/decimal"

	"storefront-backend/internal/apperr"
)

const percentPlaces = 1

var hundred = decimal.NewFromInt(100)

// Margin is profit as a percent of the retail price.
func Margin(cost, retail int64) decimal.Decimal {
	if retail == 0 {
		return decimal.Zero
	}
	profit := decimal.NewFromInt(retail - cost)
	return profit.Mul(hundred).Div(decimal.NewFromInt(retail)).Round(percentPlaces)
}

// Markup is profit as a percent of the cost price.
func Markup(cost, retail int64) decimal.Decimal {
	if cost == 0 {
		return decimal.Zero
	}
	profit := decimal.NewFromInt(retail - cost)
	return profit.Mul(hundred).Div(decimal.NewFromInt(cost)).Round(percentPlaces)
}

// RetailFromMargin returns round(cost / (1 - margin/100)). Margin must stay below 100%.
func RetailFromMargin(cost int64, margin decimal.Decimal) (int64, error) {
	if cost < 0 {
		return 0, apperr.Validation("cost price cannot be negative")
	}
	rest := hundred.Sub(margin)
	if !rest.IsPositive() {
		return 0, apperr.Validation("margin must be below 100%%, got %s%%", margin.String())
	}
	return decimal.NewFromInt(cost).Mul(hundred).Div(rest).Round(0).IntPart(), nil
}

// RetailFromMarkup returns round(cost * (1 + markup/100)). Markup cannot go below -100%.
func RetailFromMarkup(cost int64, markup decimal.Decimal) (int64, error) {
	if cost < 0 {
		return 0, apperr.Validation("cost price cannot be negative")
	}
	factor := hundred.Add(markup)
	if factor.IsNegative() {
		return 0, apperr.Validation("markup cannot be below -100%%, got %s%%", markup.String())
	}
	return decimal.NewFromInt(cost).Mul(factor).Div(hundred).Round(0).IntPart(), nil
}

type Prices struct {
	Cost   int64 `json:"cost_price"`
	Retail int64 `json:"retail_price"`
}

func (p Prices) Margin() decimal.Decimal { return Margin(p.Cost, p.Retail) }
func (p Prices) Markup() decimal.Decimal { return Markup(p.Cost, p.Retail) }

// Edit is one price form submission. Cost is applied first, then at most one
// of Retail, Margin or Markup decides the new retail price.
type Edit struct {
	CostPrice   *int64           `json:"cost_price"`
	RetailPrice *int64           `json:"retail_price"`
	Margin      *decimal.Decimal `json:"margin"`
	Markup      *decimal.Decimal `json:"markup"`
}

func (e Edit) Empty() bool {
	return e.CostPrice == nil && e.RetailPrice == nil && e.Margin == nil && e.Markup == nil
}

func (e Edit) Apply(cur Prices) (Prices, error) {
	if e.Empty() {
		return cur, apperr.Validation("price edit is empty")
	}
	retailInputs := 0
	for _, set := range []bool{e.RetailPrice != nil, e.Margin != nil, e.Markup != nil} {
		if set {
			retailInputs++
		}
	}
	if retailInputs > 1 {
		return cur, apperr.Validation("set only one of retail_price, margin, markup")
	}

	next := cur
	if e.CostPrice != nil {
		if *e.CostPrice < 0 {
			return cur, apperr.Validation("cost price cannot be negative")
		}
		next.Cost = *e.CostPrice
	}

	var err error
	switch {
	case e.RetailPrice != nil:
		if *e.RetailPrice < 0 {
			return cur, apperr.Validation("retail price cannot be negative")
		}
		next.Retail = *e.RetailPrice
	case e.Margin != nil:
		next.Retail, err = RetailFromMargin(next.Cost, *e.Margin)
	case e.Markup != nil:
		next.Retail, err = RetailFromMarkup(next.Cost, *e.Markup)
	}
	if err != nil {
		return cur, err
	}
	return next, nil
}
