package inventory

import (
	"context"
	"fmt"

	"storefront-backend/internal/models"
)

// LedgerReport is the result of replaying one item's ledger from zero.
type LedgerReport struct {
	ItemID   uint   `json:"warehouse_item_id"`
	ItemName string `json:"item_name"`
	Rows     int    `json:"rows"`
	Replayed int64  `json:"replayed_quantity"`
	Cached   int64  `json:"cached_quantity"`
	// BrokenAt is the id of the first row whose balance_after does not follow
	// from the previous row, zero when the chain is intact.
	BrokenAt uint   `json:"broken_at,omitempty"`
	Problem  string `json:"problem,omitempty"`
}

func (r LedgerReport) OK() bool {
	return r.BrokenAt == 0 && r.Replayed == r.Cached && r.Problem == ""
}

// VerifyLedger checks balance_after chaining, created_at ordering and that the
// replayed quantity matches the cached one.
func (s *Service) VerifyLedger(ctx context.Context, itemID uint) (LedgerReport, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return LedgerReport{}, err
	}
	ops, err := s.store.Operations(ctx, itemID)
	if err != nil {
		return LedgerReport{}, err
	}
	return replay(item, ops), nil
}

// VerifyAll runs VerifyLedger for every item.
func (s *Service) VerifyAll(ctx context.Context) ([]LedgerReport, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]LedgerReport, 0, len(items))
	for _, item := range items {
		ops, err := s.store.Operations(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("operations of item %d: %w", item.ID, err)
		}
		reports = append(reports, replay(item, ops))
	}
	return reports, nil
}

func replay(item models.WarehouseItem, ops []models.WarehouseOperation) LedgerReport {
	report := LedgerReport{
		ItemID:   item.ID,
		ItemName: item.Name,
		Rows:     len(ops),
		Cached:   item.Quantity,
	}
	var balance int64
	for i, op := range ops {
		balance += op.QuantityChange
		if report.BrokenAt != 0 {
			continue
		}
		switch {
		case op.BalanceAfter != balance:
			report.BrokenAt = op.ID
			report.Problem = fmt.Sprintf("row %d: balance_after %d, expected %d", op.ID, op.BalanceAfter, balance)
		case balance < 0:
			report.BrokenAt = op.ID
			report.Problem = fmt.Sprintf("row %d: balance went negative (%d)", op.ID, balance)
		case i > 0 && op.CreatedAt.Before(ops[i-1].CreatedAt):
			report.BrokenAt = op.ID
			report.Problem = fmt.Sprintf("row %d: created_at goes back in time", op.ID)
		}
	}
	report.Replayed = balance
	if report.Problem == "" && report.Replayed != report.Cached {
		report.Problem = fmt.Sprintf("cached quantity %d, ledger replays to %d", report.Cached, report.Replayed)
	}
	return report
}
