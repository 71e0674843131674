package inventory

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"

	"storefront-backend/internal/models"
)

const ledgerSheet = "Ledger"

var ledgerHeadings = []string{"ID", "Date", "Type", "Change", "Balance", "Description", "Reason", "Reference", "Actor"}

// LedgerWorkbook renders an item's ledger, oldest row first, as an XLSX file.
func LedgerWorkbook(item models.WarehouseItem, ops []models.WarehouseOperation) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ledgerSheet); err != nil {
		return nil, err
	}

	title := fmt.Sprintf("%s (%s), quantity %d", item.Name, item.Unit, item.Quantity)
	if err := f.SetCellValue(ledgerSheet, "A1", title); err != nil {
		return nil, err
	}
	for i, h := range ledgerHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 3)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(ledgerSheet, cell, h); err != nil {
			return nil, err
		}
	}

	for i, op := range ops {
		actor := op.Actor
		if op.ActorName != "" {
			actor = op.ActorName + " (" + op.Actor + ")"
		}
		values := []any{
			op.ID,
			op.CreatedAt.UTC().Format(time.RFC3339),
			string(op.OperationType),
			op.QuantityChange,
			op.BalanceAfter,
			op.Description,
			op.Reason,
			op.Reference,
			actor,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(ledgerSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	return f.WriteToBuffer()
}

// GET /api/warehouse-items/:id/operations/export
func ExportOperationsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		item, err := svc.GetItem(c.UserContext(), id)
		if err != nil {
			return err
		}
		ops, err := svc.Operations(c.UserContext(), id)
		if err != nil {
			return err
		}
		buf, err := LedgerWorkbook(item, ops)
		if err != nil {
			return fmt.Errorf("render ledger of item %d: %w", id, err)
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=ledger-%d.xlsx", id))
		return c.Send(buf.Bytes())
	}
}
