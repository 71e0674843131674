// Command ledger-verify replays every warehouse item's ledger and exits with
// status 1 if any chain is broken or a cached quantity drifted.
package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"storefront-backend/internal/config"
	"storefront-backend/internal/database"
	"storefront-backend/internal/inventory"
	"storefront-backend/internal/locker"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if cfg.StoreDriver == "memory" {
		logger.Fatal("ledger-verify needs a database, STORE_DRIVER=memory has nothing to check")
	}

	db := database.MustOpen(cfg, logger)
	svc := inventory.NewService(inventory.NewGormStore(db), locker.NewLocal(), logger)

	reports, err := svc.VerifyAll(context.Background())
	if err != nil {
		logger.WithError(err).Fatal("verification aborted")
	}

	broken := 0
	for _, r := range reports {
		entry := logger.WithFields(logrus.Fields{
			"item_id": r.ItemID,
			"item":    r.ItemName,
			"rows":    r.Rows,
		})
		if r.OK() {
			entry.Debug("ledger ok")
			continue
		}
		broken++
		entry.WithFields(logrus.Fields{
			"broken_at": r.BrokenAt,
			"replayed":  r.Replayed,
			"cached":    r.Cached,
		}).Error(r.Problem)
	}

	logger.WithFields(logrus.Fields{"items": len(reports), "broken": broken}).Info("ledger verification done")
	if broken > 0 {
		os.Exit(1)
	}
}
