package database

import (
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"storefront-backend/internal/config"
	"storefront-backend/internal/models"
)

// Open connects to the database selected by driver and migrates the schema.
func Open(driver, dsn string, log logrus.FieldLogger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		normalized, err := NormalizeMySQLDSN(dsn)
		if err != nil {
			return nil, err
		}
		dialector = mysql.Open(normalized)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.WithField("driver", driver).Info("database connected, migration done")
	return db, nil
}

// NormalizeMySQLDSN forces parseTime and UTC so ledger timestamps survive a
// round trip without shifting.
func NormalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.WarehouseItem{},
		&models.WarehouseOperation{},
		&models.Product{},
		&models.ProductRecipeLine{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderPhoto{},
		&models.OrderHistoryEntry{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// MustOpen is Open for cmd entry points: any failure is fatal.
func MustOpen(cfg *config.Config, log logrus.FieldLogger) *gorm.DB {
	db, err := Open(cfg.StoreDriver, cfg.DatabaseDSN, log)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	return db
}
