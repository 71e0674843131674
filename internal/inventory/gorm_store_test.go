package inventory

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront-backend/internal/apperr"
	"storefront-backend/internal/database"
	"storefront-backend/internal/locker"
	"storefront-backend/internal/models"
)

// openTestDB connects to TEST_DATABASE_DSN (driver from TEST_STORE_DRIVER,
// postgres by default) and empties the inventory tables.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run database tests")
	}
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN is not set")
	}
	driver := os.Getenv("TEST_STORE_DRIVER")
	if driver == "" {
		driver = "postgres"
	}
	logger, _ := logtest.NewNullLogger()
	db, err := database.Open(driver, dsn, logger)
	require.NoError(t, err)

	for _, m := range []any{&models.ProductRecipeLine{}, &models.Product{}, &models.WarehouseOperation{}, &models.WarehouseItem{}} {
		require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error)
	}
	return db
}

func TestGormStoreConcurrentWriteoffs(t *testing.T) {
	db := openTestDB(t)
	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.WarnLevel)

	// Two services over one database behave like two processes: only the
	// row lock in Commit keeps them from overselling.
	store := NewGormStore(db)
	a := NewService(store, locker.NewLocal(), logger)
	b := NewService(store, locker.NewLocal(), logger)
	ctx := context.Background()

	item, err := a.CreateItem(ctx, NewItem{Name: "Integration rose", Unit: "stem", InitialQuantity: 10}, manager)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		refused   int
	)
	for i := 0; i < 15; i++ {
		svc := a
		if i%2 == 1 {
			svc = b
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, ApplyRequest{ItemID: item.ID, Type: models.OperationWriteoff, QuantityChange: -1, Reason: "test"}, manager)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if errors.Is(err, apperr.ErrInsufficientStock) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, successes)
	assert.Equal(t, 5, refused)

	report, err := a.VerifyLedger(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, report.OK(), report.Problem)
	assert.Equal(t, int64(0), report.Cached)
}

func TestGormStoreRecipeAndSale(t *testing.T) {
	db := openTestDB(t)
	logger, _ := logtest.NewNullLogger()
	svc := NewService(NewGormStore(db), locker.NewLocal(), logger)
	ctx := context.Background()

	a, err := svc.CreateItem(ctx, NewItem{Name: "Integration A", Unit: "pcs", InitialQuantity: 9}, manager)
	require.NoError(t, err)
	b, err := svc.CreateItem(ctx, NewItem{Name: "Integration B", Unit: "pcs", InitialQuantity: 10}, manager)
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, NewProduct{Name: "Integration bouquet", Price: 5000})
	require.NoError(t, err)
	_, err = svc.SetRecipe(ctx, p.ID, []RecipeLineInput{
		{WarehouseItemID: a.ID, QuantityPerUnit: 3},
		{WarehouseItemID: b.ID, QuantityPerUnit: 2},
	})
	require.NoError(t, err)

	avail, err := svc.Availability(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), avail.Units)

	_, err = svc.SellProduct(ctx, SaleRequest{ProductID: p.ID, Units: 4}, manager)
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	rows, err := svc.SellProduct(ctx, SaleRequest{ProductID: p.ID, Units: 3}, manager)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	got, err := svc.GetItem(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Quantity)
}
