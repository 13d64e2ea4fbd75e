// internal/database/connection_test.go
package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pricematch/pricematch/internal/config"
	"github.com/pricematch/pricematch/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(config.DatabaseConfig{
		Driver:   config.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "db", "products.db"),
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	return db
}

func TestMigrationsCreateSchema(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"brands", "products", "coupang_details", "iherb_details", "price_history", "pipeline_errors", "product_images"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	var views []string
	require.NoError(t, db.Raw("SELECT name FROM sqlite_master WHERE type = 'view' ORDER BY name").Scan(&views).Error)
	assert.Equal(t, []string{"v_price_comparison", "v_products_full"}, views)

	// running again is harmless
	require.NoError(t, RunMigrations(db))
}

func TestUniqueBrandProduct(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&models.Brand{BrandName: "nowfoods"}).Error)

	p := models.Product{BrandName: "nowfoods", CoupangProductID: "100", CoupangProductName: "A", PipelineStage: models.StageCrawled, MatchingStatus: models.MatchingPending, FirstSeenAt: time.Now().UTC()}
	require.NoError(t, db.Create(&p).Error)

	dup := p
	dup.ID = 0
	assert.Error(t, db.Create(&dup).Error)
}

func TestStageCheckConstraint(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&models.Brand{BrandName: "nowfoods"}).Error)

	p := models.Product{BrandName: "nowfoods", CoupangProductID: "100", CoupangProductName: "A", PipelineStage: "shipped", MatchingStatus: models.MatchingPending, FirstSeenAt: time.Now().UTC()}
	assert.Error(t, db.Create(&p).Error)
}

func TestDeleteCascades(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Create(&models.Brand{BrandName: "nowfoods"}).Error)

	p := models.Product{BrandName: "nowfoods", CoupangProductID: "100", CoupangProductName: "A", PipelineStage: models.StageCrawled, MatchingStatus: models.MatchingPending, FirstSeenAt: time.Now().UTC()}
	require.NoError(t, db.Create(&p).Error)
	require.NoError(t, db.Create(&models.PriceHistory{ProductID: p.ID, PriceType: models.PriceTypeCoupang, NewPrice: 1000, ChangedAt: time.Now().UTC()}).Error)

	require.NoError(t, db.Delete(&models.Brand{BrandName: "nowfoods"}).Error)

	var count int64
	require.NoError(t, db.Model(&models.PriceHistory{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProductsReferenceBrands(t *testing.T) {
	db := openTestDB(t)

	var brandsDDL, productsDDL string
	require.NoError(t, db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'brands'").Scan(&brandsDDL).Error)
	require.NoError(t, db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'products'").Scan(&productsDDL).Error)

	assert.Contains(t, productsDDL, "REFERENCES `brands`")
	assert.NotContains(t, brandsDDL, "REFERENCES")

	require.NoError(t, db.Create(&models.Brand{BrandName: "nowfoods"}).Error)

	orphan := models.Product{BrandName: "unknown", CoupangProductID: "100", CoupangProductName: "A", PipelineStage: models.StageCrawled, MatchingStatus: models.MatchingPending, FirstSeenAt: time.Now().UTC()}
	assert.Error(t, db.Create(&orphan).Error)
}
