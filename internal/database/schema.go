// internal/database/schema.go
package database

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const productsFullView = `
CREATE VIEW v_products_full AS
SELECT
    p.id, p.brand_name, p.coupang_product_id, p.coupang_product_name,
    p.coupang_product_name_english, p.coupang_url,
    p.coupang_current_price, p.coupang_original_price, p.coupang_discount_rate,
    p.iherb_product_code, p.iherb_product_name, p.iherb_product_url,
    p.iherb_discount_price, p.iherb_list_price,
    p.pipeline_stage, p.matching_status, p.last_error,
    p.first_seen_at, p.last_crawled_at, p.last_matched_at,
    cd.stock_status, cd.delivery_badge, cd.origin_country, cd.unit_price,
    cd.rating AS coupang_rating, cd.review_count AS coupang_review_count,
    cd.is_rocket, cd.shipping_fee, cd.seller_name, cd.thumbnail_url,
    idt.discount_percent, idt.subscription_discount, idt.price_per_unit,
    idt.is_in_stock, idt.stock_message, idt.back_in_stock_date,
    idt.rating AS iherb_rating, idt.review_count AS iherb_review_count
FROM products p
LEFT JOIN coupang_details cd ON cd.product_id = p.id
LEFT JOIN iherb_details idt ON idt.product_id = p.id`

const priceComparisonView = `
CREATE VIEW v_price_comparison AS
SELECT
    p.id, p.brand_name, p.coupang_product_name, p.coupang_product_name_english,
    p.iherb_product_name, p.coupang_current_price, p.iherb_discount_price,
    p.coupang_current_price - p.iherb_discount_price AS price_difference,
    CASE
        WHEN p.coupang_current_price < p.iherb_discount_price THEN 'coupang'
        WHEN p.coupang_current_price > p.iherb_discount_price THEN 'iherb'
        ELSE 'same'
    END AS cheaper_platform,
    p.coupang_url, p.iherb_product_url
FROM products p
WHERE p.matching_status = 'success'
  AND p.coupang_current_price IS NOT NULL
  AND p.iherb_discount_price IS NOT NULL`

// createViews recreates the reporting views so column changes apply.
func createViews(db *gorm.DB) error {
	statements := []string{
		"DROP VIEW IF EXISTS v_products_full",
		"DROP VIEW IF EXISTS v_price_comparison",
		productsFullView,
		priceComparisonView,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func createIndexes(db *gorm.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_products_brand_stage ON products(brand_name, pipeline_stage)",
		"CREATE INDEX IF NOT EXISTS idx_products_matching ON products(brand_name, matching_status)",
		"CREATE INDEX IF NOT EXISTS idx_products_lock ON products(processing_lock, lock_expires_at)",
		"CREATE INDEX IF NOT EXISTS idx_products_last_crawled ON products(brand_name, last_crawled_at)",
		"CREATE INDEX IF NOT EXISTS idx_price_history_changed ON price_history(product_id, changed_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_pipeline_errors_created ON pipeline_errors(created_at DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			// Continue with other indexes instead of failing completely
			logrus.WithError(err).WithField("statement", index).Warn("Failed to create index")
		}
	}
}
