// internal/services/product_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pricematch/pricematch/internal/database"
	"github.com/pricematch/pricematch/internal/models"
	"github.com/pricematch/pricematch/internal/utils"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrLockHeld       = errors.New("product is locked by another owner")
	ErrLockNotHeld    = errors.New("lock is not held by this owner")
	ErrInvalidStatus  = models.ErrInvalidStatus
)

const DefaultLockTTL = 10 * time.Minute

// ProductService is the record store for brands, products and their
// pipeline state.
type ProductService struct {
	db      *gorm.DB
	lockTTL time.Duration
	now     func() time.Time
}

// CrawledProduct is one marketplace-A product as scraped.
type CrawledProduct struct {
	ProductID     string `validate:"required,product_id"`
	Name          string `validate:"required"`
	URL           string `validate:"omitempty,url"`
	CurrentPrice  *int64 `validate:"omitempty,min=0"`
	OriginalPrice *int64 `validate:"omitempty,min=0"`
	DiscountRate  *int   `validate:"omitempty,min=0,max=100"`
	StockStatus   string
	DeliveryBadge string
	OriginCountry string
	UnitPrice     *int64
	Rating        *float64 `validate:"omitempty,min=0,max=5"`
	ReviewCount   *int     `validate:"omitempty,min=0"`
	IsRocket      bool
	ShippingFee   *int64
	SellerName    string
	ThumbnailURL  string
}

// MatchResult is the outcome of matching a product on marketplace B.
type MatchResult struct {
	Status               models.MatchingStatus
	ProductCode          string
	ProductName          string
	ProductURL           string
	DiscountPrice        *int64
	ListPrice            *int64
	DiscountPercent      string
	SubscriptionDiscount string
	PricePerUnit         string
	IsInStock            *bool
	StockMessage         string
	BackInStockDate      string
	Rating               *float64
	ReviewCount          *int
}

func NewProductService(db *gorm.DB, lockTTL time.Duration) *ProductService {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &ProductService{
		db:      db,
		lockTTL: lockTTL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CrawledProductFrom converts a search-result card.
func CrawledProductFrom(p models.CoupangProduct) *CrawledProduct {
	c := &CrawledProduct{
		ProductID:     p.ProductID,
		Name:          p.Name,
		URL:           p.URL,
		CurrentPrice:  p.Price,
		OriginalPrice: p.OriginalPrice,
		DiscountRate:  p.DiscountRate,
		DeliveryBadge: p.DeliveryType,
		UnitPrice:     p.UnitPrice,
		Rating:        p.Rating,
		ReviewCount:   p.ReviewCount,
		IsRocket:      p.IsRocket,
		ThumbnailURL:  p.ThumbnailURL,
	}
	if p.ShippingFee > 0 {
		c.ShippingFee = utils.Int64Ptr(p.ShippingFee)
	}
	return c
}

// Brands

func (s *ProductService) UpsertBrand(ctx context.Context, name, searchURL string) error {
	if err := utils.ValidateVar(name, "brand"); err != nil {
		return fmt.Errorf("invalid brand name %q: %w", name, err)
	}

	brand := models.Brand{BrandName: name, CoupangSearchURL: searchURL}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "brand_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"coupang_search_url"}),
	}).Create(&brand).Error
	if err != nil {
		return fmt.Errorf("failed to upsert brand: %w", err)
	}
	return nil
}

func (s *ProductService) GetBrand(ctx context.Context, name string) (*models.Brand, error) {
	var brand models.Brand
	if err := s.db.WithContext(ctx).First(&brand, "brand_name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("brand %q: %w", name, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &brand, nil
}

// MarkBrandCrawled stamps the brand with the time its latest crawl
// started. Products not re-saved since then count as missing.
func (s *ProductService) MarkBrandCrawled(ctx context.Context, name string, at time.Time) error {
	return s.touchBrand(ctx, name, "last_crawled_at", at)
}

func (s *ProductService) MarkBrandMatched(ctx context.Context, name string, at time.Time) error {
	return s.touchBrand(ctx, name, "last_matched_at", at)
}

func (s *ProductService) touchBrand(ctx context.Context, name, column string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.Brand{}).
		Where("brand_name = ?", name).
		Update(column, at.UTC())
	if result.Error != nil {
		return fmt.Errorf("failed to update brand: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("brand %q: %w", name, ErrRecordNotFound)
	}
	return nil
}

// Products

// SaveCrawledProduct upserts a product by (brand, product id), creating
// the brand when needed. A changed price appends a history row; a missing
// price keeps the stored one. A product that was never matched goes back
// to crawled; matched and failed products keep their stage.
func (s *ProductService) SaveCrawledProduct(ctx context.Context, brand string, p *CrawledProduct) (*models.Product, error) {
	if err := utils.ValidateStruct(p); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if err := utils.ValidateVar(brand, "brand"); err != nil {
		return nil, fmt.Errorf("invalid brand name %q: %w", brand, err)
	}

	now := s.now()
	var saved models.Product

	err := database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.Brand{BrandName: brand}).Error; err != nil {
			return fmt.Errorf("failed to ensure brand: %w", err)
		}

		var existing models.Product
		err := tx.Where("brand_name = ? AND coupang_product_id = ?", brand, p.ProductID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			saved = models.Product{
				BrandName:            brand,
				CoupangProductID:     p.ProductID,
				CoupangProductName:   p.Name,
				CoupangURL:           p.URL,
				CoupangCurrentPrice:  p.CurrentPrice,
				CoupangOriginalPrice: p.OriginalPrice,
				CoupangDiscountRate:  discountText(p.DiscountRate),
				PipelineStage:        models.StageCrawled,
				MatchingStatus:       models.MatchingPending,
				FirstSeenAt:          now,
				LastCrawledAt:        &now,
			}
			if p.CurrentPrice != nil {
				saved.PriceUpdatedAt = &now
			}
			if err := tx.Create(&saved).Error; err != nil {
				return fmt.Errorf("failed to create product: %w", err)
			}
		case err != nil:
			return fmt.Errorf("database error: %w", err)
		default:
			if err := s.updateCrawled(tx, &existing, p, now); err != nil {
				return err
			}
			saved = existing
		}

		return upsertCoupangDetail(tx, saved.ID, p, now)
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"brand":      brand,
		"product_id": p.ProductID,
		"id":         saved.ID,
		"stage":      saved.PipelineStage,
	}).Debug("Crawled product saved")

	return &saved, nil
}

func (s *ProductService) updateCrawled(tx *gorm.DB, existing *models.Product, p *CrawledProduct, now time.Time) error {
	updates := map[string]interface{}{
		"coupang_product_name": p.Name,
		"last_crawled_at":      now,
	}
	if p.URL != "" {
		updates["coupang_url"] = p.URL
	}
	if p.CurrentPrice != nil {
		if err := recordPriceChange(tx, existing.ID, models.PriceTypeCoupang, existing.CoupangCurrentPrice, *p.CurrentPrice, now); err != nil {
			return err
		}
		if existing.CoupangCurrentPrice == nil || *existing.CoupangCurrentPrice != *p.CurrentPrice {
			updates["price_updated_at"] = now
		}
		updates["coupang_current_price"] = *p.CurrentPrice
	}
	if p.OriginalPrice != nil {
		updates["coupang_original_price"] = *p.OriginalPrice
	}
	if rate := discountText(p.DiscountRate); rate != nil {
		updates["coupang_discount_rate"] = *rate
	}
	if existing.IHerbProductCode == nil && existing.PipelineStage != models.StageFailed {
		updates["pipeline_stage"] = models.StageCrawled
	}

	if err := tx.Model(existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if err := tx.First(existing, existing.ID).Error; err != nil {
		return fmt.Errorf("failed to reload product: %w", err)
	}
	return nil
}

func upsertCoupangDetail(tx *gorm.DB, productID uint, p *CrawledProduct, now time.Time) error {
	detail := models.CoupangDetail{
		ProductID:     productID,
		StockStatus:   optional(p.StockStatus),
		DeliveryBadge: optional(p.DeliveryBadge),
		OriginCountry: optional(p.OriginCountry),
		Rating:        p.Rating,
		IsRocket:      p.IsRocket,
		ShippingFee:   p.ShippingFee,
		SellerName:    optional(p.SellerName),
		ThumbnailURL:  optional(p.ThumbnailURL),
		UpdatedAt:     now,
	}
	if p.UnitPrice != nil {
		detail.UnitPrice = utils.StringPtr(strconv.FormatInt(*p.UnitPrice, 10))
	}
	if p.ReviewCount != nil {
		n := int64(*p.ReviewCount)
		detail.ReviewCount = &n
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		UpdateAll: true,
	}).Create(&detail).Error
	if err != nil {
		return fmt.Errorf("failed to upsert coupang details: %w", err)
	}
	return nil
}

func (s *ProductService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d: %w", id, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &product, nil
}

// UpdateTranslation stores the English name and moves the product to
// translated.
func (s *ProductService) UpdateTranslation(ctx context.Context, id uint, englishName string) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("product %d: %w", id, ErrRecordNotFound)
			}
			return fmt.Errorf("database error: %w", err)
		}
		if !product.PipelineStage.CanAdvanceTo(models.StageTranslated) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, product.PipelineStage, models.StageTranslated)
		}

		return tx.Model(&product).Updates(map[string]interface{}{
			"coupang_product_name_english": englishName,
			"pipeline_stage":               models.StageTranslated,
		}).Error
	})
}

// UpdateMatchingResult stores the marketplace-B side of a product and
// moves it to matched. A status outside the closed set is stored as error.
func (s *ProductService) UpdateMatchingResult(ctx context.Context, id uint, r *MatchResult) error {
	status := r.Status
	if status == "" {
		status = models.MatchingSuccess
	}
	if !status.Valid() {
		logrus.WithFields(logrus.Fields{"id": id, "status": status}).Warn("Unknown matching status stored as error")
		status = models.MatchingError
	}

	now := s.now()
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("product %d: %w", id, ErrRecordNotFound)
			}
			return fmt.Errorf("database error: %w", err)
		}
		if !product.PipelineStage.CanAdvanceTo(models.StageMatched) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, product.PipelineStage, models.StageMatched)
		}

		if r.DiscountPrice != nil {
			if err := recordPriceChange(tx, id, models.PriceTypeIHerb, product.IHerbDiscountPrice, *r.DiscountPrice, now); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"iherb_product_code":   optional(r.ProductCode),
			"iherb_product_name":   optional(r.ProductName),
			"iherb_product_url":    optional(r.ProductURL),
			"iherb_discount_price": r.DiscountPrice,
			"iherb_list_price":     r.ListPrice,
			"pipeline_stage":       models.StageMatched,
			"matching_status":      status,
			"last_matched_at":      now,
		}
		if err := tx.Model(&product).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update matching result: %w", err)
		}

		if r.ProductCode == "" {
			return nil
		}
		return upsertIHerbDetail(tx, id, r, now)
	})
}

func upsertIHerbDetail(tx *gorm.DB, productID uint, r *MatchResult, now time.Time) error {
	inStock := r.IsInStock
	if inStock == nil {
		v := true
		inStock = &v
	}

	detail := models.IHerbDetail{
		ProductID:            productID,
		DiscountPercent:      optional(r.DiscountPercent),
		SubscriptionDiscount: optional(r.SubscriptionDiscount),
		PricePerUnit:         optional(r.PricePerUnit),
		IsInStock:            inStock,
		StockMessage:         optional(r.StockMessage),
		BackInStockDate:      optional(r.BackInStockDate),
		Rating:               r.Rating,
		UpdatedAt:            now,
	}
	if r.ReviewCount != nil {
		n := int64(*r.ReviewCount)
		detail.ReviewCount = &n
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		UpdateAll: true,
	}).Create(&detail).Error
	if err != nil {
		return fmt.Errorf("failed to upsert iherb details: %w", err)
	}
	return nil
}

// ListByBrand pages through a brand's products, optionally filtered by
// stage.
func (s *ProductService) ListByBrand(ctx context.Context, brand string, stage models.PipelineStage, params utils.PaginationParams) ([]models.Product, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Product{}).Where("brand_name = ?", brand)
	if stage != "" {
		if !stage.Valid() {
			return nil, 0, fmt.Errorf("%w: stage %q", ErrInvalidStatus, stage)
		}
		query = query.Where("pipeline_stage = ?", stage)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	var products []models.Product
	query = utils.ApplySort(query, params, []string{"id", "coupang_current_price", "last_crawled_at", "first_seen_at"})
	if err := utils.ApplyPagination(query, params).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// ListByStage returns a brand's products at stage in id order. With
// unlockedOnly, products holding a live lease are skipped.
func (s *ProductService) ListByStage(ctx context.Context, brand string, stage models.PipelineStage, unlockedOnly bool) ([]models.Product, error) {
	query := s.db.WithContext(ctx).Where("brand_name = ? AND pipeline_stage = ?", brand, stage)
	if unlockedOnly {
		query = query.Where("(processing_lock IS NULL OR lock_expires_at IS NULL OR lock_expires_at < ?)", s.now())
	}

	var products []models.Product
	if err := query.Order("id").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// ListLocked returns the brand's products holding a live lease.
func (s *ProductService) ListLocked(ctx context.Context, brand string) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("brand_name = ? AND processing_lock IS NOT NULL AND lock_expires_at >= ?", brand, s.now()).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list locked products: %w", err)
	}
	return products, nil
}

func (s *ProductService) GetProductFull(ctx context.Context, id uint) (*models.ProductFull, error) {
	var rows []models.ProductFull
	if err := s.db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("product %d: %w", id, ErrRecordNotFound)
	}
	return &rows[0], nil
}

// Locks

// AcquireLock takes the product's lease for owner. A live lease held by
// someone else fails with ErrLockHeld; an expired one is taken over.
// Re-acquiring by the same owner extends the lease.
func (s *ProductService) AcquireLock(ctx context.Context, id uint, owner string) error {
	if owner == "" {
		return fmt.Errorf("lock owner is required")
	}

	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		Where("(processing_lock IS NULL OR lock_expires_at IS NULL OR lock_expires_at < ? OR processing_lock = ?)", now, owner).
		Updates(map[string]interface{}{
			"processing_lock": owner,
			"lock_expires_at": now.Add(s.lockTTL),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to acquire lock: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	if _, err := s.GetProduct(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("product %d: %w", id, ErrLockHeld)
}

func (s *ProductService) ReleaseLock(ctx context.Context, id uint, owner string) error {
	result := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND processing_lock = ?", id, owner).
		Updates(map[string]interface{}{
			"processing_lock": nil,
			"lock_expires_at": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release lock: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("product %d: %w", id, ErrLockNotHeld)
	}
	return nil
}

// ReclaimExpiredLocks clears leases that ran out without being released,
// typically left by an interrupted run, and returns how many were cleared.
func (s *ProductService) ReclaimExpiredLocks(ctx context.Context, brand string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("brand_name = ? AND processing_lock IS NOT NULL", brand).
		Where("(lock_expires_at IS NULL OR lock_expires_at < ?)", s.now()).
		Updates(map[string]interface{}{
			"processing_lock": nil,
			"lock_expires_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reclaim locks: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		logrus.WithFields(logrus.Fields{"brand": brand, "count": result.RowsAffected}).Info("Expired locks reclaimed")
	}
	return result.RowsAffected, nil
}

// Errors and history

// LogError appends a pipeline error, records it as the product's last
// error and marks the product failed.
func (s *ProductService) LogError(ctx context.Context, id uint, stage models.ErrorStage, errorType, message string) error {
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		entry := models.PipelineError{
			ProductID:    id,
			Stage:        stage,
			ErrorType:    errorType,
			ErrorMessage: message,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to log pipeline error: %w", err)
		}

		lastError := fmt.Sprintf("[%s] %s: %s", stage, errorType, utils.Truncate(message, 100))
		result := tx.Model(&models.Product{}).Where("id = ?", id).Updates(map[string]interface{}{
			"last_error":     lastError,
			"pipeline_stage": models.StageFailed,
		})
		if result.Error != nil {
			return fmt.Errorf("failed to mark product failed: %w", result.Error)
		}
		return nil
	})
}

func (s *ProductService) ListErrors(ctx context.Context, id uint) ([]models.PipelineError, error) {
	var entries []models.PipelineError
	if err := s.db.WithContext(ctx).Where("product_id = ?", id).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list pipeline errors: %w", err)
	}
	return entries, nil
}

// RecordPriceChange appends a history row when oldPrice is known and
// differs from newPrice.
func (s *ProductService) RecordPriceChange(ctx context.Context, id uint, priceType models.PriceType, oldPrice *int64, newPrice int64) error {
	return recordPriceChange(s.db.WithContext(ctx), id, priceType, oldPrice, newPrice, s.now())
}

func recordPriceChange(tx *gorm.DB, id uint, priceType models.PriceType, oldPrice *int64, newPrice int64, at time.Time) error {
	if oldPrice == nil || *oldPrice == newPrice {
		return nil
	}

	entry := models.PriceHistory{
		ProductID: id,
		PriceType: priceType,
		OldPrice:  oldPrice,
		NewPrice:  newPrice,
		ChangedAt: at,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record price change: %w", err)
	}
	return nil
}

func (s *ProductService) PriceHistory(ctx context.Context, id uint) ([]models.PriceHistory, error) {
	var entries []models.PriceHistory
	if err := s.db.WithContext(ctx).Where("product_id = ?", id).Order("id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list price history: %w", err)
	}
	return entries, nil
}

// MissingProducts returns products not seen by the brand's latest crawl.
func (s *ProductService) MissingProducts(ctx context.Context, brand string) ([]models.Product, error) {
	b, err := s.GetBrand(ctx, brand)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if b.LastCrawledAt == nil {
		return nil, nil
	}

	var products []models.Product
	err = s.db.WithContext(ctx).
		Where("brand_name = ? AND last_crawled_at < ?", brand, b.LastCrawledAt.UTC()).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list missing products: %w", err)
	}
	return products, nil
}

// ResetFailedProducts moves the brand's failed products back to stage,
// clearing their error and lock, and returns how many were reset.
func (s *ProductService) ResetFailedProducts(ctx context.Context, brand string, stage models.PipelineStage) (int64, error) {
	if !stage.Valid() || stage == models.StageFailed {
		return 0, fmt.Errorf("%w: cannot reset to stage %q", ErrInvalidStatus, stage)
	}

	result := s.db.WithContext(ctx).Model(&models.Product{}).
		Where("brand_name = ? AND pipeline_stage = ?", brand, models.StageFailed).
		Updates(map[string]interface{}{
			"pipeline_stage":  stage,
			"last_error":      nil,
			"processing_lock": nil,
			"lock_expires_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset products: %w", result.Error)
	}

	logrus.WithFields(logrus.Fields{"brand": brand, "stage": stage, "count": result.RowsAffected}).Info("Failed products reset")
	return result.RowsAffected, nil
}

// Reports

type groupCount struct {
	GroupKey string
	Total    int64
}

func (s *ProductService) BrandStats(ctx context.Context, brand string) (*models.BrandStats, error) {
	b, err := s.GetBrand(ctx, brand)
	if err != nil {
		return nil, err
	}

	stats := &models.BrandStats{
		BrandName:     brand,
		ByStage:       map[string]int64{},
		ByMatching:    map[string]int64{},
		LastCrawledAt: b.LastCrawledAt,
		LastMatchedAt: b.LastMatchedAt,
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Product{}).Where("brand_name = ?", brand).Count(&stats.TotalProducts).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	for column, into := range map[string]map[string]int64{
		"pipeline_stage":  stats.ByStage,
		"matching_status": stats.ByMatching,
	} {
		var rows []groupCount
		err := db.Model(&models.Product{}).
			Select(column + " AS group_key, COUNT(*) AS total").
			Where("brand_name = ?", brand).
			Group(column).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to group by %s: %w", column, err)
		}
		for _, row := range rows {
			into[row.GroupKey] = row.Total
		}
	}

	return stats, nil
}

// PriceComparison lists matched products with both prices, largest
// price difference first.
func (s *ProductService) PriceComparison(ctx context.Context, brand string, limit int) ([]models.PriceComparison, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []models.PriceComparison
	err := s.db.WithContext(ctx).
		Where("brand_name = ?", brand).
		Order("price_difference DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load price comparison: %w", err)
	}
	return rows, nil
}

// Images

// AddProductImage records an image of a product, updating the storage key
// when the image is already known.
func (s *ProductService) AddProductImage(ctx context.Context, id uint, platform models.Platform, imageURL string, storageKey *string) (*models.ProductImage, error) {
	image := models.ProductImage{
		ProductID:  id,
		Platform:   platform,
		ImageURL:   imageURL,
		StorageKey: storageKey,
	}

	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "platform"}, {Name: "image_url"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_key"}),
	}).Create(&image).Error
	if err != nil {
		return nil, fmt.Errorf("failed to add product image: %w", err)
	}

	var stored models.ProductImage
	if err := db.Where("product_id = ? AND platform = ? AND image_url = ?", id, platform, imageURL).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to reload product image: %w", err)
	}
	return &stored, nil
}

func (s *ProductService) ListProductImages(ctx context.Context, id uint) ([]models.ProductImage, error) {
	var images []models.ProductImage
	if err := s.db.WithContext(ctx).Where("product_id = ?", id).Order("id").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("failed to list product images: %w", err)
	}
	return images, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func discountText(rate *int) *string {
	if rate == nil {
		return nil
	}
	return utils.StringPtr(strconv.Itoa(*rate) + "%")
}
