// internal/models/product.go
package models

import (
	"time"
)

type Brand struct {
	BrandName        string     `json:"brand_name" gorm:"primaryKey;size:100"`
	CoupangSearchURL string     `json:"coupang_search_url" gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"`
	LastCrawledAt    *time.Time `json:"last_crawled_at"`
	LastMatchedAt    *time.Time `json:"last_matched_at"`

	Products []Product `json:"-" gorm:"foreignKey:BrandName;references:BrandName;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (Brand) TableName() string { return "brands" }

// Product is one marketplace-A listing tracked for a brand, with its
// marketplace-B counterpart once matched.
type Product struct {
	ID                        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	BrandName                 string         `json:"brand_name" gorm:"size:100;not null;uniqueIndex:idx_products_brand_product,priority:1"`
	CoupangProductID          string         `json:"coupang_product_id" gorm:"size:64;not null;uniqueIndex:idx_products_brand_product,priority:2"`
	CoupangProductName        string         `json:"coupang_product_name" gorm:"type:text;not null"`
	CoupangProductNameEnglish *string        `json:"coupang_product_name_english" gorm:"type:text"`
	CoupangURL                string         `json:"coupang_url" gorm:"type:text"`
	CoupangCurrentPrice       *int64         `json:"coupang_current_price"`
	CoupangOriginalPrice      *int64         `json:"coupang_original_price"`
	CoupangDiscountRate       *string        `json:"coupang_discount_rate" gorm:"size:20"`
	IHerbProductCode          *string        `json:"iherb_product_code" gorm:"column:iherb_product_code;size:64;index:idx_products_iherb_code"`
	IHerbProductName          *string        `json:"iherb_product_name" gorm:"column:iherb_product_name;type:text"`
	IHerbProductURL           *string        `json:"iherb_product_url" gorm:"column:iherb_product_url;type:text"`
	IHerbDiscountPrice        *int64         `json:"iherb_discount_price" gorm:"column:iherb_discount_price"`
	IHerbListPrice            *int64         `json:"iherb_list_price" gorm:"column:iherb_list_price"`
	PipelineStage             PipelineStage  `json:"pipeline_stage" gorm:"size:20;not null;default:crawled;check:chk_products_pipeline_stage,pipeline_stage IN ('crawled','translated','matched','failed')"`
	MatchingStatus            MatchingStatus `json:"matching_status" gorm:"size:20;not null;default:pending;check:chk_products_matching_status,matching_status IN ('pending','success','not_found','error')"`
	ProcessingLock            *string        `json:"processing_lock,omitempty" gorm:"size:64"`
	LockExpiresAt             *time.Time     `json:"lock_expires_at,omitempty"`
	LastError                 *string        `json:"last_error,omitempty" gorm:"type:text"`
	FirstSeenAt               time.Time      `json:"first_seen_at" gorm:"not null"`
	LastCrawledAt             *time.Time     `json:"last_crawled_at"`
	LastMatchedAt             *time.Time     `json:"last_matched_at"`
	PriceUpdatedAt            *time.Time     `json:"price_updated_at"`
}

func (Product) TableName() string { return "products" }

// IsLocked reports whether a live lease is held at now.
func (p *Product) IsLocked(now time.Time) bool {
	return p.ProcessingLock != nil && p.LockExpiresAt != nil && p.LockExpiresAt.After(now)
}

type CoupangDetail struct {
	ProductID     uint      `json:"product_id" gorm:"primaryKey;autoIncrement:false"`
	StockStatus   *string   `json:"stock_status" gorm:"size:50"`
	DeliveryBadge *string   `json:"delivery_badge" gorm:"size:50"`
	OriginCountry *string   `json:"origin_country" gorm:"size:100"`
	UnitPrice     *string   `json:"unit_price" gorm:"size:100"`
	Rating        *float64  `json:"rating"`
	ReviewCount   *int64    `json:"review_count"`
	IsRocket      bool      `json:"is_rocket" gorm:"not null;default:false"`
	ShippingFee   *int64    `json:"shipping_fee"`
	SellerName    *string   `json:"seller_name" gorm:"size:255"`
	ThumbnailURL  *string   `json:"thumbnail_url" gorm:"type:text"`
	UpdatedAt     time.Time `json:"updated_at"`

	Product *Product `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (CoupangDetail) TableName() string { return "coupang_details" }

type IHerbDetail struct {
	ProductID            uint      `json:"product_id" gorm:"primaryKey;autoIncrement:false"`
	DiscountPercent      *string   `json:"discount_percent" gorm:"size:20"`
	SubscriptionDiscount *string   `json:"subscription_discount" gorm:"size:20"`
	PricePerUnit         *string   `json:"price_per_unit" gorm:"size:100"`
	IsInStock            *bool     `json:"is_in_stock"`
	StockMessage         *string   `json:"stock_message" gorm:"type:text"`
	BackInStockDate      *string   `json:"back_in_stock_date" gorm:"size:50"`
	Rating               *float64  `json:"rating"`
	ReviewCount          *int64    `json:"review_count"`
	UpdatedAt            time.Time `json:"updated_at"`

	Product *Product `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (IHerbDetail) TableName() string { return "iherb_details" }

type PriceHistory struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductID uint      `json:"product_id" gorm:"not null;index:idx_price_history_product"`
	PriceType PriceType `json:"price_type" gorm:"size:10;not null;check:chk_price_history_type,price_type IN ('coupang','iherb')"`
	OldPrice  *int64    `json:"old_price"`
	NewPrice  int64     `json:"new_price" gorm:"not null"`
	ChangedAt time.Time `json:"changed_at" gorm:"not null"`

	Product *Product `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (PriceHistory) TableName() string { return "price_history" }

type PipelineError struct {
	ID           uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductID    uint       `json:"product_id" gorm:"not null;index:idx_pipeline_errors_product"`
	Stage        ErrorStage `json:"stage" gorm:"size:20;not null;check:chk_pipeline_errors_stage,stage IN ('crawl','translate','match')"`
	ErrorType    string     `json:"error_type" gorm:"size:100;not null"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at"`

	Product *Product `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (PipelineError) TableName() string { return "pipeline_errors" }

type ProductImage struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ProductID  uint      `json:"product_id" gorm:"not null;uniqueIndex:idx_product_images_unique,priority:1"`
	Platform   Platform  `json:"platform" gorm:"size:10;not null;uniqueIndex:idx_product_images_unique,priority:2;check:chk_product_images_platform,platform IN ('coupang','iherb')"`
	ImageURL   string    `json:"image_url" gorm:"size:1000;not null;uniqueIndex:idx_product_images_unique,priority:3"`
	StorageKey *string   `json:"storage_key" gorm:"size:500"`
	CreatedAt  time.Time `json:"created_at"`

	Product *Product `json:"-" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
}

func (ProductImage) TableName() string { return "product_images" }

// ProductFull is a row of the v_products_full view.
type ProductFull struct {
	ID                        uint           `json:"id"`
	BrandName                 string         `json:"brand_name"`
	CoupangProductID          string         `json:"coupang_product_id"`
	CoupangProductName        string         `json:"coupang_product_name"`
	CoupangProductNameEnglish *string        `json:"coupang_product_name_english"`
	CoupangURL                string         `json:"coupang_url"`
	CoupangCurrentPrice       *int64         `json:"coupang_current_price"`
	CoupangOriginalPrice      *int64         `json:"coupang_original_price"`
	CoupangDiscountRate       *string        `json:"coupang_discount_rate"`
	IHerbProductCode          *string        `json:"iherb_product_code" gorm:"column:iherb_product_code"`
	IHerbProductName          *string        `json:"iherb_product_name" gorm:"column:iherb_product_name"`
	IHerbProductURL           *string        `json:"iherb_product_url" gorm:"column:iherb_product_url"`
	IHerbDiscountPrice        *int64         `json:"iherb_discount_price" gorm:"column:iherb_discount_price"`
	IHerbListPrice            *int64         `json:"iherb_list_price" gorm:"column:iherb_list_price"`
	PipelineStage             PipelineStage  `json:"pipeline_stage"`
	MatchingStatus            MatchingStatus `json:"matching_status"`
	LastError                 *string        `json:"last_error,omitempty"`
	FirstSeenAt               time.Time      `json:"first_seen_at"`
	LastCrawledAt             *time.Time     `json:"last_crawled_at"`
	LastMatchedAt             *time.Time     `json:"last_matched_at"`

	StockStatus        *string  `json:"stock_status"`
	DeliveryBadge      *string  `json:"delivery_badge"`
	OriginCountry      *string  `json:"origin_country"`
	UnitPrice          *string  `json:"unit_price"`
	CoupangRating      *float64 `json:"coupang_rating"`
	CoupangReviewCount *int64   `json:"coupang_review_count"`
	IsRocket           *bool    `json:"is_rocket"`
	ShippingFee        *int64   `json:"shipping_fee"`
	SellerName         *string  `json:"seller_name"`
	ThumbnailURL       *string  `json:"thumbnail_url"`

	DiscountPercent      *string  `json:"discount_percent"`
	SubscriptionDiscount *string  `json:"subscription_discount"`
	PricePerUnit         *string  `json:"price_per_unit"`
	IsInStock            *bool    `json:"is_in_stock"`
	StockMessage         *string  `json:"stock_message"`
	BackInStockDate      *string  `json:"back_in_stock_date"`
	IHerbRating          *float64 `json:"iherb_rating" gorm:"column:iherb_rating"`
	IHerbReviewCount     *int64   `json:"iherb_review_count" gorm:"column:iherb_review_count"`
}

func (ProductFull) TableName() string { return "v_products_full" }

// PriceComparison is a row of the v_price_comparison view.
type PriceComparison struct {
	ID                        uint    `json:"id"`
	BrandName                 string  `json:"brand_name"`
	CoupangProductName        string  `json:"coupang_product_name"`
	CoupangProductNameEnglish *string `json:"coupang_product_name_english"`
	IHerbProductName          *string `json:"iherb_product_name" gorm:"column:iherb_product_name"`
	CoupangCurrentPrice       *int64  `json:"coupang_current_price"`
	IHerbDiscountPrice        *int64  `json:"iherb_discount_price" gorm:"column:iherb_discount_price"`
	PriceDifference           *int64  `json:"price_difference"`
	CheaperPlatform           *string `json:"cheaper_platform"`
	CoupangURL                string  `json:"coupang_url"`
	IHerbProductURL           *string `json:"iherb_product_url" gorm:"column:iherb_product_url"`
}

func (PriceComparison) TableName() string { return "v_price_comparison" }

type BrandStats struct {
	BrandName     string           `json:"brand_name"`
	TotalProducts int64            `json:"total_products"`
	ByStage       map[string]int64 `json:"by_stage"`
	ByMatching    map[string]int64 `json:"by_matching"`
	LastCrawledAt *time.Time       `json:"last_crawled_at"`
	LastMatchedAt *time.Time       `json:"last_matched_at"`
}
