// internal/models/listing.go
package models

// CoupangProduct is one search-result card. Pointer fields are nil when
// the page did not carry the value.
type CoupangProduct struct {
	Rank          int      `json:"rank"`
	ProductID     string   `json:"product_id"`
	Name          string   `json:"name"`
	Price         *int64   `json:"price"`
	OriginalPrice *int64   `json:"original_price"`
	DiscountRate  *int     `json:"discount_rate"`
	UnitPrice     *int64   `json:"unit_price"`
	ShippingFee   int64    `json:"shipping_fee"`
	FinalPrice    *int64   `json:"final_price"`
	URL           string   `json:"url"`
	ThumbnailURL  string   `json:"thumbnail_url"`
	Count         *int     `json:"count"`
	Rating        *float64 `json:"rating"`
	ReviewCount   *int     `json:"review_count"`
	IsRocket      bool     `json:"is_rocket"`
	DeliveryType  string   `json:"delivery_type"`
}

// CoupangDetailPage holds the fields read from a product detail page.
type CoupangDetailPage struct {
	Name          string   `json:"name"`
	Price         *int64   `json:"price"`
	OriginalPrice *int64   `json:"original_price"`
	ShippingFee   int64    `json:"shipping_fee"`
	SellerName    string   `json:"seller_name"`
	ThumbnailURL  string   `json:"thumbnail_url"`
	Rating        *float64 `json:"rating"`
	ReviewCount   *int     `json:"review_count"`
	SoldOut       bool     `json:"sold_out"`
	OriginCountry string   `json:"origin_country"`
}

// IHerbListing is a marketplace-B product page or search hit.
type IHerbListing struct {
	ProductCode   string   `json:"product_code"`
	Name          string   `json:"name"`
	Brand         string   `json:"brand"`
	URL           string   `json:"url"`
	ImageURL      string   `json:"image_url"`
	Images        []string `json:"images"`
	DiscountPrice *int64   `json:"discount_price"`
	ListPrice     *int64   `json:"list_price"`
	Rating        *float64 `json:"rating"`
	ReviewCount   *int     `json:"review_count"`
	InStock       *bool    `json:"in_stock"`
}

// Image is downloaded image content.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// VerifyRequest asks whether two product images show the same product.
type VerifyRequest struct {
	Source        *Image
	Candidate     *Image
	SourceName    string
	CandidateName string
}

type Verdict struct {
	Match  bool   `json:"match"`
	Reason string `json:"reason"`
}
