// internal/crawler/selectors.go
package crawler

// Coupang search results. Class names carry build hashes and change
// with site releases; keep them in one place.
const (
	SelProductListItem  = "li.ProductUnit_productUnit__Qd6sv"
	SelProductName      = "div.ProductUnit_productNameV2__cV9cw"
	SelProductLink      = "a"
	SelPriceArea        = "div.PriceArea_priceArea__NntJz"
	SelPriceOriginal    = "del"
	SelPriceUnit        = "span.custom-oos"
	SelShippingFeeBadge = "div.TextBadge_feePrice__n_gta"
	SelDeliveryInfo     = `div.fw-text-\[14px\]`
	SelBadgeImage       = "div.ImageBadge_default__JWaYp img"
	SelRocketBadge      = "img[src*='rocket']"
	SelJikguBadge       = "img[src*='jikgu']"
	SelRatingContainer  = "div.ProductRating_productRating__jjf7W"
	SelRatingStar       = "div.ProductRating_star__RGSlV"
	SelRatingCount      = "span.ProductRating_ratingCount__R0Vhz"
	SelProductImage     = "figure.ProductUnit_productImage__Mqcg1 img, img[alt='Product image'], img.twc-w-full"
)

// Coupang product detail page.
const (
	SelDetailName          = "h1.product-title, h2.prod-buy-header__title"
	SelDetailPrice         = "div.final-price-amount, span.total-price strong"
	SelDetailOriginalPrice = "div.original-price-amount, span.origin-price"
	SelDetailShipping      = "div.shipping-fee-txt, div.prod-shipping-fee-message"
	SelDetailSeller        = "a.vendor-name, a.prod-sale-vendor-name"
	SelDetailImage         = "img.prod-image__detail, div.product-image img"
	SelDetailRatingStar    = "span.rating-star-num"
	SelDetailRatingCount   = "span.rating-count-txt, span.count"
	SelDetailSoldOut       = "div.oos-label, div.prod-not-find-known__buy__button"
	SelDetailOrigin        = "li.origin-country, td.origin-country"
)

// iHerb product and search pages.
const (
	SelIHerbImage       = "#iherb-product-image"
	SelIHerbName        = "h1#name"
	SelIHerbBrand       = "#brand a"
	SelIHerbPrice       = "#product-price .price-inner-text p, #price"
	SelIHerbListPrice   = "#product-msrp .price-inner-text p, .price-rrp"
	SelIHerbOutOfStock  = "#stock-status .text-danger, .out-of-stock"
	SelIHerbSearchItem  = "div.product-cell-container"
	SelIHerbSearchLink  = "a.product-link"
	SelIHerbSearchTitle = "div.product-title"
	SelIHerbSearchPrice = "span.price bdi"
	SelIHerbSearchImage = "img.product-image"
	SelIHerbSearchStars = "a.stars"
)

// Google reverse image search.
const (
	SelGoogleLensButton  = "div[aria-label*='Search by image' i], div[aria-label*='이미지로 검색' i]"
	SelGoogleFileInput   = "input[type='file']"
	SelGoogleQueryInput  = "input[name='q'], textarea[name='q']"
	SelGoogleResultLinks = "a[href]"
)
