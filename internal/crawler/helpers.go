// internal/crawler/helpers.go
package crawler

import (
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	pricePattern       = regexp.MustCompile(`([\d,]+)원`)
	discountPattern    = regexp.MustCompile(`(\d+)%`)
	unitPricePattern   = regexp.MustCompile(`1정당\s*([\d,]+)원`)
	shippingFeePattern = regexp.MustCompile(`배송비\s*([\d,]+)원`)
	reviewCountPattern = regexp.MustCompile(`\(([\d,]+)\)`)
	ratingStylePattern = regexp.MustCompile(`width:\s*([\d.]+)%`)
	productIDPattern   = regexp.MustCompile(`/(?:vp/)?products/(\d+)`)
	whitespacePattern  = regexp.MustCompile(`\s+`)

	countPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*정`),
		regexp.MustCompile(`(\d+)\s*캡슐`),
		regexp.MustCompile(`(\d+)\s*알`),
		regexp.MustCompile(`(\d+)\s*개입`),
		regexp.MustCompile(`(\d+)\s*tablets`),
		regexp.MustCompile(`(\d+)\s*caps`),
	}

	freeShippingKeywords = []string{"무료", "무료배송", "free"}
)

const (
	DeliveryJikgu  = "직구"
	DeliveryRocket = "로켓배송"
	DeliveryWow    = "와우배송"
)

func atoi64(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	return v, err == nil
}

// ExtractPrice reads the first "N원" amount: "104,700원" → 104700.
func ExtractPrice(text string) *int64 {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, ok := atoi64(m[1])
	if !ok {
		return nil
	}
	return &v
}

// ExtractDiscountRate reads "46%" → 46.
func ExtractDiscountRate(text string) *int {
	m := discountPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &v
}

// ExtractUnitPrice reads "(1정당 340원)" → 340.
func ExtractUnitPrice(text string) *int64 {
	m := unitPricePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, ok := atoi64(m[1])
	if !ok {
		return nil
	}
	return &v
}

// ExtractCount finds a tablet or capsule count within [min, max].
func ExtractCount(text string, min, max int) *int {
	lower := strings.ToLower(text)
	for _, p := range countPatterns {
		for _, m := range p.FindAllStringSubmatch(lower, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if n >= min && n <= max {
				return &n
			}
		}
	}
	return nil
}

func IsFreeShipping(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range freeShippingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ExtractShippingFee returns the stated fee, or 0 when none is stated.
// A conditional offer such as "배송비 2,500원 조건부 무료배송" costs 2500.
func ExtractShippingFee(text string) int64 {
	m := shippingFeePattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, ok := atoi64(m[1])
	if !ok {
		return 0
	}
	return v
}

// ExtractReviewCount reads "(5,135)" → 5135.
func ExtractReviewCount(text string) *int {
	m := reviewCountPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, ok := atoi64(m[1])
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

// ParseDeliveryType maps a badge image source to a delivery label.
func ParseDeliveryType(imgSrc string) string {
	lower := strings.ToLower(imgSrc)
	switch {
	case lower == "":
		return ""
	case strings.Contains(lower, "jikgu"):
		return DeliveryJikgu
	case strings.Contains(lower, "rocket"), strings.Contains(lower, "badge_"):
		return DeliveryRocket
	case strings.Contains(lower, "wow"):
		return DeliveryWow
	}
	return ""
}

func IsRocketDelivery(badges []string) bool {
	for _, b := range badges {
		if strings.Contains(b, "로켓") {
			return true
		}
	}
	return false
}

// ExtractRatingFromStyle converts a star bar width to a 5-point rating:
// "width:90%" → 4.5.
func ExtractRatingFromStyle(style string) *float64 {
	m := ratingStylePattern.FindStringSubmatch(style)
	if m == nil {
		return nil
	}
	width, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	rating := math.Round(width/20*10) / 10
	return &rating
}

func CleanSellerName(name string) string {
	name = whitespacePattern.ReplaceAllString(strings.TrimSpace(name), " ")
	name = strings.TrimPrefix(name, "판매자:")
	name = strings.TrimPrefix(name, "판매자")
	return strings.TrimSpace(name)
}

// ProductIDFromURL extracts the numeric product id from a product link.
func ProductIDFromURL(raw string) string {
	if m := productIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if u, err := url.Parse(raw); err == nil {
		if id := u.Query().Get("productId"); id != "" {
			return id
		}
	}
	return ""
}

// AbsoluteURL resolves href against base.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// CleanText collapses runs of whitespace.
func CleanText(s string) string {
	return whitespacePattern.ReplaceAllString(strings.TrimSpace(s), " ")
}
