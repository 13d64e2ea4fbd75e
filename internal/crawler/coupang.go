// internal/crawler/coupang.go
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/pricematch/pricematch/internal/models"
)

const (
	CoupangBaseURL  = "https://www.coupang.com"
	coupangListSize = 36

	minCount = 10
	maxCount = 1000
)

type CoupangCrawler struct {
	page Page
}

func NewCoupangCrawler(page Page) *CoupangCrawler {
	return &CoupangCrawler{page: page}
}

func SearchURL(query string) string {
	return fmt.Sprintf("%s/np/search?q=%s&channel=user&listSize=%d", CoupangBaseURL, url.QueryEscape(query), coupangListSize)
}

// SearchProducts returns up to topN result cards in page order.
func (c *CoupangCrawler) SearchProducts(ctx context.Context, query string, topN int) ([]models.CoupangProduct, error) {
	if err := c.page.GetWithCoupangReferrer(ctx, SearchURL(query)); err != nil {
		return nil, err
	}

	html, err := c.page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read search page: %w", err)
	}
	if isAccessDenied(html) {
		return nil, ErrAccessDenied
	}

	products, err := ParseSearchResults(html, topN)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"query": query, "found": len(products)}).Info("Coupang search parsed")
	return products, nil
}

// GetProductDetail loads a product page and reads its detail fields.
func (c *CoupangCrawler) GetProductDetail(ctx context.Context, productURL string) (*models.CoupangDetailPage, error) {
	if err := c.page.GetWithCoupangReferrer(ctx, productURL); err != nil {
		return nil, err
	}

	html, err := c.page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read detail page: %w", err)
	}
	if isAccessDenied(html) {
		return nil, ErrAccessDenied
	}

	return ParseProductDetail(html)
}

// ParseSearchResults parses search-result cards. Cards without a name are
// skipped but still count toward rank.
func ParseSearchResults(html string, topN int) ([]models.CoupangProduct, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var products []models.CoupangProduct
	doc.Find(SelProductListItem).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if topN > 0 && i >= topN {
			return false
		}
		if p, ok := parseProductCard(item, i+1); ok {
			products = append(products, p)
		}
		return true
	})

	return products, nil
}

func parseProductCard(item *goquery.Selection, rank int) (models.CoupangProduct, bool) {
	name := firstText(item, SelProductName)
	if name == "" {
		return models.CoupangProduct{}, false
	}

	p := models.CoupangProduct{
		Rank: rank,
		Name: name,
	}

	p.URL = AbsoluteURL(CoupangBaseURL, firstAttr(item, SelProductLink, "href"))
	p.ProductID = ProductIDFromURL(p.URL)

	if area := item.Find(SelPriceArea).First(); area.Length() > 0 {
		readPriceArea(area, &p)
	}

	p.ShippingFee = ExtractShippingFee(item.Find(SelShippingFeeBadge).First().Text())
	if p.ShippingFee == 0 {
		p.ShippingFee = ExtractShippingFee(item.Find(SelDeliveryInfo).Text())
	}
	if p.Price != nil {
		final := *p.Price + p.ShippingFee
		p.FinalPrice = &final
	}

	if img := item.Find(SelProductImage).First(); img.Length() > 0 {
		src, _ := img.Attr("src")
		if src == "" {
			src, _ = img.Attr("data-img-src")
		}
		p.ThumbnailURL = AbsoluteURL("https:", src)
	}

	p.Count = ExtractCount(name, minCount, maxCount)

	if rating := item.Find(SelRatingContainer).First(); rating.Length() > 0 {
		if style, ok := rating.Find(SelRatingStar).First().Attr("style"); ok {
			p.Rating = ExtractRatingFromStyle(style)
		}
		countText := rating.Find(SelRatingCount).First().Text()
		if countText == "" {
			countText = rating.Text()
		}
		p.ReviewCount = ExtractReviewCount(countText)
	}

	var badges []string
	item.Find(SelBadgeImage + ", " + SelRocketBadge + ", " + SelJikguBadge).Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if t := ParseDeliveryType(src); t != "" {
			badges = append(badges, t)
			if p.DeliveryType == "" {
				p.DeliveryType = t
			}
		}
	})
	p.IsRocket = IsRocketDelivery(badges)

	return p, true
}

// readPriceArea splits the price block into sale price, struck-through
// original price, discount and per-unit price.
func readPriceArea(area *goquery.Selection, p *models.CoupangProduct) {
	text := area.Text()

	original := area.Find(SelPriceOriginal).First().Text()
	unit := area.Find(SelPriceUnit).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), "당")
	}).First().Text()

	p.OriginalPrice = ExtractPrice(original)
	p.UnitPrice = ExtractUnitPrice(unit)
	if p.UnitPrice == nil {
		p.UnitPrice = ExtractUnitPrice(text)
	}
	p.DiscountRate = ExtractDiscountRate(text)

	sale := text
	if original != "" {
		sale = strings.Replace(sale, original, "", 1)
	}
	if unit != "" {
		sale = strings.Replace(sale, unit, "", 1)
	}
	sale = unitPricePattern.ReplaceAllString(sale, "")
	p.Price = ExtractPrice(sale)
}

func ParseProductDetail(html string) (*models.CoupangDetailPage, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	root := doc.Selection
	d := &models.CoupangDetailPage{
		Name:          firstText(root, SelDetailName),
		Price:         ExtractPrice(firstText(root, SelDetailPrice)),
		OriginalPrice: ExtractPrice(firstText(root, SelDetailOriginalPrice)),
		ShippingFee:   ExtractShippingFee(firstText(root, SelDetailShipping)),
		OriginCountry: firstText(root, SelDetailOrigin),
		SoldOut:       root.Find(SelDetailSoldOut).Length() > 0,
	}

	// seller name is the link's own text, without nested badges
	if seller := root.Find(SelDetailSeller).First(); seller.Length() > 0 {
		own := seller.Contents().FilterFunction(func(_ int, s *goquery.Selection) bool {
			return goquery.NodeName(s) == "#text"
		}).Text()
		d.SellerName = CleanSellerName(own)
	}

	if src := firstAttr(root, SelDetailImage, "src"); src != "" {
		d.ThumbnailURL = AbsoluteURL("https:", src)
	}

	d.Rating = ExtractRatingFromStyle(firstAttr(root, SelDetailRatingStar, "style"))
	d.ReviewCount = ExtractReviewCount(firstText(root, SelDetailRatingCount))

	return d, nil
}
