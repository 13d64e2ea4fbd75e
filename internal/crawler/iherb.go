// internal/crawler/iherb.go
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/pricematch/pricematch/internal/models"
	"github.com/pricematch/pricematch/internal/utils"
)

const (
	IHerbBaseURL   = "https://kr.iherb.com"
	iherbImageHost = "cloudinary.images-iherb.com"
)

var bannerMarkers = []string{"dPDP_Authenticity", "dPDP_Fresh", "banner"}

type IHerbScraper struct {
	page Page
}

func NewIHerbScraper(page Page) *IHerbScraper {
	return &IHerbScraper{page: page}
}

// ScrapeListing loads a product page. A page without a main image is
// returned with an empty ImageURL rather than an error.
func (s *IHerbScraper) ScrapeListing(ctx context.Context, listingURL string) (*models.IHerbListing, error) {
	if err := s.page.Navigate(ctx, listingURL); err != nil {
		return nil, err
	}

	html, err := s.page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read listing page: %w", err)
	}
	if isAccessDenied(html) {
		return nil, ErrAccessDenied
	}

	listing, err := ParseListing(html, listingURL)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"url":    listingURL,
		"name":   listing.Name,
		"images": len(listing.Images),
	}).Debug("iHerb listing scraped")
	return listing, nil
}

// Search returns up to topN listings for query.
func (s *IHerbScraper) Search(ctx context.Context, query string, topN int) ([]models.IHerbListing, error) {
	searchURL := fmt.Sprintf("%s/search?kw=%s", IHerbBaseURL, url.QueryEscape(query))
	if err := s.page.Navigate(ctx, searchURL); err != nil {
		return nil, err
	}

	html, err := s.page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read search page: %w", err)
	}
	if isAccessDenied(html) {
		return nil, ErrAccessDenied
	}

	return ParseIHerbSearch(html, topN)
}

func ParseListing(html, listingURL string) (*models.IHerbListing, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	root := doc.Selection
	listing := &models.IHerbListing{
		URL:           listingURL,
		ProductCode:   ProductCodeFromURL(listingURL),
		Name:          firstText(root, SelIHerbName),
		Brand:         firstText(root, SelIHerbBrand),
		DiscountPrice: utils.ParsePrice(firstText(root, SelIHerbPrice)),
		ListPrice:     utils.ParsePrice(firstText(root, SelIHerbListPrice)),
	}
	if listing.Name == "" {
		listing.Name = firstText(root, ".product-summary-title")
	}

	inStock := root.Find(SelIHerbOutOfStock).Length() == 0
	listing.InStock = &inStock

	main := largeImage(firstAttr(root, SelIHerbImage, "src"))
	if main == "" {
		main = largeImage(firstAttr(root, ".product-summary-image img", "src"))
	}
	listing.ImageURL = main

	seen := map[string]bool{}
	if main != "" {
		listing.Images = append(listing.Images, main)
		seen[main] = true
	}
	root.Find(".thumbnail-item img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("data-large-img")
		if !isProductImage(src) {
			src, _ = img.Attr("src")
			src = strings.NewReplacer("/r/", "/l/", "/s/", "/l/").Replace(src)
		}
		if isProductImage(src) && !seen[src] {
			seen[src] = true
			listing.Images = append(listing.Images, src)
		}
	})

	return listing, nil
}

func ParseIHerbSearch(html string, topN int) ([]models.IHerbListing, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var listings []models.IHerbListing
	doc.Find(SelIHerbSearchItem).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if topN > 0 && len(listings) >= topN {
			return false
		}

		link := item.Find(SelIHerbSearchLink).First()
		href, _ := link.Attr("href")
		if href == "" {
			return true
		}
		href = AbsoluteURL(IHerbBaseURL, href)

		name := firstText(item, SelIHerbSearchTitle)
		if name == "" {
			name, _ = link.Attr("title")
		}

		image := firstAttr(item, SelIHerbSearchImage, "src")
		if image == "" {
			image = firstAttr(item, SelIHerbSearchImage, "data-src")
		}

		l := models.IHerbListing{
			ProductCode:   ProductCodeFromURL(href),
			Name:          CleanText(name),
			URL:           href,
			ImageURL:      largeImage(image),
			DiscountPrice: utils.ParsePrice(firstText(item, SelIHerbSearchPrice)),
		}
		if title, ok := item.Find(SelIHerbSearchStars).First().Attr("title"); ok {
			l.Rating = utils.ParseFloat(title)
			if i := strings.Index(title, "-"); i >= 0 {
				l.ReviewCount = utils.ParseInt(title[i+1:])
			}
		}
		listings = append(listings, l)
		return true
	})

	return listings, nil
}

// ProductCodeFromURL reads the trailing numeric id of /pr/<slug>/<id>.
func ProductCodeFromURL(raw string) string {
	u, err := url.Parse(raw)
	path := raw
	if err == nil {
		path = u.Path
	}
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	last := parts[len(parts)-1]

	var b strings.Builder
	for _, r := range last {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// largeImage returns the full-size variant of a product image URL.
func largeImage(src string) string {
	src = strings.TrimSpace(src)
	if !strings.Contains(src, iherbImageHost) {
		return ""
	}
	return strings.Replace(src, "/v/", "/l/", 1)
}

func isProductImage(src string) bool {
	if !strings.Contains(src, iherbImageHost) {
		return false
	}
	for _, marker := range bannerMarkers {
		if strings.Contains(src, marker) {
			return false
		}
	}
	return true
}
