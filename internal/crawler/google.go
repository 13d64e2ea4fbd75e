// internal/crawler/google.go
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const (
	googleImagesURL   = "https://images.google.com/"
	reverseSearchHint = "iherb"
	settleDelay       = 1500 * time.Millisecond
)

var excludedLinkHosts = []string{
	"google.com",
	"google.co.kr",
	"gstatic.com",
	"youtube.com",
	"googleusercontent.com",
}

type GoogleImageSearch struct {
	page Page
}

func NewGoogleImageSearch(page Page) *GoogleImageSearch {
	return &GoogleImageSearch{page: page}
}

// FindCandidateURL uploads the image at imagePath to a reverse image
// search, narrows the results with the marketplace name and returns the
// first marketplace link, or "" when there is none.
func (g *GoogleImageSearch) FindCandidateURL(ctx context.Context, imagePath string) (string, error) {
	if err := g.page.Navigate(ctx, googleImagesURL); err != nil {
		return "", err
	}

	if err := g.page.Click(ctx, SelGoogleLensButton); err != nil {
		return "", fmt.Errorf("open image search: %w", err)
	}
	if err := g.page.UploadFile(ctx, SelGoogleFileInput, imagePath); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	g.settle(ctx)

	// scrolling away and back closes the crop overlay
	if err := g.page.Scroll(ctx, 800); err != nil {
		logrus.WithError(err).Debug("Scroll down failed")
	} else if err := g.page.Scroll(ctx, -800); err != nil {
		logrus.WithError(err).Debug("Scroll back failed")
	}

	if err := g.page.TypeAndSubmit(ctx, SelGoogleQueryInput, reverseSearchHint); err != nil {
		return "", fmt.Errorf("refine search: %w", err)
	}
	g.settle(ctx)

	html, err := g.page.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read results: %w", err)
	}

	hrefs, err := ResultLinks(html)
	if err != nil {
		return "", err
	}

	candidate := PickCandidateURL(hrefs)
	logrus.WithFields(logrus.Fields{"links": len(hrefs), "candidate": candidate}).Debug("Reverse image search finished")
	return candidate, nil
}

func (g *GoogleImageSearch) settle(ctx context.Context) {
	if err := g.page.WaitStable(ctx, settleDelay); err != nil {
		logrus.WithError(err).Debug("Page did not settle")
	}
}

// ResultLinks lists every anchor href in document order.
func ResultLinks(html string) ([]string, error) {
	doc, err := parseHTML(html)
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	var hrefs []string
	doc.Find(SelGoogleResultLinks).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs, nil
}

// PickCandidateURL unwraps search redirects, drops search-engine links and
// returns the first product page link, falling back to the first
// marketplace link of any kind.
func PickCandidateURL(hrefs []string) string {
	var fallback string
	for _, href := range hrefs {
		target := UnwrapRedirect(href)
		if !strings.HasPrefix(target, "http") || len(target) < 10 || isExcludedLink(target) {
			continue
		}

		lower := strings.ToLower(target)
		if !strings.Contains(lower, "iherb.com") {
			continue
		}
		if strings.Contains(lower, "iherb.com/pr/") {
			return target
		}
		if fallback == "" {
			fallback = target
		}
	}
	return fallback
}

// UnwrapRedirect returns the target of a "/url?q=" redirect link.
func UnwrapRedirect(href string) string {
	if !strings.Contains(href, "/url?") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if q := u.Query().Get("q"); q != "" {
		return q
	}
	if q := u.Query().Get("url"); q != "" {
		return q
	}
	return href
}

func isExcludedLink(raw string) bool {
	if strings.Contains(raw, "about/products") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, excluded := range excludedLinkHosts {
		if host == excluded || strings.HasSuffix(host, "."+excluded) {
			return true
		}
	}
	return false
}
