// internal/crawler/page.go
package crawler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrAccessDenied = errors.New("access denied by marketplace")
	ErrNoImage      = errors.New("listing has no image")
)

// Page is the browser surface the crawlers drive. *browser.Browser
// satisfies it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	GetWithCoupangReferrer(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	UploadFile(ctx context.Context, selector, path string) error
	TypeAndSubmit(ctx context.Context, selector, text string) error
	Scroll(ctx context.Context, px int) error
	WaitStable(ctx context.Context, d time.Duration) error
}

func parseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func isAccessDenied(html string) bool {
	return strings.Contains(strings.ToLower(html), "access denied")
}

// firstText returns the trimmed text of the first match, or "".
func firstText(s *goquery.Selection, selector string) string {
	return CleanText(s.Find(selector).First().Text())
}

func firstAttr(s *goquery.Selection, selector, attr string) string {
	v, _ := s.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}
