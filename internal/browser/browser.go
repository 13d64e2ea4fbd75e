// internal/browser/browser.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/pricematch/pricematch/internal/config"
)

const CoupangReferrer = "https://www.coupang.com/"

var ErrNavigation = errors.New("navigation failed")

// Browser is one Chromium session with a single stealth page. It is not
// safe for concurrent use.
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	limiter  *rate.Limiter
	timeout  time.Duration
}

func New(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage")
	if cfg.WindowSize != "" {
		l = l.Set("window-size", cfg.WindowSize)
	}
	if cfg.Language != "" {
		l = l.Set("lang", cfg.Language)
	}
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := stealth.Page(rb)
	if err != nil {
		rb.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open stealth page: %w", err)
	}

	if cfg.Language != "" {
		if _, err := page.SetExtraHeaders([]string{"Accept-Language", cfg.Language + "," + strings.Split(cfg.Language, "-")[0] + ";q=0.9"}); err != nil {
			logrus.WithError(err).Warn("Failed to set Accept-Language header")
		}
	}

	timeout := cfg.PageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logrus.WithField("headless", cfg.Headless).Info("Browser started")

	return &Browser{
		launcher: l,
		browser:  rb,
		page:     page,
		limiter:  newLimiter(cfg.MinInterval),
		timeout:  timeout,
	}, nil
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// GetWithCoupangReferrer navigates with the marketplace home page as the
// referrer, which the marketplace expects for direct product links.
func (b *Browser) GetWithCoupangReferrer(ctx context.Context, url string) error {
	return b.navigate(ctx, url, CoupangReferrer)
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	return b.navigate(ctx, url, "")
}

func (b *Browser) navigate(ctx context.Context, url, referrer string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	page := b.page.Context(tctx)

	res, err := proto.PageNavigate{URL: url, Referrer: referrer}.Call(page)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	if res.ErrorText != "" {
		return fmt.Errorf("%w: %s: %s", ErrNavigation, url, res.ErrorText)
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: %s: wait load: %v", ErrNavigation, url, err)
	}

	logrus.WithFields(logrus.Fields{"url": url, "referrer": referrer}).Debug("Page loaded")
	return nil
}

func (b *Browser) HTML(ctx context.Context) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.page.Context(tctx).HTML()
}

// CurrentURL returns the address of the loaded document.
func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	info, err := b.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (b *Browser) element(ctx context.Context, selector string) (*rod.Element, context.CancelFunc, error) {
	tctx, cancel := context.WithTimeout(ctx, b.timeout)
	el, err := b.page.Context(tctx).Element(selector)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("element %q: %w", selector, err)
	}
	return el, cancel, nil
}

func (b *Browser) Click(ctx context.Context, selector string) error {
	el, cancel, err := b.element(ctx, selector)
	if err != nil {
		return err
	}
	defer cancel()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// UploadFile sets path on the file input matched by selector.
func (b *Browser) UploadFile(ctx context.Context, selector, path string) error {
	el, cancel, err := b.element(ctx, selector)
	if err != nil {
		return err
	}
	defer cancel()
	return el.SetFiles([]string{path})
}

// TypeAndSubmit replaces the field's text and presses Enter.
func (b *Browser) TypeAndSubmit(ctx context.Context, selector, text string) error {
	el, cancel, err := b.element(ctx, selector)
	if err != nil {
		return err
	}
	defer cancel()

	if err := el.SelectAllText(); err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return err
	}
	return el.Type(input.Enter)
}

// Scroll moves the viewport down by px to trigger lazy-loaded content.
func (b *Browser) Scroll(ctx context.Context, px int) error {
	_, err := b.page.Context(ctx).Eval(fmt.Sprintf("() => window.scrollBy(0, %d)", px))
	return err
}

// WaitStable waits for the DOM to stop changing for d.
func (b *Browser) WaitStable(ctx context.Context, d time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.page.Context(tctx).WaitStable(d)
}

func (b *Browser) Close() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
	logrus.Info("Browser closed")
	return err
}
