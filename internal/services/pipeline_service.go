// internal/services/pipeline_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pricematch/pricematch/internal/crawler"
	"github.com/pricematch/pricematch/internal/models"
)

var ErrNotConfigured = errors.New("pipeline component is not configured")

type ProductSearcher interface {
	SearchProducts(ctx context.Context, query string, topN int) ([]models.CoupangProduct, error)
}

type DetailFetcher interface {
	GetProductDetail(ctx context.Context, productURL string) (*models.CoupangDetailPage, error)
}

type NameTranslator interface {
	TranslateName(ctx context.Context, name string) (string, error)
}

type ListingSearcher interface {
	Search(ctx context.Context, query string, topN int) ([]models.IHerbListing, error)
}

type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*models.Image, error)
}

type ImageVerifier interface {
	Verify(ctx context.Context, req models.VerifyRequest) (*models.Verdict, error)
}

type ImageArchiver interface {
	ArchiveImage(ctx context.Context, productID uint, platform models.Platform, img *models.Image) (*UploadResult, error)
}

// PipelineDeps are the collaborators of the crawl, translate and match
// stages. A stage fails with ErrNotConfigured when one it needs is nil.
type PipelineDeps struct {
	Searcher   ProductSearcher
	Details    DetailFetcher
	Translator NameTranslator
	Listings   ListingSearcher
	Images     ImageFetcher
	Verifier   ImageVerifier
	Archiver   ImageArchiver
}

// PipelineService moves a brand's products through
// crawled -> translated -> matched, one product at a time.
type PipelineService struct {
	store *ProductService
	deps  PipelineDeps
	owner string
}

type StageSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	NotFound  int `json:"not_found"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func NewPipelineService(store *ProductService, deps PipelineDeps) *PipelineService {
	return &PipelineService{
		store: store,
		deps:  deps,
		owner: "pipeline-" + uuid.NewString(),
	}
}

// Owner is the lock token this run holds products under.
func (s *PipelineService) Owner() string {
	return s.owner
}

// Crawl searches marketplace A for query and saves the top results under
// brand. A failed search is returned; failures on single products are
// recorded against them and the crawl goes on.
func (s *PipelineService) Crawl(ctx context.Context, brand, query string, topN int) (*StageSummary, error) {
	if s.deps.Searcher == nil {
		return nil, fmt.Errorf("crawl: searcher: %w", ErrNotConfigured)
	}
	if strings.TrimSpace(query) == "" {
		query = brand
	}

	if err := s.store.UpsertBrand(ctx, brand, crawler.SearchURL(query)); err != nil {
		return nil, err
	}
	startedAt := s.store.now()

	found, err := s.deps.Searcher.SearchProducts(ctx, query, topN)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	summary := &StageSummary{}
	for _, card := range found {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++

		product, err := s.store.SaveCrawledProduct(ctx, brand, CrawledProductFrom(card))
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"brand":      brand,
				"product_id": card.ProductID,
			}).Warn("Skipping crawled product")
			summary.Failed++
			continue
		}

		if s.deps.Details != nil && card.URL != "" {
			if err := s.crawlDetail(ctx, brand, product, card); err != nil {
				summary.Failed++
				continue
			}
		}

		if card.ThumbnailURL != "" {
			s.recordImage(ctx, product.ID, models.PlatformCoupang, card.ThumbnailURL)
		}
		summary.Succeeded++
	}

	if err := s.store.MarkBrandCrawled(ctx, brand, startedAt); err != nil {
		return summary, err
	}

	logrus.WithFields(logrus.Fields{
		"brand":  brand,
		"query":  query,
		"found":  len(found),
		"saved":  summary.Succeeded,
		"failed": summary.Failed,
	}).Info("Crawl finished")
	return summary, nil
}

func (s *PipelineService) crawlDetail(ctx context.Context, brand string, product *models.Product, card models.CoupangProduct) error {
	detail, err := s.deps.Details.GetProductDetail(ctx, card.URL)
	if err != nil {
		if logErr := s.store.LogError(ctx, product.ID, models.ErrorStageCrawl, "detail_failed", err.Error()); logErr != nil {
			return logErr
		}
		return err
	}

	crawled := CrawledProductFrom(card)
	mergeDetail(crawled, detail)
	if _, err := s.store.SaveCrawledProduct(ctx, brand, crawled); err != nil {
		if logErr := s.store.LogError(ctx, product.ID, models.ErrorStageCrawl, "save_failed", err.Error()); logErr != nil {
			return logErr
		}
		return err
	}
	return nil
}

// mergeDetail fills what the search card lacked from the detail page.
func mergeDetail(p *CrawledProduct, d *models.CoupangDetailPage) {
	if p.CurrentPrice == nil {
		p.CurrentPrice = d.Price
	}
	if p.OriginalPrice == nil {
		p.OriginalPrice = d.OriginalPrice
	}
	if p.ShippingFee == nil && d.ShippingFee > 0 {
		fee := d.ShippingFee
		p.ShippingFee = &fee
	}
	if p.Rating == nil {
		p.Rating = d.Rating
	}
	if p.ReviewCount == nil {
		p.ReviewCount = d.ReviewCount
	}
	if p.ThumbnailURL == "" {
		p.ThumbnailURL = d.ThumbnailURL
	}
	p.SellerName = d.SellerName
	p.OriginCountry = d.OriginCountry
	if d.SoldOut {
		p.StockStatus = "sold_out"
	} else {
		p.StockStatus = "in_stock"
	}
}

// recordImage stores the image row, archiving the content first when an
// archiver is configured. Archive failures only cost the storage key.
func (s *PipelineService) recordImage(ctx context.Context, productID uint, platform models.Platform, url string) {
	var storageKey *string
	if s.deps.Archiver != nil && s.deps.Images != nil {
		img, err := s.deps.Images.Fetch(ctx, url)
		if err == nil {
			var result *UploadResult
			result, err = s.deps.Archiver.ArchiveImage(ctx, productID, platform, img)
			if err == nil {
				storageKey = &result.Key
			}
		}
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"id": productID, "url": url}).Warn("Image not archived")
		}
	}

	if _, err := s.store.AddProductImage(ctx, productID, platform, url, storageKey); err != nil {
		logrus.WithError(err).WithField("id", productID).Warn("Failed to record product image")
	}
}

// Translate gives every unlocked crawled product of brand an English name.
func (s *PipelineService) Translate(ctx context.Context, brand string) (*StageSummary, error) {
	if s.deps.Translator == nil {
		return nil, fmt.Errorf("translate: translator: %w", ErrNotConfigured)
	}

	products, err := s.store.ListByStage(ctx, brand, models.StageCrawled, true)
	if err != nil {
		return nil, err
	}

	summary := &StageSummary{}
	for i := range products {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		err := s.withLock(ctx, &products[i], summary, func(p *models.Product) error {
			english, err := s.deps.Translator.TranslateName(ctx, p.CoupangProductName)
			if err != nil {
				return s.fail(ctx, p.ID, models.ErrorStageTranslate, "translation_failed", err)
			}
			if err := s.store.UpdateTranslation(ctx, p.ID, english); err != nil {
				return s.fail(ctx, p.ID, models.ErrorStageTranslate, "save_failed", err)
			}

			logrus.WithFields(logrus.Fields{"id": p.ID, "english": english}).Debug("Product translated")
			summary.Succeeded++
			return nil
		})
		if err != nil {
			return summary, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"brand":      brand,
		"translated": summary.Succeeded,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
	}).Info("Translation finished")
	return summary, nil
}

// Match looks up every unlocked translated product of brand on
// marketplace B and accepts the first of up to candidates hits whose image
// the verifier judges to be the same product.
func (s *PipelineService) Match(ctx context.Context, brand string, candidates int) (*StageSummary, error) {
	switch {
	case s.deps.Listings == nil:
		return nil, fmt.Errorf("match: listing search: %w", ErrNotConfigured)
	case s.deps.Images == nil:
		return nil, fmt.Errorf("match: image fetcher: %w", ErrNotConfigured)
	case s.deps.Verifier == nil:
		return nil, fmt.Errorf("match: verifier: %w", ErrNotConfigured)
	}
	if candidates <= 0 {
		candidates = 5
	}

	products, err := s.store.ListByStage(ctx, brand, models.StageTranslated, true)
	if err != nil {
		return nil, err
	}

	summary := &StageSummary{}
	for i := range products {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		err := s.withLock(ctx, &products[i], summary, func(p *models.Product) error {
			return s.matchProduct(ctx, p, candidates, summary)
		})
		if err != nil {
			return summary, err
		}
	}

	if err := s.store.MarkBrandMatched(ctx, brand, s.store.now()); err != nil {
		return summary, err
	}

	logrus.WithFields(logrus.Fields{
		"brand":     brand,
		"matched":   summary.Succeeded,
		"not_found": summary.NotFound,
		"failed":    summary.Failed,
	}).Info("Matching finished")
	return summary, nil
}

func (s *PipelineService) matchProduct(ctx context.Context, p *models.Product, candidates int, summary *StageSummary) error {
	query := p.CoupangProductName
	if p.CoupangProductNameEnglish != nil && *p.CoupangProductNameEnglish != "" {
		query = *p.CoupangProductNameEnglish
	}

	full, err := s.store.GetProductFull(ctx, p.ID)
	if err != nil {
		return err
	}
	if full.ThumbnailURL == nil || *full.ThumbnailURL == "" {
		return s.fail(ctx, p.ID, models.ErrorStageMatch, "no_source_image", crawler.ErrNoImage)
	}

	source, err := s.deps.Images.Fetch(ctx, *full.ThumbnailURL)
	if err != nil {
		return s.fail(ctx, p.ID, models.ErrorStageMatch, "download_failed", err)
	}

	listings, err := s.deps.Listings.Search(ctx, query, candidates)
	if err != nil {
		return s.fail(ctx, p.ID, models.ErrorStageMatch, "search_failed", err)
	}

	for _, listing := range listings {
		if listing.ImageURL == "" {
			continue
		}

		candidate, err := s.deps.Images.Fetch(ctx, listing.ImageURL)
		if err != nil {
			logrus.WithError(err).WithField("url", listing.ImageURL).Debug("Candidate image unavailable")
			continue
		}

		verdict, err := s.deps.Verifier.Verify(ctx, models.VerifyRequest{
			Source:        source,
			Candidate:     candidate,
			SourceName:    p.CoupangProductName,
			CandidateName: listing.Name,
		})
		if err != nil {
			return s.fail(ctx, p.ID, models.ErrorStageMatch, "verification_failed", err)
		}
		if !verdict.Match {
			continue
		}

		if err := s.store.UpdateMatchingResult(ctx, p.ID, matchResultFrom(listing)); err != nil {
			return s.fail(ctx, p.ID, models.ErrorStageMatch, "save_failed", err)
		}
		s.recordImage(ctx, p.ID, models.PlatformIHerb, listing.ImageURL)

		logrus.WithFields(logrus.Fields{
			"id":     p.ID,
			"code":   listing.ProductCode,
			"reason": verdict.Reason,
		}).Info("Product matched")
		summary.Succeeded++
		return nil
	}

	if err := s.store.UpdateMatchingResult(ctx, p.ID, &MatchResult{Status: models.MatchingNotFound}); err != nil {
		return s.fail(ctx, p.ID, models.ErrorStageMatch, "save_failed", err)
	}
	summary.NotFound++
	return nil
}

func matchResultFrom(l models.IHerbListing) *MatchResult {
	return &MatchResult{
		Status:        models.MatchingSuccess,
		ProductCode:   l.ProductCode,
		ProductName:   l.Name,
		ProductURL:    l.URL,
		DiscountPrice: l.DiscountPrice,
		ListPrice:     l.ListPrice,
		IsInStock:     l.InStock,
		Rating:        l.Rating,
		ReviewCount:   l.ReviewCount,
	}
}

// withLock runs fn while holding the product's lease. Products leased by
// someone else are skipped. Only errors that should stop the stage are
// returned.
func (s *PipelineService) withLock(ctx context.Context, p *models.Product, summary *StageSummary, fn func(*models.Product) error) error {
	if err := s.store.AcquireLock(ctx, p.ID, s.owner); err != nil {
		if errors.Is(err, ErrLockHeld) {
			summary.Skipped++
			return nil
		}
		return err
	}
	summary.Processed++

	defer func() {
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), p.ID, s.owner); err != nil {
			logrus.WithError(err).WithField("id", p.ID).Warn("Failed to release product lock")
		}
	}()

	err := fn(p)
	if errors.Is(err, errRecorded) {
		summary.Failed++
		return nil
	}
	return err
}

var errRecorded = errors.New("failure recorded on product")

// fail records cause against the product. The product failure itself does
// not stop the stage, a cancelled context does.
func (s *PipelineService) fail(ctx context.Context, id uint, stage models.ErrorStage, errorType string, cause error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	logrus.WithError(cause).WithFields(logrus.Fields{
		"id":    id,
		"stage": stage,
		"type":  errorType,
	}).Warn("Product failed")

	if err := s.store.LogError(ctx, id, stage, errorType, cause.Error()); err != nil {
		return err
	}
	return errRecorded
}
