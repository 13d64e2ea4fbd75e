// internal/services/pipeline_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricematch/pricematch/internal/models"
	"github.com/pricematch/pricematch/internal/utils"
)

type fakeSearcher struct {
	products []models.CoupangProduct
	err      error
	queries  []string
}

func (f *fakeSearcher) SearchProducts(_ context.Context, query string, topN int) ([]models.CoupangProduct, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if topN < len(f.products) {
		return f.products[:topN], nil
	}
	return f.products, nil
}

type fakeTranslator struct {
	failOn string
}

func (f *fakeTranslator) TranslateName(_ context.Context, name string) (string, error) {
	if name == f.failOn {
		return "", errors.New("quota exceeded")
	}
	return "EN " + name, nil
}

type fakeListings struct {
	listings []models.IHerbListing
	err      error
}

func (f *fakeListings) Search(_ context.Context, _ string, topN int) ([]models.IHerbListing, error) {
	if f.err != nil {
		return nil, f.err
	}
	if topN < len(f.listings) {
		return f.listings[:topN], nil
	}
	return f.listings, nil
}

type fakeImages struct {
	missing map[string]bool
}

func (f *fakeImages) Fetch(_ context.Context, url string) (*models.Image, error) {
	if f.missing[url] {
		return nil, errors.New("image download failed with status 404")
	}
	return &models.Image{URL: url, Data: pngBytes, MIMEType: "image/png"}, nil
}

type fakeVerifier struct {
	matches map[string]bool
	err     error
	calls   int
}

func (f *fakeVerifier) Verify(_ context.Context, req models.VerifyRequest) (*models.Verdict, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.matches[req.Candidate.URL] {
		return &models.Verdict{Match: true, Reason: "YES: same label"}, nil
	}
	return &models.Verdict{Match: false, Reason: "NO: different bottle"}, nil
}

func newPipelineStore(t *testing.T) *ProductService {
	return NewProductService(openServiceTestDB(t), DefaultLockTTL)
}

func card(id string, price int64) models.CoupangProduct {
	return models.CoupangProduct{
		ProductID:    id,
		Name:         "상품 " + id,
		URL:          "https://www.coupang.com/vp/products/" + id,
		Price:        utils.Int64Ptr(price),
		ThumbnailURL: "https://thumbnail.coupangcdn.com/" + id + ".jpg",
	}
}

func TestPipelineCrawl(t *testing.T) {
	store := newPipelineStore(t)
	searcher := &fakeSearcher{products: []models.CoupangProduct{card("100", 10000), card("200", 20000), card("300", 30000)}}
	pipeline := NewPipelineService(store, PipelineDeps{Searcher: searcher})
	ctx := context.Background()

	summary, err := pipeline.Crawl(ctx, "nowfoods", "", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, []string{"nowfoods"}, searcher.queries)

	brand, err := store.GetBrand(ctx, "nowfoods")
	require.NoError(t, err)
	assert.NotNil(t, brand.LastCrawledAt)
	assert.Contains(t, brand.CoupangSearchURL, "q=nowfoods")

	products, err := store.ListByStage(ctx, "nowfoods", models.StageCrawled, false)
	require.NoError(t, err)
	require.Len(t, products, 2)

	images, err := store.ListProductImages(ctx, products[0].ID)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, models.PlatformCoupang, images[0].Platform)
}

func TestPipelineCrawlSearchFailure(t *testing.T) {
	store := newPipelineStore(t)
	pipeline := NewPipelineService(store, PipelineDeps{Searcher: &fakeSearcher{err: errors.New("navigation failed")}})
	ctx := context.Background()

	_, err := pipeline.Crawl(ctx, "nowfoods", "now foods", 10)
	require.Error(t, err)

	brand, err := store.GetBrand(ctx, "nowfoods")
	require.NoError(t, err)
	assert.Nil(t, brand.LastCrawledAt)

	_, err = NewPipelineService(store, PipelineDeps{}).Crawl(ctx, "nowfoods", "", 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPipelineTranslate(t *testing.T) {
	store := newPipelineStore(t)
	ctx := context.Background()

	ok, err := store.SaveCrawledProduct(ctx, "nowfoods", CrawledProductFrom(card("100", 10000)))
	require.NoError(t, err)
	bad, err := store.SaveCrawledProduct(ctx, "nowfoods", CrawledProductFrom(card("200", 10000)))
	require.NoError(t, err)
	held, err := store.SaveCrawledProduct(ctx, "nowfoods", CrawledProductFrom(card("300", 10000)))
	require.NoError(t, err)
	require.NoError(t, store.AcquireLock(ctx, held.ID, "someone-else"))

	pipeline := NewPipelineService(store, PipelineDeps{Translator: &fakeTranslator{failOn: "상품 200"}})
	summary, err := pipeline.Translate(ctx, "nowfoods")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	translated, err := store.GetProduct(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageTranslated, translated.PipelineStage)
	assert.Equal(t, "EN 상품 100", utils.StringValue(translated.CoupangProductNameEnglish))
	assert.Nil(t, translated.ProcessingLock)

	failed, err := store.GetProduct(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageFailed, failed.PipelineStage)
	assert.Contains(t, utils.StringValue(failed.LastError), "[translate] translation_failed")
	assert.Nil(t, failed.ProcessingLock)

	untouched, err := store.GetProduct(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageCrawled, untouched.PipelineStage)
	assert.Equal(t, "someone-else", utils.StringValue(untouched.ProcessingLock))
}

func TestPipelineMatch(t *testing.T) {
	store := newPipelineStore(t)
	ctx := context.Background()

	var ids []uint
	for _, c := range []models.CoupangProduct{card("100", 20000), card("200", 20000)} {
		p, err := store.SaveCrawledProduct(ctx, "nowfoods", CrawledProductFrom(c))
		require.NoError(t, err)
		require.NoError(t, store.UpdateTranslation(ctx, p.ID, "Now Foods "+c.ProductID))
		ids = append(ids, p.ID)
	}

	listings := &fakeListings{listings: []models.IHerbListing{
		{ProductCode: "NOW-1", Name: "Now Foods, Other", URL: "https://kr.iherb.com/pr/a/1", ImageURL: "https://cloudinary.images-iherb.com/l/1.jpg"},
		{ProductCode: "NOW-2", Name: "Now Foods, Same", URL: "https://kr.iherb.com/pr/b/2", ImageURL: "https://cloudinary.images-iherb.com/l/2.jpg", DiscountPrice: utils.Int64Ptr(15000)},
	}}
	verifier := &fakeVerifier{matches: map[string]bool{"https://cloudinary.images-iherb.com/l/2.jpg": true}}
	pipeline := NewPipelineService(store, PipelineDeps{
		Listings: listings,
		Images:   &fakeImages{},
		Verifier: verifier,
	})

	// only the first candidate is looked at, so nothing matches
	summary, err := pipeline.Match(ctx, "nowfoods", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.NotFound)
	assert.Equal(t, 2, verifier.calls)

	for _, id := range ids {
		p, err := store.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StageMatched, p.PipelineStage)
		assert.Equal(t, models.MatchingNotFound, p.MatchingStatus)
	}

	brand, err := store.GetBrand(ctx, "nowfoods")
	require.NoError(t, err)
	assert.NotNil(t, brand.LastMatchedAt)
}

func TestPipelineMatchAcceptsVerifiedCandidate(t *testing.T) {
	store := newPipelineStore(t)
	ctx := context.Background()

	p, err := store.SaveCrawledProduct(ctx, "nowfoods", CrawledProductFrom(card("100", 20000)))
	require.NoError(t, err)
	require.NoError(t, store.UpdateTranslation(ctx, p.ID, "Now Foods Vitamin D"))

	pipeline := NewPipelineService(store, PipelineDeps{
		Listings: &fakeListings{listings: []models.IHerbListing{
			{ProductCode: "NOW-1", ImageURL: "https://cloudinary.images-iherb.com/l/1.jpg"},
			{ProductCode: "NOW-2", Name: "Now Foods, Vitamin D", URL: "https://kr.iherb.com/pr/b/2", ImageURL: "https://cloudinary.images-iherb.com/l/2.jpg", DiscountPrice: utils.Int64Ptr(15000)},
		}},
		Images:   &fakeImages{},
		Verifier: &fakeVerifier{matches: map[string]bool{"https://cloudinary.images-iherb.com/l/2.jpg": true}},
	})

	summary, err := pipeline.Match(ctx, "nowfoods", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	rows, err := store.PriceComparison(ctx, "nowfoods", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(5000), *rows[0].PriceDifference)
	assert.Equal(t, "iherb", utils.StringValue(rows[0].CheaperPlatform))

	images, err := store.ListProductImages(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, models.PlatformIHerb, images[0].Platform)
}

func TestPipelineMatchFailures(t *testing.T) {
	store := newPipelineStore(t)
	ctx := context.Background()

	p, err := store.SaveCrawledProduct(ctx, "nowfoods", CrawledProductFrom(card("100", 20000)))
	require.NoError(t, err)
	require.NoError(t, store.UpdateTranslation(ctx, p.ID, "Now Foods"))

	_, err = NewPipelineService(store, PipelineDeps{Listings: &fakeListings{}, Images: &fakeImages{}}).Match(ctx, "nowfoods", 5)
	assert.ErrorIs(t, err, ErrNotConfigured)

	pipeline := NewPipelineService(store, PipelineDeps{
		Listings: &fakeListings{err: errors.New("access denied by marketplace")},
		Images:   &fakeImages{},
		Verifier: &fakeVerifier{},
	})
	summary, err := pipeline.Match(ctx, "nowfoods", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	entries, err := store.ListErrors(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ErrorStageMatch, entries[0].Stage)
	assert.Equal(t, "search_failed", entries[0].ErrorType)
}
