// internal/services/hazard_pipeline_test.go
package services

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricematch/pricematch/internal/models"
)

type memStore struct {
	records []*models.HazardRecord
	saves   int
}

func (m *memStore) Load() ([]*models.HazardRecord, error) { return m.records, nil }

func (m *memStore) Save(records []*models.HazardRecord) error {
	m.records = records
	m.saves++
	return nil
}

// fakeDownloader writes the image URL as the file content so the reverse
// search fake can tell which image it was given.
type fakeDownloader struct {
	missing   map[string]bool
	requested []string
}

func (f *fakeDownloader) Fetch(_ context.Context, url string) (*models.Image, error) {
	f.requested = append(f.requested, url)
	if f.missing[url] {
		return nil, errors.New("image download failed with status 404")
	}
	return &models.Image{URL: url, Data: pngBytes, MIMEType: "image/png"}, nil
}

func (f *fakeDownloader) Save(_ context.Context, url, dir string) (string, error) {
	f.requested = append(f.requested, url)
	if f.missing[url] {
		return "", errors.New("image download failed with status 404")
	}
	file, err := os.CreateTemp(dir, "hazard-*.jpg")
	if err != nil {
		return "", err
	}
	defer file.Close()
	_, err = file.WriteString(url)
	return file.Name(), err
}

type fakeReverseSearch struct {
	results map[string]string
	err     error
}

func (f *fakeReverseSearch) FindCandidateURL(_ context.Context, imagePath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	url, err := os.ReadFile(imagePath)
	if err != nil {
		return "", err
	}
	return f.results[string(url)], nil
}

type fakeScraper struct {
	listings map[string]*models.IHerbListing
}

func (f *fakeScraper) ScrapeListing(_ context.Context, url string) (*models.IHerbListing, error) {
	listing, ok := f.listings[url]
	if !ok {
		return nil, errors.New("navigation failed: net::ERR_TIMED_OUT")
	}
	return listing, nil
}

var hazardNow = time.Date(2026, 3, 10, 12, 0, 0, 0, seoul)

func newTestHazardPipeline(t *testing.T, store *memStore, deps HazardDeps) *HazardPipeline {
	deps.TempDir = t.TempDir()
	p := NewHazardPipeline(store, deps)
	p.now = func() time.Time { return hazardNow }
	return p
}

func findRecord(records []*models.HazardRecord, seq string) *models.HazardRecord {
	for _, rec := range records {
		if rec.SelfImportSeq == seq {
			return rec
		}
	}
	return nil
}

func TestPhase1Outcomes(t *testing.T) {
	store := &memStore{records: []*models.HazardRecord{
		{SelfImportSeq: "noimage"},
		{SelfImportSeq: "found", ImageURL: "https://img/found.jpg, https://img/second.jpg"},
		{SelfImportSeq: "broken", ImageURL: "https://img/broken.jpg"},
		{SelfImportSeq: "nothing", ImageURL: "https://img/nothing.jpg"},
		{SelfImportSeq: "done", ImageURL: "https://img/done.jpg", Status: models.HazardFound, CandidateURL: "https://kr.iherb.com/pr/x/9"},
	}}
	downloader := &fakeDownloader{missing: map[string]bool{"https://img/broken.jpg": true}}
	pipeline := newTestHazardPipeline(t, store, HazardDeps{
		Downloader: downloader,
		Searcher:   &fakeReverseSearch{results: map[string]string{"https://img/found.jpg": "https://kr.iherb.com/pr/a/1"}},
	})

	summary, err := pipeline.RunPhase1(context.Background(), Phase1Options{})
	require.NoError(t, err)
	assert.Equal(t, &Phase1Summary{Processed: 4, Found: 1, NotFound: 1, NoImage: 1, DownloadFailed: 1}, summary)
	assert.Equal(t, 4, store.saves)

	assert.Equal(t, models.HazardNoImage, findRecord(store.records, "noimage").Status)
	found := findRecord(store.records, "found")
	assert.Equal(t, models.HazardFound, found.Status)
	assert.Equal(t, "https://kr.iherb.com/pr/a/1", found.CandidateURL)
	assert.Equal(t, models.HazardDownloadFailed, findRecord(store.records, "broken").Status)
	assert.Equal(t, models.HazardNotFound, findRecord(store.records, "nothing").Status)
	assert.Equal(t, "https://kr.iherb.com/pr/x/9", findRecord(store.records, "done").CandidateURL)

	assert.NotContains(t, downloader.requested, "https://img/second.jpg")

	entries, err := os.ReadDir(pipeline.deps.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "downloaded images are removed")
}

func TestPhase1NoImageNeverAdvances(t *testing.T) {
	store := &memStore{records: []*models.HazardRecord{{SelfImportSeq: "1", Status: models.HazardNoImage}}}
	pipeline := newTestHazardPipeline(t, store, HazardDeps{
		Downloader: &fakeDownloader{},
		Searcher:   &fakeReverseSearch{results: map[string]string{}},
	})

	for i := 0; i < 2; i++ {
		_, err := pipeline.RunPhase1(context.Background(), Phase1Options{Seqs: []string{"1"}})
		require.NoError(t, err)
		assert.Equal(t, models.HazardNoImage, store.records[0].Status)
		assert.Empty(t, store.records[0].CandidateURL)
	}

	_, err := pipeline.RunPhase1(context.Background(), Phase1Options{Seqs: []string{"missing"}})
	assert.ErrorIs(t, err, ErrUnknownRecord)
}

func TestPhase1SearchErrorStopsAfterSaving(t *testing.T) {
	store := &memStore{records: []*models.HazardRecord{
		{SelfImportSeq: "1"},
		{SelfImportSeq: "2", ImageURL: "https://img/2.jpg"},
		{SelfImportSeq: "3", ImageURL: "https://img/3.jpg"},
	}}
	pipeline := newTestHazardPipeline(t, store, HazardDeps{
		Downloader: &fakeDownloader{},
		Searcher:   &fakeReverseSearch{err: errors.New("navigation failed")},
	})

	summary, err := pipeline.RunPhase1(context.Background(), Phase1Options{})
	require.Error(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, models.HazardNoImage, store.records[0].Status)
	assert.Equal(t, models.HazardUnresolved, store.records[1].Status)
	assert.Equal(t, models.HazardUnresolved, store.records[2].Status)
}

func TestPhase1Limit(t *testing.T) {
	store := &memStore{records: []*models.HazardRecord{{SelfImportSeq: "1"}, {SelfImportSeq: "2"}, {SelfImportSeq: "3"}}}
	pipeline := newTestHazardPipeline(t, store, HazardDeps{Downloader: &fakeDownloader{}, Searcher: &fakeReverseSearch{}})

	summary, err := pipeline.RunPhase1(context.Background(), Phase1Options{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.NoImage)
	assert.Equal(t, models.HazardUnresolved, store.records[2].Status)
}

func phase2Fixture() (*memStore, HazardDeps) {
	store := &memStore{records: []*models.HazardRecord{
		{SelfImportSeq: "match", ProductName: "Slim Caps", ImageURL: "https://img/m.jpg", Status: models.HazardFound, CandidateURL: "https://kr.iherb.com/pr/m/1"},
		{SelfImportSeq: "noimage", ImageURL: "https://img/n.jpg", Status: models.HazardFound, CandidateURL: "https://kr.iherb.com/pr/n/2"},
		{SelfImportSeq: "timeout", ImageURL: "https://img/t.jpg", Status: models.HazardFound, CandidateURL: "https://kr.iherb.com/pr/t/3"},
		{SelfImportSeq: "mismatch", ImageURL: "https://img/x.jpg", Status: models.HazardVerifiedMismatch, CandidateURL: "https://kr.iherb.com/pr/x/4"},
		{SelfImportSeq: "unresolved"},
	}}
	deps := HazardDeps{
		Downloader: &fakeDownloader{},
		Scraper: &fakeScraper{listings: map[string]*models.IHerbListing{
			"https://kr.iherb.com/pr/m/1": {
				Name:     "Slim Capsules",
				ImageURL: "https://cloudinary.images-iherb.com/l/m.jpg",
				Images:   []string{"https://cloudinary.images-iherb.com/l/m.jpg", "https://cloudinary.images-iherb.com/l/m2.jpg"},
			},
			"https://kr.iherb.com/pr/n/2": {Name: "No picture"},
			"https://kr.iherb.com/pr/x/4": {ImageURL: "https://cloudinary.images-iherb.com/l/x.jpg"},
		}},
		Verifier: &fakeVerifier{matches: map[string]bool{
			"https://cloudinary.images-iherb.com/l/m.jpg": true,
			"https://cloudinary.images-iherb.com/l/x.jpg": true,
		}},
	}
	return store, deps
}

func TestPhase2Unverified(t *testing.T) {
	store, deps := phase2Fixture()
	pipeline := newTestHazardPipeline(t, store, deps)

	summary, err := pipeline.RunPhase2(context.Background(), Phase2Options{Mode: Phase2Unverified})
	require.NoError(t, err)
	assert.Equal(t, &Phase2Summary{Processed: 3, Matched: 1, Failed: 2}, summary)
	assert.Equal(t, 3, store.saves)

	match := findRecord(store.records, "match")
	assert.Equal(t, models.HazardVerifiedMatch, match.Status)
	assert.Equal(t, "YES: same label", match.Reason)
	require.NotNil(t, match.Verified)
	assert.True(t, *match.Verified)
	assert.Equal(t, "20260310120000", match.VerifiedDTM)
	assert.Len(t, match.CandidateImages, 2)

	noImage := findRecord(store.records, "noimage")
	assert.Equal(t, models.HazardVerificationFailed, noImage.Status)
	assert.Equal(t, "No iHerb image", noImage.Reason)

	timeout := findRecord(store.records, "timeout")
	assert.Equal(t, models.HazardVerificationFailed, timeout.Status)
	assert.Contains(t, timeout.Reason, "ERR_TIMED_OUT")

	assert.Equal(t, models.HazardVerifiedMismatch, findRecord(store.records, "mismatch").Status)
}

func TestPhase2RevalidateAllAndByID(t *testing.T) {
	store, deps := phase2Fixture()
	pipeline := newTestHazardPipeline(t, store, deps)

	summary, err := pipeline.RunPhase2(context.Background(), Phase2Options{Mode: Phase2ByID, Seq: "mismatch"})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, models.HazardVerifiedMatch, findRecord(store.records, "mismatch").Status)
	assert.Equal(t, models.HazardFound, findRecord(store.records, "match").Status)

	_, err = pipeline.RunPhase2(context.Background(), Phase2Options{Mode: Phase2ByID, Seq: "unresolved"})
	assert.Error(t, err)
	_, err = pipeline.RunPhase2(context.Background(), Phase2Options{Mode: Phase2ByID, Seq: "nope"})
	assert.ErrorIs(t, err, ErrUnknownRecord)
	_, err = pipeline.RunPhase2(context.Background(), Phase2Options{Mode: "sometimes"})
	assert.Error(t, err)

	summary, err = pipeline.RunPhase2(context.Background(), Phase2Options{Mode: Phase2RevalidateAll})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Processed)
	assert.Equal(t, 2, summary.Matched)
}

func TestPhase3Window(t *testing.T) {
	store := &memStore{records: []*models.HazardRecord{
		{SelfImportSeq: "edge", CreatedDTM: "20260303", ImageURL: "https://img/edge.jpg"},
		{SelfImportSeq: "recent", CreatedDTM: "20260309101500"},
		{SelfImportSeq: "old", CreatedDTM: "20260302", ImageURL: "https://img/old.jpg"},
		{SelfImportSeq: "older", CreatedDTM: "20250101", ImageURL: "https://img/older.jpg", Status: models.HazardFound, CandidateURL: "https://kr.iherb.com/pr/o/5"},
		{SelfImportSeq: "future", CreatedDTM: "20260311"},
	}}
	before := map[string]models.HazardRecord{}
	for _, seq := range []string{"old", "older", "future"} {
		before[seq] = *findRecord(store.records, seq)
	}

	pipeline := newTestHazardPipeline(t, store, HazardDeps{
		Downloader: &fakeDownloader{},
		Searcher: &fakeReverseSearch{results: map[string]string{
			"https://img/edge.jpg": "https://kr.iherb.com/pr/e/1",
			"https://img/old.jpg":  "https://kr.iherb.com/pr/old/2",
		}},
		Scraper: &fakeScraper{listings: map[string]*models.IHerbListing{
			"https://kr.iherb.com/pr/e/1": {ImageURL: "https://cloudinary.images-iherb.com/l/e.jpg"},
		}},
		Verifier: &fakeVerifier{matches: map[string]bool{"https://cloudinary.images-iherb.com/l/e.jpg": true}},
	})

	summary, err := pipeline.RunPhase3(context.Background(), Phase3Options{Days: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Selected)
	assert.Equal(t, 2, summary.Phase1.Processed)
	assert.Equal(t, 1, summary.Phase2.Processed)
	assert.Equal(t, 1, summary.Matches)

	assert.Equal(t, models.HazardVerifiedMatch, findRecord(store.records, "edge").Status)
	assert.Equal(t, models.HazardNoImage, findRecord(store.records, "recent").Status)
	for seq, rec := range before {
		assert.Equal(t, rec, *findRecord(store.records, seq), seq)
	}
}

func TestPhase3SkipFlags(t *testing.T) {
	store := &memStore{records: []*models.HazardRecord{
		{SelfImportSeq: "1", CreatedDTM: "20260309", Status: models.HazardFound, CandidateURL: "https://kr.iherb.com/pr/a/1"},
	}}
	pipeline := newTestHazardPipeline(t, store, HazardDeps{Downloader: &fakeDownloader{}, Searcher: &fakeReverseSearch{}})

	summary, err := pipeline.RunPhase3(context.Background(), Phase3Options{Days: 7, SkipPhase2: true})
	require.NoError(t, err)
	assert.Nil(t, summary.Phase2)
	assert.Equal(t, 0, summary.Phase1.Processed)
	assert.Equal(t, models.HazardFound, store.records[0].Status)

	_, err = pipeline.RunPhase3(context.Background(), Phase3Options{Days: 7})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type fakeHazardFetcher struct {
	records []*models.HazardRecord
	err     error
}

func (f *fakeHazardFetcher) Fetch(context.Context, int) ([]*models.HazardRecord, error) {
	return f.records, f.err
}

func TestPhase1FetchMerges(t *testing.T) {
	store := &memStore{records: []*models.HazardRecord{{SelfImportSeq: "1", CreatedDTM: "20260301", Status: models.HazardNotFound}}}
	deps := HazardDeps{
		Downloader: &fakeDownloader{},
		Searcher:   &fakeReverseSearch{},
		Fetcher:    &fakeHazardFetcher{records: []*models.HazardRecord{{SelfImportSeq: "1"}, {SelfImportSeq: "2", CreatedDTM: "20260305"}}},
	}
	pipeline := newTestHazardPipeline(t, store, deps)

	summary, err := pipeline.RunPhase1(context.Background(), Phase1Options{Fetch: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NoImage)
	require.Len(t, store.records, 2)
	assert.Equal(t, "2", store.records[0].SelfImportSeq)
	assert.Equal(t, models.HazardNotFound, store.records[1].Status)

	// a failed fetch leaves the stored records to work on
	deps.Fetcher = &fakeHazardFetcher{err: errors.New("MFDS error ERROR-500")}
	pipeline = newTestHazardPipeline(t, store, deps)
	_, err = pipeline.RunPhase1(context.Background(), Phase1Options{Fetch: true})
	require.NoError(t, err)
	assert.Len(t, store.records, 2)

	_, err = newTestHazardPipeline(t, store, HazardDeps{Downloader: &fakeDownloader{}, Searcher: &fakeReverseSearch{}}).
		RunPhase1(context.Background(), Phase1Options{Fetch: true})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
