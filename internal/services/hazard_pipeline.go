// internal/services/hazard_pipeline.go
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pricematch/pricematch/internal/hazard"
	"github.com/pricematch/pricematch/internal/models"
)

var ErrUnknownRecord = errors.New("hazard record not found")

type HazardStore interface {
	Load() ([]*models.HazardRecord, error)
	Save(records []*models.HazardRecord) error
}

type HazardFetcher interface {
	Fetch(ctx context.Context, limit int) ([]*models.HazardRecord, error)
}

// ImageDownloader fetches images into memory or onto disk.
type ImageDownloader interface {
	ImageFetcher
	Save(ctx context.Context, url, dir string) (string, error)
}

type ReverseImageSearcher interface {
	FindCandidateURL(ctx context.Context, imagePath string) (string, error)
}

type ListingScraper interface {
	ScrapeListing(ctx context.Context, listingURL string) (*models.IHerbListing, error)
}

// HazardDeps are the collaborators of the hazard matching phases.
type HazardDeps struct {
	Fetcher    HazardFetcher
	Downloader ImageDownloader
	Searcher   ReverseImageSearcher
	Scraper    ListingScraper
	Verifier   ImageVerifier
	TempDir    string
}

// HazardPipeline matches hazard notices to marketplace-B listings. The
// record file is rewritten after every processed record so an interrupted
// run resumes where it stopped.
type HazardPipeline struct {
	store HazardStore
	deps  HazardDeps
	now   func() time.Time
}

type Phase1Options struct {
	Fetch      bool
	FetchLimit int
	Limit      int
	Seqs       []string
}

type Phase1Summary struct {
	Processed      int `json:"processed"`
	Found          int `json:"found"`
	NotFound       int `json:"not_found"`
	NoImage        int `json:"no_image"`
	DownloadFailed int `json:"download_failed"`
}

type Phase2Mode string

const (
	Phase2Unverified    Phase2Mode = "unverified"
	Phase2RevalidateAll Phase2Mode = "revalidate-all"
	Phase2ByID          Phase2Mode = "by-id"
)

type Phase2Options struct {
	Mode Phase2Mode
	Seq  string
}

type Phase2Summary struct {
	Processed  int `json:"processed"`
	Matched    int `json:"matched"`
	Mismatched int `json:"mismatched"`
	Failed     int `json:"failed"`
}

type Phase3Options struct {
	Days       int
	SkipPhase1 bool
	SkipPhase2 bool
	Fetch      bool
	FetchLimit int
}

type Phase3Summary struct {
	Selected int            `json:"selected"`
	Phase1   *Phase1Summary `json:"phase1,omitempty"`
	Phase2   *Phase2Summary `json:"phase2,omitempty"`
	Matches  int            `json:"matches"`
}

var seoul = loadSeoul()

func loadSeoul() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

func NewHazardPipeline(store HazardStore, deps HazardDeps) *HazardPipeline {
	return &HazardPipeline{
		store: store,
		deps:  deps,
		now:   func() time.Time { return time.Now().In(seoul) },
	}
}

// load reads the record file and, when asked, merges newly published
// notices into it. A failed fetch is logged and the run goes on with the
// records on disk.
func (p *HazardPipeline) load(ctx context.Context, fetch bool, limit int) ([]*models.HazardRecord, error) {
	records, err := p.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load hazard records: %w", err)
	}
	if !fetch {
		return records, nil
	}
	if p.deps.Fetcher == nil {
		return nil, fmt.Errorf("fetch: %w", ErrNotConfigured)
	}

	fetched, err := p.deps.Fetcher.Fetch(ctx, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logrus.WithError(err).Warn("Hazard notice fetch failed, continuing with stored records")
		return records, nil
	}

	merged, added := hazard.Merge(records, fetched)
	if err := p.store.Save(merged); err != nil {
		return nil, fmt.Errorf("failed to save merged records: %w", err)
	}
	logrus.WithFields(logrus.Fields{"fetched": len(fetched), "added": added, "total": len(merged)}).Info("Hazard notices merged")
	return merged, nil
}

// RunPhase1 searches marketplace B for every unresolved record, or for the
// records named in opts.Seqs.
func (p *HazardPipeline) RunPhase1(ctx context.Context, opts Phase1Options) (*Phase1Summary, error) {
	if err := p.requirePhase1(); err != nil {
		return nil, err
	}

	records, err := p.load(ctx, opts.Fetch, opts.FetchLimit)
	if err != nil {
		return nil, err
	}

	var targets []*models.HazardRecord
	if len(opts.Seqs) > 0 {
		targets, err = selectSeqs(records, opts.Seqs)
		if err != nil {
			return nil, err
		}
	} else {
		for _, rec := range records {
			if rec.Status == models.HazardUnresolved {
				targets = append(targets, rec)
			}
		}
	}
	if opts.Limit > 0 && len(targets) > opts.Limit {
		targets = targets[:opts.Limit]
	}

	logrus.WithFields(logrus.Fields{"total": len(records), "targets": len(targets)}).Info("Phase 1 started")
	return p.phase1(ctx, records, targets)
}

func (p *HazardPipeline) requirePhase1() error {
	switch {
	case p.deps.Downloader == nil:
		return fmt.Errorf("phase 1: downloader: %w", ErrNotConfigured)
	case p.deps.Searcher == nil:
		return fmt.Errorf("phase 1: reverse image search: %w", ErrNotConfigured)
	}
	return nil
}

func (p *HazardPipeline) phase1(ctx context.Context, records, targets []*models.HazardRecord) (*Phase1Summary, error) {
	summary := &Phase1Summary{}
	for i, rec := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if !rec.Status.CanTransitionTo(models.HazardFound) {
			logrus.WithFields(logrus.Fields{"seq": rec.SelfImportSeq, "status": rec.Status}).Warn("Record already has a candidate, skipping search")
			continue
		}

		next, err := p.searchRecord(ctx, rec)
		if err != nil {
			return summary, fmt.Errorf("record %s: %w", rec.SelfImportSeq, err)
		}

		summary.Processed++
		switch next {
		case models.HazardFound:
			summary.Found++
		case models.HazardNotFound:
			summary.NotFound++
		case models.HazardNoImage:
			summary.NoImage++
		case models.HazardDownloadFailed:
			summary.DownloadFailed++
		}

		if err := p.store.Save(records); err != nil {
			return summary, fmt.Errorf("failed to save progress: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"seq":      rec.SelfImportSeq,
			"status":   next,
			"progress": fmt.Sprintf("%d/%d", i+1, len(targets)),
		}).Info("Phase 1 record processed")
	}
	return summary, nil
}

// searchRecord applies one search outcome to rec. Only search and
// navigation errors are returned; they stop the phase.
func (p *HazardPipeline) searchRecord(ctx context.Context, rec *models.HazardRecord) (models.HazardStatus, error) {
	imageURL := rec.FirstImageURL()
	if imageURL == "" {
		return models.HazardNoImage, rec.Transition(models.HazardNoImage)
	}

	path, err := p.deps.Downloader.Save(ctx, imageURL, p.deps.TempDir)
	if err != nil {
		if ctx.Err() != nil {
			return rec.Status, ctx.Err()
		}
		logrus.WithError(err).WithField("seq", rec.SelfImportSeq).Warn("Hazard image download failed")
		return models.HazardDownloadFailed, rec.Transition(models.HazardDownloadFailed)
	}
	defer os.Remove(path)

	candidate, err := p.deps.Searcher.FindCandidateURL(ctx, path)
	if err != nil {
		return rec.Status, fmt.Errorf("reverse image search: %w", err)
	}

	if candidate == "" {
		return models.HazardNotFound, rec.Transition(models.HazardNotFound)
	}
	rec.CandidateURL = candidate
	return models.HazardFound, rec.Transition(models.HazardFound)
}

// RunPhase2 verifies candidate listings against the notice images.
func (p *HazardPipeline) RunPhase2(ctx context.Context, opts Phase2Options) (*Phase2Summary, error) {
	if err := p.requirePhase2(); err != nil {
		return nil, err
	}

	records, err := p.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load hazard records: %w", err)
	}

	var targets []*models.HazardRecord
	switch opts.Mode {
	case Phase2Unverified, "":
		for _, rec := range records {
			if rec.Status == models.HazardFound && rec.Verified == nil {
				targets = append(targets, rec)
			}
		}
	case Phase2RevalidateAll:
		for _, rec := range records {
			if rec.HasCandidate() {
				targets = append(targets, rec)
			}
		}
	case Phase2ByID:
		targets, err = selectSeqs(records, []string{opts.Seq})
		if err != nil {
			return nil, err
		}
		if !targets[0].HasCandidate() {
			return nil, fmt.Errorf("record %s has no candidate URL", opts.Seq)
		}
	default:
		return nil, fmt.Errorf("unknown phase 2 mode %q", opts.Mode)
	}

	logrus.WithFields(logrus.Fields{"mode": opts.Mode, "targets": len(targets)}).Info("Phase 2 started")
	return p.phase2(ctx, records, targets)
}

func (p *HazardPipeline) requirePhase2() error {
	switch {
	case p.deps.Scraper == nil:
		return fmt.Errorf("phase 2: listing scraper: %w", ErrNotConfigured)
	case p.deps.Downloader == nil:
		return fmt.Errorf("phase 2: downloader: %w", ErrNotConfigured)
	case p.deps.Verifier == nil:
		return fmt.Errorf("phase 2: verifier: %w", ErrNotConfigured)
	}
	return nil
}

func (p *HazardPipeline) phase2(ctx context.Context, records, targets []*models.HazardRecord) (*Phase2Summary, error) {
	summary := &Phase2Summary{}
	for i, rec := range targets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !rec.Status.CanTransitionTo(models.HazardVerificationFailed) {
			logrus.WithFields(logrus.Fields{"seq": rec.SelfImportSeq, "status": rec.Status}).Warn("Record is not verifiable, skipping")
			continue
		}

		verdict, images, err := p.verifyRecord(ctx, rec)
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		summary.Processed++
		at := p.now()
		switch {
		case err != nil:
			summary.Failed++
			err = rec.FailVerification(err.Error(), at)
		case verdict.Match:
			summary.Matched++
			err = rec.ApplyVerdict(true, verdict.Reason, images, at)
		default:
			summary.Mismatched++
			err = rec.ApplyVerdict(false, verdict.Reason, images, at)
		}
		if err != nil {
			return summary, err
		}

		if err := p.store.Save(records); err != nil {
			return summary, fmt.Errorf("failed to save progress: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"seq":      rec.SelfImportSeq,
			"status":   rec.Status,
			"progress": fmt.Sprintf("%d/%d", i+1, len(targets)),
		}).Info("Phase 2 record processed")
	}
	return summary, nil
}

func (p *HazardPipeline) verifyRecord(ctx context.Context, rec *models.HazardRecord) (*models.Verdict, []string, error) {
	listing, err := p.deps.Scraper.ScrapeListing(ctx, rec.CandidateURL)
	if err != nil {
		return nil, nil, err
	}
	if listing.ImageURL == "" {
		return nil, nil, errors.New("No iHerb image")
	}

	images := listing.Images
	if len(images) == 0 {
		images = []string{listing.ImageURL}
	}

	sourceURL := rec.FirstImageURL()
	if sourceURL == "" {
		return nil, images, errors.New("No hazard image")
	}
	source, err := p.deps.Downloader.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, images, fmt.Errorf("hazard image download failed: %w", err)
	}
	candidate, err := p.deps.Downloader.Fetch(ctx, listing.ImageURL)
	if err != nil {
		return nil, images, fmt.Errorf("iHerb image download failed: %w", err)
	}

	verdict, err := p.deps.Verifier.Verify(ctx, models.VerifyRequest{
		Source:        source,
		Candidate:     candidate,
		SourceName:    rec.ProductName,
		CandidateName: listing.Name,
	})
	if err != nil {
		return nil, images, err
	}
	return verdict, images, nil
}

// RunPhase3 runs phases 1 and 2 over the records created in the trailing
// window of opts.Days. Records outside the window are left alone.
func (p *HazardPipeline) RunPhase3(ctx context.Context, opts Phase3Options) (*Phase3Summary, error) {
	if opts.Days <= 0 {
		opts.Days = 7
	}
	if !opts.SkipPhase1 {
		if err := p.requirePhase1(); err != nil {
			return nil, err
		}
	}
	if !opts.SkipPhase2 {
		if err := p.requirePhase2(); err != nil {
			return nil, err
		}
	}

	records, err := p.load(ctx, opts.Fetch, opts.FetchLimit)
	if err != nil {
		return nil, err
	}

	now := p.now()
	var window []*models.HazardRecord
	for _, rec := range records {
		if rec.CreatedWithin(now, opts.Days) {
			window = append(window, rec)
		}
	}

	summary := &Phase3Summary{Selected: len(window)}
	logrus.WithFields(logrus.Fields{"days": opts.Days, "selected": len(window), "total": len(records)}).Info("Phase 3 started")

	if !opts.SkipPhase1 {
		var targets []*models.HazardRecord
		for _, rec := range window {
			if !rec.HasCandidate() {
				targets = append(targets, rec)
			}
		}
		summary.Phase1, err = p.phase1(ctx, records, targets)
		if err != nil {
			return summary, err
		}
	}

	if !opts.SkipPhase2 {
		var targets []*models.HazardRecord
		for _, rec := range window {
			if rec.Status == models.HazardFound {
				targets = append(targets, rec)
			}
		}
		summary.Phase2, err = p.phase2(ctx, records, targets)
		if err != nil {
			return summary, err
		}
	}

	for _, rec := range window {
		if rec.Status == models.HazardVerifiedMatch {
			summary.Matches++
		}
	}

	logrus.WithFields(logrus.Fields{"selected": summary.Selected, "matches": summary.Matches}).Info("Phase 3 finished")
	return summary, nil
}

func selectSeqs(records []*models.HazardRecord, seqs []string) ([]*models.HazardRecord, error) {
	bySeq := make(map[string]*models.HazardRecord, len(records))
	for _, rec := range records {
		bySeq[rec.SelfImportSeq] = rec
	}

	selected := make([]*models.HazardRecord, 0, len(seqs))
	for _, seq := range seqs {
		rec, ok := bySeq[seq]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRecord, seq)
		}
		selected = append(selected, rec)
	}
	return selected, nil
}
