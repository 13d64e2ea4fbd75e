// internal/hazard/mfds.go
package hazard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/pricematch/pricematch/internal/config"
	"github.com/pricematch/pricematch/internal/models"
)

const mfdsPageDelay = 300 * time.Millisecond

// MFDSClient pages through the food-safety hazard notice API.
type MFDSClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	service    string
	pageSize   int
	limiter    *rate.Limiter
}

func NewMFDSClient(cfg config.HazardConfig) *MFDSClient {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &MFDSClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    strings.TrimRight(cfg.MFDSURL, "/"),
		apiKey:     cfg.MFDSAPIKey,
		service:    cfg.ServiceID,
		pageSize:   pageSize,
		limiter:    rate.NewLimiter(rate.Every(mfdsPageDelay), 1),
	}
}

type mfdsResult struct {
	Code    string `json:"CODE"`
	Message string `json:"MSG"`
}

type mfdsPage struct {
	Rows   []map[string]interface{} `json:"row"`
	Result mfdsResult               `json:"RESULT"`
}

// Fetch returns up to limit notices (all of them when limit is 0), newest
// first. Rows enter unresolved.
func (c *MFDSClient) Fetch(ctx context.Context, limit int) ([]*models.HazardRecord, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("MFDS API key is not configured")
	}

	var records []*models.HazardRecord
	for start := 1; ; start += c.pageSize {
		end := start + c.pageSize - 1
		if limit > 0 && end > limit {
			end = limit
		}

		rows, err := c.fetchPage(ctx, start, end)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			records = append(records, recordFromRow(row))
		}

		logrus.WithFields(logrus.Fields{"start": start, "end": end, "rows": len(rows)}).Debug("MFDS page fetched")

		if len(rows) < end-start+1 || (limit > 0 && end >= limit) {
			break
		}
	}

	SortNewestFirst(records)
	logrus.WithField("count", len(records)).Info("MFDS hazard notices fetched")
	return records, nil
}

func (c *MFDSClient) fetchPage(ctx context.Context, start, end int) ([]map[string]interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/%s/json/%d/%d", c.baseURL, c.apiKey, c.service, start, end)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build MFDS request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MFDS request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MFDS request failed with status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var body map[string]json.RawMessage
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode MFDS response: %w", err)
	}

	raw, ok := body[c.service]
	if !ok {
		// past the last page the API answers with only a RESULT block
		return nil, nil
	}

	var page mfdsPage
	pageDec := json.NewDecoder(bytes.NewReader(raw))
	pageDec.UseNumber()
	if err := pageDec.Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode MFDS page: %w", err)
	}

	if code := page.Result.Code; code != "" && code != "INFO-000" && code != "INFO-200" {
		return nil, fmt.Errorf("MFDS error %s: %s", code, page.Result.Message)
	}
	return page.Rows, nil
}

func recordFromRow(row map[string]interface{}) *models.HazardRecord {
	get := func(key string) string {
		v, ok := row[key]
		if !ok || v == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}

	image := get("IMAGE_URL")
	if image == "" {
		image = get("IMAGE_URL_MFDS")
	}

	return &models.HazardRecord{
		SelfImportSeq: get("SELF_IMPORT_SEQ"),
		ProductName:   get("PRDT_NM"),
		Manufacturer:  get("MUFC_NM"),
		Country:       get("MUFC_CNTRY_NM"),
		Ingredients:   get("INGR_NM_LST"),
		CreatedDTM:    normalizeDTM(get("CRET_DTM")),
		ImageURL:      image,
		Status:        models.HazardUnresolved,
	}
}

// Merge adds fetched notices that are not already present. Existing
// records keep their matching state. The result is sorted newest first.
func Merge(existing, fetched []*models.HazardRecord) ([]*models.HazardRecord, int) {
	seen := make(map[string]bool, len(existing))
	merged := make([]*models.HazardRecord, 0, len(existing)+len(fetched))
	for _, rec := range existing {
		seen[rec.SelfImportSeq] = true
		merged = append(merged, rec)
	}

	added := 0
	for _, rec := range fetched {
		if rec.SelfImportSeq == "" || seen[rec.SelfImportSeq] {
			continue
		}
		seen[rec.SelfImportSeq] = true
		merged = append(merged, rec)
		added++
	}

	SortNewestFirst(merged)
	return merged, added
}

// SortNewestFirst orders records by CRET_DTM descending. Records with an
// unreadable date sort last, keeping their relative order.
func SortNewestFirst(records []*models.HazardRecord) {
	created := make(map[*models.HazardRecord]time.Time, len(records))
	for _, rec := range records {
		t, _, err := rec.CreatedAt(time.UTC)
		if err == nil {
			created[rec] = t
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return created[records[i]].After(created[records[j]])
	})
}
