// internal/hazard/csvstore.go
package hazard

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pricematch/pricematch/internal/models"
)

// Columns is the on-disk column order of the match file.
var Columns = []string{
	"SELF_IMPORT_SEQ",
	"PRDT_NM",
	"MUFC_NM",
	"MUFC_CNTRY_NM",
	"INGR_NM_LST",
	"CRET_DTM",
	"IMAGE_URL_MFDS",
	"IHERB_URL",
	"STATUS",
	"IHERB_PRODUCT_IMAGES",
	"GEMINI_VERIFIED",
	"GEMINI_REASON",
	"VERIFIED_DTM",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVStore reads and writes the hazard-notice match file.
type CSVStore struct {
	path string
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

func (s *CSVStore) Path() string {
	return s.path
}

// Load returns every record in file order. A missing file is an empty
// store. Columns are matched by header name, so extra or reordered
// columns are tolerated.
func (s *CSVStore) Load() ([]*models.HazardRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", s.path, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	if _, ok := index["SELF_IMPORT_SEQ"]; !ok {
		return nil, fmt.Errorf("%s has no SELF_IMPORT_SEQ column", s.path)
	}

	var records []*models.HazardRecord
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", s.path, line, err)
		}

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		rec, err := decodeRecord(get)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", s.path, line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// Save writes all records atomically: a temp file in the same directory
// is renamed over the target.
func (s *CSVStore) Save(records []*models.HazardRecord) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(s.path)+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp)

	if err := writeRecords(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	logrus.WithFields(logrus.Fields{"path": s.path, "records": len(records)}).Debug("Hazard file saved")
	return nil
}

func writeRecords(w io.Writer, records []*models.HazardRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(bw)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range records {
		row, err := encodeRecord(rec)
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.SelfImportSeq, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write record %s: %w", rec.SelfImportSeq, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return bw.Flush()
}

// decodeRecord trims every column except the verifier reason, which is
// stored as answered.
func decodeRecord(raw func(string) string) (*models.HazardRecord, error) {
	get := func(col string) string { return strings.TrimSpace(raw(col)) }

	status, err := models.ParseHazardStatus(get("STATUS"))
	if err != nil {
		return nil, err
	}

	rec := &models.HazardRecord{
		SelfImportSeq: get("SELF_IMPORT_SEQ"),
		ProductName:   get("PRDT_NM"),
		Manufacturer:  get("MUFC_NM"),
		Country:       get("MUFC_CNTRY_NM"),
		Ingredients:   get("INGR_NM_LST"),
		CreatedDTM:    normalizeDTM(get("CRET_DTM")),
		ImageURL:      get("IMAGE_URL_MFDS"),
		CandidateURL:  get("IHERB_URL"),
		Status:        status,
		Reason:        raw("GEMINI_REASON"),
		VerifiedDTM:   normalizeDTM(get("VERIFIED_DTM")),
	}

	if raw := get("IHERB_PRODUCT_IMAGES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.CandidateImages); err != nil {
			// older files stored a single bare URL
			rec.CandidateImages = []string{raw}
		}
	}

	switch strings.ToLower(get("GEMINI_VERIFIED")) {
	case "true", "1", "yes":
		v := true
		rec.Verified = &v
	case "false", "0", "no":
		v := false
		rec.Verified = &v
	}

	return rec, nil
}

func encodeRecord(rec *models.HazardRecord) ([]string, error) {
	var images string
	if len(rec.CandidateImages) > 0 {
		b, err := json.Marshal(rec.CandidateImages)
		if err != nil {
			return nil, err
		}
		images = string(b)
	}

	var verified string
	if rec.Verified != nil {
		verified = "False"
		if *rec.Verified {
			verified = "True"
		}
	}

	return []string{
		rec.SelfImportSeq,
		rec.ProductName,
		rec.Manufacturer,
		rec.Country,
		rec.Ingredients,
		rec.CreatedDTM,
		rec.ImageURL,
		rec.CandidateURL,
		string(rec.Status),
		images,
		verified,
		rec.Reason,
		rec.VerifiedDTM,
	}, nil
}

// normalizeDTM drops a trailing ".0" left by spreadsheet tools that read
// the column as a number.
func normalizeDTM(s string) string {
	return strings.TrimSuffix(s, ".0")
}
