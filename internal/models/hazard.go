// internal/models/hazard.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// HazardStatus is the matching state of a hazard-notice record.
type HazardStatus string

const (
	HazardUnresolved         HazardStatus = ""
	HazardFound              HazardStatus = "FOUND"
	HazardVerifiedMatch      HazardStatus = "VERIFIED_MATCH"
	HazardVerifiedMismatch   HazardStatus = "VERIFIED_MISMATCH"
	HazardNotFound           HazardStatus = "NOT_FOUND"
	HazardNoImage            HazardStatus = "NO_IMAGE"
	HazardDownloadFailed     HazardStatus = "DOWNLOAD_FAILED"
	HazardVerificationFailed HazardStatus = "VERIFICATION_FAILED"
)

var (
	searchOutcomes = []HazardStatus{HazardNoImage, HazardDownloadFailed, HazardFound, HazardNotFound}
	verifyOutcomes = []HazardStatus{HazardVerifiedMatch, HazardVerifiedMismatch, HazardVerificationFailed}
)

// hazardTransitions lists the allowed moves. Search outcomes may be
// searched again, verification outcomes may be verified again.
var hazardTransitions = map[HazardStatus][]HazardStatus{
	HazardUnresolved:         searchOutcomes,
	HazardNoImage:            searchOutcomes,
	HazardDownloadFailed:     searchOutcomes,
	HazardNotFound:           searchOutcomes,
	HazardFound:              verifyOutcomes,
	HazardVerifiedMatch:      verifyOutcomes,
	HazardVerifiedMismatch:   verifyOutcomes,
	HazardVerificationFailed: verifyOutcomes,
}

func ParseHazardStatus(s string) (HazardStatus, error) {
	status := HazardStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := hazardTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

func (s HazardStatus) CanTransitionTo(next HazardStatus) bool {
	for _, allowed := range hazardTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

const (
	CreatedDateLayout     = "20060102"
	CreatedDateTimeLayout = "20060102150405"
	VerifiedLayout        = "20060102150405"
)

// HazardRecord is one row of the hazard-notice match file.
type HazardRecord struct {
	SelfImportSeq   string
	ProductName     string
	Manufacturer    string
	Country         string
	Ingredients     string
	CreatedDTM      string
	ImageURL        string
	CandidateURL    string
	Status          HazardStatus
	CandidateImages []string
	Verified        *bool
	Reason          string
	VerifiedDTM     string
}

// Transition moves the record to next, refusing moves outside the table.
func (r *HazardRecord) Transition(next HazardStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, displayStatus(r.Status), next)
	}
	r.Status = next
	return nil
}

// FirstImageURL returns the first of the comma-separated image URLs.
func (r *HazardRecord) FirstImageURL() string {
	for _, part := range strings.Split(r.ImageURL, ",") {
		if u := strings.TrimSpace(part); u != "" {
			return u
		}
	}
	return ""
}

func (r *HazardRecord) HasCandidate() bool {
	return strings.TrimSpace(r.CandidateURL) != ""
}

// CreatedAt parses CRET_DTM. dateOnly is true for the YYYYMMDD form.
func (r *HazardRecord) CreatedAt(loc *time.Location) (t time.Time, dateOnly bool, err error) {
	raw := strings.TrimSpace(r.CreatedDTM)
	switch len(raw) {
	case len(CreatedDateLayout):
		t, err = time.ParseInLocation(CreatedDateLayout, raw, loc)
		return t, true, err
	case len(CreatedDateTimeLayout):
		t, err = time.ParseInLocation(CreatedDateTimeLayout, raw, loc)
		return t, false, err
	default:
		return time.Time{}, false, fmt.Errorf("unrecognized CRET_DTM %q", r.CreatedDTM)
	}
}

// CreatedWithin reports whether the record was created in the trailing
// window of days ending at now. Date-only values compare by calendar day.
func (r *HazardRecord) CreatedWithin(now time.Time, days int) bool {
	created, dateOnly, err := r.CreatedAt(now.Location())
	if err != nil {
		return false
	}

	cutoff := now.AddDate(0, 0, -days)
	if dateOnly {
		cutoffDay := time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, now.Location())
		return !created.Before(cutoffDay) && !created.After(now)
	}
	return !created.Before(cutoff) && !created.After(now)
}

// ApplyVerdict records a verifier outcome.
func (r *HazardRecord) ApplyVerdict(match bool, reason string, images []string, at time.Time) error {
	next := HazardVerifiedMismatch
	if match {
		next = HazardVerifiedMatch
	}
	if err := r.Transition(next); err != nil {
		return err
	}

	r.Verified = &match
	r.Reason = reason
	r.CandidateImages = images
	r.VerifiedDTM = at.Format(VerifiedLayout)
	return nil
}

// FailVerification records a verification that could not complete.
func (r *HazardRecord) FailVerification(reason string, at time.Time) error {
	if err := r.Transition(HazardVerificationFailed); err != nil {
		return err
	}

	r.Verified = nil
	r.Reason = reason
	r.VerifiedDTM = at.Format(VerifiedLayout)
	return nil
}

func displayStatus(s HazardStatus) string {
	if s == HazardUnresolved {
		return "<unresolved>"
	}
	return string(s)
}
