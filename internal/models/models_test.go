// internal/models/models_test.go
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineStageTransitions(t *testing.T) {
	assert.True(t, StageCrawled.CanAdvanceTo(StageTranslated))
	assert.True(t, StageTranslated.CanAdvanceTo(StageMatched))
	assert.True(t, StageMatched.CanAdvanceTo(StageMatched))
	assert.True(t, StageTranslated.CanAdvanceTo(StageFailed))

	assert.False(t, StageMatched.CanAdvanceTo(StageTranslated))
	assert.False(t, StageFailed.CanAdvanceTo(StageCrawled))
	assert.False(t, StageFailed.CanAdvanceTo(StageFailed))
	assert.False(t, PipelineStage("archived").Valid())
}

func TestHazardStatusTransitions(t *testing.T) {
	rec := &HazardRecord{SelfImportSeq: "1"}

	require.NoError(t, rec.Transition(HazardFound))
	assert.ErrorIs(t, rec.Transition(HazardNotFound), ErrInvalidTransition)

	require.NoError(t, rec.ApplyVerdict(true, "YES, same label.", []string{"https://img/1.jpg"}, time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)))
	assert.Equal(t, HazardVerifiedMatch, rec.Status)
	require.NotNil(t, rec.Verified)
	assert.True(t, *rec.Verified)
	assert.Equal(t, "20260301093000", rec.VerifiedDTM)

	// revalidation stays within verification outcomes
	require.NoError(t, rec.FailVerification("timeout", time.Now()))
	assert.Nil(t, rec.Verified)
	assert.ErrorIs(t, rec.Transition(HazardFound), ErrInvalidTransition)
}

func TestParseHazardStatus(t *testing.T) {
	s, err := ParseHazardStatus(" found ")
	require.NoError(t, err)
	assert.Equal(t, HazardFound, s)

	s, err = ParseHazardStatus("")
	require.NoError(t, err)
	assert.Equal(t, HazardUnresolved, s)

	_, err = ParseHazardStatus("MAYBE")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestFirstImageURL(t *testing.T) {
	rec := HazardRecord{ImageURL: " , http://a/1.jpg, http://a/2.jpg"}
	assert.Equal(t, "http://a/1.jpg", rec.FirstImageURL())

	assert.Equal(t, "", (&HazardRecord{}).FirstImageURL())
}

func TestCreatedWithin(t *testing.T) {
	now := time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		created string
		want    bool
	}{
		{"date on cutoff day", "20260513", true},
		{"date before cutoff day", "20260512", false},
		{"datetime just inside", "20260513150000", true},
		{"datetime just outside", "20260513145959", false},
		{"today", "20260520", true},
		{"future", "20260521", false},
		{"garbage", "2026-05-20", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := HazardRecord{CreatedDTM: tt.created}
			assert.Equal(t, tt.want, rec.CreatedWithin(now, 7))
		})
	}
}
