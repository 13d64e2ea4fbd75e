// internal/crawler/google_test.go
package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickCandidateURL(t *testing.T) {
	tests := []struct {
		name  string
		hrefs []string
		want  string
	}{
		{
			name: "product page wins over earlier marketplace link",
			hrefs: []string{
				"https://kr.iherb.com/c/now-foods",
				"https://kr.iherb.com/pr/now-foods-vitamin-d-3/10421",
			},
			want: "https://kr.iherb.com/pr/now-foods-vitamin-d-3/10421",
		},
		{
			name:  "falls back to first marketplace link",
			hrefs: []string{"https://www.coupang.com/vp/products/1", "https://kr.iherb.com/c/now-foods"},
			want:  "https://kr.iherb.com/c/now-foods",
		},
		{
			name:  "redirect is unwrapped",
			hrefs: []string{"/url?q=https://www.iherb.com/pr/x/123&sa=U"},
			want:  "https://www.iherb.com/pr/x/123",
		},
		{
			name: "search engine links are skipped",
			hrefs: []string{
				"https://www.google.com/search?q=iherb.com/pr/",
				"https://lens.google.com/iherb.com/pr/1",
				"https://policies.google.com/about/products",
				"#",
				"/search?q=iherb",
			},
			want: "",
		},
		{
			name:  "no links",
			hrefs: nil,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickCandidateURL(tt.hrefs))
		})
	}
}

func TestUnwrapRedirect(t *testing.T) {
	assert.Equal(t, "https://kr.iherb.com/pr/a/1", UnwrapRedirect("https://www.google.com/url?url=https://kr.iherb.com/pr/a/1"))
	assert.Equal(t, "https://kr.iherb.com/pr/a/1", UnwrapRedirect("https://kr.iherb.com/pr/a/1"))
}

func TestFindCandidateURL(t *testing.T) {
	page := &fakePage{html: `<html><body>
		<a href="https://www.google.com/imghp">Images</a>
		<a href="/url?q=https://kr.iherb.com/pr/now-foods-vitamin-d-3/10421&sa=U">NOW Foods</a>
	</body></html>`}

	got, err := NewGoogleImageSearch(page).FindCandidateURL(context.Background(), "/tmp/hazard.jpg")
	require.NoError(t, err)

	assert.Equal(t, "https://kr.iherb.com/pr/now-foods-vitamin-d-3/10421", got)
	assert.Equal(t, []string{"/tmp/hazard.jpg"}, page.uploads)
	assert.Equal(t, []string{"iherb"}, page.typed)
	assert.Equal(t, []string{"https://images.google.com/"}, page.navigated)
	assert.Equal(t, []int{800, -800}, page.scrolls)
}

func TestFindCandidateURLScrollFailureIsLogged(t *testing.T) {
	hook := test.NewGlobal()
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logrus.SetLevel(level)
		logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	})

	scrollErr := errors.New("execution context was destroyed")
	page := &fakePage{
		html:      `<a href="https://kr.iherb.com/pr/now-foods-vitamin-d-3/10421">NOW Foods</a>`,
		scrollErr: map[int]error{-800: scrollErr},
	}

	got, err := NewGoogleImageSearch(page).FindCandidateURL(context.Background(), "/tmp/hazard.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://kr.iherb.com/pr/now-foods-vitamin-d-3/10421", got)
	assert.Equal(t, []int{800, -800}, page.scrolls)

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Scroll back failed" {
			logged = true
			assert.Equal(t, logrus.DebugLevel, entry.Level)
			assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), scrollErr)
		}
	}
	assert.True(t, logged)
}

func TestFindCandidateURLClickFailure(t *testing.T) {
	clickErr := errors.New("element not found")
	page := &fakePage{clickErr: clickErr}

	_, err := NewGoogleImageSearch(page).FindCandidateURL(context.Background(), "/tmp/hazard.jpg")
	assert.ErrorIs(t, err, clickErr)
	assert.Empty(t, page.uploads)
}
