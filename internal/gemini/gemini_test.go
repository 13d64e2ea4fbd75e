// internal/gemini/gemini_test.go
package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/pricematch/pricematch/internal/config"
	"github.com/pricematch/pricematch/internal/models"
)

type fakeGenerator struct {
	reply    string
	err      error
	model    string
	contents []*genai.Content
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}, Role: genai.RoleModel},
		}},
	}, nil
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in     string
		match  bool
		reason string
	}{
		{"YES: same brand and label", true, "YES: same brand and label"},
		{"yes, identical bottle", true, "yes, identical bottle"},
		{"**YES** - same product", true, "**YES** - same product"},
		{"YES—both show the same bottle.", true, "YES—both show the same bottle."},
		{"YES: Same label.\n\nLet me know if you need anything else.", true, "YES: Same label."},
		{"YES. The labels match! Would you like a closer look?", true, "YES. The labels match!"},
		{"  YES: same size. Same count.  ", true, "YES: same size."},
		{"NO: different brand logos", false, "NO: different brand logos"},
		{"NO. Different size.", false, "NO. Different size."},
		{"YESTERDAY's photo differs.", false, "YESTERDAY's photo differs."},
		{"The images show different products. YES would be wrong.", false, "The images show different products."},
		{"1.5 mg vs 3 mg, different strength.", false, "1.5 mg vs 3 mg, different strength."},
		{"NO\nYES", false, "NO"},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			match, reason := ParseVerdict(tt.in)
			assert.Equal(t, tt.match, match)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestVerifyPassesBothImages(t *testing.T) {
	gen := &fakeGenerator{reply: "YES: Same brand and product name visible"}
	v := NewVerifier(newClient(gen, "gemini-test", 0))

	verdict, err := v.Verify(context.Background(), models.VerifyRequest{
		Source:        &models.Image{Data: []byte("a"), MIMEType: "image/png"},
		Candidate:     &models.Image{Data: []byte("b")},
		SourceName:    "Hazard product",
		CandidateName: "NOW Foods, Vitamin D-3",
	})
	require.NoError(t, err)

	assert.True(t, verdict.Match)
	assert.Equal(t, "YES: Same brand and product name visible", verdict.Reason)
	assert.Equal(t, "gemini-test", gen.model)

	require.Len(t, gen.contents, 1)
	parts := gen.contents[0].Parts
	require.Len(t, parts, 3)
	assert.Contains(t, parts[0].Text, "NOW Foods, Vitamin D-3")
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
	require.NotNil(t, parts[2].InlineData)
	assert.Equal(t, "image/jpeg", parts[2].InlineData.MIMEType)
}

func TestVerifyErrors(t *testing.T) {
	v := NewVerifier(newClient(&fakeGenerator{reply: "YES"}, "m", 0))
	_, err := v.Verify(context.Background(), models.VerifyRequest{Source: &models.Image{Data: []byte("a")}})
	assert.ErrorIs(t, err, ErrMissingImage)

	apiErr := errors.New("quota exceeded")
	v = NewVerifier(newClient(&fakeGenerator{err: apiErr}, "m", 0))
	_, err = v.Verify(context.Background(), models.VerifyRequest{
		Source:    &models.Image{Data: []byte("a")},
		Candidate: &models.Image{Data: []byte("b")},
	})
	assert.ErrorIs(t, err, apiErr)

	v = NewVerifier(newClient(&fakeGenerator{reply: "  "}, "m", 0))
	_, err = v.Verify(context.Background(), models.VerifyRequest{
		Source:    &models.Image{Data: []byte("a")},
		Candidate: &models.Image{Data: []byte("b")},
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestTranslateName(t *testing.T) {
	gen := &fakeGenerator{reply: "\"NOW Foods, Vitamin D-3, 5,000 IU, 240 Softgels\"\n"}
	tr := NewTranslator(newClient(gen, "m", 0))

	got, err := tr.TranslateName(context.Background(), "나우푸드 비타민 D3 5000IU 240정")
	require.NoError(t, err)
	assert.Equal(t, "NOW Foods, Vitamin D-3, 5,000 IU, 240 Softgels", got)
	assert.Contains(t, gen.contents[0].Parts[0].Text, "나우푸드 비타민 D3 5000IU 240정")

	_, err = tr.TranslateName(context.Background(), "  ")
	assert.Error(t, err)
}

func TestCleanTranslation(t *testing.T) {
	assert.Equal(t, "Omega-3 Fish Oil", CleanTranslation("\n English name: Omega-3 Fish Oil\nextra"))
	assert.Equal(t, "", CleanTranslation(" \n "))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), config.GeminiConfig{Model: "m"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
