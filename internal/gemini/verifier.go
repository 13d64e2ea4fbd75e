// internal/gemini/verifier.go
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"google.golang.org/genai"

	"github.com/pricematch/pricematch/internal/models"
)

var ErrMissingImage = errors.New("both images are required for verification")

const verifyPrompt = `Compare these two supplement product images carefully:

IMAGE 1 (Korean Import Product):
- Product: %s

IMAGE 2 (iHerb Product):
- Product: %s

TASK: Determine if these are the SAME product (same supplement, same brand, same formulation).

ANSWER FORMAT (ONE sentence only):
- "YES: [brief reason why they match]"
- "NO: [brief reason why they differ]"

Your answer:`

// Verifier asks the model whether two product images show the same
// product.
type Verifier struct {
	client *Client
}

func NewVerifier(client *Client) *Verifier {
	return &Verifier{client: client}
}

// Verify returns the verdict with the model's answer as the reason,
// unmodified.
func (v *Verifier) Verify(ctx context.Context, req models.VerifyRequest) (*models.Verdict, error) {
	if req.Source == nil || req.Candidate == nil || len(req.Source.Data) == 0 || len(req.Candidate.Data) == 0 {
		return nil, ErrMissingImage
	}

	prompt := fmt.Sprintf(verifyPrompt, orUnknown(req.SourceName), orUnknown(req.CandidateName))
	text, err := v.client.generate(ctx,
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(req.Source.Data, mimeOrDefault(req.Source.MIMEType)),
		genai.NewPartFromBytes(req.Candidate.Data, mimeOrDefault(req.Candidate.MIMEType)),
	)
	if err != nil {
		return nil, err
	}

	match, reason := ParseVerdict(text)
	return &models.Verdict{Match: match, Reason: reason}, nil
}

// ParseVerdict reads a "YES: reason" / "NO: reason" answer. The reason is
// the first sentence of the answer and a leading YES decides the match.
func ParseVerdict(text string) (bool, string) {
	reason := firstSentence(strings.TrimSpace(text))
	return startsWithYes(reason), reason
}

func startsWithYes(s string) bool {
	s = strings.ToUpper(strings.TrimLeft(s, "*\"' "))
	if !strings.HasPrefix(s, "YES") {
		return false
	}
	next, _ := utf8.DecodeRuneInString(s[len("YES"):])
	return next == utf8.RuneError || !unicode.IsLetter(next)
}

// firstSentence cuts text at the end of its first line or sentence,
// whichever comes first. A stop right after a bare YES or NO does not
// end the sentence.
func firstSentence(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}

	skip := -1
	upper := strings.ToUpper(text)
	for _, word := range []string{"YES", "NO"} {
		if strings.HasPrefix(upper, word) {
			skip = len(word)
		}
	}

	for i, r := range text {
		if i <= skip {
			continue
		}
		end := i + utf8.RuneLen(r)
		switch r {
		case '。':
			return text[:end]
		case '.', '!', '?':
			if end == len(text) || text[end] == ' ' {
				return text[:end]
			}
		}
	}
	return text
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(unknown)"
	}
	return s
}

func mimeOrDefault(mime string) string {
	if mime == "" {
		return "image/jpeg"
	}
	return mime
}
