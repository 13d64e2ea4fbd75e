// internal/gemini/translator.go
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const translatePrompt = `Translate this Korean health supplement product name into the English name an
international retailer would list it under. Keep the brand, the main ingredient, the dosage and the
count. Answer with the English name only, on one line, without quotes.

Product name: %s`

// Translator turns marketplace product names into English search terms.
type Translator struct {
	client *Client
}

func NewTranslator(client *Client) *Translator {
	return &Translator{client: client}
}

func (t *Translator) TranslateName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("nothing to translate")
	}

	text, err := t.client.generate(ctx, genai.NewPartFromText(fmt.Sprintf(translatePrompt, name)))
	if err != nil {
		return "", err
	}
	return CleanTranslation(text), nil
}

// CleanTranslation keeps the first non-empty line and strips quoting.
func CleanTranslation(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "English name:")
		line = strings.Trim(strings.TrimSpace(line), "\"'`*")
		if line != "" {
			return line
		}
	}
	return ""
}
