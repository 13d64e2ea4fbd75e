// internal/gemini/client.go
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/pricematch/pricematch/internal/config"
)

var (
	ErrMissingAPIKey = errors.New("gemini API key is not configured")
	ErrEmptyResponse = errors.New("gemini returned an empty response")
)

// contentGenerator is the part of *genai.Models the package calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client wraps one model of the Gemini API.
type Client struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newClient(client.Models, cfg.Model, cfg.Timeout), nil
}

func newClient(models contentGenerator, model string, timeout time.Duration) *Client {
	return &Client{models: models, model: model, timeout: timeout}
}

// generate sends one user turn and returns the trimmed reply text.
func (c *Client) generate(ctx context.Context, parts ...*genai.Part) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := c.models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)},
	)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	logrus.WithFields(logrus.Fields{
		"model":    c.model,
		"duration": time.Since(started).Round(time.Millisecond),
		"chars":    len(text),
	}).Debug("Gemini call finished")

	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
