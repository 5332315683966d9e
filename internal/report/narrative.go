package report

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Synthesizer turns a factual prompt into a short teaching narrative.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// GeminiConfig configures the hosted narrative model.
type GeminiConfig struct {
	BaseURL string // default https://generativelanguage.googleapis.com
	APIKey  string
	Model   string // default gemini-1.5-flash
	Timeout time.Duration
}

// GeminiClient calls the generateContent endpoint of a hosted Gemini model.
type GeminiClient struct {
	client *resty.Client
	model  string
	apiKey string
}

// NewGeminiClient builds the synthesizer client. The caller is responsible
// for deciding whether an API key is present at all; an empty key still
// builds a client, it will just be rejected upstream.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	base := cfg.BaseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com"
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second)
	return &GeminiClient{client: client, model: model, apiKey: cfg.APIKey}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Synthesize sends one prompt and returns the first candidate's text.
func (g *GeminiClient) Synthesize(ctx context.Context, prompt string) (string, error) {
	var out generateResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("key", g.apiKey).
		SetBody(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}).
		SetResult(&out).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", g.model))
	if err != nil {
		return "", errors.Wrap(err, "narrative request failed")
	}
	if resp.IsError() {
		return "", errors.Errorf("narrative request failed: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("narrative response carried no candidates")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}
