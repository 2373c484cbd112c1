// Package proxy forwards free-text prompts to the Gemini generateContent API
// and normalizes every outcome into a Result.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dashd/dashd/internal/metrics"
)

const (
	defaultBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel    = "gemini-2.5-flash"
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 4 << 20
)

// Config configures the Gemini client. An empty APIKey is allowed; Complete
// then reports KindMissingCredential without calling out.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client communicates with the Gemini API. Each Complete call is a single
// stateless exchange with no retry.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *metrics.Metrics
}

func NewClient(cfg Config, m *metrics.Metrics) *Client {
	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		metrics:    m,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	return c
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	return NewClient(Config{APIKey: apiKey, BaseURL: baseURL}, nil)
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

func (c *Client) Model() string {
	return c.model
}

// Complete sends prompt and classifies the response.
func (c *Client) Complete(ctx context.Context, prompt string) Result {
	r := c.complete(ctx, prompt)
	c.metrics.GenAIRequest(string(r.Kind))
	if !r.OK() {
		slog.Warn("generative request did not succeed", "kind", r.Kind, "detail", r.Detail)
	}
	return r
}

func (c *Client) complete(ctx context.Context, prompt string) Result {
	if c.apiKey == "" {
		return Result{Kind: KindMissingCredential}
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return Result{Kind: KindTransportError, Detail: fmt.Sprintf("marshaling request: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/models/" + url.PathEscape(c.model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Kind: KindTransportError, Detail: fmt.Sprintf("creating request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Kind: KindTransportError, Detail: transportDetail(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Result{Kind: KindTransportError, Detail: fmt.Sprintf("reading response: %v", err)}
	}

	var gr generateResponse
	decodeErr := json.Unmarshal(raw, &gr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := http.StatusText(resp.StatusCode)
		if decodeErr == nil && gr.Error != nil && gr.Error.Message != "" {
			detail = gr.Error.Message
		}
		if detail == "" {
			detail = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return Result{Kind: KindUpstreamError, Detail: detail}
	}
	if decodeErr != nil {
		return Result{Kind: KindTransportError, Detail: fmt.Sprintf("decoding response: %v", decodeErr)}
	}
	if gr.Error != nil {
		detail := gr.Error.Message
		if detail == "" {
			detail = gr.Error.Status
		}
		return Result{Kind: KindUpstreamError, Detail: detail}
	}

	if text := firstText(gr); text != "" {
		return Result{Kind: KindOK, Text: text}
	}
	return Result{Kind: KindBlocked, Detail: blockReason(gr)}
}

func firstText(gr generateResponse) string {
	if len(gr.Candidates) == 0 || gr.Candidates[0].Content == nil {
		return ""
	}
	parts := gr.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}

func blockReason(gr generateResponse) string {
	if len(gr.Candidates) > 0 && gr.Candidates[0].FinishReason != "" {
		return gr.Candidates[0].FinishReason
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return gr.PromptFeedback.BlockReason
	}
	return "UNKNOWN"
}

// transportDetail strips the request URL from *url.Error so messages shown to
// users stay short.
func transportDetail(err error) string {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err.Error()
	}
	return err.Error()
}
