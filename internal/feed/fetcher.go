// Package feed fetches and parses syndication feeds for the dashboard's
// headline panel. Fetching is best-effort: every failure degrades to an empty
// result.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/html/charset"

	"github.com/dashd/dashd/internal/metrics"
)

const (
	maxBodyBytes     = 2 << 20
	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Config describes the feed endpoint. With a query the fetcher requests
// BaseURL + "/search?q=<query>&<Params>", otherwise BaseURL + "?<Params>".
type Config struct {
	BaseURL   string
	Query     string
	Params    string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher retrieves feed documents through a circuit breaker so a dead
// provider stops costing a timeout on every render.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

// StatusError reports a non-2xx response from the feed provider.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed returned HTTP %d", e.Code)
}

func NewFetcher(cfg Config, m *metrics.Metrics) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{},
		metrics: m,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "feed",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				// The caller giving up says nothing about the provider.
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("feed breaker state changed", "from", from.String(), "to", to.String())
			},
		}),
	}
}

// DefaultQuery is the configured source filter.
func (f *Fetcher) DefaultQuery() string {
	return f.cfg.Query
}

// URL builds the request URL for query.
func (f *Fetcher) URL(query string) string {
	params := strings.TrimPrefix(f.cfg.Params, "?")
	if query == "" {
		if params == "" {
			return f.cfg.BaseURL
		}
		return f.cfg.BaseURL + "?" + params
	}
	u := f.cfg.BaseURL + "/search?q=" + url.QueryEscape(query)
	if params != "" {
		u += "&" + params
	}
	return u
}

// FetchHeadlines returns at most limit items for query. An empty query asks
// for top headlines. Errors are logged and absorbed.
func (f *Fetcher) FetchHeadlines(ctx context.Context, query string, limit int) []Item {
	if limit <= 0 {
		return []Item{}
	}
	doc, err := f.fetch(ctx, query)
	if err != nil {
		slog.Warn("feed fetch failed", "error", err)
		return []Item{}
	}
	items := parseFeed(doc, limit)
	if len(items) == 0 {
		f.metrics.FeedFetch("parse_empty")
		slog.Debug("feed contained no usable items", "bytes", len(doc))
		return items
	}
	f.metrics.FeedFetch("ok")
	return items
}

// Raw returns the feed document for query, decoded to UTF-8.
func (f *Fetcher) Raw(ctx context.Context, query string) ([]byte, error) {
	doc, err := f.fetch(ctx, query)
	if err != nil {
		return nil, err
	}
	f.metrics.FeedFetch("ok")
	return doc, nil
}

func (f *Fetcher) fetch(ctx context.Context, query string) ([]byte, error) {
	out, err := f.breaker.Execute(func() (interface{}, error) {
		return f.get(ctx, query)
	})
	if err != nil {
		f.metrics.FeedFetch(outcome(err))
		return nil, err
	}
	return out.([]byte), nil
}

func (f *Fetcher) get(ctx context.Context, query string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading feed: %w", err)
	}
	return decode(body, resp.Header.Get("Content-Type"))
}

var xmlEncodingRe = regexp.MustCompile(`^\s*<\?xml[^>]*?\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// decode converts body to UTF-8 using the Content-Type charset or, failing
// that, the XML declaration's encoding.
func decode(body []byte, contentType string) ([]byte, error) {
	label := ""
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			label = params["charset"]
		}
	}
	if label == "" {
		if m := xmlEncodingRe.FindSubmatch(body); m != nil {
			label = string(m[1])
		}
	}
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || label == "utf-8" || label == "utf8" {
		return body, nil
	}

	r, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decoding feed charset %q: %w", label, err)
	}
	return io.ReadAll(r)
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.As(err, &se):
		return "http_error"
	default:
		return "transport_error"
	}
}
