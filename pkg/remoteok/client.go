// Package remoteok provides a client for the RemoteOK public jobs API.
package remoteok

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadgen-cli/internal/resilience"
)

// Source is the value stored in job_postings.source for this board.
const Source = "remoteok"

// Client defines the RemoteOK operations used by ingestion.
type Client interface {
	// FetchPostings returns at most limit postings, newest first as served.
	FetchPostings(ctx context.Context, limit int) ([]Job, error)
}

// Job is a raw posting as returned by the API.
type Job struct {
	ID          FlexString `json:"id"`
	Slug        string     `json:"slug"`
	Epoch       FlexString `json:"epoch"`
	Date        string     `json:"date"`
	Company     string     `json:"company"`
	CompanyLogo string     `json:"company_logo"`
	Position    string     `json:"position"`
	Tags        []string   `json:"tags"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	ApplyURL    string     `json:"apply_url"`
	URL         string     `json:"url"`
}

// FlexString accepts either a JSON string or number. The API has served ids
// and epochs in both forms.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Int64 parses the value as an integer.
func (f FlexString) Int64() (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(f)), 10, 64)
	return n, err == nil
}

// Option configures the RemoteOK client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent overrides the User-Agent header. RemoteOK answers 403 to
// requests without a browser-like agent.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTags restricts results to postings with any of the given tags.
func WithTags(tags []string) Option {
	return func(c *httpClient) {
		c.tags = tags
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRateLimit sets the request rate limiter.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	tags      []string
	http      *http.Client
	retry     resilience.RetryConfig
	limiter   *rate.Limiter
}

// NewClient creates a RemoteOK API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://remoteok.com/api",
		userAgent: "Mozilla/5.0 (compatible; leadgen-cli/1.0)",
		http:      &http.Client{Timeout: 15 * time.Second},
		retry:     resilience.DefaultRetryConfig(),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.OnRetry = resilience.RetryLogger("remoteok", "fetch_postings")
	return c
}

func (c *httpClient) FetchPostings(ctx context.Context, limit int) ([]Job, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "remoteok: parse base url")
	}
	if len(c.tags) > 0 {
		q := u.Query()
		q.Set("tags", strings.Join(c.tags, ","))
		u.RawQuery = q.Encode()
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, u.String())
	})
	if err != nil {
		return nil, eris.Wrap(err, "remoteok: fetch postings")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "remoteok: decode response"), 0)
	}

	jobs := make([]Job, 0, len(items))
	for _, raw := range items {
		var job Job
		if err := json.Unmarshal(raw, &job); err != nil {
			// Non-object entries are skipped like the id-less legal notice.
			continue
		}
		if job.ID == "" {
			continue
		}
		jobs = append(jobs, job)
		if limit > 0 && len(jobs) >= limit {
			break
		}
	}
	return jobs, nil
}

func (c *httpClient) get(ctx context.Context, target string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "remoteok: rate limiter")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, resilience.NewPermanentError(eris.Wrap(err, "remoteok: create request"), 0)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures are retry-eligible.
		return nil, resilience.NewTransientError(eris.Wrap(err, "remoteok: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "remoteok: read body"), resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ClassifyHTTPStatus("remoteok", resp.StatusCode, string(body))
	}
	return body, nil
}
