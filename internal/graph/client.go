// Package graph is the adapter over the Meta Graph Ads API: version
// probing, paginated activity fetches and the query strategy fallback.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wpratama/meta-billing-sync/internal/logger"
)

const (
	// DefaultBaseURL is the production Graph API endpoint.
	DefaultBaseURL = "https://graph.facebook.com"

	// pageLimit is the per-page record cap requested from the API.
	pageLimit = "1000"

	accountFields  = "account_id,name,currency,account_status"
	activityFields = "event_time,event_type,extra_data"

	defaultRateLimitDelay = 60 * time.Second
)

// ErrNoUsableVersion is returned by ProbeVersion when every candidate
// version failed.
var ErrNoUsableVersion = errors.New("no usable API version")

// Options configures a Client.
type Options struct {
	AccessToken string
	Versions    []string // candidate versions, most-preferred first
	Timeout     time.Duration
	RetryCount  int // connection-level retries per request

	// Strategies overrides DefaultStrategies.
	Strategies []Strategy

	// BaseURL and HTTPClient override the defaults; used by tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Client talks to the Graph API. It owns its HTTP client and retry policy;
// construct one per run and inject it where needed.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	versions    []string
	retryCount  int
	strategies  []Strategy
}

// NewClient creates a Graph API client from the given options.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	strategies := opts.Strategies
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		accessToken: opts.AccessToken,
		versions:    opts.Versions,
		retryCount:  opts.RetryCount,
		strategies:  strategies,
	}
}

// ProbeVersion finds a usable API version for the account by issuing a
// lightweight account fetch against each candidate in order. The first
// version that responds successfully wins; its account details are returned
// alongside it. All candidates failing is reported as ErrNoUsableVersion.
func (c *Client) ProbeVersion(ctx context.Context, accountID string) (*Account, string, error) {
	log := logger.FromContext(ctx)

	for _, version := range c.versions {
		u := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, version, accountID, url.Values{
			"access_token": {c.accessToken},
			"fields":       {accountFields},
		}.Encode())

		body, err := c.get(ctx, u)
		if err != nil {
			log.Warn().
				Str("account", accountID).
				Str("version", version).
				Err(err).
				Msg("Version probe failed")
			continue
		}

		var account Account
		if err := json.Unmarshal(body, &account); err != nil {
			log.Warn().
				Str("account", accountID).
				Str("version", version).
				Err(err).
				Msg("Version probe returned malformed JSON")
			continue
		}

		log.Info().
			Str("account", accountID).
			Str("version", version).
			Str("name", account.Name).
			Str("currency", account.Currency).
			Msg("API connection successful")
		return &account, version, nil
	}

	return nil, "", fmt.Errorf("ProbeVersion: account %s: %w", accountID, ErrNoUsableVersion)
}

// FetchActivities fetches the first page of the activities endpoint for the
// account using the given query parameters.
func (c *Client) FetchActivities(ctx context.Context, accountID, version string, params url.Values) (*Page, error) {
	q := url.Values{
		"access_token": {c.accessToken},
		"fields":       {activityFields},
		"limit":        {pageLimit},
	}
	for key, vals := range params {
		q[key] = vals
	}

	u := fmt.Sprintf("%s/%s/%s/activities?%s", c.baseURL, version, accountID, q.Encode())
	return c.FetchPage(ctx, u)
}

// FetchPage fetches one results page from a fully-formed URL (typically the
// paging.next cursor of a previous page).
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("FetchPage: %w", err)
	}

	var resp activitiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("FetchPage: decoding response: %w", err)
	}

	return &Page{Records: resp.Data, Next: resp.Paging.Next}, nil
}

// drainPages follows paging cursors starting from an already-fetched first
// page. A page fetch failure stops pagination and returns what accumulated
// so far; partial results beat none.
func (c *Client) drainPages(ctx context.Context, first *Page) []RawActivity {
	log := logger.FromContext(ctx)

	records := append([]RawActivity(nil), first.Records...)
	next := first.Next
	for next != "" {
		page, err := c.FetchPage(ctx, next)
		if err != nil {
			log.Warn().Err(err).Msg("Pagination stopped early, keeping partial results")
			break
		}
		records = append(records, page.Records...)
		next = page.Next
	}
	return records
}

// get issues a GET with the client's retry policy: connection-level errors
// are retried with exponential backoff across retryCount attempts, a
// rate-limit response is retried once after the server-specified delay, any
// other non-2xx status fails the request.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		body, retryable, err := c.getOnce(ctx, u)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, u string) (body []byte, retryable bool, err error) {
	resp, err := c.doGet(ctx, u)
	if err != nil {
		return nil, true, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		delay := retryAfter(resp)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		log := logger.FromContext(ctx)
		log.Warn().
			Dur("delay", delay).
			Msg("Rate limited, waiting before retry")
		if err := sleep(ctx, delay); err != nil {
			return nil, false, err
		}

		// One retry of the same request; a second rate-limit response
		// fails the attempt.
		resp, err = c.doGet(ctx, u)
		if err != nil {
			return nil, true, err
		}
	}

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(data), 500))
	}
	return data, false, nil
}

func (c *Client) doGet(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	return c.httpClient.Do(req)
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRateLimitDelay
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
