// Package content proxies the third-party prayer-times and Quran-text
// providers. Responses are cached in-process with a bounded TTL; the cache is
// best-effort and losing it only costs a cache-cold first request.
package content

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

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"emutabaah.org/internal/obs"
)

const (
	cacheSize = 256
	cacheTTL  = time.Hour

	maxRetries   = 2
	maxBodyBytes = 1 << 20
)

// ErrUpstream indicates the provider stayed unreachable after retries.
var ErrUpstream = errors.New("content: upstream unavailable")

// ErrBadRequest indicates the provider rejected the request itself.
var ErrBadRequest = errors.New("content: upstream rejected request")

// Client fetches and caches third-party content.
type Client struct {
	httpClient *http.Client
	prayerBase string
	quranBase  string

	// fresh holds entries within the TTL; stale keeps the last known good
	// response past the TTL so upstream outages degrade to cached content.
	fresh *expirable.LRU[string, json.RawMessage]
	stale *lru.Cache[string, json.RawMessage]

	retryInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRetryInterval overrides the initial backoff interval (tests).
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient builds a content client for the two provider base URLs.
func NewClient(prayerBase, quranBase string, timeout time.Duration, opts ...Option) *Client {
	stale, _ := lru.New[string, json.RawMessage](cacheSize)
	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		prayerBase:    prayerBase,
		quranBase:     quranBase,
		fresh:         expirable.NewLRU[string, json.RawMessage](cacheSize, nil, cacheTTL),
		stale:         stale,
		retryInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PrayerTimes returns today's prayer schedule for an Indonesian city.
func (c *Client) PrayerTimes(ctx context.Context, city string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/timingsByCity?city=%s&country=Indonesia&method=20",
		c.prayerBase, url.QueryEscape(city))
	return c.fetch(ctx, "prayer", "prayer:"+city, endpoint)
}

// Surah returns the text of one Quran chapter.
func (c *Client) Surah(ctx context.Context, number int) (json.RawMessage, error) {
	if number < 1 || number > 114 {
		return nil, ErrBadRequest
	}
	endpoint := fmt.Sprintf("%s/surat/%d", c.quranBase, number)
	return c.fetch(ctx, "quran", "quran:"+strconv.Itoa(number), endpoint)
}

func (c *Client) fetch(ctx context.Context, provider, key, endpoint string) (json.RawMessage, error) {
	if body, ok := c.fresh.Get(key); ok {
		obs.ObserveCache(provider, "hit")
		return body, nil
	}
	obs.ObserveCache(provider, "miss")

	body, err := c.get(ctx, provider, endpoint)
	if err != nil {
		if errors.Is(err, ErrUpstream) {
			if last, ok := c.stale.Get(key); ok {
				obs.ObserveCache(provider, "stale")
				return last, nil
			}
		}
		return nil, err
	}

	c.fresh.Add(key, body)
	c.stale.Add(key, body)
	return body, nil
}

// get performs the request with exponential backoff. Only server errors are
// retried; client errors are permanent.
func (c *Client) get(ctx context.Context, provider, endpoint string) (json.RawMessage, error) {
	var body json.RawMessage

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			obs.ObserveUpstream(provider, "error")
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			obs.ObserveUpstream(provider, "server_error")
			return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
		case resp.StatusCode >= 400:
			obs.ObserveUpstream(provider, "client_error")
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrBadRequest, resp.StatusCode))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			obs.ObserveUpstream(provider, "error")
			return fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if !json.Valid(data) {
			obs.ObserveUpstream(provider, "invalid")
			return backoff.Permanent(fmt.Errorf("%w: invalid JSON", ErrBadRequest))
		}
		obs.ObserveUpstream(provider, "ok")
		body = data
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return body, nil
}
