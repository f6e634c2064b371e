// Package blizzard talks to the regional ladder APIs.
package blizzard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/ryanbastic/go-ladderwatch/internal/circuitbreaker"
	"github.com/ryanbastic/go-ladderwatch/internal/ladder"
	"github.com/ryanbastic/go-ladderwatch/internal/metrics"
)

const userAgent = "ladderwatch/1.0"

// Getter issues one GET against a region's API and decodes the JSON body into
// out. Fetchers depend on it rather than on Client.
type Getter interface {
	Get(ctx context.Context, region ladder.Region, path string, out any) error
}

// Options configures a Client. Zero values fall back to the defaults used in
// production.
type Options struct {
	BaseURLs           map[ladder.Region]string
	ConnectTimeout     time.Duration
	IOTimeout          time.Duration
	RetryMax           int
	RetryMinBackoff    time.Duration
	RetryMaxBackoff    time.Duration
	RequestsPerSecond  int
	BreakerMaxFailures int
	BreakerReset       time.Duration

	// HTTPClient overrides the transport, e.g. one from NewHTTPClient.
	HTTPClient *http.Client
	Metrics    *metrics.Ladder
	Logger     *slog.Logger
}

func (o *Options) setDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = 10 * time.Second
	}
	if o.RetryMax < 0 {
		o.RetryMax = 0
	}
	if o.RetryMinBackoff <= 0 {
		o.RetryMinBackoff = 300 * time.Millisecond
	}
	if o.RetryMaxBackoff < o.RetryMinBackoff {
		o.RetryMaxBackoff = o.RetryMinBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Client is the shared upstream transport. Every request waits for the
// per-second limiter, runs through the region's breaker and is retried with
// bounded exponential backoff on network errors and 5xx responses.
type Client struct {
	rest     *resty.Client
	baseURLs map[ladder.Region]string
	breakers *circuitbreaker.Group
	metrics  *metrics.Ladder
	logger   *slog.Logger
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	opts.setDefaults()

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: newTransport(opts.ConnectTimeout, opts.IOTimeout)}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	limiter := rate.NewLimiter(limit, max(opts.RequestsPerSecond, 1))

	rest := resty.NewWithClient(httpClient).
		SetTimeout(opts.IOTimeout).
		SetRetryCount(opts.RetryMax).
		SetRetryWaitTime(opts.RetryMinBackoff).
		SetRetryMaxWaitTime(opts.RetryMaxBackoff).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError
		}).
		OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			// Runs once per attempt, so retries spend rate budget too.
			return limiter.Wait(r.Context())
		})

	baseURLs := make(map[ladder.Region]string, len(opts.BaseURLs))
	for r, u := range opts.BaseURLs {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		baseURLs[r] = u
	}

	return &Client{
		rest:     rest,
		baseURLs: baseURLs,
		breakers: circuitbreaker.NewGroup(opts.BreakerMaxFailures, opts.BreakerReset,
			circuitbreaker.WithFailurePredicate(IsTransient)),
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

func newTransport(connectTimeout, ioTimeout time.Duration) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = connectTimeout
	t.ResponseHeaderTimeout = ioTimeout
	t.MaxIdleConnsPerHost = 100
	return t
}

// NewHTTPClient returns an http.Client that obtains and refreshes a bearer
// token through the OAuth2 client-credentials exchange. It returns nil when no
// credentials are configured, leaving requests unauthenticated.
func NewHTTPClient(ctx context.Context, clientID, clientSecret, tokenURL string, connectTimeout, ioTimeout time.Duration) *http.Client {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	base := &http.Client{Transport: newTransport(connectTimeout, ioTimeout), Timeout: ioTimeout}
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
}

// BaseURL returns the upstream base URL of region.
func (c *Client) BaseURL(region ladder.Region) string {
	if u, ok := c.baseURLs[region]; ok {
		return u
	}
	return region.BaseURL()
}

// BreakerStates reports the breaker state of every region contacted so far.
func (c *Client) BreakerStates() map[string]string {
	out := make(map[string]string)
	for k, s := range c.breakers.States() {
		out[k] = s.String()
	}
	return out
}

// Get fetches path relative to the region's base URL and decodes the body
// into out. Non-2xx responses become *APIError.
func (c *Client) Get(ctx context.Context, region ladder.Region, path string, out any) error {
	url := c.BaseURL(region) + strings.TrimPrefix(path, "/")
	start := time.Now()

	var status string
	err := c.breakers.Get(region.String()).Execute(func() error {
		resp, err := c.rest.R().SetContext(ctx).Get(url)
		if err != nil {
			status = "error"
			return fmt.Errorf("get %s: %w", url, err)
		}
		status = strconv.Itoa(resp.StatusCode())
		if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
			return &APIError{StatusCode: resp.StatusCode(), URL: url, Body: truncate(resp.String(), 256)}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s: %w", url, err)
		}
		return nil
	})
	if status == "" {
		status = "rejected"
	}
	c.metrics.UpstreamRequest(region.String(), status, time.Since(start))

	if err != nil {
		c.logger.Debug("upstream request failed", "region", region.String(), "url", url, "status", status, "error", err)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
