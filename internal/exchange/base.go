package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	requestTimeout = 30 * time.Second

	// Polite pacing between consecutive requests while paginating.
	defaultRequestsPerSecond = 1

	// Bounded in-call retry for throttling and server errors. Anything
	// that still fails afterwards becomes a "no result" for the caller.
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
	maxRetryElapsed   = 45 * time.Second
)

// baseClient carries the HTTP transport, pacing, and logging shared by all
// exchange variants. Variants embed it and keep only their own tables and
// conversions.
type baseClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	baseURL    string
	name       string
}

func newBaseClient(name, baseURL string, logger *slog.Logger) baseClient {
	if logger == nil {
		logger = slog.Default()
	}
	return baseClient{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
		logger:  logger.With("exchange", name),
		baseURL: baseURL,
		name:    name,
	}
}

// SetRequestsPerSecond adjusts the inter-request pacing. The default of one
// request per second matches what the public endpoints tolerate.
func (b *baseClient) SetRequestsPerSecond(rps float64) {
	b.limiter.SetLimit(rate.Limit(rps))
}

// getJSON issues a paced GET against the exchange and decodes the JSON
// response into out. Throttling (429) and server errors are retried with
// exponential backoff for a bounded time; every other failure, and retry
// exhaustion, is returned to the caller, which treats it as end-of-data
// rather than propagating it.
func (b *baseClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	requestURL := b.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	b.logger.Debug("GET", "path", path, "params", params.Encode())

	body, err := b.doWithRetry(ctx, requestURL)
	if err != nil {
		b.logger.Error("request failed", "path", path, "error", err)
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		b.logger.Error("malformed response", "path", path, "error", err)
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

func (b *baseClient) doWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initialRetryDelay
	policy.MaxInterval = maxRetryDelay
	policy.MaxElapsedTime = maxRetryElapsed

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			b.logger.Warn("throttled, backing off", "url", requestURL)
			return fmt.Errorf("throttled: status %d", resp.StatusCode)
		case resp.StatusCode >= 500:
			return fmt.Errorf("server error %d: %s", resp.StatusCode, string(payload))
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("client error %d: %s", resp.StatusCode, string(payload)))
		}

		body = payload
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
