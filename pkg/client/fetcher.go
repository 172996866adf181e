package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// maxResponseBytes caps how much of an upstream response body is read.
const maxResponseBytes = 8 << 20 // 8 MiB

// TokenSource supplies the bearer token attached to outgoing requests.
// A nil TokenSource means unauthenticated requests.
type TokenSource func() (string, error)

// Fetcher retrieves payloads from the upstream API.
type Fetcher interface {
	// Fetch performs a GET request and returns the response body.
	Fetch(ctx context.Context, path string, params map[string]string) ([]byte, error)

	// Send performs a mutating request and returns the response body.
	Send(ctx context.Context, method, path string, body []byte) ([]byte, error)
}

// Limiter gates outgoing requests against the upstream request budget and
// observes the budget headers of responses. Implemented by ratelimit.Gate.
type Limiter interface {
	// Allow reports whether a request may go out. May delay its return to
	// throttle.
	Allow(ctx context.Context) (bool, error)

	// Observe records the rate limit headers of an upstream response.
	Observe(ctx context.Context, headers http.Header) error
}

// HTTPConfig holds the HTTP fetcher configuration.
type HTTPConfig struct {
	// BaseURL is the upstream API origin, e.g. "https://api.frende.app".
	BaseURL string

	// HTTPClient is the underlying transport. Defaults to a client with a
	// 30 second timeout.
	HTTPClient *http.Client

	// Token supplies the bearer token per request. Optional.
	Token TokenSource

	// Limiter gates requests against the upstream budget. Optional.
	Limiter Limiter

	Logger zerolog.Logger
}

// HTTPFetcher is the production Fetcher backed by net/http.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	limiter    Limiter
	logger     zerolog.Logger
}

// NewHTTPFetcher creates a fetcher for the given upstream.
func NewHTTPFetcher(cfg HTTPConfig) (*HTTPFetcher, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &HTTPFetcher{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		token:      cfg.Token,
		limiter:    cfg.Limiter,
		logger:     cfg.Logger.With().Str("component", "fetcher").Logger(),
	}, nil
}

// Fetch performs a GET request against path with params as the query string.
func (f *HTTPFetcher) Fetch(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	target := f.baseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		target += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return f.do(req)
}

// Send performs a mutating request with a JSON body.
func (f *HTTPFetcher) Send(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	return f.do(req)
}

func (f *HTTPFetcher) do(req *http.Request) ([]byte, error) {
	endpoint := req.URL.Path

	if f.limiter != nil {
		allowed, err := f.limiter.Allow(req.Context())
		if err != nil {
			// A broken limiter must not take the API down with it.
			f.logger.Warn().Err(err).Msg("Rate limit check failed, proceeding")
		} else if !allowed {
			apiErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &APIError{
				StatusCode: http.StatusTooManyRequests,
				ErrorClass: ErrorClassRateLimit,
				Message:    "request budget exhausted",
			}
		}
	}

	req.Header.Set("Accept", "application/json")
	if f.token != nil {
		token, err := f.token()
		if err != nil {
			return nil, fmt.Errorf("token source: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		f.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    req.Method + " " + endpoint,
			Err:        err,
		}
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if f.limiter != nil {
		if err := f.limiter.Observe(req.Context(), resp.Header); err != nil {
			f.logger.Warn().Err(err).Msg("Failed to record rate limit headers")
		}
	}

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		apiErrorsTotal.WithLabelValues(string(class)).Inc()
		f.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("upstream request error")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	return body, nil
}
