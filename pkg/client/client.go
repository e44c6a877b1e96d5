// Package client provides the core ETIM request pipeline: cache-aside
// lookup, bearer authentication with single forced-refresh retry on
// 401, response governance, and TTL-class cache writes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ziouzitsou/etim-mcp-server/pkg/auth"
	"github.com/ziouzitsou/etim-mcp-server/pkg/cache"
	"github.com/ziouzitsou/etim-mcp-server/pkg/governor"
)

// Prometheus metrics for pipeline operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etim_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etim_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	authRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "etim_auth_retries_total",
		Help: "Requests retried once after a 401 and forced token refresh",
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etim_errors_total",
		Help: "Total pipeline errors by class",
	}, []string{"class"}) // "auth", "upstream"
)

// Config holds the pipeline configuration.
type Config struct {
	// BaseURL is the upstream API base URL.
	BaseURL string

	// Store is the response cache. Required; use a MemoryStore if no
	// Redis is available.
	Store cache.Store

	// Tokens supplies the shared bearer credential. Required.
	Tokens *auth.Manager

	// Governor shapes fetched results. Defaults to governor.New().
	Governor *governor.Governor

	// TTL maps TTL classes to durations. Defaults to
	// cache.DefaultTTLPolicy().
	TTL cache.TTLPolicy

	// Timeout bounds a single upstream call. It does not cancel a
	// token refresh awaited by other callers, and it never invalidates
	// cache entries.
	Timeout time.Duration
}

// Client executes logical operations against the ETIM API.
type Client struct {
	httpClient *http.Client
	store      cache.Store
	tokens     *auth.Manager
	governor   *governor.Governor
	ttl        cache.TTLPolicy
	baseURL    string
	logger     zerolog.Logger
}

// New creates a request pipeline.
func New(cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	gov := cfg.Governor
	if gov == nil {
		gov = governor.New()
	}

	ttl := cfg.TTL
	if ttl == (cache.TTLPolicy{}) {
		ttl = cache.DefaultTTLPolicy()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		store:      cfg.Store,
		tokens:     cfg.Tokens,
		governor:   gov,
		ttl:        ttl,
		baseURL:    cfg.BaseURL,
		logger:     log.With().Str("component", "etim-client").Logger(),
	}, nil
}

// Execute runs a logical operation: cache lookup, authenticated
// upstream call with a single forced-refresh retry on 401, response
// governance, and a cache write under the operation's TTL class.
func (c *Client) Execute(ctx context.Context, op Operation, detail governor.DetailRequest) (*governor.Envelope, error) {
	if err := detail.Validate(); err != nil {
		return nil, err
	}

	key := op.cacheKey(detail)

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(op.EndpointID).Observe(time.Since(start).Seconds())
	}()

	if env, ok := c.lookup(ctx, key, op.EndpointID); ok {
		return env, nil
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		errorsTotal.WithLabelValues("auth").Inc()
		return nil, err
	}

	status, body, err := c.call(ctx, op, token)
	if err != nil {
		errorsTotal.WithLabelValues("upstream").Inc()
		return nil, err
	}

	// A 401 on a credential cached as usable means it was revoked
	// out-of-band. Force one refresh and retry exactly once; a second
	// rejection is fatal, never retried again.
	if status == http.StatusUnauthorized {
		c.logger.Warn().
			Str("endpoint", op.EndpointID).
			Msg("Received 401, refreshing token and retrying")
		authRetriesTotal.Inc()

		token, err = c.tokens.ForceRefresh(ctx)
		if err != nil {
			errorsTotal.WithLabelValues("auth").Inc()
			return nil, err
		}

		status, body, err = c.call(ctx, op, token)
		if err != nil {
			errorsTotal.WithLabelValues("upstream").Inc()
			return nil, err
		}
		if status == http.StatusUnauthorized {
			errorsTotal.WithLabelValues("auth").Inc()
			return nil, &auth.Error{
				Reason:     "credential rejected after forced refresh",
				StatusCode: status,
			}
		}
	}

	if status < 200 || status >= 300 {
		errorsTotal.WithLabelValues("upstream").Inc()
		return nil, &UpstreamError{
			Endpoint:   op.EndpointID,
			StatusCode: status,
			Message:    excerpt(body),
		}
	}

	env, err := c.governor.Apply(body, detail)
	if err != nil {
		return nil, err
	}

	c.persist(ctx, key, op, env)
	return env, nil
}

// lookup checks the cache. A hit returns the stored envelope as-is, no
// governance re-application. Store errors degrade to a miss.
func (c *Client) lookup(ctx context.Context, key, endpoint string) (*governor.Envelope, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache unreachable, proceeding uncached")
		}
		return nil, false
	}

	var env governor.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Corrupt cache entry, proceeding uncached")
		_ = c.store.Delete(ctx, key)
		return nil, false
	}

	c.logger.Debug().Str("endpoint", endpoint).Msg("Cache hit")
	return &env, true
}

// persist writes the governed envelope under the operation's TTL
// class. Caching is an optimization: failures are logged and absorbed.
func (c *Client) persist(ctx context.Context, key string, op Operation, env *governor.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to marshal envelope for cache")
		return
	}

	ttl := c.ttl.For(op.TTLClass)
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", op.EndpointID).Msg("Failed to cache response")
		return
	}

	c.logger.Debug().
		Str("endpoint", op.EndpointID).
		Dur("ttl", ttl).
		Msg("Cached response")
}

// call issues one upstream HTTP request with the credential attached
// and reads the full body. Network failures surface as UpstreamError.
func (c *Client) call(ctx context.Context, op Operation, token string) (int, []byte, error) {
	var reqBody io.Reader
	if op.Method == http.MethodPost {
		payload, err := json.Marshal(op.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, c.baseURL+op.Path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if op.Method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", op.EndpointID).Msg("Upstream request failed")
		requestsTotal.WithLabelValues(op.EndpointID, "network_error").Inc()
		return 0, nil, &UpstreamError{Endpoint: op.EndpointID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(op.EndpointID, "read_error").Inc()
		return 0, nil, &UpstreamError{Endpoint: op.EndpointID, Err: err}
	}

	requestsTotal.WithLabelValues(op.EndpointID, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	return resp.StatusCode, body, nil
}

// excerpt trims an error body for inclusion in an error message.
func excerpt(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
