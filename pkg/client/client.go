// Package client provides the upstream HTTP fetch capability: a GET against
// an arbitrary SWAPI URL whose JSON body is decoded into the caller's value.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_upstream_requests_total",
		Help: "Total SWAPI requests by endpoint and status",
	}, []string{"endpoint", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapi_upstream_request_duration_seconds",
		Help:    "SWAPI request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_upstream_errors_total",
		Help: "Total SWAPI errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents bodies that are not the expected JSON.
	ErrorClassDecode ErrorClass = "decode"
)

// maxBodyBytes caps a single upstream body.
const maxBodyBytes = 8 << 20

// Client issues GET requests against SWAPI.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// RequestTimeout bounds a single GET including the body read.
	RequestTimeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:      userAgent,
		RequestTimeout: 15 * time.Second,
	}
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be positive (got %s)", cfg.RequestTimeout)
	}

	return &Client{
		httpClient: &http.Client{},
		config:     cfg,
		logger:     logging.NewLogger("swapi-client"),
	}, nil
}

// GetJSON performs a GET on rawURL and decodes the JSON body into v.
// Non-2xx responses, transport errors and decode errors are returned as
// *UpstreamError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	endpoint := endpointLabel(req.URL)
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", rawURL).
		Msg("Executing SWAPI request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return c.fail(&UpstreamError{
			URL:        rawURL,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		})
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if errClass := classifyStatus(resp.StatusCode); errClass != "" {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return c.fail(&UpstreamError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    resp.Status,
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.fail(&UpstreamError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		})
	}

	if err := json.Unmarshal(body, v); err != nil {
		return c.fail(&UpstreamError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode body",
			Err:        err,
		})
	}

	return nil
}

// fail records and logs an upstream error before handing it back.
func (c *Client) fail(err *UpstreamError) error {
	upstreamErrorsTotal.WithLabelValues(string(err.ErrorClass)).Inc()

	c.logger.Warn().
		Err(err.Err).
		Str("url", err.URL).
		Int("status", err.StatusCode).
		Str("error_class", string(err.ErrorClass)).
		Msg("SWAPI request error")

	return err
}

// classifyStatus returns the error class of a status code, or "" for success.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx leftovers are treated like client errors: the body is not a page.
		return ErrorClassClient
	}
}

// endpointLabel reduces a URL path to a bounded metric label by dropping
// numeric segments, e.g. /api/people/1/ -> /api/people/.
func endpointLabel(u *url.URL) string {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	kept := segments[:0]
	for _, s := range segments {
		if s == "" {
			continue
		}
		if _, err := strconv.Atoi(s); err == nil {
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return "/"
	}
	return "/" + strings.Join(kept, "/") + "/"
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
