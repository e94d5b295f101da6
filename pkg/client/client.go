// Package client provides an OAuth1-authenticated client for the
// ImmobilienScout24 offer REST API.
//
// All domain operations are layered on one GET primitive. A nil Document
// (or nil slice) returned together with a nil error means the service
// answered without data; errors are reserved for rate limiting
// (ErrRateLimitExceeded) and request failures (*APIError).
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

	"github.com/dghubble/oauth1"
	"github.com/pdir/immobilienscout-api/pkg/logging"
	"github.com/pdir/immobilienscout-api/pkg/metrics"
	"github.com/pdir/immobilienscout-api/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for IS24 client operations.
var (
	requestsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Name:      "requests_total",
		Help:      "Total IS24 requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Name:      "request_duration_seconds",
		Help:      "IS24 request duration in seconds by endpoint",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.With(metrics.Registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Name:      "errors_total",
		Help:      "Total IS24 errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://rest.immobilienscout24.de"

	// DefaultAPIVersion is the offer API version path segment.
	DefaultAPIVersion = "v1.0"

	// DefaultPageSize is the page size used by ListAll.
	DefaultPageSize = 100

	apiPathPrefix = "/restapi/api/offer/"

	// maxErrorBody bounds how much of a failed response is kept for diagnostics.
	maxErrorBody = 64 << 10
)

// Config holds the client configuration.
type Config struct {
	// Credentials are the resolved OAuth1 secrets, see ResolveCredentials.
	Credentials Credentials

	// BaseURL is the API host, without the /restapi/... path.
	BaseURL string

	// APIVersion is the versioned path segment, e.g. "v1.0".
	APIVersion string

	// Timeout bounds a single HTTP round trip including reading the body.
	Timeout time.Duration

	// UserAgent is sent when non-empty.
	UserAgent string

	// RequestsPerSecond enables client-side pacing when > 0.
	RequestsPerSecond float64

	// Debug dumps every request and response at debug level.
	Debug bool

	// Transport is the base round tripper beneath the OAuth1 signer
	// (default http.DefaultTransport).
	Transport http.RoundTripper

	// Logger overrides the default component logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration for the production API.
func DefaultConfig(creds Credentials) Config {
	return Config{
		Credentials: creds,
		BaseURL:     DefaultBaseURL,
		APIVersion:  DefaultAPIVersion,
		Timeout:     30 * time.Second,
	}
}

// Client is the IS24 offer API client. It keeps no per-request state and is
// safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	transport   http.RoundTripper
	rateLimiter *ratelimit.Tracker
	apiBase     string
	config      Config
	logger      zerolog.Logger
}

// New creates a new IS24 client. No network I/O happens here.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("api version is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	logger := logging.NewLogger("is24-client")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	var signed http.RoundTripper = transport
	if cfg.Debug {
		signed = &debugTransport{base: transport, logger: logger}
	}

	// The signer takes its base transport from the context client.
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, &http.Client{Transport: signed})
	oauthConfig := oauth1.NewConfig(cfg.Credentials.ConsumerKey, cfg.Credentials.ConsumerSecret)
	httpClient := oauthConfig.Client(ctx, oauth1.NewToken(cfg.Credentials.TokenKey, cfg.Credentials.TokenSecret))
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient:  httpClient,
		transport:   transport,
		rateLimiter: ratelimit.NewTracker(cfg.RequestsPerSecond, logger),
		apiBase:     strings.TrimRight(cfg.BaseURL, "/") + apiPathPrefix + cfg.APIVersion + "/",
		config:      cfg,
		logger:      logger,
	}, nil
}

// URL returns the absolute URL of a resource relative to the versioned API root.
func (c *Client) URL(resource string) string {
	return c.apiBase + strings.TrimLeft(resource, "/")
}

// Do sends a signed request and applies the response contract:
//   - HTTP 200: the response is returned; the caller closes the body
//   - HTTP 503: an error wrapping ErrRateLimitExceeded
//   - any other status: nil response and nil error (no data)
//   - transport failure: *APIError with ErrorClassNetwork
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{Resource: endpoint, Class: ErrorClassNetwork, Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing IS24 request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{Resource: endpoint, Class: ErrorClassNetwork, Err: err}
	}

	status := strconv.Itoa(resp.StatusCode)
	requestsTotal.WithLabelValues(endpoint, status).Inc()

	switch resp.StatusCode {
	case http.StatusOK:
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(startTime)).
			Msg("IS24 request succeeded")
		return resp, nil

	case http.StatusServiceUnavailable:
		drainAndClose(resp.Body)
		errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
		state := c.rateLimiter.RecordRateLimited(resp.Header)
		if wait := state.TimeUntilResume(time.Now()); wait > 0 {
			return nil, fmt.Errorf("%s %s (retry after %s): %w", req.Method, endpoint, wait.Round(time.Second), ErrRateLimitExceeded)
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, endpoint, ErrRateLimitExceeded)

	default:
		drainAndClose(resp.Body)
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("IS24 request returned no data")
		return nil, nil
	}
}

// Request issues a signed request for a resource relative to the versioned
// API root. It is the low-level escape hatch; see Do for the response contract.
func (c *Client) Request(ctx context.Context, method, resource string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), c.URL(resource), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// Get fetches a resource and decodes the JSON body. A nil Document with a nil
// error means the service returned no data.
func (c *Client) Get(ctx context.Context, resource string) (Document, error) {
	resp, err := c.Request(ctx, http.MethodGet, resource)
	if err != nil || resp == nil {
		return nil, err
	}
	defer resp.Body.Close()

	path, _, _ := strings.Cut(resource, "?")
	endpoint := endpointLabel(path)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{Resource: endpoint, StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Err: fmt.Errorf("read body: %w", err)}
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Undecodable IS24 response")
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{
			Resource:   endpoint,
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			Body:       truncate(body, maxErrorBody),
			Err:        err,
		}
	}

	return doc, nil
}

// RateLimitState returns the rate limit signals observed so far.
func (c *Client) RateLimitState() ratelimit.State {
	return c.rateLimiter.State()
}

// Close releases idle connections held by the base transport.
func (c *Client) Close() error {
	if ci, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
	return nil
}

// endpointLabel turns a request path into a low-cardinality metrics label:
// the API prefix is removed and numeric segments become {id}.
func endpointLabel(path string) string {
	if i := strings.Index(path, apiPathPrefix); i >= 0 {
		path = path[i+len(apiPathPrefix):]
		// drop the version segment
		if j := strings.IndexByte(path, '/'); j >= 0 {
			path = path[j+1:]
		} else {
			path = ""
		}
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		if isDigits(s) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	body.Close()
}

func truncate(body []byte, n int) string {
	if len(body) > n {
		return string(body[:n])
	}
	return string(body)
}
