// Package climateapi is a client for the EcoVision climate REST API.
package climateapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/lox/ecovision/internal/filters"
	"github.com/lox/ecovision/internal/htmlutil"
	"github.com/lox/ecovision/internal/httputil"
	"github.com/lox/ecovision/internal/logger"
	"github.com/lox/ecovision/internal/metrics"
	"github.com/lox/ecovision/internal/models"
)

const (
	DefaultBaseURL = "http://localhost:8000/api/v1"

	EndpointLocations = "/locations"
	EndpointMetrics   = "/metrics"
	EndpointClimate   = "/climate"
	EndpointSummary   = "/summary"
	EndpointTrends    = "/trends"

	maxErrorBody = 4 << 10
	maxDetail    = 160
)

// Error is returned for every failed call, whether the request never completed
// (StatusCode 0) or the API answered with a non-2xx status.
type Error struct {
	Op         string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Response is the envelope the dataset endpoints answer with. Data is left
// undecoded; its shape depends on the endpoint.
type Response struct {
	Data json.RawMessage `json:"data"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

// Client issues read-only requests against the climate API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	retries       int
	retryInterval time.Duration
	log           *logger.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries retries transport errors, 429 and 5xx responses up to n times.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the API rooted at baseURL, e.g. http://host/api/v1.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient:    httputil.NewClient(),
		baseURL:       strings.TrimRight(baseURL, "/"),
		retryInterval: 500 * time.Millisecond,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetLocations fetches every known location.
func (c *Client) GetLocations(ctx context.Context) ([]models.Location, error) {
	var env struct {
		Data []models.Location `json:"data"`
	}
	if err := c.get(ctx, "fetch locations", EndpointLocations, "", &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetMetrics fetches every known metric.
func (c *Client) GetMetrics(ctx context.Context) ([]models.Metric, error) {
	var env struct {
		Data []models.Metric `json:"data"`
	}
	if err := c.get(ctx, "fetch metrics", EndpointMetrics, "", &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// GetClimateData fetches raw climate records. page and per_page are always sent.
func (c *Client) GetClimateData(ctx context.Context, f filters.State) (*Response, error) {
	var resp Response
	if err := c.get(ctx, "fetch climate data", EndpointClimate, ToQuery(pagedParams(f)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetClimateSummary fetches the weighted summary for f.
func (c *Client) GetClimateSummary(ctx context.Context, f filters.State) (*Response, error) {
	var resp Response
	if err := c.get(ctx, "fetch summary", EndpointSummary, ToQuery(filterParams(f)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetClimateTrends fetches trend and seasonality analysis for f.
func (c *Client) GetClimateTrends(ctx context.Context, f filters.State) (*Response, error) {
	var resp Response
	if err := c.get(ctx, "fetch trends", EndpointTrends, ToQuery(filterParams(f)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, op, endpoint, query string, out any) error {
	url := c.baseURL + endpoint
	if query != "" {
		url += "?" + query
	}

	start := time.Now()
	var (
		body   []byte
		status int
	)
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", httputil.DefaultUserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			status = 0
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := fmt.Errorf("unexpected status: %d", resp.StatusCode)
			if detail := readDetail(resp.Body); detail != "" {
				err = fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, detail)
			}
			if retryable(resp.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.retries)), ctx))
	if err == nil {
		if uerr := json.Unmarshal(body, out); uerr != nil {
			err = fmt.Errorf("decode response: %w", uerr)
		}
	}

	metrics.ClimateAPILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	metrics.ClimateAPICallsTotal.WithLabelValues(endpoint, statusLabel(status, err)).Inc()

	if err != nil {
		apiErr := &Error{Op: op, Endpoint: endpoint, StatusCode: status, Err: err}
		c.log.Errorw("climate_api_failed", "op", op, "url", url, "status", status, "err", err)
		return apiErr
	}
	return nil
}

// readDetail returns a short plain-text summary of an error body, which may be
// JSON from the API or an HTML page from a proxy in front of it.
func readDetail(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return ""
	}
	if msg := gjson.GetBytes(b, "detail"); msg.Type == gjson.String {
		return htmlutil.Snippet(msg.String(), maxDetail)
	}
	return htmlutil.Snippet(string(b), maxDetail)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func statusLabel(status int, err error) string {
	if status == 0 {
		return "error"
	}
	if err != nil && status >= 200 && status < 300 {
		return "decode_error"
	}
	return strconv.Itoa(status)
}
