package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	MethodGet    = http.MethodGet
	MethodPost   = http.MethodPost
	MethodPut    = http.MethodPut
	MethodDelete = http.MethodDelete
	MethodPatch  = http.MethodPatch
)

// ClientOption configures Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout    time.Duration
	baseURL    string
	retries    int
	retryWait  time.Duration
	headers    map[string]string
	userAgent  string
	httpClient *http.Client
}

// RequestOptions holds HTTP request parameters.
type RequestOptions struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string][]string
	Body        interface{}
}

// StatusError is returned when the server answers outside 2xx.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client is a JSON-oriented HTTP client backed by resty.
type Client struct {
	rc *resty.Client
}

// NewClient creates a new HTTP client.
func NewClient(opts ...ClientOption) *Client {
	cfg := &clientConfig{
		timeout:   30 * time.Second,
		retryWait: 200 * time.Millisecond,
		userAgent: "tradebot/1.0",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var rc *resty.Client
	if cfg.httpClient != nil {
		rc = resty.NewWithClient(cfg.httpClient)
	} else {
		rc = resty.New()
	}
	rc.SetTimeout(cfg.timeout).
		SetHeader("User-Agent", cfg.userAgent).
		SetHeaders(cfg.headers)
	if cfg.baseURL != "" {
		rc.SetBaseURL(cfg.baseURL)
	}
	if cfg.retries > 0 {
		rc.SetRetryCount(cfg.retries).
			SetRetryWaitTime(cfg.retryWait).
			SetRetryMaxWaitTime(cfg.retryWait * 10).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
			})
	}
	return &Client{rc: rc}
}

// Resty exposes the underlying client for callers that need its full API.
func (c *Client) Resty() *resty.Client { return c.rc }

// SendAndParse sends a request and decodes the response into dest.
// dest may be nil, *[]byte, io.Writer or any JSON target.
func (c *Client) SendAndParse(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	req := c.rc.R().SetContext(ctx).SetHeaders(opts.Headers)
	for k, vs := range opts.QueryParams {
		for _, v := range vs {
			req.QueryParam.Add(k, v)
		}
	}
	if opts.Body != nil {
		req.SetBody(opts.Body)
	}

	method := opts.Method
	if method == "" {
		method = MethodGet
	}
	resp, err := req.Execute(method, opts.URL)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &StatusError{Code: resp.StatusCode(), Body: resp.String()}
	}

	if dest == nil {
		return nil
	}
	switch v := dest.(type) {
	case *[]byte:
		*v = resp.Body()
	case io.Writer:
		if _, err := v.Write(resp.Body()); err != nil {
			return fmt.Errorf("copy body: %w", err)
		}
	default:
		if err := json.Unmarshal(resp.Body(), dest); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
	}
	return nil
}

// GetJSON issues a GET with query params and decodes JSON into dest.
func (c *Client) GetJSON(ctx context.Context, url string, query map[string]string, dest interface{}) error {
	q := make(map[string][]string, len(query))
	for k, v := range query {
		q[k] = []string{v}
	}
	return c.SendAndParse(ctx, &RequestOptions{Method: MethodGet, URL: url, QueryParams: q}, dest)
}

// PostJSON posts payload as JSON and decodes the reply into dest.
func (c *Client) PostJSON(ctx context.Context, url string, payload interface{}, dest interface{}) error {
	err := c.SendAndParse(ctx, &RequestOptions{
		Method:  MethodPost,
		URL:     url,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	}, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	return nil
}

// WithTimeout sets client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithBaseURL(url string) ClientOption {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithRetry retries transport errors, 429 and 5xx up to count times.
func WithRetry(count int, wait time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.retries = count
		if wait > 0 {
			c.retryWait = wait
		}
	}
}

func WithHeaders(h map[string]string) ClientOption {
	return func(c *clientConfig) { c.headers = h }
}

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = hc }
}
