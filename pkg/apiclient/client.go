package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/paging"
)

// DefaultTimeout bounds every request, retries included
const DefaultTimeout = 30 * time.Second

// Config holds the client settings
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Retry     RetryConfig
	UserAgent string
}

// Client calls the CRM REST API and unwraps its response envelope
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	retry     *RetryPolicy
	userAgent string
	sleep     func(context.Context, time.Duration) error
}

// Option customizes a Client
type Option func(*Client)

// WithTokenSource authenticates every request with the source's bearer
// token
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.http.Transport = &oauth2.Transport{Source: ts, Base: c.http.Transport}
	}
}

// WithToken authenticates every request with a fixed bearer token
func WithToken(token string) Option {
	return WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// WithTransport replaces the underlying round tripper. Apply it before
// any token option.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.Transport = rt
	}
}

// New creates a client for cfg.BaseURL
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.Validation("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperror.Validation("invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "crmgate-apiclient"
	}

	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retry:     NewRetryPolicy(cfg.Retry),
		userAgent: cfg.UserAgent,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envelope is the ResponseDto every endpoint answers with
type envelope struct {
	Result       json.RawMessage `json:"result"`
	IsError      bool            `json:"isError"`
	ErrorMessage string          `json:"errorMessage"`
	Message      string          `json:"message"`
	StatusCode   int             `json:"statusCode"`
}

// Do sends one request and decodes the envelope's result into out, which
// may be nil. GET requests are retried on transient failures.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	for attempt := 1; ; attempt++ {
		result, err := c.once(ctx, method, path, query, payload)
		if err == nil {
			return decodeResult(result, out)
		}
		if !c.retry.ShouldRetry(method, attempt, err) {
			return err
		}
		if serr := c.sleep(ctx, c.retry.NextRetryDelay(attempt)); serr != nil {
			return err
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, query url.Values, payload []byte) (json.RawMessage, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.Network(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Network(err, "failed to read response")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, statusError(resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nil, fmt.Errorf("invalid response envelope: %w", err)
	}
	if env.IsError || resp.StatusCode >= http.StatusBadRequest {
		status := env.StatusCode
		if status == 0 {
			status = resp.StatusCode
		}
		msg := env.ErrorMessage
		if msg == "" {
			msg = http.StatusText(status)
		}
		return nil, statusError(status, msg)
	}
	return env.Result, nil
}

func statusError(status int, msg string) error {
	kind := apperror.KindForStatus(status)
	if kind == apperror.KindNetwork {
		return apperror.Network(fmt.Errorf("status %d", status), "%s", msg)
	}
	return apperror.New(kind, "%s", msg)
}

func decodeResult(result json.RawMessage, out interface{}) error {
	if out == nil || len(result) == 0 || string(result) == "null" {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// GetPage fetches a paginated endpoint. Both a bare array and the
// PagedResult shape are normalized to a Page.
func GetPage[T any](ctx context.Context, c *Client, path string, query url.Values) (paging.Page[T], error) {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodGet, path, query, nil, &raw); err != nil {
		return paging.Page[T]{}, err
	}
	return decodePage[T](raw)
}

func decodePage[T any](raw json.RawMessage) (paging.Page[T], error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return paging.FromSlice[T](nil), nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return paging.Page[T]{}, fmt.Errorf("failed to decode list: %w", err)
		}
		return paging.FromSlice(items), nil
	}
	var result paging.PagedResult[T]
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return paging.Page[T]{}, fmt.Errorf("failed to decode page: %w", err)
	}
	return result.ToPage(), nil
}

func pageQuery(p paging.Params) url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", fmt.Sprint(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("pageSize", fmt.Sprint(p.PageSize))
	}
	return q
}
