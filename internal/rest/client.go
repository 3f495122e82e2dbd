// Package rest is the request/response side of the chat service: snapshot
// fetches and authoritative mutations.
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matheus3301/huddle/internal/telemetry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultHeader     = "x-auth-token"
	defaultTimeout    = 15 * time.Second
	defaultRetryDelay = 250 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
	maxErrorBody      = 4 << 10
)

// Options configures a Client.
type Options struct {
	BaseURL       string
	Header        string
	Token         string
	Timeout       time.Duration
	MaxRetries    int
	RatePerSecond float64
	Burst         int
	RetryDelay    time.Duration
	HTTPClient    *http.Client
	Logger        *zap.Logger
	Metrics       *telemetry.Metrics
	// OnUnauthorized runs once per 401 response.
	OnUnauthorized func()
}

// Client talks to the chat service REST API.
type Client struct {
	base       *url.URL
	header     string
	httpc      *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
	metrics    *telemetry.Metrics
	onUnauth   func()

	mu    sync.RWMutex
	token string
}

// New validates opts and builds a client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: unsupported scheme", opts.BaseURL)
	}
	c := &Client{
		base:       base,
		header:     opts.Header,
		httpc:      opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		onUnauth:   opts.OnUnauthorized,
		token:      opts.Token,
	}
	if c.header == "" {
		c.header = DefaultHeader
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.httpc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpc = &http.Client{
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
			},
			Timeout: timeout,
		}
	}
	limit, burst := rate.Inf, opts.Burst
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(limit, burst)
	return c, nil
}

// SetToken replaces the credential used by subsequent calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func jsonRequest(method, path string, payload any) (request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("encode %s body: %w", path, err)
	}
	return request{method: method, path: path, body: body, contentType: "application/json"}, nil
}

// call sends req and decodes a 2xx body into out when out is non-nil. GETs
// are retried on transient failures.
func (c *Client) call(ctx context.Context, req request, out any) error {
	attempts := 1
	if req.method == http.MethodGet && c.maxRetries > 0 {
		attempts += c.maxRetries
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := min(c.retryDelay<<(attempt-1), maxRetryDelay)
			c.logger.Debug("retrying request",
				zap.String("method", req.method),
				zap.String("path", req.path),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err = c.once(ctx, req, out)
		if err == nil || !IsTransient(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (c *Client) once(ctx context.Context, req request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	u := c.base.JoinPath(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", req.method, req.path, err)
	}
	if req.contentType != "" {
		hreq.Header.Set("Content-Type", req.contentType)
	}
	hreq.Header.Set("Accept", "application/json")
	if token := c.currentToken(); token != "" {
		hreq.Header.Set(c.header, token)
	}

	resp, err := c.httpc.Do(hreq)
	if err != nil {
		c.metrics.RESTCall(req.method, "error")
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()
	c.metrics.RESTCall(req.method, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized {
		if c.onUnauth != nil {
			c.onUnauth()
		}
		return fmt.Errorf("%s %s: %w", req.method, req.path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:  req.method,
			Path:    req.path,
			Code:    resp.StatusCode,
			Message: errorMessage(raw),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s %s: empty body", req.method, req.path)
		}
		return fmt.Errorf("decode %s %s: %w", req.method, req.path, err)
	}
	return nil
}

// errorMessage extracts {"msg": ...} or {"message": ...} bodies and falls
// back to the trimmed text.
func errorMessage(raw []byte) string {
	var body struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Msg != "" {
			return body.Msg
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
