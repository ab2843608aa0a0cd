package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/ytget/streamsession/errs"
	"github.com/ytget/streamsession/internal/logger"
)

const (
	// DefaultTimeout bounds light calls such as login and refresh.
	DefaultTimeout = 10 * time.Second
	// HeavyTimeout bounds catalog listings and playback configuration.
	HeavyTimeout = 20 * time.Second

	defaultAttempts = 3
	// outerTimeout caps any single exchange regardless of per-request options.
	outerTimeout = 60 * time.Second

	userAgentValue   = "Mozilla/5.0 (Linux; Android 11) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36"
	initialBackoff   = 200 * time.Millisecond
	maxBackoff       = 3 * time.Second
	retryableMinCode = http.StatusInternalServerError
	maxBodyBytes     = 16 << 20
)

// defaultTransport is a tuned HTTP transport reused across clients.
// Compression is negotiated and decoded by the client itself so brotli is
// accepted too.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 20 * time.Second,
	ForceAttemptHTTP2:     true,
	DisableCompression:    true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	BaseURL    string
	Headers    map[string]string
	Timeout    time.Duration
	Attempts   int // total tries for GET and DELETE; POST is tried once
	UserAgent  string
	ProxyURL   string
	RateLimit  float64 // requests per second; 0 disables limiting
	Burst      int
	HTTPClient *http.Client
}

// Client issues provider requests relative to a base URL with default
// headers, per-request timeouts, an optional rate limit and retries for
// idempotent methods.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Headers    http.Header
	Timeout    time.Duration
	Attempts   int
	UserAgent  string

	limiter *rate.Limiter
	log     *logger.ComponentLogger
	sleep   func(context.Context, time.Duration) error
}

// New creates a client with defaults and no base URL.
func New() *Client {
	return NewWith(Config{})
}

// NewWith creates a new client with provided config. Zero values use defaults.
func NewWith(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = userAgentValue
	}

	hc := cfg.HTTPClient
	if hc == nil {
		tr := defaultTransport.Clone()
		if cfg.ProxyURL != "" {
			if proxyFunc, err := proxyFromURLString(cfg.ProxyURL); err == nil {
				tr.Proxy = proxyFunc
			}
		}
		hc = &http.Client{Timeout: outerTimeout, Transport: tr}
	}

	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		HTTPClient: hc,
		BaseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		Headers:    headers,
		Timeout:    timeout,
		Attempts:   attempts,
		UserAgent:  ua,
		limiter:    limiter,
		log:        logger.WithComponent(logger.ComponentClient),
		sleep:      sleepContext,
	}
}

// RequestOption adjusts a single request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout time.Duration
	headers http.Header
}

// WithTimeout overrides the client timeout for one request.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

// WithHeader sets an extra header for one request.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Set(key, value)
	}
}

// Get performs a GET, retrying transient failures (5xx or network errors).
func (c *Client) Get(ctx context.Context, path string, params url.Values, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, params, nil, opts...)
}

// Post sends form as an urlencoded body. POSTs are never retried.
func (c *Client) Post(ctx context.Context, path string, params, form url.Values, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, params, form, opts...)
}

// Delete performs a DELETE with the same retry policy as Get.
func (c *Client) Delete(ctx context.Context, path string, params url.Values, opts ...RequestOption) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, params, nil, opts...)
}

// Do performs a request. A non-2xx status is not an error; callers inspect
// the Response. Network and decoding failures are *errs.Error of kind
// TRANSPORT.
func (c *Client) Do(ctx context.Context, method, path string, params, form url.Values, opts ...RequestOption) (*Response, error) {
	o := requestOptions{timeout: c.Timeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}

	target, err := c.resolve(path, params)
	if err != nil {
		return nil, errs.Transport(method+" "+path, err)
	}

	attempts := 1
	if method == http.MethodGet || method == http.MethodDelete {
		attempts = c.Attempts
		if attempts < 1 {
			attempts = 1
		}
	}

	requestID := ulid.Make().String()
	log := c.log.With(map[string]interface{}{
		"request_id": requestID,
		"method":     method,
		"path":       redactedPath(target),
	})

	var (
		resp    *Response
		lastErr error
	)
	backoff := initialBackoff
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}

		start := time.Now()
		resp, lastErr = c.roundTrip(ctx, method, target, form, o)
		if lastErr != nil {
			log.Debug("request failed", map[string]interface{}{"attempt": attempt + 1, "error": lastErr.Error()})
			if ctx.Err() != nil {
				break
			}
			continue
		}
		resp.RequestID = requestID
		log.Debug("response", map[string]interface{}{
			"attempt":  attempt + 1,
			"status":   resp.StatusCode,
			"bytes":    len(resp.Body),
			"duration": time.Since(start).Round(time.Millisecond).String(),
		})
		if resp.StatusCode < retryableMinCode {
			return resp, nil
		}
	}

	if resp != nil && lastErr == nil {
		return resp, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no response")
	}
	log.Warn("request gave up", map[string]interface{}{"error": lastErr.Error()})
	return nil, errs.Transport(method+" "+redactedPath(target), lastErr)
}

func (c *Client) roundTrip(ctx context.Context, method, target string, form url.Values, o requestOptions) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")
	for k, vs := range c.Headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range o.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpResp, err := c.HTTPClient.Do(req)
	if err != nil {
		// url.Error repeats the full URL, query tokens included.
		var ue *url.Error
		if errors.As(err, &ue) {
			return nil, ue.Err
		}
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := readBody(httpResp)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		URL:        redactedPath(target),
	}, nil
}

// resolve joins path onto BaseURL unless it is absolute, and merges params
// into any query already present.
func (c *Client) resolve(path string, params url.Values) (string, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if c.BaseURL == "" {
			return "", fmt.Errorf("relative path %q without base URL", path)
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		raw = c.BaseURL + path
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// redactedPath drops the query string, which may carry tokens.
func redactedPath(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// proxyFromURLString parses a proxy URL and returns a Proxy function.
func proxyFromURLString(raw string) (func(*http.Request) (*url.URL, error), error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy url %q needs scheme and host", raw)
	}
	return http.ProxyURL(u), nil
}
