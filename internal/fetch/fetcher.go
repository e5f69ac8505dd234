// Package fetch retrieves board pages over HTTP or a headless browser and
// returns them as decoded text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBodySize caps page bodies.
const DefaultMaxBodySize = 16 << 20

// blockCheckLimit bounds the text inspected for block signatures.
// Firewall and challenge pages are small.
const blockCheckLimit = 64 << 10

// DefaultBlockSignatures match common WAF and challenge interstitials.
var DefaultBlockSignatures = []string{
	"The requested URL was rejected",
	"Request Rejected",
	"Attention Required! | Cloudflare",
	"cf-challenge",
	"g-recaptcha",
	"비정상적인 접근",
	"접근이 차단",
	"웹 방화벽",
	"웹방화벽",
}

// Request is a page request.
type Request struct {
	// Method defaults to GET, or POST when Form is set.
	Method string

	// URL is the absolute target.
	URL string

	// Form is sent urlencoded in the body.
	Form url.Values

	// Header holds per-request headers.
	Header http.Header
}

// Get returns a GET request for rawURL.
func Get(rawURL string) *Request {
	return &Request{Method: http.MethodGet, URL: rawURL}
}

// PostForm returns a POST request carrying form.
func PostForm(rawURL string, form url.Values) *Request {
	return &Request{Method: http.MethodPost, URL: rawURL, Form: form}
}

// method resolves the effective HTTP method.
func (r *Request) method() string {
	if r.Method != "" {
		return strings.ToUpper(r.Method)
	}
	if r.Form != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

// Response is a fetched page.
type Response struct {
	// URL is the final URL after redirects.
	URL string

	// StatusCode is the HTTP status.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body is the raw payload.
	Body []byte

	// Text is Body decoded to UTF-8.
	Text string

	// Encoding is the name of the encoding used to decode Body.
	Encoding string
}

// Fetcher retrieves pages.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// HTTPFetcher is a Fetcher backed by an http.Client.
type HTTPFetcher struct {
	client          *http.Client
	logger          *slog.Logger
	encoding        string
	maxBodySize     int64
	blockSignatures []string
	warmupURL       string
	robots          *robotsPolicy
	respectRobots   bool
	robotsAgent     string

	warmOnce sync.Once
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEncoding forces an encoding label such as "euc-kr". "auto" or ""
// enables detection.
func WithEncoding(label string) Option {
	return func(f *HTTPFetcher) {
		f.encoding = label
	}
}

// WithMaxBodySize caps the bytes read per page.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithBlockSignatures replaces the block signature list. An empty list
// disables the check.
func WithBlockSignatures(signatures []string) Option {
	return func(f *HTTPFetcher) {
		f.blockSignatures = signatures
	}
}

// WithWarmupURL sets a page visited once before the first fetch so the
// server can issue session cookies.
func WithWarmupURL(rawURL string) Option {
	return func(f *HTTPFetcher) {
		f.warmupURL = rawURL
	}
}

// WithRobots enables robots.txt checks for the given agent token.
func WithRobots(respect bool, agent string) Option {
	return func(f *HTTPFetcher) {
		f.respectRobots = respect
		f.robotsAgent = agent
	}
}

// NewHTTPFetcher wraps client. A nil client gets NewHTTPClient defaults.
func NewHTTPFetcher(client *http.Client, opts ...Option) *HTTPFetcher {
	if client == nil {
		c, err := NewHTTPClient()
		if err != nil {
			client = &http.Client{Timeout: DefaultTimeout}
		} else {
			client = c
		}
	}
	f := &HTTPFetcher{
		client:          client,
		logger:          slog.Default(),
		maxBodySize:     DefaultMaxBodySize,
		blockSignatures: DefaultBlockSignatures,
		robotsAgent:     "noticescan",
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.respectRobots {
		f.robots = newRobotsPolicy(client, f.robotsAgent, f.logger)
	}
	return f
}

// Client returns the underlying client, shared with downloads and probes
// so they reuse the session cookies.
func (f *HTTPFetcher) Client() *http.Client {
	return f.client
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	f.warmOnce.Do(func() { f.warmup(ctx) })

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, newFetchError(req.URL, 0, ErrTransport, err)
	}
	if !target.IsAbs() {
		return nil, newFetchError(req.URL, 0, ErrTransport, errNotAbsolute)
	}
	if f.robots != nil && !f.robots.Allowed(ctx, target) {
		return nil, newFetchError(req.URL, 0, ErrDisallowed, nil)
	}

	httpReq, err := f.newRequest(ctx, req)
	if err != nil {
		return nil, newFetchError(req.URL, 0, ErrTransport, err)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, newFetchError(req.URL, 0, ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, newFetchError(req.URL, resp.StatusCode, ErrTransport, fmt.Errorf("failed to read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newFetchError(req.URL, resp.StatusCode, ErrHTTPStatus, nil)
	}

	text, enc := DecodeBody(body, resp.Header.Get("Content-Type"), f.encoding)
	if sig := matchBlockSignature(text, f.blockSignatures); sig != "" {
		return nil, newFetchError(req.URL, resp.StatusCode, ErrBlocked, fmt.Errorf("matched %q", sig))
	}

	f.logger.Debug("page fetched",
		"url", req.URL,
		"method", httpReq.Method,
		"status", resp.StatusCode,
		"encoding", enc,
		"bytes", len(body),
		"duration", time.Since(start),
	)

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Text:       text,
		Encoding:   enc,
	}, nil
}

func (f *HTTPFetcher) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.method()

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.Form != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	return httpReq, nil
}

// warmup visits the warm-up URL. Failures are logged and ignored.
func (f *HTTPFetcher) warmup(ctx context.Context) {
	if f.warmupURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.warmupURL, nil)
	if err != nil {
		f.logger.Warn("invalid warm-up URL", "url", f.warmupURL, "error", err)
		return
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("warm-up request failed", "url", f.warmupURL, "error", err)
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBodySize))
	_ = resp.Body.Close()
	f.logger.Debug("session warmed up", "url", f.warmupURL, "status", resp.StatusCode)
}

// matchBlockSignature returns the first signature found in the head of text.
func matchBlockSignature(text string, signatures []string) string {
	if len(signatures) == 0 {
		return ""
	}
	if len(text) > blockCheckLimit {
		return ""
	}
	for _, sig := range signatures {
		if sig != "" && strings.Contains(text, sig) {
			return sig
		}
	}
	return ""
}

var errNotAbsolute = errors.New("URL is not absolute")
