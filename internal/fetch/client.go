package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// Client defaults.
const (
	// DefaultTimeout applies to every request issued by the client.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is a desktop Chrome string; several boards refuse
	// unknown agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// maxRedirects stops redirect loops.
	maxRedirects = 10
)

// ClientOption configures NewHTTPClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout     time.Duration
	insecureTLS bool
	proxyURL    string
	userAgent   string
	cookie      string
	headers     map[string]string
}

// WithTimeout sets the per-request timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification. Some public sites
// serve expired or mismatched certificates.
func WithInsecureTLS(insecure bool) ClientOption {
	return func(c *clientConfig) {
		c.insecureTLS = insecure
	}
}

// WithProxy routes requests through a proxy URL. socks5:// and socks5h://
// use a SOCKS5 dialer; http:// and https:// use an HTTP proxy.
func WithProxy(rawURL string) ClientOption {
	return func(c *clientConfig) {
		c.proxyURL = rawURL
	}
}

// WithUserAgent sets the User-Agent sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *clientConfig) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCookie sets a static cookie string ("a=1; b=2") sent with every request
// in addition to the cookie jar.
func WithCookie(cookie string) ClientOption {
	return func(c *clientConfig) {
		c.cookie = cookie
	}
}

// WithHeaders sets extra headers sent with every request.
func WithHeaders(headers map[string]string) ClientOption {
	return func(c *clientConfig) {
		c.headers = headers
	}
}

// NewHTTPClient builds the client shared by page fetches, attachment
// downloads and existence probes. It keeps cookies in a jar so that a
// warm-up visit establishes the session for later calls.
func NewHTTPClient(opts ...ClientOption) (*http.Client, error) {
	cfg := &clientConfig{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.insecureTLS, //nolint:gosec // opt-in per site
		},
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.timeout,
		ResponseHeaderTimeout: cfg.timeout,
	}

	if cfg.proxyURL != "" {
		if err := applyProxy(transport, cfg.proxyURL); err != nil {
			return nil, err
		}
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &http.Client{
		Transport: &headerInjectingTransport{
			base:      transport,
			userAgent: cfg.userAgent,
			cookie:    cfg.cookie,
			headers:   cfg.headers,
		},
		Timeout: cfg.timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// applyProxy configures transport for rawURL.
func applyProxy(transport *http.Transport, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL %q: %w", rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
		return nil
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
}

// headerInjectingTransport adds the configured User-Agent, cookie and
// headers to every request, redirects and downloads included.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	cookie    string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if clone.Header.Get("User-Agent") == "" && t.userAgent != "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if clone.Header.Get("Accept-Language") == "" {
		clone.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	}

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		if clone.Header.Get(key) == "" {
			clone.Header.Set(key, value)
		}
	}

	return t.base.RoundTrip(clone)
}
