package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome. It serves boards that
// build their lists with JavaScript. Only GET is supported.
type BrowserFetcher struct {
	timeout         time.Duration
	waitSelector    string
	settle          time.Duration
	userAgent       string
	execPath        string
	blockSignatures []string
	logger          *slog.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// BrowserOption configures a BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithBrowserTimeout bounds each page load.
func WithBrowserTimeout(d time.Duration) BrowserOption {
	return func(b *BrowserFetcher) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithWaitSelector waits until selector is ready before reading the DOM.
func WithWaitSelector(selector string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.waitSelector = selector
	}
}

// WithSettleDelay waits a fixed time after load for late scripts.
func WithSettleDelay(d time.Duration) BrowserOption {
	return func(b *BrowserFetcher) {
		b.settle = d
	}
}

// WithBrowserUserAgent overrides the browser User-Agent.
func WithBrowserUserAgent(ua string) BrowserOption {
	return func(b *BrowserFetcher) {
		if ua != "" {
			b.userAgent = ua
		}
	}
}

// WithExecPath points at a specific Chrome binary.
func WithExecPath(path string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.execPath = path
	}
}

// WithBrowserLogger sets the logger.
func WithBrowserLogger(logger *slog.Logger) BrowserOption {
	return func(b *BrowserFetcher) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBrowserBlockSignatures replaces the block signature list.
func WithBrowserBlockSignatures(signatures []string) BrowserOption {
	return func(b *BrowserFetcher) {
		b.blockSignatures = signatures
	}
}

// NewBrowserFetcher creates a fetcher. Chrome starts on the first Fetch.
func NewBrowserFetcher(opts ...BrowserOption) *BrowserFetcher {
	b := &BrowserFetcher{
		timeout:         DefaultTimeout,
		userAgent:       DefaultUserAgent,
		blockSignatures: DefaultBlockSignatures,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// start launches the browser once.
func (b *BrowserFetcher) start() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		return b.browserCtx
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.UserAgent(b.userAgent),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	b.browserCtx = browserCtx
	b.cancelAlloc = cancelAlloc
	b.cancelBrowser = cancelBrowser
	return browserCtx
}

// Fetch implements Fetcher.
func (b *BrowserFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req.method() != http.MethodGet {
		return nil, newFetchError(req.URL, 0, ErrUnsupportedMethod, fmt.Errorf("browser fetcher cannot send %s", req.method()))
	}

	tabCtx, cancelTab := chromedp.NewContext(b.start())
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// Tie the tab to the caller's context.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	start := time.Now()
	navResp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(req.URL))
	if err != nil {
		return nil, newFetchError(req.URL, 0, ErrTransport, err)
	}

	status := http.StatusOK
	if navResp != nil && navResp.Status != 0 {
		status = int(navResp.Status)
	}
	if status < 200 || status > 299 {
		return nil, newFetchError(req.URL, status, ErrHTTPStatus, nil)
	}

	var (
		html     string
		location string
	)
	actions := []chromedp.Action{}
	if b.waitSelector != "" {
		actions = append(actions, chromedp.WaitReady(b.waitSelector))
	}
	if b.settle > 0 {
		actions = append(actions, chromedp.Sleep(b.settle))
	}
	actions = append(actions,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html),
	)
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, newFetchError(req.URL, status, ErrTransport, err)
	}

	if sig := matchBlockSignature(html, b.blockSignatures); sig != "" {
		return nil, newFetchError(req.URL, status, ErrBlocked, fmt.Errorf("matched %q", sig))
	}

	b.logger.Debug("page rendered",
		"url", req.URL,
		"status", status,
		"bytes", len(html),
		"duration", time.Since(start),
	)

	if location == "" {
		location = req.URL
	}
	return &Response{
		URL:        location,
		StatusCode: status,
		Header:     http.Header{},
		Body:       []byte(html),
		Text:       html,
		Encoding:   "utf-8",
	}, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx == nil {
		return nil
	}
	b.cancelBrowser()
	b.cancelAlloc()
	b.browserCtx = nil
	return nil
}
