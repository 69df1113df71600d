package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"serial2epub/logger"
	"serial2epub/model"
)

// BrowserFetcher renders html pages in a reused headless Chrome so that script-built content
// is present before extraction. Anything that is not an html GET goes to the fallback.
type BrowserFetcher struct {
	fallback     Fetcher
	userAgent    string
	timeout      time.Duration
	waitSelector string
	log          *slog.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

type BrowserConfig struct {
	UserAgent string
	Timeout   time.Duration
	// WaitSelector is awaited before the page html is captured; defaults to "body".
	WaitSelector string
}

func NewBrowserFetcher(fallback Fetcher, cfg BrowserConfig, log *slog.Logger) (*BrowserFetcher, error) {
	b := &BrowserFetcher{
		fallback:     fallback,
		userAgent:    cfg.UserAgent,
		timeout:      cfg.Timeout,
		waitSelector: cfg.WaitSelector,
		log:          logger.OrDiscard(log),
	}
	if b.timeout <= 0 {
		b.timeout = 30 * time.Second
	}
	if b.waitSelector == "" {
		b.waitSelector = "body"
	}
	if err := b.initBrowser(); err != nil {
		return nil, fmt.Errorf("failed to init browser: %w", err)
	}
	return b, nil
}

func (b *BrowserFetcher) initBrowser() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
	)
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)

	if err := chromedp.Run(b.browserCtx, chromedp.Navigate("about:blank")); err != nil {
		b.Close()
		return err
	}
	b.log.Debug("browser initialized")
	return nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() error {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

func (b *BrowserFetcher) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	if opts.method() != http.MethodGet || !strings.Contains(opts.accept(), "html") {
		return b.fallback.Fetch(ctx, url, opts)
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	headers := network.Headers{"Accept": opts.accept()}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if opts.Referer != "" {
		headers["Referer"] = opts.Referer
	}

	var status documentStatus
	chromedp.ListenTarget(tabCtx, status.observe)

	var html, location string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(url),
		chromedp.WaitReady(b.waitSelector, chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, model.NetworkError(url, 0, fmt.Errorf("chromedp execution failed: %w", err))
	}
	code := status.code()
	if code >= http.StatusBadRequest {
		return nil, model.NetworkError(url, code, nil)
	}
	if location == "" {
		location = url
	}
	return &Response{
		Url:         location,
		StatusCode:  code,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
	}, nil
}

// documentStatus keeps the status of the first document response seen in a tab. Redirects are
// not reported as responses, so that is the final response of the main frame.
type documentStatus struct {
	mu     sync.Mutex
	status int
}

func (d *documentStatus) observe(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == 0 {
		d.status = int(e.Response.Status)
	}
}

// code is the recorded status, or 200 when no document response was seen.
func (d *documentStatus) code() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == 0 {
		return http.StatusOK
	}
	return d.status
}
