package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"serial2epub/logger"
	"serial2epub/model"
)

type HTTPConfig struct {
	UserAgent  string
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// HTTPFetcher fetches with resty. Requests with Credentials share a cookie jar; others carry no cookies.
type HTTPFetcher struct {
	client    *resty.Client
	anonymous *resty.Client
	userAgent string
	log       *slog.Logger
}

func NewHTTPFetcher(cfg HTTPConfig, log *slog.Logger) *HTTPFetcher {
	log = logger.OrDiscard(log)
	client := newRestyClient(cfg, log)
	anonymous := newRestyClient(cfg, log).SetCookieJar(nil)
	return &HTTPFetcher{
		client:    client,
		anonymous: anonymous,
		userAgent: cfg.UserAgent,
		log:       log,
	}
}

func newRestyClient(cfg HTTPConfig, log *slog.Logger) *resty.Client {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	client.SetLogger(restyLogger{log: log})
	client.SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := strconv.Atoi(retryAfter); err == nil {
						return time.Duration(seconds) * time.Second, nil
					}
					if t, err := http.ParseTime(retryAfter); err == nil {
						return time.Until(t), nil
					}
				}
				return cfg.RetryWait, nil
			}
			return 0, nil
		}).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	return client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts Options) (*Response, error) {
	client := f.anonymous
	if opts.Credentials {
		client = f.client
	}
	req := client.R().
		SetContext(ctx).
		SetHeader("Accept", opts.accept()).
		SetHeader("Accept-Charset", "utf-8")
	if f.userAgent != "" {
		req.SetHeader("User-Agent", f.userAgent)
	}
	if opts.Referer != "" {
		req.SetHeader("Referer", opts.Referer)
	}
	req.SetHeaders(opts.Headers)
	switch {
	case opts.Form != nil:
		req.SetFormDataFromValues(opts.Form)
	case opts.Body != nil:
		req.SetBody(opts.Body)
	}

	f.log.Debug("fetching", "url", url, "method", opts.method())
	resp, err := req.Execute(opts.method(), url)
	if err != nil {
		return nil, model.NetworkError(url, 0, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, model.NetworkError(url, resp.StatusCode(), fmt.Errorf("%s", resp.Status()))
	}

	finalUrl := url
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		finalUrl = raw.Request.URL.String()
	}
	return &Response{
		Url:         finalUrl,
		StatusCode:  resp.StatusCode(),
		ContentType: resp.Header().Get("Content-Type"),
		Body:        resp.Body(),
	}, nil
}

// restyLogger routes resty's own messages to slog at debug level.
type restyLogger struct {
	log *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...), "component", "resty")
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
