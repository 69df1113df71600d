package cmd

import (
	"log/slog"

	"github.com/samber/do/v2"

	"serial2epub/cache"
	"serial2epub/config"
	"serial2epub/downloader"
	"serial2epub/extractor"
	"serial2epub/fetcher"
)

// CacheHandle wraps the chapter cache with shutdown capability. ChapterCache is nil when the
// cache is disabled.
type CacheHandle struct {
	*cache.ChapterCache
}

// Shutdown implements do.Shutdownable.
func (h *CacheHandle) Shutdown() error {
	if h.ChapterCache == nil {
		return nil
	}
	if err := h.Close(); err != nil {
		log.Error("failed to close chapter cache", "error", err)
		return err
	}
	return nil
}

// FetcherHandle wraps the fetcher and closes the browser when one was started.
type FetcherHandle struct {
	fetcher.Fetcher
	browser *fetcher.BrowserFetcher
}

// Shutdown implements do.Shutdownable.
func (h *FetcherHandle) Shutdown() error {
	if h.browser == nil {
		return nil
	}
	return h.browser.Close()
}

// newContainer wires the services one command needs. Services are built on first use, so
// commands that never touch the network never start a browser.
func newContainer(c *config.Config, l *slog.Logger, opts extractor.BuiltinOptions, override string) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, c)
	do.ProvideValue(injector, l)
	do.ProvideValue(injector, opts)
	do.ProvideNamedValue(injector, "extractor-override", override)

	do.Provide(injector, provideCache)
	do.Provide(injector, provideFetcher)
	do.Provide(injector, provideRegistry)
	do.Provide(injector, provideOrchestrator)
	return injector
}

func provideCache(i do.Injector) (*CacheHandle, error) {
	c := do.MustInvoke[*config.Config](i)
	l := do.MustInvoke[*slog.Logger](i)
	if c.Cache.Disabled {
		l.Debug("chapter cache disabled")
		return &CacheHandle{}, nil
	}
	store, err := cache.Open(c.Cache.Dir, l, cache.WithMaxAge(c.Cache.MaxAge))
	if err != nil {
		return nil, err
	}
	return &CacheHandle{ChapterCache: store}, nil
}

func provideFetcher(i do.Injector) (*FetcherHandle, error) {
	c := do.MustInvoke[*config.Config](i)
	l := do.MustInvoke[*slog.Logger](i)

	http := fetcher.NewHTTPFetcher(fetcher.HTTPConfig{
		UserAgent:  c.Fetch.UserAgent,
		Timeout:    c.Fetch.Timeout,
		RetryCount: c.Fetch.RetryCount,
		RetryWait:  c.Fetch.RetryWait,
	}, l)
	if !c.Fetch.Browser {
		return &FetcherHandle{Fetcher: http}, nil
	}
	browser, err := fetcher.NewBrowserFetcher(http, fetcher.BrowserConfig{
		UserAgent: c.Fetch.UserAgent,
		Timeout:   c.Fetch.Timeout,
	}, l)
	if err != nil {
		return nil, err
	}
	return &FetcherHandle{Fetcher: browser, browser: browser}, nil
}

func provideRegistry(i do.Injector) (*extractor.Registry, error) {
	return extractor.NewBuiltin(do.MustInvoke[extractor.BuiltinOptions](i)), nil
}

func provideOrchestrator(i do.Injector) (*downloader.Orchestrator, error) {
	c := do.MustInvoke[*config.Config](i)
	f := do.MustInvoke[*FetcherHandle](i)
	cacheHandle := do.MustInvoke[*CacheHandle](i)

	dc := downloader.Config{
		Fetcher:   f.Fetcher,
		Registry:  do.MustInvoke[*extractor.Registry](i),
		Delay:     c.Fetch.Delay,
		Extractor: do.MustInvokeNamed[string](i, "extractor-override"),
		Logger:    do.MustInvoke[*slog.Logger](i),
	}
	if cacheHandle.ChapterCache != nil {
		dc.Cache = cacheHandle.ChapterCache
	}
	return downloader.New(dc), nil
}

// shutdown releases every service the container built. Handles log their own close errors.
func shutdown(injector *do.RootScope) {
	_ = injector.Shutdown()
}
