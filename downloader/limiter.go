package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"serial2epub/fetcher"
	"serial2epub/utils"
)

// errWaitInterrupted marks a fetch abandoned while waiting for its rate limit slot.
var errWaitInterrupted = errors.New("rate limit wait interrupted")

// hostLimiter spaces network fetches to the same host by a fixed delay. The first fetch to a
// host is not delayed.
type hostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	limiters map[string]*rate.Limiter
}

func newHostLimiter(delay time.Duration) *hostLimiter {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &hostLimiter{
		limit:    limit,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *hostLimiter) get(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(h.limit, 1)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until url's host may be fetched again or ctx is done.
func (h *hostLimiter) Wait(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errWaitInterrupted, err)
	}
	if err := h.get(utils.Host(url)).Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", errWaitInterrupted, err)
	}
	return nil
}

// politeFetcher waits on the limiter before delegating. The wait observes ctx; the fetch
// itself does not, so a started request runs to completion or to its own timeout.
type politeFetcher struct {
	next    fetcher.Fetcher
	limiter *hostLimiter
}

func (p politeFetcher) Fetch(ctx context.Context, url string, opts fetcher.Options) (*fetcher.Response, error) {
	if err := p.limiter.Wait(ctx, url); err != nil {
		return nil, err
	}
	return p.next.Fetch(context.WithoutCancel(ctx), url, opts)
}
