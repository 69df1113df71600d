package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serial2epub/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(t *testing.T, opts ...Option) (*ChapterCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	c, err := Open("", nil, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func chapter(url, title string) *model.ChapterContent {
	return &model.ChapterContent{
		Ref:    model.ChapterRef{SourceUrl: url, Title: title, IsIncludeable: true},
		Title:  title,
		Html:   "<p>" + title + "</p>",
		Images: []string{"https://img.example.com/a.png"},
	}
}

func TestChapterCache_PutGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "https://example.com/c/1")
	assert.False(t, ok)

	want := chapter("https://example.com/c/1", "One")
	require.NoError(t, c.Put(ctx, "https://example.com/c/1", want))

	got, ok := c.Get(ctx, "https://example.com/c/1")
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestChapterCache_CanonicalKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "HTTPS://Example.com:443/c/1/?b=2&a=1#top", chapter("x", "One")))

	for _, url := range []string{
		"https://example.com/c/1?a=1&b=2",
		"https://example.com/c/1/?b=2&a=1",
	} {
		_, ok := c.Get(ctx, url)
		assert.True(t, ok, url)
	}
}

func TestChapterCache_PutReplaces(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	url := "https://example.com/c/1"

	require.NoError(t, c.Put(ctx, url, chapter(url, "Old")))
	require.NoError(t, c.Put(ctx, url, chapter(url, "New")))

	got, ok := c.Get(ctx, url)
	require.True(t, ok)
	assert.Equal(t, "New", got.Title)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntryCount)
}

func TestChapterCache_StatsAndClear(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "https://example.com/1", chapter("1", "One")))
	clock.Advance(2 * time.Hour)
	require.NoError(t, c.Put(ctx, "https://example.com/2", chapter("2", "Two")))
	clock.Advance(time.Hour)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EntryCount)
	assert.Positive(t, stats.TotalBytes)
	assert.Equal(t, 3*time.Hour, stats.OldestEntryAge)

	require.NoError(t, c.Clear(ctx))
	stats, err = c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.EntryCount)
	assert.Zero(t, stats.OldestEntryAge)
}

func TestChapterCache_RunPeriodicCleanup(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "https://example.com/old", chapter("old", "Old")))
	clock.Advance(10 * 24 * time.Hour)
	require.NoError(t, c.Put(ctx, "https://example.com/new", chapter("new", "New")))

	evicted, ran, err := c.RunPeriodicCleanup(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, evicted)

	_, ok := c.Get(ctx, "https://example.com/old")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "https://example.com/new")
	assert.True(t, ok)

	// same calendar day: skipped even though the new entry is now stale for a zero max age
	clock.Advance(time.Hour)
	evicted, ran, err = c.RunPeriodicCleanup(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, evicted)

	clock.Advance(24 * time.Hour)
	evicted, ran, err = c.RunPeriodicCleanup(ctx, 0)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, evicted)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, clock.Now().Equal(stats.LastCleanup))
}

func TestChapterCache_EvictOlderThanIgnoresDailyStamp(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	_, ran, err := c.RunPeriodicCleanup(ctx, time.Hour)
	require.NoError(t, err)
	require.True(t, ran)

	require.NoError(t, c.Put(ctx, "https://example.com/1", chapter("1", "One")))
	clock.Advance(2 * time.Hour)

	evicted, err := c.EvictOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.EntryCount)
}

func TestChapterCache_EvictOlderThanKeepsRewrittenEntries(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	const n = 200
	urls := make([]string, n)
	for i := range n {
		urls[i] = fmt.Sprintf("https://example.com/c/%d", i)
		require.NoError(t, c.Put(ctx, urls[i], chapter(urls[i], "old")))
	}
	clock.Advance(2 * time.Hour)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := c.EvictOlderThan(ctx, time.Hour)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		for _, url := range urls {
			assert.NoError(t, c.Put(ctx, url, chapter(url, "new")))
		}
	}()
	wg.Wait()

	for _, url := range urls {
		got, ok := c.Get(ctx, url)
		if assert.True(t, ok, url) {
			assert.Equal(t, "new", got.Title)
		}
	}
}

func TestChapterCache_EvictOlderThanSkipsFreshEntry(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "https://example.com/old", chapter("old", "Old")))
	clock.Advance(2 * time.Hour)
	require.NoError(t, c.Put(ctx, "https://example.com/new", chapter("new", "New")))

	evicted, err := c.EvictOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, ok := c.Get(ctx, "https://example.com/new")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "https://example.com/old")
	assert.False(t, ok)
}

func TestChapterCache_WithMaxAgeHidesStaleEntries(t *testing.T) {
	c, clock := newTestCache(t, WithMaxAge(time.Hour))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "https://example.com/1", chapter("1", "One")))
	_, ok := c.Get(ctx, "https://example.com/1")
	assert.True(t, ok)

	clock.Advance(2 * time.Hour)
	_, ok = c.Get(ctx, "https://example.com/1")
	assert.False(t, ok)
}

func TestChapterCache_ConcurrentWritesSameKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	url := "https://example.com/c/1"

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			title := "T" + string(rune('a'+i))
			assert.NoError(t, c.Put(ctx, url, chapter(url, title)))
			_, _ = c.Get(ctx, url)
		}()
	}
	wg.Wait()

	got, ok := c.Get(ctx, url)
	require.True(t, ok)
	assert.Equal(t, "<p>"+got.Title+"</p>", got.Html)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntryCount)
}

func TestChapterCache_CancelledContext(t *testing.T) {
	c, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Put(ctx, "https://example.com/1", chapter("1", "One"))
	assert.ErrorIs(t, err, model.ErrCache)

	_, ok := c.Get(context.Background(), "https://example.com/1")
	assert.False(t, ok)
}
