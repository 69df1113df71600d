package downloader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiter_FirstFetchImmediate(t *testing.T) {
	l := newHostLimiter(time.Hour)
	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "https://a.example.com/1"))
	require.NoError(t, l.Wait(context.Background(), "https://b.example.com/1"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestHostLimiter_SpacesSameHost(t *testing.T) {
	l := newHostLimiter(50 * time.Millisecond)
	ctx := context.Background()
	start := time.Now()
	for range 3 {
		require.NoError(t, l.Wait(ctx, "https://example.com/x"))
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestHostLimiter_WaitInterrupted(t *testing.T) {
	l := newHostLimiter(time.Hour)
	require.NoError(t, l.Wait(context.Background(), "https://example.com/1"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := l.Wait(ctx, "https://example.com/2")
	assert.ErrorIs(t, err, errWaitInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHostLimiter_ZeroDelay(t *testing.T) {
	l := newHostLimiter(0)
	for range 100 {
		require.NoError(t, l.Wait(context.Background(), "https://example.com/"))
	}
}
