// Package cache keeps fetched chapter content in a badger database keyed by canonical url.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"

	"serial2epub/logger"
	"serial2epub/model"
	"serial2epub/utils"
)

const (
	chapterPrefix  = "chapter:"
	lastCleanupKey = "meta:last-cleanup"

	lockStripes = 64
)

// entry is the persisted value of one chapter key.
type entry struct {
	Content  *model.ChapterContent `json:"content"`
	StoredAt time.Time             `json:"storedAt"`
}

// Stats summarizes the cache contents.
type Stats struct {
	EntryCount     int
	TotalBytes     int64
	OldestEntryAge time.Duration
	LastCleanup    time.Time
}

// ChapterCache is safe for concurrent use. Reads overlap freely; writes to the same key are serialized.
type ChapterCache struct {
	db     *badger.DB
	log    *slog.Logger
	now    func() time.Time
	maxAge time.Duration

	locks [lockStripes]sync.Mutex
}

type Option func(*ChapterCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ChapterCache) { c.now = now }
}

// WithMaxAge makes Get treat entries older than d as absent even before cleanup evicts them.
func WithMaxAge(d time.Duration) Option {
	return func(c *ChapterCache) { c.maxAge = d }
}

// Open opens the cache stored in dir. An empty dir keeps everything in memory.
func Open(dir string, log *slog.Logger, opts ...Option) (*ChapterCache, error) {
	bopts := badger.DefaultOptions(dir)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts.Logger = nil
	bopts.CompactL0OnClose = true

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, model.CacheError("open", fmt.Errorf("failed to open badger db: %w", err))
	}

	c := &ChapterCache{
		db:  db,
		log: logger.OrDiscard(log),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log.Debug("chapter cache opened", "dir", dir)
	return c, nil
}

func (c *ChapterCache) Close() error {
	return c.db.Close()
}

func chapterKey(url string) []byte {
	return []byte(chapterPrefix + utils.CanonicalUrl(url))
}

func (c *ChapterCache) lockFor(key []byte) *sync.Mutex {
	return &c.locks[xxhash.Sum64(key)%lockStripes]
}

// Get returns the content stored for url. Storage failures are logged and reported as a miss.
func (c *ChapterCache) Get(ctx context.Context, url string) (*model.ChapterContent, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	var e entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chapterKey(url))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("cache read failed, treating as miss", "url", url, "error", model.CacheError("get", err))
		return nil, false
	}
	if e.Content == nil {
		return nil, false
	}
	if c.maxAge > 0 && c.now().Sub(e.StoredAt) > c.maxAge {
		return nil, false
	}
	return e.Content, true
}

// Put stores content for url, replacing any existing entry. The entry is written in a single
// transaction so readers see either the old value or the complete new one.
func (c *ChapterCache) Put(ctx context.Context, url string, content *model.ChapterContent) error {
	if err := ctx.Err(); err != nil {
		return model.CacheError("put", err)
	}
	if content == nil {
		return model.CacheError("put", errors.New("nil content"))
	}
	data, err := json.Marshal(entry{Content: content, StoredAt: c.now().UTC()})
	if err != nil {
		return model.CacheError("put", fmt.Errorf("failed to marshal entry: %w", err))
	}

	key := chapterKey(url)
	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return model.CacheError("put", err)
	}
	return nil
}

// Clear removes every chapter entry. The last cleanup time is kept.
func (c *ChapterCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return model.CacheError("clear", err)
	}
	if err := c.db.DropPrefix([]byte(chapterPrefix)); err != nil {
		return model.CacheError("clear", err)
	}
	c.log.Info("chapter cache cleared")
	return nil
}

// Stats counts entries and their stored size.
func (c *ChapterCache) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	now := c.now()
	var oldest time.Time

	err := c.db.View(func(txn *badger.Txn) error {
		if last, err := readLastCleanup(txn); err == nil {
			stats.LastCleanup = last
		}

		return c.eachEntry(ctx, txn, func(_ []byte, size int64, e entry) {
			stats.EntryCount++
			stats.TotalBytes += size
			if oldest.IsZero() || e.StoredAt.Before(oldest) {
				oldest = e.StoredAt
			}
		})
	})
	if err != nil {
		return Stats{}, model.CacheError("stats", err)
	}
	if !oldest.IsZero() {
		stats.OldestEntryAge = now.Sub(oldest)
	}
	return stats, nil
}

// RunPeriodicCleanup evicts entries older than maxAge. It does nothing if a cleanup already ran
// on the current calendar day; ran reports whether this call performed one.
func (c *ChapterCache) RunPeriodicCleanup(ctx context.Context, maxAge time.Duration) (evicted int, ran bool, err error) {
	now := c.now()

	var last time.Time
	err = c.db.View(func(txn *badger.Txn) error {
		var err error
		last, err = readLastCleanup(txn)
		return err
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, model.CacheError("cleanup", err)
	}
	if !last.IsZero() && sameDay(last.In(now.Location()), now) {
		return 0, false, nil
	}

	evicted, err = c.EvictOlderThan(ctx, maxAge)
	if err != nil {
		return evicted, true, err
	}

	stamp, err := now.UTC().MarshalText()
	if err != nil {
		return evicted, true, model.CacheError("cleanup", err)
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastCleanupKey), stamp)
	}); err != nil {
		return evicted, true, model.CacheError("cleanup", err)
	}

	c.log.Info("chapter cache cleanup finished", "evicted", evicted, "max_age", maxAge)
	return evicted, true, nil
}

// EvictOlderThan removes entries stored more than maxAge ago and returns how many were removed.
func (c *ChapterCache) EvictOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := c.now().Add(-maxAge)
	var stale [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		return c.eachEntry(ctx, txn, func(key []byte, _ int64, e entry) {
			if e.StoredAt.Before(cutoff) {
				stale = append(stale, key)
			}
		})
	})
	if err != nil {
		return 0, model.CacheError("cleanup", err)
	}

	evicted := 0
	for _, key := range stale {
		mu := c.lockFor(key)
		mu.Lock()
		deleted := false
		// The entry may have been rewritten since the scan; only delete it if still stale.
		err := c.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var e entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			if !e.StoredAt.Before(cutoff) {
				return nil
			}
			deleted = true
			return txn.Delete(key)
		})
		mu.Unlock()
		if err != nil {
			return evicted, model.CacheError("cleanup", err)
		}
		if deleted {
			evicted++
		}
	}
	return evicted, nil
}

// eachEntry walks all chapter entries, skipping values that fail to decode.
func (c *ChapterCache) eachEntry(ctx context.Context, txn *badger.Txn, fn func(key []byte, size int64, e entry)) error {
	prefix := []byte(chapterPrefix)
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		var e entry
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
		if err != nil {
			c.log.Warn("skipping unreadable cache entry", "key", string(item.Key()), "error", err)
			continue
		}
		fn(bytes.Clone(item.Key()), item.ValueSize(), e)
	}
	return nil
}

func readLastCleanup(txn *badger.Txn) (time.Time, error) {
	item, err := txn.Get([]byte(lastCleanupKey))
	if err != nil {
		return time.Time{}, err
	}
	var t time.Time
	err = item.Value(func(val []byte) error {
		return t.UnmarshalText(val)
	})
	return t, err
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
