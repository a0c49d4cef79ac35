// Package feed keeps a client-side view of a paginated wall feed:
// pull reads fill it page by page, push events from the realtime
// connector are merged into the same list, deduplicated by id.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	// DefaultPageSize matches the server's default list page size.
	DefaultPageSize = 30

	// bottomThreshold is how close to the bottom, in pixels, the
	// viewport must be before a scroll position asks for the next
	// page.
	bottomThreshold = 300

	// triggerThrottle suppresses repeated load triggers within one
	// scroll gesture.
	triggerThrottle = 100 * time.Millisecond
)

// FetchFunc pulls one page from the backing read endpoint.
type FetchFunc[T any] func(ctx context.Context, page, limit int) ([]T, bool, error)

// Cache is an ordered, duplicate-free, newest-first list fed from two
// sides: paginated pulls and realtime pushes. Pull and push are
// unordered relative to each other, so every mutation dedups by id.
type Cache[T any] struct {
	fetch    FetchFunc[T]
	idOf     func(T) string
	pageSize int
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	items       []T
	page        int
	hasMore     bool
	loading     bool
	loadingMore bool
	lastErr     error
	selected    string
	hasSelected bool
	generation  int
	cancelFetch context.CancelFunc
	lastTrigger time.Time
}

// NewCache builds a cache over the given page source. idOf extracts
// the identity used for dedup and deletion.
func NewCache[T any](fetch FetchFunc[T], idOf func(T) string, logger *slog.Logger) *Cache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[T]{
		fetch:    fetch,
		idOf:     idOf,
		pageSize: DefaultPageSize,
		logger:   logger.With("component", "feed"),
		now:      time.Now,
		hasMore:  true,
	}
}

// FetchPage pulls page n. reset replaces the whole list on success,
// otherwise the page is appended. Starting a fetch supersedes any
// fetch still in flight: the older one is canceled and its result,
// should it still arrive, is discarded.
func (c *Cache[T]) FetchPage(ctx context.Context, n int, reset bool) error {
	c.mu.Lock()
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	c.generation++
	gen := c.generation
	if reset {
		c.loading = true
	} else {
		c.loadingMore = true
	}
	limit := c.pageSize
	c.mu.Unlock()

	items, hasMore, err := c.fetch(fetchCtx, n, limit)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		// A newer fetch took over while this one was in flight.
		return nil
	}
	c.loading = false
	c.loadingMore = false
	if err != nil {
		c.lastErr = err
		c.logger.Error("page fetch failed", "page", n, "error", err)
		return err
	}
	c.lastErr = nil
	c.page = n
	c.hasMore = hasMore
	if reset {
		c.items = items
	} else {
		c.items = append(c.items, items...)
	}
	c.items = c.dedup(c.items)
	return nil
}

// LoadMore fetches the next page. It is a no-op while a fetch is in
// flight, after the last page, or while the cache is in an error
// state.
func (c *Cache[T]) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.loading || c.loadingMore || !c.hasMore || c.lastErr != nil {
		c.mu.Unlock()
		return nil
	}
	next := c.page + 1
	c.mu.Unlock()
	return c.FetchPage(ctx, next, false)
}

// Refresh re-pulls page 1 and replaces the list. The realtime
// connector calls this on every connected event so anything missed
// while offline is reconciled from the store.
func (c *Cache[T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	return c.FetchPage(ctx, 1, true)
}

// ApplyCreated merges a pushed creation. The item is prepended only
// when its id is not present yet, which covers the race where the
// REST pull and the push event both deliver it.
func (c *Cache[T]) ApplyCreated(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.idOf(item)
	for _, existing := range c.items {
		if c.idOf(existing) == id {
			return
		}
	}
	c.items = append([]T{item}, c.items...)
}

// ApplyDeleted removes the item with the given id, if present, and
// clears the selection when it pointed at that item.
func (c *Cache[T]) ApplyDeleted(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = lo.Filter(c.items, func(item T, _ int) bool {
		return c.idOf(item) != id
	})
	if c.hasSelected && c.selected == id {
		c.selected = ""
		c.hasSelected = false
	}
}

// Select marks the item currently being viewed.
func (c *Cache[T]) Select(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = id
	c.hasSelected = true
}

// Selected reports the current selection, if any.
func (c *Cache[T]) Selected() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected, c.hasSelected
}

// Items returns a duplicate-free snapshot of the list. Dedup happens
// here again, not just on write, since push/pull races are expected.
func (c *Cache[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dedup(append([]T(nil), c.items...))
}

// Len reports the current (deduplicated) item count.
func (c *Cache[T]) Len() int {
	return len(c.Items())
}

// HasMore reports whether further pages remain.
func (c *Cache[T]) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// IsLoading reports whether a first-page (replacing) fetch is in
// flight.
func (c *Cache[T]) IsLoading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// IsLoadingMore reports whether an appending fetch is in flight.
func (c *Cache[T]) IsLoadingMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadingMore
}

// Err returns the error of the last completed fetch, nil after a
// success or Refresh.
func (c *Cache[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ShouldLoadMore translates a scroll position into a load decision:
// true when the viewport bottom is within the threshold of the
// content bottom, throttled so one gesture triggers at most one load
// per throttle window.
func (c *Cache[T]) ShouldLoadMore(scrollTop, viewportHeight, contentHeight float64) bool {
	if contentHeight-(scrollTop+viewportHeight) > bottomThreshold {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasMore || c.loading || c.loadingMore {
		return false
	}
	now := c.now()
	if now.Sub(c.lastTrigger) < triggerThrottle {
		return false
	}
	c.lastTrigger = now
	return true
}

func (c *Cache[T]) dedup(items []T) []T {
	return lo.UniqBy(items, c.idOf)
}
