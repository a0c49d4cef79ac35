package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/mural-app/birthday-wall/internal/model/wall"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func messageID(m wall.Message) string { return m.ID }

func msg(id string) wall.Message {
	return wall.Message{ID: id, Text: "t-" + id, Author: "ana"}
}

// fixedPages serves a newest-first corpus of total messages, paged by
// the requested limit.
func fixedPages(total int) FetchFunc[wall.Message] {
	return func(_ context.Context, page, limit int) ([]wall.Message, bool, error) {
		offset := (page - 1) * limit
		var items []wall.Message
		for i := offset; i < offset+limit && i < total; i++ {
			items = append(items, msg(fmt.Sprintf("m%03d", i)))
		}
		return items, offset+limit < total, nil
	}
}

func newMessageCache(fetch FetchFunc[wall.Message]) *Cache[wall.Message] {
	return NewCache(fetch, messageID, testLogger())
}

func TestFetchPageResetThenAppend(t *testing.T) {
	cache := newMessageCache(fixedPages(45))

	require.NoError(t, cache.FetchPage(context.Background(), 1, true))
	require.Equal(t, 30, cache.Len())
	require.True(t, cache.HasMore())

	require.NoError(t, cache.LoadMore(context.Background()))
	require.Equal(t, 45, cache.Len())
	require.False(t, cache.HasMore())

	// At the end of the corpus LoadMore is a no-op.
	require.NoError(t, cache.LoadMore(context.Background()))
	require.Equal(t, 45, cache.Len())
}

func TestDedupPullThenPush(t *testing.T) {
	cache := newMessageCache(fixedPages(5))
	require.NoError(t, cache.FetchPage(context.Background(), 1, true))

	// The push event races the pull and delivers an id the pull
	// already returned.
	cache.ApplyCreated(msg("m002"))

	ids := lo.Map(cache.Items(), func(m wall.Message, _ int) string { return m.ID })
	require.Equal(t, 1, lo.Count(ids, "m002"))
	require.Len(t, ids, 5)
}

func TestDedupPushThenPull(t *testing.T) {
	cache := newMessageCache(fixedPages(5))

	cache.ApplyCreated(msg("m000"))
	require.NoError(t, cache.FetchPage(context.Background(), 1, true))

	ids := lo.Map(cache.Items(), func(m wall.Message, _ int) string { return m.ID })
	require.Equal(t, 1, lo.Count(ids, "m000"))
}

func TestApplyCreatedPrepends(t *testing.T) {
	cache := newMessageCache(fixedPages(3))
	require.NoError(t, cache.FetchPage(context.Background(), 1, true))

	cache.ApplyCreated(msg("fresh"))
	items := cache.Items()
	require.Equal(t, "fresh", items[0].ID)
	require.Len(t, items, 4)
}

func TestApplyDeletedClearsSelection(t *testing.T) {
	cache := newMessageCache(fixedPages(3))
	require.NoError(t, cache.FetchPage(context.Background(), 1, true))

	cache.Select("m001")
	cache.ApplyDeleted("m001")

	_, ok := cache.Selected()
	require.False(t, ok)
	ids := lo.Map(cache.Items(), func(m wall.Message, _ int) string { return m.ID })
	require.NotContains(t, ids, "m001")

	// Deleting another id leaves an unrelated selection alone.
	cache.Select("m000")
	cache.ApplyDeleted("m002")
	selected, ok := cache.Selected()
	require.True(t, ok)
	require.Equal(t, "m000", selected)
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	slowFirst := func(ctx context.Context, page, limit int) ([]wall.Message, bool, error) {
		if page == 2 {
			<-release
			return []wall.Message{msg("stale")}, true, nil
		}
		return []wall.Message{msg("current")}, false, nil
	}
	cache := newMessageCache(slowFirst)

	done := make(chan error, 1)
	go func() { done <- cache.FetchPage(context.Background(), 2, true) }()

	// Let the slow fetch get in flight, then supersede it.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cache.FetchPage(context.Background(), 1, true))

	close(release)
	require.NoError(t, <-done)

	ids := lo.Map(cache.Items(), func(m wall.Message, _ int) string { return m.ID })
	require.Equal(t, []string{"current"}, ids)
	require.False(t, cache.HasMore())
}

func TestLoadMoreNoopWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls int
	blocking := func(ctx context.Context, page, limit int) ([]wall.Message, bool, error) {
		calls++
		<-release
		return nil, false, nil
	}
	cache := newMessageCache(blocking)

	done := make(chan error, 1)
	go func() { done <- cache.FetchPage(context.Background(), 1, true) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cache.LoadMore(context.Background()))

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, 1, calls)
}

func TestLoadMoreNoopAfterError(t *testing.T) {
	fails := func(ctx context.Context, page, limit int) ([]wall.Message, bool, error) {
		return nil, false, errors.New("backend down")
	}
	cache := newMessageCache(fails)

	require.Error(t, cache.FetchPage(context.Background(), 1, true))
	require.Error(t, cache.Err())
	require.NoError(t, cache.LoadMore(context.Background()))
}

func TestRefreshClearsErrorAndReplaces(t *testing.T) {
	var failing bool
	fetch := func(ctx context.Context, page, limit int) ([]wall.Message, bool, error) {
		if failing {
			return nil, false, errors.New("backend down")
		}
		return []wall.Message{msg("after-refresh")}, false, nil
	}
	cache := newMessageCache(fetch)

	failing = true
	require.Error(t, cache.FetchPage(context.Background(), 1, true))

	failing = false
	require.NoError(t, cache.Refresh(context.Background()))
	require.NoError(t, cache.Err())
	require.Equal(t, 1, cache.Len())
}

func TestShouldLoadMoreThresholdAndThrottle(t *testing.T) {
	cache := newMessageCache(fixedPages(100))
	now := time.Unix(0, 0)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.FetchPage(context.Background(), 1, true))

	// Far from the bottom: 2000px of content, viewport ends at 800.
	require.False(t, cache.ShouldLoadMore(0, 800, 2000))

	// Within the 300px threshold.
	now = now.Add(time.Second)
	require.True(t, cache.ShouldLoadMore(1000, 800, 2000))

	// Same gesture an instant later is throttled.
	now = now.Add(10 * time.Millisecond)
	require.False(t, cache.ShouldLoadMore(1010, 800, 2000))

	// After the throttle window it fires again.
	now = now.Add(200 * time.Millisecond)
	require.True(t, cache.ShouldLoadMore(1020, 800, 2000))
}

func TestShouldLoadMoreRespectsHasMore(t *testing.T) {
	cache := newMessageCache(fixedPages(5))
	require.NoError(t, cache.FetchPage(context.Background(), 1, true))
	require.False(t, cache.HasMore())
	require.False(t, cache.ShouldLoadMore(1000, 800, 2000))
}

func TestMessageSourcePullsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/messages", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("page"))
		require.Equal(t, "30", r.URL.Query().Get("limit"))
		page := wall.Page[wall.Message]{
			Data:       []wall.Message{msg("m1"), msg("m2")},
			Pagination: wall.NewPagination(1, 30, 62),
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	t.Cleanup(srv.Close)

	cache := newMessageCache(MessageSource(srv.URL, srv.Client()))
	require.NoError(t, cache.FetchPage(context.Background(), 1, true))
	require.Equal(t, 2, cache.Len())
	require.True(t, cache.HasMore())
}
