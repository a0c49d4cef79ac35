package events

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/mural-app/birthday-wall/internal/event"
	"github.com/mural-app/birthday-wall/internal/model/wall"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sseRecord struct {
	Event string
	Data  string
}

// readRecord parses one "event:/data:" block from the stream.
func readRecord(t *testing.T, r *bufio.Reader) sseRecord {
	t.Helper()
	var rec sseRecord
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case line == "":
			if rec.Event != "" {
				return rec
			}
		case strings.HasPrefix(line, "event: "):
			rec.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			rec.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func startStream(t *testing.T, h *Handler, query string) (*bufio.Reader, func()) {
	t.Helper()

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)

	resp, err := http.Get(srv.URL + "/events" + query)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	closeAll := func() {
		resp.Body.Close()
		srv.Close()
	}
	return bufio.NewReader(resp.Body), closeAll
}

func TestStreamSendsConnectedThenReady(t *testing.T) {
	bus := event.NewBus(nil)
	h := New(bus, nil)

	reader, done := startStream(t, h, "")
	defer done()

	connected := readRecord(t, reader)
	require.Equal(t, "connected", connected.Event)
	var payload struct {
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal([]byte(connected.Data), &payload))
	require.NotEmpty(t, payload.Timestamp)

	ready := readRecord(t, reader)
	require.Equal(t, "ready", ready.Event)
}

func TestStreamForwardsBusEvents(t *testing.T) {
	bus := event.NewBus(nil)
	h := New(bus, nil)

	reader, done := startStream(t, h, "")
	defer done()

	readRecord(t, reader) // connected
	readRecord(t, reader) // ready

	msg := wall.Message{ID: "m1", Text: "Hi", Author: "Ana", Color: "pink", Timestamp: time.Now().UTC()}
	bus.Publish(wall.NewMessageCreated(msg))

	rec := readRecord(t, reader)
	require.Equal(t, "message:created", rec.Event)

	var got wall.Message
	require.NoError(t, json.Unmarshal([]byte(rec.Data), &got))
	require.Equal(t, "m1", got.ID)
	require.Equal(t, "Hi", got.Text)
	require.Equal(t, "Ana", got.Author)
	require.Equal(t, "pink", got.Color)
}

func TestStreamDeletePayloadIsJustID(t *testing.T) {
	bus := event.NewBus(nil)
	h := New(bus, nil)

	reader, done := startStream(t, h, "")
	defer done()

	readRecord(t, reader)
	readRecord(t, reader)

	bus.Publish(wall.NewMediaDeleted("f7"))

	rec := readRecord(t, reader)
	require.Equal(t, "media:deleted", rec.Event)
	require.JSONEq(t, `{"id":"f7"}`, rec.Data)
}

func TestStreamFiltersRequestedKinds(t *testing.T) {
	bus := event.NewBus(nil)
	h := New(bus, nil)

	reader, done := startStream(t, h, "?types=message:created")
	defer done()

	readRecord(t, reader)
	readRecord(t, reader)

	require.Equal(t, 1, bus.SubscriberCount(wall.EventMessageCreated))
	require.Zero(t, bus.SubscriberCount(wall.EventMediaDeleted))

	// An unsubscribed kind does not reach the stream; the subscribed
	// one right after it does.
	bus.Publish(wall.NewMediaDeleted("f1"))
	bus.Publish(wall.NewMessageCreated(wall.Message{ID: "m1"}))

	rec := readRecord(t, reader)
	require.Equal(t, "message:created", rec.Event)
}

func TestStreamSendsHeartbeats(t *testing.T) {
	bus := event.NewBus(nil)
	h := New(bus, nil)
	h.heartbeatInterval = 30 * time.Millisecond

	reader, done := startStream(t, h, "")
	defer done()

	readRecord(t, reader)
	readRecord(t, reader)

	beat := readRecord(t, reader)
	require.Equal(t, "heartbeat", beat.Event)
	require.Contains(t, beat.Data, "timestamp")
}

func TestClientAbortRestoresSubscriberCounts(t *testing.T) {
	bus := event.NewBus(nil)
	h := New(bus, nil)

	before := bus.SubscriberCount(wall.EventMessageCreated)

	reader, done := startStream(t, h, "")
	readRecord(t, reader)
	readRecord(t, reader)
	require.Equal(t, before+1, bus.SubscriberCount(wall.EventMessageCreated))

	done() // client abort

	require.Eventually(t, func() bool {
		return bus.SubscriberCount(wall.EventMessageCreated) == before
	}, time.Second, 10*time.Millisecond, "listeners leaked after abort")
}

func TestConnectionCleanupIsIdempotent(t *testing.T) {
	bus := event.NewBus(nil)
	conn := newConnection(bus, wall.AllEventKinds(), testLogger())
	require.Equal(t, 1, bus.SubscriberCount(wall.EventMediaUploaded))

	conn.cleanup()
	conn.cleanup()

	for _, kind := range wall.AllEventKinds() {
		require.Zero(t, bus.SubscriberCount(kind))
	}
}

func TestRequestedKindsParsing(t *testing.T) {
	require.Equal(t, wall.AllEventKinds(), requestedKinds(""))
	require.Equal(t, wall.AllEventKinds(), requestedKinds("bogus,also-bogus"))
	require.Equal(t,
		[]wall.EventKind{wall.EventMessageCreated, wall.EventMediaUploaded},
		requestedKinds("message:created, media:uploaded"))
}
