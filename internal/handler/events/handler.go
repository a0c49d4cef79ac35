package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mural-app/birthday-wall/internal/event"
	"github.com/mural-app/birthday-wall/internal/model/wall"
	"github.com/mural-app/birthday-wall/pkg/utils"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultSafetyTimeout     = 5 * time.Minute

	// eventBuffer decouples bus publishers from the connection's
	// writer goroutine. Publish never blocks; a client that cannot
	// drain this many events loses the overflow and resyncs on its
	// next refresh.
	eventBuffer = 64
)

// Handler bridges the event bus to HTTP clients over Server-Sent
// Events. One stream per accepted connection; streams share nothing
// but the bus itself.
type Handler struct {
	bus    *event.Bus
	logger *slog.Logger

	heartbeatInterval time.Duration
	safetyTimeout     time.Duration
}

// New creates the SSE handler.
func New(bus *event.Bus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		bus:               bus,
		logger:            logger.With("component", "sse"),
		heartbeatInterval: defaultHeartbeatInterval,
		safetyTimeout:     defaultSafetyTimeout,
	}
}

// RegisterRoutes mounts the stream route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleStream)
}

type timestampPayload struct {
	Timestamp string `json:"timestamp"`
}

func now() timestampPayload {
	return timestampPayload{Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	kinds := requestedKinds(r.URL.Query().Get("types"))
	utils.SetupSSEHeaders(w)

	// connected means the socket is open; events published before the
	// subscriptions below can still be missed.
	if err := utils.WriteSSEEvent(w, flusher, "connected", now()); err != nil {
		return
	}

	conn := newConnection(h.bus, kinds, h.logger)
	defer conn.cleanup()

	// ready means every subscription is registered: nothing published
	// from this point on is missed while the stream stays open.
	if err := utils.WriteSSEEvent(w, flusher, "ready", map[string]string{"status": "listeners_registered"}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()
	safety := time.NewTimer(h.safetyTimeout)
	defer safety.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-safety.C:
			// Backstop for an abort that somehow never surfaced
			// through the context.
			if ctx.Err() != nil {
				return
			}

		case <-heartbeat.C:
			if err := utils.WriteSSEEvent(w, flusher, "heartbeat", now()); err != nil {
				h.logger.Debug("heartbeat failed, closing stream", "error", err)
				return
			}

		case evt := <-conn.events:
			payload, err := json.Marshal(evt.Payload())
			if err != nil {
				h.logger.Error("dropping unserializable event", "kind", string(evt.Kind), "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// requestedKinds parses the types query parameter; unknown names are
// ignored and an empty parameter means all four kinds.
func requestedKinds(raw string) []wall.EventKind {
	if strings.TrimSpace(raw) == "" {
		return wall.AllEventKinds()
	}

	kinds := make([]wall.EventKind, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		if kind, ok := wall.ParseEventKind(strings.TrimSpace(part)); ok {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return wall.AllEventKinds()
	}
	return kinds
}

// connection holds one stream's bus subscriptions and its event
// buffer. cleanup is idempotent, guarded by the active flag.
type connection struct {
	mu     sync.Mutex
	active bool

	bus    *event.Bus
	subs   []event.Subscription
	events chan wall.Event
	logger *slog.Logger
}

func newConnection(bus *event.Bus, kinds []wall.EventKind, logger *slog.Logger) *connection {
	c := &connection{
		active: true,
		bus:    bus,
		events: make(chan wall.Event, eventBuffer),
		logger: logger,
	}
	for _, kind := range kinds {
		c.subs = append(c.subs, bus.Subscribe(kind, c.enqueue))
	}
	return c
}

// enqueue runs on the publisher's goroutine and must never block it.
func (c *connection) enqueue(evt wall.Event) {
	select {
	case c.events <- evt:
	default:
		c.logger.Warn("stream buffer full, dropping event", "kind", string(evt.Kind))
	}
}

func (c *connection) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.active = false
	for _, sub := range c.subs {
		c.bus.Unsubscribe(sub)
	}
}
