package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mural-app/birthday-wall/internal/model/wall"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMaxFailures    = 5
)

// Handlers holds the typed callbacks for wire events. Nil entries are
// skipped. Each wire event kind maps to at most one callback.
type Handlers struct {
	OnConnected      func()
	OnMessageCreated func(wall.Message)
	OnMessageDeleted func(id string)
	OnMediaUploaded  func(wall.MediaWithURL)
	OnMediaDeleted   func(id string)
}

// Client maintains one live SSE subscription against the events
// endpoint, reconnecting with exponential backoff after stream
// failures. One Client means at most one open stream: Connect closes
// any previous stream first.
type Client struct {
	baseURL    string
	types      []wall.EventKind
	handlers   Handlers
	httpClient *http.Client
	logger     *slog.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxFailures    int

	mu             sync.Mutex
	state          State
	failures       int
	generation     int
	lifetime       context.Context
	cancelStream   context.CancelFunc
	reconnectTimer *time.Timer
}

// NewClient builds a connector for the given server base URL. An
// empty types slice subscribes to all four kinds.
func NewClient(baseURL string, types []wall.EventKind, handlers Handlers, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		types:          types,
		handlers:       handlers,
		httpClient:     &http.Client{},
		logger:         logger.With("component", "realtime"),
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		maxFailures:    defaultMaxFailures,
		state:          StateDisconnected,
	}
}

// State reports the connector's current FSM state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected is a synchronous point-in-time query, not a
// subscription.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect opens the stream. The ctx bounds the connector's lifetime:
// when it is canceled the stream closes for good, the Go analogue of
// a page unload.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	c.lifetime = ctx
	c.reconnectLocked()
	c.mu.Unlock()
}

// reconnectLocked opens a fresh stream off the stored lifetime ctx.
func (c *Client) reconnectLocked() {
	c.closeStreamLocked()
	c.stopTimerLocked()
	c.state = StateConnecting
	c.generation++
	gen := c.generation

	streamCtx, cancel := context.WithCancel(c.lifetime)
	c.cancelStream = cancel

	go c.run(streamCtx, gen)
}

// Disconnect cancels any pending reconnect and closes the active
// stream. It is idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeStreamLocked()
	c.stopTimerLocked()
	c.generation++ // orphan any in-flight goroutine
	c.state = StateDisconnected
	c.failures = 0
}

func (c *Client) closeStreamLocked() {
	if c.cancelStream != nil {
		c.cancelStream()
		c.cancelStream = nil
	}
}

func (c *Client) stopTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) streamURL() string {
	url := c.baseURL + "/api/events"
	if len(c.types) > 0 {
		names := make([]string, len(c.types))
		for i, t := range c.types {
			names[i] = string(t)
		}
		url += "?types=" + strings.Join(names, ",")
	}
	return url
}

// run owns one connection attempt from dial to stream end.
func (c *Client) run(ctx context.Context, gen int) {
	err := c.stream(ctx, gen)
	if ctx.Err() != nil {
		// Manual disconnect or lifetime ctx canceled; Disconnect
		// already set the state.
		return
	}
	c.onStreamDown(gen, err)
}

func (c *Client) stream(ctx context.Context, gen int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("events endpoint returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventName != "" {
				c.dispatch(gen, eventName, data)
			}
			eventName, data = "", ""
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("event stream closed by server")
}

// dispatch routes one wire event to its typed callback. A malformed
// payload is logged and dropped; it never takes the connection down.
func (c *Client) dispatch(gen int, eventName, data string) {
	switch eventName {
	case "connected":
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.state = StateConnected
		c.failures = 0
		c.mu.Unlock()
		if c.handlers.OnConnected != nil {
			c.handlers.OnConnected()
		}

	case "ready", "heartbeat":
		// Control events, nothing to surface.

	case string(wall.EventMessageCreated):
		var msg wall.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			c.logger.Error("malformed message:created payload", "error", err)
			return
		}
		if c.handlers.OnMessageCreated != nil {
			c.handlers.OnMessageCreated(msg)
		}

	case string(wall.EventMessageDeleted):
		if id, ok := c.parseID(data, "message:deleted"); ok && c.handlers.OnMessageDeleted != nil {
			c.handlers.OnMessageDeleted(id)
		}

	case string(wall.EventMediaUploaded):
		var media wall.MediaWithURL
		if err := json.Unmarshal([]byte(data), &media); err != nil {
			c.logger.Error("malformed media:uploaded payload", "error", err)
			return
		}
		if c.handlers.OnMediaUploaded != nil {
			c.handlers.OnMediaUploaded(media)
		}

	case string(wall.EventMediaDeleted):
		if id, ok := c.parseID(data, "media:deleted"); ok && c.handlers.OnMediaDeleted != nil {
			c.handlers.OnMediaDeleted(id)
		}
	}
}

func (c *Client) parseID(data, kind string) (string, bool) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		c.logger.Error("malformed "+kind+" payload", "error", err)
		return "", false
	}
	return payload.ID, true
}

// onStreamDown applies the failure input to the FSM and, unless the
// budget is spent, arms the backoff timer.
func (c *Client) onStreamDown(gen int, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return
	}

	if c.failures >= c.maxFailures {
		c.state = StateGivenUp
		c.logger.Error("giving up after repeated stream failures", "failures", c.maxFailures, "cause", cause)
		return
	}

	delay := c.initialBackoff << c.failures
	if delay > c.maxBackoff {
		delay = c.maxBackoff
	}
	c.failures++
	c.state = StateReconnecting
	c.logger.Warn("stream down, reconnecting", "attempt", c.failures, "delay", delay, "cause", cause)

	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen == c.generation && c.lifetime.Err() == nil {
			c.reconnectLocked()
		}
	})
}
