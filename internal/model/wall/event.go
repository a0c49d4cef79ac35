package wall

// EventKind names one of the four domain events fanned out to
// connected clients. The values double as SSE wire event names.
type EventKind string

const (
	EventMessageCreated EventKind = "message:created"
	EventMessageDeleted EventKind = "message:deleted"
	EventMediaUploaded  EventKind = "media:uploaded"
	EventMediaDeleted   EventKind = "media:deleted"
)

// AllEventKinds lists every domain event kind, in wire order.
func AllEventKinds() []EventKind {
	return []EventKind{
		EventMessageCreated,
		EventMessageDeleted,
		EventMediaUploaded,
		EventMediaDeleted,
	}
}

// ParseEventKind maps a wire name back to a kind.
func ParseEventKind(s string) (EventKind, bool) {
	switch EventKind(s) {
	case EventMessageCreated, EventMessageDeleted, EventMediaUploaded, EventMediaDeleted:
		return EventKind(s), true
	}
	return "", false
}

// Event is a closed tagged union over the four kinds. Exactly one
// payload field is set, matching Kind. Events are transient: produced
// once per successful write, never persisted.
type Event struct {
	Kind    EventKind
	Message *Message      // EventMessageCreated
	Media   *MediaWithURL // EventMediaUploaded
	ID      string        // EventMessageDeleted, EventMediaDeleted
}

// deletedPayload is the wire body for both deletion kinds.
type deletedPayload struct {
	ID string `json:"id"`
}

// Payload returns the JSON-serializable body for the event's kind.
func (e Event) Payload() any {
	switch e.Kind {
	case EventMessageCreated:
		return e.Message
	case EventMediaUploaded:
		return e.Media
	default:
		return deletedPayload{ID: e.ID}
	}
}

// NewMessageCreated builds a message:created event.
func NewMessageCreated(m Message) Event {
	return Event{Kind: EventMessageCreated, Message: &m}
}

// NewMessageDeleted builds a message:deleted event.
func NewMessageDeleted(id string) Event {
	return Event{Kind: EventMessageDeleted, ID: id}
}

// NewMediaUploaded builds a media:uploaded event.
func NewMediaUploaded(m MediaWithURL) Event {
	return Event{Kind: EventMediaUploaded, Media: &m}
}

// NewMediaDeleted builds a media:deleted event.
func NewMediaDeleted(id string) Event {
	return Event{Kind: EventMediaDeleted, ID: id}
}
