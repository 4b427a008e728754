package service

// EventType defines the type of event
type EventType string

const (
	EventRequestReceived EventType = "request_received"
	EventRequestMapped   EventType = "request_mapped"
	EventRequestFailed   EventType = "request_failed"
	EventRequestDone     EventType = "request_done"
	EventDomainChanged   EventType = "domain_changed"
	EventViewUpdated     EventType = "view_updated"
	EventDeployment      EventType = "deployment"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventName returns the type as the event's stream name, so SSE
// consumers can subscribe per orchestrator event kind.
func (e Event) EventName() string { return string(e.Type) }

// EventBus allows publishing and subscribing to events
type EventBus struct {
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
