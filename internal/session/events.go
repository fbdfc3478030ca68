package session

import "time"

// EventType identifies the type of session event.
type EventType string

const (
	EventConnected         EventType = "connected"
	EventDisconnected      EventType = "disconnected"
	EventHealthCheckFailed EventType = "health_check_failed"
)

// Event records a state change for a session.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// maxEventsPerSession limits the number of stored events per session id.
const maxEventsPerSession = 100

// emitEvent records an event in the session's ring and logs it.
// Events outlive the session so a dead device's history stays inspectable.
func (r *Registry) emitEvent(id string, eventType EventType, details string) {
	event := Event{
		SessionID: id,
		Type:      eventType,
		Details:   details,
		Timestamp: time.Now(),
	}

	r.eventsMu.Lock()
	events := append(r.events[id], event)
	if len(events) > maxEventsPerSession {
		events = events[len(events)-maxEventsPerSession:]
	}
	r.events[id] = events
	r.eventsMu.Unlock()

	r.log.Debug("event %s/%s: %s", id, eventType, details)
}

// Events returns the stored events for id, oldest first.
func (r *Registry) Events(id string) []Event {
	r.eventsMu.RLock()
	defer r.eventsMu.RUnlock()
	events := r.events[id]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}
