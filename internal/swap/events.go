package swap

import "time"

// EventType identifies a session event.
type EventType string

const (
	EventSummaryChanged   EventType = "summary_changed"
	EventTransactionError EventType = "transaction_error"
	EventFileRejected     EventType = "file_rejected"
	EventRouteRedirect    EventType = "route_redirect"
	EventPollingStarted   EventType = "polling_started"
	EventPollingStopped   EventType = "polling_stopped"
	EventSessionReset     EventType = "session_reset"
)

// Event describes a change of session state. Transaction and Summary are
// shared with the session and must not be modified.
type Event struct {
	Type        EventType    `json:"type"`
	SessionID   string       `json:"session_id"`
	SwapID      string       `json:"swap_id,omitempty"`
	Status      Status       `json:"status"`
	Route       Route        `json:"route"`
	Summary     *Summary     `json:"summary,omitempty"`
	Transaction *Transaction `json:"-"`
	Error       string       `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// EventHandler handles session events. Handlers run synchronously, in
// registration order, outside the session lock.
type EventHandler func(Event)
