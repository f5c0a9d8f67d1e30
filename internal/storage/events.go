package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EventRecord is a journaled session event.
type EventRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	SwapID    string    `json:"swap_id,omitempty"`
	Type      string    `json:"type"`
	Status    string    `json:"status,omitempty"`
	Route     string    `json:"route,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordEvent appends an event. ID and CreatedAt are filled in when empty.
func (s *Storage) RecordEvent(ev *EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO swap_events (id, session_id, swap_id, event_type, status, route, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.SessionID,
		nullString(ev.SwapID),
		ev.Type,
		nullString(ev.Status),
		nullString(ev.Route),
		nullString(ev.Error),
		ev.CreatedAt.Unix(),
	)
	return err
}

// ListEvents returns events of a swap in the order they happened. An empty
// swapID lists the most recent events of any swap.
func (s *Storage) ListEvents(swapID string, limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if swapID == "" {
		rows, err = s.db.Query(`
			SELECT id, session_id, swap_id, event_type, status, route, error_message, created_at
			FROM (SELECT * FROM swap_events ORDER BY seq DESC LIMIT ?)
			ORDER BY seq ASC
		`, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, session_id, swap_id, event_type, status, route, error_message, created_at
			FROM (SELECT * FROM swap_events WHERE swap_id = ? ORDER BY seq DESC LIMIT ?)
			ORDER BY seq ASC
		`, swapID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		ev, err := scanEventRecord(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func scanEventRecord(row scanner) (*EventRecord, error) {
	var ev EventRecord
	var swapID, status, route, errMsg sql.NullString
	var createdAt int64

	err := row.Scan(&ev.ID, &ev.SessionID, &swapID, &ev.Type, &status, &route, &errMsg, &createdAt)
	if err != nil {
		return nil, err
	}

	ev.SwapID = swapID.String
	ev.Status = status.String
	ev.Route = route.String
	ev.Error = errMsg.String
	ev.CreatedAt = time.Unix(createdAt, 0)
	return &ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
