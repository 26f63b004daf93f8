package domain

import "time"

// CallEvent is published on every session state change.
type CallEvent struct {
	ID            EventID
	CallID        string
	State         CallState
	EdgeSessionID string
	Reason        string
	At            time.Time
}

func NewCallEvent(s *CallSession, reason string) CallEvent {
	return CallEvent{
		ID:            NewEventID(),
		CallID:        s.CallID,
		State:         s.State,
		EdgeSessionID: s.EdgeSessionID,
		Reason:        reason,
		At:            time.Now().UTC(),
	}
}
