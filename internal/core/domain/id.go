package domain

import (
	"github.com/google/uuid"
)

// SessionRef tells apart two sessions that reused the same call id.
type SessionRef uuid.UUID

func NewSessionRef() SessionRef {
	return SessionRef(uuid.New())
}

func (r SessionRef) String() string {
	return uuid.UUID(r).String()
}

type EventID uuid.UUID

func NewEventID() EventID {
	return EventID(uuid.New())
}

func (id EventID) String() string {
	return uuid.UUID(id).String()
}
