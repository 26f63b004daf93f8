package ws

import "github.com/Wyydra/callbridge/internal/core/domain"

// Client is one observer of the call event feed.
type Client interface {
	ID() string
	SendEvent(ev domain.CallEvent) error
	Close() error
}
