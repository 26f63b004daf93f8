package ws

import (
	"context"
	"errors"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/rs/zerolog/log"
)

const broadcastBuffer = 256

var ErrHubStopped = errors.New("hub stopped")

// Hub fans call events out to observers. It implements port.EventPublisher.
// All client state is owned by the Run loop.
type Hub struct {
	clients    map[Client]bool
	broadcast  chan domain.CallEvent
	register   chan Client
	unregister chan Client
	quit       chan struct{}
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]bool),
		broadcast:  make(chan domain.CallEvent, broadcastBuffer),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// PublishCallEvent never blocks a call flow. Events are dropped when the
// buffer is full.
func (h *Hub) PublishCallEvent(ctx context.Context, ev domain.CallEvent) error {
	select {
	case <-h.quit:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- ev:
		return nil
	default:
		log.Warn().Str("call_id", ev.CallID).Msg("Broadcast channel full, dropping call event")
		return nil
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			log.Info().Str("client_id", client.ID()).Int("count", len(h.clients)).Msg("Observer registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				log.Info().Str("client_id", client.ID()).Int("count", len(h.clients)).Msg("Observer unregistered")
			}

		case ev := <-h.broadcast:
			for client := range h.clients {
				if err := client.SendEvent(ev); err != nil {
					log.Error().Err(err).Str("client_id", client.ID()).Msg("Error sending call event, dropping observer")
					client.Close()
					delete(h.clients, client)
				}
			}
		}
	}
}

func (h *Hub) Register(c Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.quit:
		return ErrHubStopped
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Stop closes every observer and waits for Run to return.
func (h *Hub) Stop() {
	close(h.quit)
	<-h.done
}
