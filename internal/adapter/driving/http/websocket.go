package http

import (
	"net/http"
	"time"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// TODO: restrict to the operator console origin once it has a fixed host
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSClient struct {
	id   string
	conn *websocket.Conn
}

func (c *WSClient) ID() string {
	return c.id
}

func (c *WSClient) SendEvent(ev domain.CallEvent) error {
	type eventDTO struct {
		ID            string    `json:"id"`
		CallID        string    `json:"callId"`
		State         string    `json:"state"`
		EdgeSessionID string    `json:"edgeSessionId,omitempty"`
		Reason        string    `json:"reason,omitempty"`
		At            time.Time `json:"at"`
	}

	dto := eventDTO{
		ID:            ev.ID.String(),
		CallID:        ev.CallID,
		State:         ev.State.String(),
		EdgeSessionID: ev.EdgeSessionID,
		Reason:        ev.Reason,
		At:            ev.At,
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(dto)
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

// ServeEvents streams call lifecycle events to an observer. The feed is
// read-only; anything the client sends is discarded.
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:   uuid.NewString(),
		conn: conn,
	}

	l := log.With().Str("client_id", client.id).Logger()
	if err := h.Hub.Register(client); err != nil {
		l.Warn().Err(err).Msg("Observer rejected")
		conn.Close()
		return
	}
	l.Info().Msg("Observer connected")

	defer func() {
		l.Info().Msg("Observer disconnected")
		h.Hub.Unregister(client)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
	}
}
