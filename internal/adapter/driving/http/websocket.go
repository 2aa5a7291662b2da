package handler

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kavelin/sona/internal/core/domain"
)

// WSClient adapts one websocket connection to relay.Client. Writes are
// serialized; gorilla allows a single concurrent writer.
type WSClient struct {
	userID domain.UserID
	conn   *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *WSClient) UserID() domain.UserID {
	return c.userID
}

func (c *WSClient) Deliver(sig domain.Signal) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(sig)
}

func (c *WSClient) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}

// ServeWS upgrades the connection and pumps inbound envelopes into the
// hub. The participant identifies itself with the user_id query
// parameter.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	client := &WSClient{userID: userID, conn: conn}

	l := log.With().Str("user_id", userID.String()).Logger()
	l.Info().Msg("client connected")

	h.Hub.Register(client)
	defer func() {
		l.Info().Msg("client disconnected")
		h.Hub.Unregister(client)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("unexpected close")
			}
			return
		}

		sig, err := domain.DecodeSignal(data)
		if err != nil {
			l.Warn().Err(err).Msg("dropping malformed signal")
			continue
		}
		// The envelope's sender is the connection's identity; clients
		// cannot forge signals for other participants.
		if sig.SenderID != userID {
			l.Warn().Str("claimed", sig.SenderID.String()).Msg("dropping mis-attributed signal")
			continue
		}
		h.Hub.Forward(sig)
	}
}
