package relay

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kavelin/sona/internal/core/domain"
)

// Client is one connected participant, as seen by the hub.
type Client interface {
	UserID() domain.UserID
	Deliver(sig domain.Signal) error
	Close() error
}

// Hub fans signal envelopes to connected clients. Unlike a chat room it
// never broadcasts: every envelope goes to the addressed receiver only.
// One hub serves many concurrent calls; the hub does not interpret
// signal types.
type Hub struct {
	mu         sync.Mutex
	clients    map[domain.UserID]Client
	forward    chan domain.Signal
	register   chan Client
	unregister chan Client
	quit       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[domain.UserID]Client),
		forward:    make(chan domain.Signal, 256),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
	}
}

// Forward queues a signal for delivery to its receiver. Drops the signal
// with a warning when the hub is saturated; signaling is at-least-once
// and senders recover via their own timeouts.
func (h *Hub) Forward(sig domain.Signal) {
	select {
	case h.forward <- sig:
	default:
		log.Warn().Str("type", string(sig.Type)).Msg("forward channel full, dropping signal")
	}
}

func (h *Hub) Register(c Client) {
	h.register <- c
}

func (h *Hub) Unregister(c Client) {
	h.unregister <- c
}

func (h *Hub) Stop() {
	close(h.quit)
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for id, client := range h.clients {
				client.Close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			// A reconnect replaces the previous connection.
			if prev, ok := h.clients[client.UserID()]; ok {
				prev.Close()
			}
			h.clients[client.UserID()] = client
			h.mu.Unlock()
			log.Info().Str("user_id", client.UserID().String()).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.UserID()]; ok && cur == client {
				delete(h.clients, client.UserID())
				client.Close()
				log.Info().Str("user_id", client.UserID().String()).Msg("client unregistered")
			}
			h.mu.Unlock()

		case sig := <-h.forward:
			h.deliver(sig)
		}
	}
}

func (h *Hub) deliver(sig domain.Signal) {
	h.mu.Lock()
	client, ok := h.clients[sig.ReceiverID]
	h.mu.Unlock()
	if !ok {
		log.Warn().
			Str("receiver_id", sig.ReceiverID.String()).
			Str("type", string(sig.Type)).
			Msg("receiver offline, dropping signal")
		return
	}
	if err := client.Deliver(sig); err != nil {
		log.Error().Err(err).Str("receiver_id", sig.ReceiverID.String()).Msg("deliver signal")
		h.mu.Lock()
		if cur, ok := h.clients[sig.ReceiverID]; ok && cur == client {
			delete(h.clients, sig.ReceiverID)
		}
		h.mu.Unlock()
		client.Close()
	}
}
