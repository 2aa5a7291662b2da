package ws

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kavelin/sona/internal/core/domain"
)

// Gateway is the client side of the signaling channel: one websocket to
// the relay server, speaking signal envelopes as JSON. Implements
// port.SignalingChannel.
type Gateway struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[domain.UserID][]*subscription

	closeOnce sync.Once
	done      chan struct{}
}

type subscription struct {
	fn func(domain.Signal)
}

// Dial connects to the relay server and starts the read pump. serverURL
// is the ws endpoint, e.g. "ws://localhost:8080/ws".
func Dial(ctx context.Context, serverURL string, userID domain.UserID) (*Gateway, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	q.Set("user_id", userID.String())
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	g := &Gateway{
		conn: conn,
		subs: make(map[domain.UserID][]*subscription),
		done: make(chan struct{}),
	}
	go g.readPump()
	return g, nil
}

func (g *Gateway) Send(_ context.Context, sig domain.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.conn.WriteJSON(sig)
}

func (g *Gateway) Subscribe(id domain.UserID, fn func(domain.Signal)) (func(), error) {
	sub := &subscription{fn: fn}
	g.mu.Lock()
	g.subs[id] = append(g.subs[id], sub)
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		list := g.subs[id]
		for i, s := range list {
			if s == sub {
				g.subs[id] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}, nil
}

func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		err = g.conn.Close()
	})
	return err
}

func (g *Gateway) readPump() {
	for {
		_, data, err := g.conn.ReadMessage()
		if err != nil {
			select {
			case <-g.done:
			default:
				log.Error().Err(err).Msg("signaling read")
			}
			return
		}

		sig, err := domain.DecodeSignal(data)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed signal")
			continue
		}

		g.mu.Lock()
		subs := append([]*subscription(nil), g.subs[sig.ReceiverID]...)
		g.mu.Unlock()
		for _, s := range subs {
			s.fn(sig)
		}
	}
}
