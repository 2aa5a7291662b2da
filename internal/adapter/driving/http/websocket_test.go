package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavelin/sona/internal/adapter/driven/gateway/ws"
	"github.com/kavelin/sona/internal/core/domain"
	"github.com/kavelin/sona/internal/relay"
)

func startServer(t *testing.T) string {
	t.Helper()
	hub := relay.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(NewHandler(hub, nil).NewRouter())
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, id domain.UserID) *ws.Gateway {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g, err := ws.Dial(ctx, url, id)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestRelayRoundTrip(t *testing.T) {
	url := startServer(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	var mu sync.Mutex
	var got []domain.Signal
	unsub, err := bob.Subscribe("bob", func(sig domain.Signal) {
		mu.Lock()
		got = append(got, sig)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	sent := domain.NewCallRequest("c1", domain.Participant{ID: "alice", DisplayName: "Alice"}, "bob", domain.CallTypeVoice)
	require.NoError(t, alice.Send(context.Background(), sent))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, sent, got[0])
}

func TestRelayDropsMisattributedSignal(t *testing.T) {
	url := startServer(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	var mu sync.Mutex
	count := 0
	unsub, err := bob.Subscribe("bob", func(domain.Signal) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	// Alice claims to be Carol; the relay drops the envelope.
	forged := domain.Signal{
		Type: domain.SignalCallEnd, CallID: "c1",
		SenderID: "carol", ReceiverID: "bob",
	}
	require.NoError(t, alice.Send(context.Background(), forged))

	honest := domain.Signal{
		Type: domain.SignalCallEnd, CallID: "c1",
		SenderID: "alice", ReceiverID: "bob",
	}
	require.NoError(t, alice.Send(context.Background(), honest))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWSRequiresUserID(t *testing.T) {
	hub := relay.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(NewHandler(hub, nil).NewRouter())
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeWSFiltersOrigins(t *testing.T) {
	hub := relay.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(NewHandler(hub, []string{"https://app.sona.dev"}).NewRouter())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=alice"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://elsewhere.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://app.sona.dev"}})
	require.NoError(t, err)
	conn.Close()

	// No Origin header means a non-browser client; always admitted.
	conn, _, err = websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn.Close()
}
