package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimmt-lite/apps/server/internal/codec"
	"nimmt-lite/apps/server/internal/lobby"
	"nimmt-lite/apps/server/internal/room"
	"nimmt-lite/apps/server/internal/store"
	"nimmt-lite/nimmt"
)

func newTestServer(t *testing.T, origins []string) (*httptest.Server, *Gateway, store.Service) {
	t.Helper()
	engine, err := nimmt.NewEngine(nimmt.DefaultConfig())
	require.NoError(t, err)
	st := store.NewMemoryService()

	gw := New(origins)
	lby := lobby.New(room.Deps{Engine: engine, Store: st, Send: gw.Send}, time.Hour)
	t.Cleanup(lby.StopAll)

	r := chi.NewRouter()
	gw.RegisterRoutes(r, lby)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, gw, st
}

func wsURL(srv *httptest.Server, roomID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + roomID + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) codec.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg codec.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestGateway_HandshakeJoinAndDisconnect(t *testing.T) {
	srv, gw, st := newTestServer(t, nil)
	conn := dial(t, wsURL(srv, "room-4242"))

	hello := read(t, conn)
	require.Equal(t, codec.TypeYourConnectionID, hello.Type)
	connID := hello.ID
	require.NotEmpty(t, connID)

	initial := read(t, conn)
	assert.Equal(t, codec.TypeStateWithConnectionID, initial.Type)
	assert.Equal(t, connID, initial.YourConnectionID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","name":"Alice"}`)))
	joined := read(t, conn)
	require.Equal(t, codec.TypeState, joined.Type)
	require.Len(t, joined.State.Players, 1)
	assert.Equal(t, connID, joined.State.Players[0].ID)
	assert.Equal(t, connID, joined.State.HostID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"playCard"}`)))
	bad := read(t, conn)
	assert.Equal(t, codec.TypeError, bad.Type)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		if gw.ConnectionCount() != 0 {
			return false
		}
		s, err := st.Load(context.Background(), "room-4242")
		return err == nil && len(s.Players) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_BroadcastReachesOtherConnections(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	a := dial(t, wsURL(srv, "room-1"))
	read(t, a)
	read(t, a)
	b := dial(t, wsURL(srv, "room-1"))
	read(t, b)
	read(t, b)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"join","name":"Alice"}`)))
	fromA := read(t, a)
	fromB := read(t, b)
	require.Len(t, fromB.State.Players, 1)
	assert.Equal(t, "Alice", fromB.State.Players[0].Name)
	assert.Equal(t, fromA.State.HostID, fromB.State.HostID)
}

func TestGateway_RejectsForeignOrigin(t *testing.T) {
	srv, _, _ := newTestServer(t, []string{"https://nimmt.example"})

	header := http.Header{"Origin": {"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "room-1"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": {"https://nimmt.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "room-1"), header)
	require.NoError(t, err)
	_ = conn.Close()
}
