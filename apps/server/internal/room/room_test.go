package room

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimmt-lite/apps/server/internal/codec"
	"nimmt-lite/apps/server/internal/store"
	"nimmt-lite/nimmt"
	"nimmt-lite/nimmt/bot"
)

type outbox struct {
	mu   sync.Mutex
	msgs map[string][]codec.ServerMessage
}

func newOutbox() *outbox {
	return &outbox{msgs: make(map[string][]codec.ServerMessage)}
}

func (o *outbox) send(connID string, data []byte) {
	var msg codec.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		panic(err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs[connID] = append(o.msgs[connID], msg)
}

func (o *outbox) of(connID string) []codec.ServerMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]codec.ServerMessage(nil), o.msgs[connID]...)
}

func (o *outbox) last(connID string) codec.ServerMessage {
	msgs := o.of(connID)
	if len(msgs) == 0 {
		return codec.ServerMessage{}
	}
	return msgs[len(msgs)-1]
}

type leaveCall struct{ roomID, sessionID string }

type recordingLeaver struct {
	mu    sync.Mutex
	calls []leaveCall
}

func (l *recordingLeaver) LeaveRoom(_ context.Context, roomID, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, leaveCall{roomID, sessionID})
	return nil
}

func (l *recordingLeaver) snapshot() []leaveCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]leaveCall(nil), l.calls...)
}

// flakyStore fails every Save while failing is set.
type flakyStore struct {
	store.Service
	mu      sync.Mutex
	failing bool
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

func (f *flakyStore) Save(ctx context.Context, roomID string, s *nimmt.GameState) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("disk on fire")
	}
	return f.Service.Save(ctx, roomID, s)
}

type fixture struct {
	room   *Room
	store  store.Service
	out    *outbox
	leaver *recordingLeaver
}

func newFixture(t *testing.T, st store.Service) *fixture {
	t.Helper()
	cfg := nimmt.DefaultConfig()
	cfg.Seed = 11
	engine, err := nimmt.NewEngine(cfg)
	require.NoError(t, err)

	if st == nil {
		st = store.NewMemoryService()
	}
	f := &fixture{store: st, out: newOutbox(), leaver: &recordingLeaver{}}
	f.room = New("room-1234", Deps{
		Engine:  engine,
		Store:   st,
		Planner: bot.NewPlanner(bot.NewRandomBrain(3), time.Millisecond, 2*time.Millisecond, 7),
		Leaver:  f.leaver,
		Send:    f.out.send,
	})
	t.Cleanup(f.room.Stop)
	return f
}

func (f *fixture) state(t *testing.T) *nimmt.GameState {
	t.Helper()
	s, err := f.store.Load(context.Background(), f.room.ID)
	require.NoError(t, err)
	return s
}

func (f *fixture) join(t *testing.T, connID, name, session string) {
	t.Helper()
	require.NoError(t, f.room.Connect(connID))
	require.NoError(t, f.room.Message(connID, codec.ClientMessage{Type: codec.TypeJoin, Name: name, SessionID: session}))
}

func intPtr(v int) *int { return &v }

func TestRoom_ConnectHandshake(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.room.Connect("c1"))

	msgs := f.out.of("c1")
	require.Len(t, msgs, 2)
	assert.Equal(t, codec.TypeYourConnectionID, msgs[0].Type)
	assert.Equal(t, "c1", msgs[0].ID)
	assert.Equal(t, codec.TypeStateWithConnectionID, msgs[1].Type)
	assert.Equal(t, "c1", msgs[1].YourConnectionID)
	require.NotNil(t, msgs[1].State)
	assert.Equal(t, nimmt.PhaseWaiting, msgs[1].State.Phase)
	assert.Equal(t, 1, f.room.ConnCount())
}

func TestRoom_JoinBroadcastsAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.room.Connect("spectator"))
	f.join(t, "c1", "Alice", "s_a")

	s := f.state(t)
	require.Len(t, s.Players, 1)
	assert.Equal(t, "c1", s.HostID)
	assert.Equal(t, "s_a", s.PlayerSessionIDs["c1"])

	for _, conn := range []string{"spectator", "c1"} {
		last := f.out.last(conn)
		assert.Equal(t, codec.TypeState, last.Type, conn)
		require.NotNil(t, last.State)
		require.Len(t, last.State.Players, 1)
		assert.Equal(t, "Alice", last.State.Players[0].Name)
	}
}

func TestRoom_ErrorsGoOnlyToSender(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "c1", "Alice", "s_a")
	f.join(t, "c2", "Bob", "s_b")
	before := len(f.out.of("c1"))

	err := f.room.Message("c2", codec.ClientMessage{Type: codec.TypeStartGame})
	require.ErrorIs(t, err, nimmt.ErrNotHost)

	last := f.out.last("c2")
	assert.Equal(t, codec.TypeError, last.Type)
	assert.Equal(t, nimmt.ErrNotHost.Error(), last.Message)
	assert.Len(t, f.out.of("c1"), before)
}

func TestRoom_AddBotUsesBotAddedMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "c1", "Alice", "s_a")
	require.NoError(t, f.room.Message("c1", codec.ClientMessage{Type: codec.TypeAddBot}))

	last := f.out.last("c1")
	assert.Equal(t, codec.TypeBotAdded, last.Type)
	require.NotNil(t, last.State)
	require.Len(t, last.State.Players, 2)
	assert.True(t, last.State.Players[1].IsBot)
}

func TestRoom_BotsPlayAlongsideHuman(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "c1", "Alice", "s_a")
	require.NoError(t, f.room.Message("c1", codec.ClientMessage{Type: codec.TypeAddBot}))
	require.NoError(t, f.room.Message("c1", codec.ClientMessage{Type: codec.TypeAddBot}))
	require.NoError(t, f.room.Message("c1", codec.ClientMessage{Type: codec.TypeStartGame}))

	// Both bots commit on their own; the turn waits for the human.
	require.Eventually(t, func() bool {
		return len(f.state(t).TurnInfo.PlayedCards) == 2
	}, 2*time.Second, 5*time.Millisecond)
	s := f.state(t)
	assert.Equal(t, nimmt.PhaseSelecting, s.Phase)
	assert.NotContains(t, s.TurnInfo.PlayedCards, "c1")

	view := f.out.last("c1").State
	require.NotNil(t, view)
	require.NotNil(t, view.TurnInfo.CommittedCount)
	assert.Nil(t, view.TurnInfo.PlayedCards)

	lowest, ok := s.Player("c1").Hand.Lowest()
	require.True(t, ok)
	require.NoError(t, f.room.Message("c1", codec.ClientMessage{Type: codec.TypePlayCard, CardID: intPtr(lowest.ID())}))

	require.Eventually(t, func() bool {
		s := f.state(t)
		return s.Phase == nimmt.PhaseSelecting && s.TurnInfo.TurnNumber == 2 || s.Phase == nimmt.PhaseResolving
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRoom_DisconnectedHostIsSubstitutedAndGameFinishes(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "c1", "Alice", "s_a")
	require.NoError(t, f.room.Message("c1", codec.ClientMessage{Type: codec.TypeAddBot}))
	require.NoError(t, f.room.Message("c1", codec.ClientMessage{Type: codec.TypeStartGame}))
	require.NoError(t, f.room.Disconnect("c1"))

	assert.Equal(t, []leaveCall{{"room-1234", "s_a"}}, f.leaver.snapshot())

	require.Eventually(t, func() bool {
		return f.state(t).Phase == nimmt.PhaseGameEnd
	}, 10*time.Second, 10*time.Millisecond)

	s := f.state(t)
	alice := s.Player("c1")
	require.NotNil(t, alice)
	assert.True(t, alice.IsSubstitute)
	assert.False(t, alice.Connected)
	assert.NotEmpty(t, s.Winner)
	for _, p := range s.Players {
		assert.Less(t, s.Player(s.Winner).Score, p.Score+1)
	}
}

func TestRoom_DisconnectInWaitingRemovesPlayer(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "c1", "Alice", "s_a")
	f.join(t, "c2", "Bob", "s_b")
	require.NoError(t, f.room.Disconnect("c1"))

	s := f.state(t)
	require.Len(t, s.Players, 1)
	assert.Equal(t, "c2", s.HostID)
	assert.Equal(t, []leaveCall{{"room-1234", "s_a"}}, f.leaver.snapshot())

	// Spectators leave without touching the directory.
	require.NoError(t, f.room.Connect("watcher"))
	require.NoError(t, f.room.Disconnect("watcher"))
	assert.Len(t, f.leaver.snapshot(), 1)
}

func TestRoom_PersistFailureHasNoVisibleEffect(t *testing.T) {
	st := &flakyStore{Service: store.NewMemoryService()}
	f := newFixture(t, st)
	f.join(t, "c1", "Alice", "s_a")
	require.NoError(t, f.room.Connect("c2"))
	seen := len(f.out.of("c1"))

	st.setFailing(true)
	err := f.room.Message("c2", codec.ClientMessage{Type: codec.TypeJoin, Name: "Bob"})
	require.ErrorIs(t, err, ErrPersist)

	assert.Len(t, f.out.of("c1"), seen)
	last := f.out.last("c2")
	assert.Equal(t, codec.TypeError, last.Type)
	assert.Equal(t, ErrPersist.Error(), last.Message)

	st.setFailing(false)
	assert.Len(t, f.state(t).Players, 1)
}

func TestRoom_RestoresPersistedGameWithoutConnections(t *testing.T) {
	st := store.NewMemoryService()
	cfg := nimmt.DefaultConfig()
	cfg.Seed = 2
	engine, err := nimmt.NewEngine(cfg)
	require.NoError(t, err)

	// A game persisted by a previous process: one human still marked
	// connected, one bot.
	noop := func(*nimmt.GameState) error { return nil }
	s := nimmt.NewGameState()
	require.NoError(t, engine.Join(s, "old-conn", "Alice", "s_a", noop))
	_, err = engine.AddBot(s, "old-conn", noop)
	require.NoError(t, err)
	require.NoError(t, engine.StartGame(s, "old-conn", noop))
	require.NoError(t, st.Save(context.Background(), "room-1234", s))

	f := newFixture(t, st)
	require.NoError(t, f.room.Connect("fresh"))

	restored := f.state(t)
	alice := restored.Player("old-conn")
	require.NotNil(t, alice)
	assert.False(t, alice.Connected)
	assert.True(t, alice.IsSubstitute)
	assert.Equal(t, []leaveCall{{"room-1234", "s_a"}}, f.leaver.snapshot())

	// With every seat server-played the turn keeps moving.
	require.Eventually(t, func() bool {
		s := f.state(t)
		return s.TurnInfo.TurnNumber > 1 || s.CurrentRound > 1 || s.Phase == nimmt.PhaseGameEnd
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRoom_IdleAndStop(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.room.Connect("c1"))
	assert.False(t, f.room.IsIdleFor(0))

	require.NoError(t, f.room.Disconnect("c1"))
	assert.True(t, f.room.IsIdleFor(0))
	assert.False(t, f.room.IsIdleFor(time.Hour))

	f.room.Stop()
	assert.True(t, f.room.IsClosed())
	assert.ErrorIs(t, f.room.Connect("c2"), ErrRoomClosed)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) lines(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, line := range strings.Split(b.buf.String(), "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}

func TestRoom_DisconnectReleasesSeatOnce(t *testing.T) {
	logs := &lockedBuffer{}
	prev := log.Logger
	log.Logger = zerolog.New(logs)
	t.Cleanup(func() { log.Logger = prev })

	f := newFixture(t, nil)
	f.join(t, "c1", "Alice", "s_a")
	f.join(t, "c2", "Bob", "s_b")
	require.NoError(t, f.room.Message("c2", codec.ClientMessage{Type: codec.TypeReady}))
	require.NoError(t, f.room.Message("c1", codec.ClientMessage{Type: codec.TypeStartGame}))

	require.NoError(t, f.room.Disconnect("c2"))

	assert.Equal(t, 1, logs.lines(`"player":"c2"`+","+`"removed":false`))
	assert.Equal(t, []leaveCall{{"room-1234", "s_b"}}, f.leaver.snapshot())
	bob := f.state(t).Player("c2")
	require.NotNil(t, bob)
	assert.True(t, bob.IsSubstitute)
	assert.Len(t, f.state(t).TurnInfo.PlayedCards, 1)
}
