package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"nimmt-lite/apps/server/internal/codec"
	"nimmt-lite/apps/server/internal/directory"
	"nimmt-lite/apps/server/internal/store"
	"nimmt-lite/nimmt"
	"nimmt-lite/nimmt/bot"
)

var (
	ErrRoomClosed = errors.New("room closed")
	// ErrPersist wraps a failed snapshot write; the message that caused it
	// had no visible effect.
	ErrPersist = errors.New("could not save game state")
)

const (
	storeTimeout = 3 * time.Second
	leaveTimeout = 3 * time.Second
)

// SendFunc delivers one encoded message to one connection.
type SendFunc func(connID string, data []byte)

// Deps are the collaborators shared by every room.
type Deps struct {
	Engine  *nimmt.Engine
	Store   store.Service
	Planner *bot.Planner
	// Leaver may be nil when no directory is wired.
	Leaver directory.Leaver
	Send   SendFunc
}

// Room is one game room run as an actor: every inbound message, connection
// change and bot action is an Event handled one at a time by run().
type Room struct {
	ID string

	deps Deps
	log  zerolog.Logger

	mu         sync.RWMutex
	conns      map[string]struct{}
	timers     map[string]*time.Timer
	closed     bool
	stopOnce   sync.Once
	emptySince time.Time

	events chan Event
	done   chan struct{}
}

type EventType int

const (
	EventConnect EventType = iota
	EventMessage
	EventDisconnect
	EventBotTask
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventMessage:
		return "message"
	case EventDisconnect:
		return "disconnect"
	case EventBotTask:
		return "botTask"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

type Event struct {
	Type     EventType
	ConnID   string
	Msg      codec.ClientMessage
	Task     nimmt.BotTask
	Response chan error
}

func New(id string, deps Deps) *Room {
	r := &Room{
		ID:         id,
		deps:       deps,
		log:        log.With().Str("room", id).Logger(),
		conns:      make(map[string]struct{}),
		timers:     make(map[string]*time.Timer),
		emptySince: time.Now(),
		events:     make(chan Event, 256),
		done:       make(chan struct{}),
	}
	go r.run()
	r.log.Info().Msg("room actor started")
	return r
}

func (r *Room) run() {
	for {
		select {
		case e := <-r.events:
			err := r.handleEvent(e)
			if e.Response != nil {
				e.Response <- err
			}
		case <-r.done:
			r.log.Info().Msg("room actor stopped")
			return
		}
	}
}

// SubmitEvent queues e and waits for it to be handled.
func (r *Room) SubmitEvent(e Event) error {
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrRoomClosed
	}

	select {
	case r.events <- e:
	case <-r.done:
		return ErrRoomClosed
	}

	select {
	case err := <-e.Response:
		return err
	case <-r.done:
		return ErrRoomClosed
	}
}

func (r *Room) Connect(connID string) error {
	return r.SubmitEvent(Event{Type: EventConnect, ConnID: connID})
}

func (r *Room) Disconnect(connID string) error {
	return r.SubmitEvent(Event{Type: EventDisconnect, ConnID: connID})
}

func (r *Room) Message(connID string, msg codec.ClientMessage) error {
	return r.SubmitEvent(Event{Type: EventMessage, ConnID: connID, Msg: msg})
}

func (r *Room) handleEvent(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var err error
	switch e.Type {
	case EventConnect:
		err = r.handleConnect(ctx, e.ConnID)
	case EventMessage:
		err = r.handleMessage(ctx, e.ConnID, e.Msg)
	case EventDisconnect:
		err = r.handleDisconnect(ctx, e.ConnID)
	case EventBotTask:
		err = r.handleBotTask(ctx, e.Task)
	default:
		err = fmt.Errorf("unknown event type: %s", e.Type)
	}

	r.rearmLocked(ctx)
	r.updateEmptySinceLocked(time.Now())
	return err
}

// load returns the latest persisted state, first bringing it in line with
// the live connections: seats whose connection is gone are released, and a
// transition interrupted mid-way is finished.
func (r *Room) load(ctx context.Context, departing string) (*nimmt.GameState, error) {
	s, err := r.deps.Store.Load(ctx, r.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nimmt.NewGameState(), nil
	}
	if err != nil {
		return nil, err
	}

	for _, p := range append([]*nimmt.Player(nil), s.Players...) {
		if p.IsBot || !p.Connected || p.ID == departing {
			continue
		}
		if _, live := r.conns[p.ID]; live {
			continue
		}
		r.log.Info().Str("player", p.ID).Msg("releasing seat without connection")
		if err := r.disconnectPlayer(ctx, s, p.ID); err != nil {
			return nil, err
		}
	}

	resumed, err := r.deps.Engine.Resume(s, r.checkpoint(ctx, codec.TypeState))
	if err != nil {
		return nil, err
	}
	if resumed {
		r.log.Info().Str("phase", string(s.Phase)).Msg("resumed interrupted transition")
	}
	return s, nil
}

// checkpoint persists s and only then broadcasts it.
func (r *Room) checkpoint(ctx context.Context, msgType string) nimmt.Checkpoint {
	return func(s *nimmt.GameState) error {
		if err := r.deps.Store.Save(ctx, r.ID, s); err != nil {
			r.log.Error().Err(err).Str("phase", string(s.Phase)).Msg("persist failed")
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
		r.broadcastLocked(s, msgType)
		return nil
	}
}

func (r *Room) broadcastLocked(s *nimmt.GameState, msgType string) {
	for connID := range r.conns {
		view := codec.Project(s, connID)
		switch msgType {
		case codec.TypeBotAdded:
			r.deps.Send(connID, codec.EncodeBotAdded(view))
		default:
			r.deps.Send(connID, codec.EncodeState(view))
		}
	}
}

func (r *Room) handleConnect(ctx context.Context, connID string) error {
	r.conns[connID] = struct{}{}
	r.log.Debug().Str("conn", connID).Int("conns", len(r.conns)).Msg("connected")

	s, err := r.load(ctx, "")
	if err != nil {
		r.sendError(connID, err)
		return err
	}
	r.deps.Send(connID, codec.EncodeConnectionID(connID))
	r.deps.Send(connID, codec.EncodeStateWithConnectionID(codec.Project(s, connID), connID))
	return nil
}

func (r *Room) handleMessage(ctx context.Context, connID string, msg codec.ClientMessage) error {
	s, err := r.load(ctx, "")
	if err != nil {
		r.sendError(connID, err)
		return err
	}

	engine := r.deps.Engine
	cp := r.checkpoint(ctx, codec.TypeState)
	switch msg.Type {
	case codec.TypeJoin:
		err = engine.Join(s, connID, msg.Name, msg.SessionID, cp)
	case codec.TypeSetSessionID:
		err = engine.SetSessionID(s, connID, msg.SessionID, cp)
	case codec.TypeReady:
		err = engine.SetReady(s, connID, true, cp)
	case codec.TypeUnready:
		err = engine.SetReady(s, connID, false, cp)
	case codec.TypeAddBot:
		var added *nimmt.Player
		added, err = engine.AddBot(s, connID, r.checkpoint(ctx, codec.TypeBotAdded))
		if err == nil {
			r.log.Info().Str("bot", added.ID).Msg("bot added")
		}
	case codec.TypePlayCard:
		err = engine.PlayCard(s, connID, *msg.CardID, cp)
	case codec.TypeChooseRow:
		err = engine.ChooseRow(s, connID, *msg.RowIndex, cp)
	case codec.TypeStartGame:
		err = engine.StartGame(s, connID, cp)
		if err == nil {
			r.log.Info().Int("players", len(s.Players)).Msg("game started")
		}
	default:
		err = fmt.Errorf("%w: unknown type %q", codec.ErrMalformed, msg.Type)
	}
	if err != nil {
		r.sendError(connID, err)
		return err
	}
	return nil
}

func (r *Room) handleDisconnect(ctx context.Context, connID string) error {
	delete(r.conns, connID)
	r.log.Debug().Str("conn", connID).Int("conns", len(r.conns)).Msg("disconnected")

	// The departing seat is released once, below, not by reconciliation.
	s, err := r.load(ctx, connID)
	if err != nil {
		return err
	}
	return r.disconnectPlayer(ctx, s, connID)
}

func (r *Room) disconnectPlayer(ctx context.Context, s *nimmt.GameState, playerID string) error {
	res, err := r.deps.Engine.Disconnect(s, playerID, r.checkpoint(ctx, codec.TypeState))
	if !res.WasPlayer {
		return err
	}
	if err != nil {
		return err
	}
	r.log.Info().
		Str("player", playerID).
		Bool("removed", res.Removed).
		Str("phase", string(s.Phase)).
		Msg("player left")
	r.releaseSeat(playerID, res.SessionID)
	return nil
}

// releaseSeat tells the directory the session no longer occupies this room.
func (r *Room) releaseSeat(playerID, sessionID string) {
	if r.deps.Leaver == nil || sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := r.deps.Leaver.LeaveRoom(ctx, r.ID, sessionID); err != nil {
		r.log.Warn().Err(err).Str("player", playerID).Msg("directory leave failed")
	}
}

func (r *Room) handleBotTask(ctx context.Context, task nimmt.BotTask) error {
	if t := r.timers[task.Key()]; t != nil {
		t.Stop()
		delete(r.timers, task.Key())
	}

	s, err := r.load(ctx, "")
	if err != nil {
		return err
	}
	err = r.deps.Engine.ApplyBotTask(s, task, r.checkpoint(ctx, codec.TypeState))
	if errors.Is(err, nimmt.ErrStaleTask) {
		r.log.Debug().Str("task", task.Key()).Msg("discarded stale bot task")
		return nil
	}
	if err != nil {
		r.log.Warn().Err(err).Str("task", task.Key()).Msg("bot task failed")
		return err
	}
	r.log.Debug().Str("task", task.Key()).Msg("bot acted")
	return nil
}

// rearmLocked schedules a timer for every bot action the persisted state is
// waiting on and cancels timers that no longer match it.
func (r *Room) rearmLocked(ctx context.Context) {
	if r.deps.Planner == nil {
		return
	}
	s, err := r.deps.Store.Load(ctx, r.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Warn().Err(err).Msg("could not load state to schedule bots")
		}
		r.cancelTimersLocked()
		return
	}

	wanted := make(map[string]bool)
	for _, sc := range r.deps.Planner.Plan(s) {
		key := sc.Task.Key()
		wanted[key] = true
		if _, pending := r.timers[key]; pending {
			continue
		}
		task := sc.Task
		r.timers[key] = time.AfterFunc(sc.Delay, func() {
			if err := r.SubmitEvent(Event{Type: EventBotTask, Task: task}); err != nil && !errors.Is(err, ErrRoomClosed) {
				r.log.Debug().Err(err).Str("task", task.Key()).Msg("bot task returned error")
			}
		})
	}
	for key, t := range r.timers {
		if !wanted[key] {
			t.Stop()
			delete(r.timers, key)
		}
	}
}

func (r *Room) cancelTimersLocked() {
	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
	}
}

func (r *Room) sendError(connID string, err error) {
	switch {
	case errors.Is(err, ErrPersist):
		// already logged
	case nimmt.IsInvariantViolation(err):
		r.log.Warn().Err(err).Str("conn", connID).Msg("protocol violation")
	default:
		r.log.Debug().Err(err).Str("conn", connID).Msg("rejected")
	}
	msg := err.Error()
	if errors.Is(err, ErrPersist) {
		msg = ErrPersist.Error()
	}
	r.deps.Send(connID, codec.EncodeError(msg))
}

func (r *Room) updateEmptySinceLocked(now time.Time) {
	if len(r.conns) == 0 && len(r.timers) == 0 {
		if r.emptySince.IsZero() {
			r.emptySince = now
		}
		return
	}
	r.emptySince = time.Time{}
}

// IsIdleFor reports whether the room has had no connection and no pending
// bot action for at least ttl.
func (r *Room) IsIdleFor(ttl time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return true
	}
	if len(r.conns) > 0 || len(r.timers) > 0 || r.emptySince.IsZero() {
		return false
	}
	return time.Since(r.emptySince) >= ttl
}

func (r *Room) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Room) IsClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Stop shuts the actor down. Persisted state is kept.
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cancelTimersLocked()
	r.stopOnce.Do(func() {
		close(r.done)
	})
}
