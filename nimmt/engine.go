package nimmt

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"nimmt-lite/card"
)

const maxNameRunes = 20

// Checkpoint is called at every point where the state must be persisted and
// broadcast. A non-nil error aborts the operation; the caller discards the
// in-memory state and keeps whatever was last checkpointed.
type Checkpoint func(s *GameState) error

// Engine drives the room state machine over a GameState. It holds no room
// state itself, only rules and randomness.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand

	newBotID func() string
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
		newBotID: func() string { return "bot-" + uuid.NewString() },
	}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Join seats a connection in the waiting room. The first joiner becomes host
// and is implicitly ready.
func (e *Engine) Join(s *GameState, playerID, name, sessionID string, cp Checkpoint) error {
	if existing := s.Player(playerID); existing != nil {
		if s.Phase != PhaseWaiting {
			return ErrGameInProgress
		}
		if strings.TrimSpace(name) != "" {
			existing.Name = normalizeName(name, 0)
		}
		existing.Connected = true
		if sessionID != "" {
			s.PlayerSessionIDs[playerID] = sessionID
		}
		return cp(s)
	}
	if s.Phase != PhaseWaiting {
		return ErrGameInProgress
	}
	if len(s.Players) >= e.cfg.MaxPlayers {
		return ErrRoomFull
	}

	p := &Player{
		ID:        playerID,
		Name:      normalizeName(name, len(s.Players)+1),
		Connected: true,
	}
	if s.HostID == "" {
		s.HostID = playerID
		p.IsReady = true
	}
	s.Players = append(s.Players, p)
	if sessionID != "" {
		s.PlayerSessionIDs[playerID] = sessionID
	}
	return cp(s)
}

func normalizeName(raw string, seat int) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return fmt.Sprintf("Player %d", seat)
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	return name
}

// SetSessionID records the lobby session that reserved this seat.
func (e *Engine) SetSessionID(s *GameState, playerID, sessionID string, cp Checkpoint) error {
	if s.Player(playerID) == nil {
		return ErrNotJoined
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrEmptySessionID
	}
	s.PlayerSessionIDs[playerID] = sessionID
	return cp(s)
}

func (e *Engine) SetReady(s *GameState, playerID string, ready bool, cp Checkpoint) error {
	if s.Phase != PhaseWaiting {
		return ErrWrongPhase
	}
	p := s.Player(playerID)
	if p == nil {
		return ErrNotJoined
	}
	if playerID == s.HostID {
		ready = true
	}
	p.IsReady = ready
	return cp(s)
}

// AddBot seats a computer-controlled player. Host only, before the deal.
func (e *Engine) AddBot(s *GameState, requesterID string, cp Checkpoint) (*Player, error) {
	if s.Phase != PhaseWaiting {
		return nil, ErrWrongPhase
	}
	if s.Player(requesterID) == nil {
		return nil, ErrNotJoined
	}
	if requesterID != s.HostID {
		return nil, ErrNotHost
	}
	if len(s.Players) >= e.cfg.MaxPlayers {
		return nil, ErrRoomFull
	}
	s.BotSeq++
	bot := &Player{
		ID:        e.newBotID(),
		Name:      fmt.Sprintf("Bot %d", s.BotSeq),
		Connected: true,
		IsBot:     true,
		IsReady:   true,
	}
	s.Players = append(s.Players, bot)
	if err := cp(s); err != nil {
		return nil, err
	}
	return bot, nil
}

// StartGame deals a fresh game. From waiting it needs the host, enough
// players and every other human ready; from gameEnd it is a rematch with
// everyone still present.
func (e *Engine) StartGame(s *GameState, requesterID string, cp Checkpoint) error {
	switch s.Phase {
	case PhaseWaiting:
		if s.Player(requesterID) == nil {
			return ErrNotJoined
		}
		if requesterID != s.HostID {
			return ErrNotHost
		}
		if len(s.Players) < e.cfg.MinPlayers {
			return ErrNotEnoughPlayers
		}
		for _, p := range s.Players {
			if p.ID != s.HostID && !p.IsBot && !p.IsReady {
				return ErrPlayersNotReady
			}
		}
	case PhaseGameEnd:
		if s.Player(requesterID) == nil {
			return ErrNotJoined
		}
		if requesterID != s.HostID {
			return ErrNotHost
		}
		remaining := make([]*Player, 0, len(s.Players))
		for _, p := range s.Players {
			if p.IsSubstitute || !p.Connected {
				delete(s.PlayerSessionIDs, p.ID)
				continue
			}
			remaining = append(remaining, p)
		}
		if len(remaining) < e.cfg.MinPlayers {
			return ErrNotEnoughPlayers
		}
		s.Players = remaining
		s.Winner = ""
	default:
		return ErrGameInProgress
	}

	for _, p := range s.Players {
		p.CollectedCards = nil
		p.Score = 0
		p.BankedScore = 0
	}
	s.CurrentRound = 1
	e.dealRound(s)
	return cp(s)
}

// dealRound shuffles a fresh deck, lays four singleton rows and deals hands.
func (e *Engine) dealRound(s *GameState) {
	e.mu.Lock()
	deck := card.NewShuffledDeck(e.rng)
	e.mu.Unlock()

	var rows Rows
	for i := range rows {
		top, _ := deck.PopCards(1)
		rows[i] = top
	}
	for _, p := range s.Players {
		hand, _ := deck.PopCards(e.cfg.HandSize)
		p.Hand = hand.Sorted()
	}
	s.TableRows = rows
	s.PlacementOrder = nil
	s.TurnInfo = TurnInfo{
		TurnNumber:  1,
		PlayedCards: make(map[string]card.Card),
	}
	s.setPhase(PhaseSelecting)
}

// PlayCard commits, replaces or (same card again) retracts a player's card.
// The commit that completes the set reveals the turn.
func (e *Engine) PlayCard(s *GameState, playerID string, cardID int, cp Checkpoint) error {
	if s.Phase != PhaseSelecting {
		return ErrWrongPhase
	}
	p := s.Player(playerID)
	if p == nil {
		return ErrNotJoined
	}
	c, err := card.FromID(cardID)
	if err != nil || !p.Hand.Contains(c) {
		return ErrCardNotInHand
	}

	if prev, ok := s.TurnInfo.PlayedCards[playerID]; ok && prev == c {
		delete(s.TurnInfo.PlayedCards, playerID)
		return cp(s)
	}
	s.TurnInfo.PlayedCards[playerID] = c
	return e.afterCommit(s, cp)
}

func (e *Engine) afterCommit(s *GameState, cp Checkpoint) error {
	if len(s.TurnInfo.PlayedCards) < len(s.Players) {
		return cp(s)
	}
	s.setPhase(PhaseRevealing)
	if err := cp(s); err != nil {
		return err
	}
	return e.continueReveal(s, cp)
}

// continueReveal either hands the turn to the lowest card's owner for a row
// choice or resolves it outright.
func (e *Engine) continueReveal(s *GameState, cp Checkpoint) error {
	lowest, ok := lowestPlay(s.TurnInfo.PlayedCards)
	if !ok {
		return e.advance(s, cp)
	}
	if Locate(lowest.card, s.TableRows).Kind == PlacementTakeRow {
		s.TurnInfo.RowChoice = &RowChoice{PlayerID: lowest.playerID, Card: lowest.card}
		s.setPhase(PhaseResolving)
		return cp(s)
	}
	return e.resolve(s, NoRowChoice, cp)
}

// ChooseRow is the designated player's pick of the row to take.
func (e *Engine) ChooseRow(s *GameState, playerID string, rowIndex int, cp Checkpoint) error {
	if s.Phase != PhaseResolving {
		return ErrWrongPhase
	}
	if s.TurnInfo.WaitingForRowChoice() != playerID {
		return ErrNotRowChooser
	}
	if rowIndex < 0 || rowIndex >= TableRowCount {
		return ErrInvalidRowIndex
	}
	return e.resolve(s, rowIndex, cp)
}

func (e *Engine) resolve(s *GameState, rowChoice int, cp Checkpoint) error {
	result, err := ResolveTurn(s.TableRows, s.TurnInfo.PlayedCards, rowChoice)
	if err != nil {
		return err
	}

	s.TableRows = result.Rows
	for _, col := range result.Collections {
		p := s.Player(col.PlayerID)
		if p == nil {
			continue
		}
		p.CollectedCards = append(p.CollectedCards, col.Cards...)
		p.Score += col.Cards.TotalBullHeads()
	}
	for _, p := range s.Players {
		if played, ok := s.TurnInfo.PlayedCards[p.ID]; ok {
			p.Hand, _ = p.Hand.Remove(played)
		}
	}
	s.TurnInfo.RowChoice = nil
	s.PlacementOrder = result.PlacementOrder

	if e.gameOver(s) {
		s.Winner = lowestScorer(s.Players)
		s.setPhase(PhaseGameEnd)
		err := cp(s)
		s.PlacementOrder = nil
		return err
	}
	return e.advance(s, cp)
}

func (e *Engine) gameOver(s *GameState) bool {
	for _, p := range s.Players {
		if p.Score >= e.cfg.GameOverScore {
			return true
		}
	}
	return false
}

// lowestScorer returns the first player, in roster order, holding the
// minimal score.
func lowestScorer(players []*Player) string {
	var best *Player
	for _, p := range players {
		if best == nil || p.Score < best.Score {
			best = p
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// advance moves to the next turn, or closes the round and deals the next.
// The placement trace rides on the first checkpoint only.
func (e *Engine) advance(s *GameState, cp Checkpoint) error {
	if s.TurnInfo.TurnNumber < e.cfg.HandSize {
		s.TurnInfo.TurnNumber++
		s.TurnInfo.PlayedCards = make(map[string]card.Card)
		s.TurnInfo.RowChoice = nil
		s.setPhase(PhaseSelecting)
		err := cp(s)
		s.PlacementOrder = nil
		return err
	}

	s.setPhase(PhaseRoundEnd)
	err := cp(s)
	s.PlacementOrder = nil
	if err != nil {
		return err
	}
	return e.nextRound(s, cp)
}

func (e *Engine) nextRound(s *GameState, cp Checkpoint) error {
	for _, p := range s.Players {
		p.BankedScore = p.Score
		p.CollectedCards = nil
	}
	s.CurrentRound++
	e.dealRound(s)
	return cp(s)
}

// Resume drives forward a snapshot that was stored mid-transition, e.g. when
// a later write of the same message failed or the process stopped.
func (e *Engine) Resume(s *GameState, cp Checkpoint) (bool, error) {
	switch s.Phase {
	case PhaseRevealing:
		return true, e.continueReveal(s, cp)
	case PhaseRoundEnd:
		return true, e.nextRound(s, cp)
	default:
		return false, nil
	}
}

// DisconnectResult tells the caller what bookkeeping the departure needs.
type DisconnectResult struct {
	WasPlayer bool
	Removed   bool
	SessionID string
}

// Disconnect handles a closed connection. Before the deal the player leaves
// the roster; afterwards the seat is permanently played by the server. A
// pending card is auto-submitted (lowest id) and a pending row choice falls
// back to row 0.
func (e *Engine) Disconnect(s *GameState, playerID string, cp Checkpoint) (DisconnectResult, error) {
	idx := s.playerIndex(playerID)
	if idx < 0 {
		return DisconnectResult{}, nil
	}
	p := s.Players[idx]
	result := DisconnectResult{WasPlayer: true, SessionID: s.PlayerSessionIDs[playerID]}
	delete(s.PlayerSessionIDs, playerID)

	if s.Phase == PhaseWaiting {
		s.Players = append(s.Players[:idx], s.Players[idx+1:]...)
		result.Removed = true
		if s.HostID == playerID {
			e.promoteHost(s)
		}
		return result, cp(s)
	}

	if !p.Connected && p.IsBot {
		return result, nil
	}
	p.Connected = false
	p.IsBot = true
	p.IsSubstitute = true
	if s.HostID == playerID {
		e.promoteHost(s)
	}

	switch s.Phase {
	case PhaseSelecting:
		if _, committed := s.TurnInfo.PlayedCards[playerID]; !committed {
			if lowest, ok := p.Hand.Lowest(); ok {
				s.TurnInfo.PlayedCards[playerID] = lowest
				if err := e.afterCommit(s, cp); err != nil {
					return result, err
				}
				if s.Phase == PhaseResolving && s.TurnInfo.WaitingForRowChoice() == playerID {
					return result, e.resolve(s, SubstituteRow, cp)
				}
				return result, nil
			}
		}
	case PhaseResolving:
		if s.TurnInfo.WaitingForRowChoice() == playerID {
			return result, e.resolve(s, SubstituteRow, cp)
		}
	}
	return result, cp(s)
}

// promoteHost hands host rights to the next connected human in join order.
func (e *Engine) promoteHost(s *GameState) {
	s.HostID = ""
	for _, p := range s.Players {
		if p.Connected && !p.IsBot {
			s.HostID = p.ID
			p.IsReady = true
			return
		}
	}
}
