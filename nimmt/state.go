package nimmt

import (
	"fmt"

	"nimmt-lite/card"
)

// Player is one seat in a room. Hand is private to its owner.
type Player struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Hand           card.CardList `json:"hand"`
	CollectedCards card.CardList `json:"collectedCards"`
	// Score is BankedScore plus the bull heads in CollectedCards.
	Score int `json:"score"`
	// BankedScore carries penalties from finished rounds.
	BankedScore int  `json:"bankedScore"`
	Connected   bool `json:"connected"`
	IsBot       bool `json:"isBot"`
	// IsSubstitute marks a human who disconnected mid-game and is now played
	// by the server for the rest of the game.
	IsSubstitute bool `json:"isSubstitute,omitempty"`
	IsReady      bool `json:"isReady"`
}

func (p *Player) clone() *Player {
	cp := *p
	cp.Hand = p.Hand.Clone()
	cp.CollectedCards = p.CollectedCards.Clone()
	return &cp
}

// IsHuman reports whether the seat was taken by a person, even if the server
// now plays it.
func (p *Player) IsHuman() bool {
	return !p.IsBot || p.IsSubstitute
}

// RowChoice is present only while resolving: the player holding the turn's
// lowest card must pick a row to take.
type RowChoice struct {
	PlayerID string    `json:"playerId"`
	Card     card.Card `json:"card"`
}

type TurnInfo struct {
	Phase      Phase `json:"phase"`
	TurnNumber int   `json:"turnNumber"`
	// PlayedCards is authoritative and never broadcast in full while selecting.
	PlayedCards map[string]card.Card `json:"playedCards"`
	RowChoice   *RowChoice           `json:"rowChoice,omitempty"`
}

// WaitingForRowChoice returns the designated row chooser, if any.
func (ti TurnInfo) WaitingForRowChoice() string {
	if ti.RowChoice == nil {
		return ""
	}
	return ti.RowChoice.PlayerID
}

// CommittedPlayerIDs lists committed players in roster order.
func (s *GameState) CommittedPlayerIDs() []string {
	ids := make([]string, 0, len(s.TurnInfo.PlayedCards))
	for _, p := range s.Players {
		if _, ok := s.TurnInfo.PlayedCards[p.ID]; ok {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// GameState is the single persisted record of a room.
type GameState struct {
	Phase        Phase     `json:"phase"`
	Players      []*Player `json:"players"`
	TableRows    Rows      `json:"tableRows"`
	CurrentRound int       `json:"currentRound"`
	TurnInfo     TurnInfo  `json:"turnInfo"`
	Winner       string    `json:"winner,omitempty"`
	HostID       string    `json:"hostId,omitempty"`
	// PlacementOrder is transient: set while a resolution is broadcast and
	// cleared before the state is stored.
	PlacementOrder   []PlacementStep   `json:"placementOrder,omitempty"`
	PlayerSessionIDs map[string]string `json:"playerSessionIds,omitempty"`
	// BotSeq numbers added bots for display names.
	BotSeq int `json:"botSeq,omitempty"`
}

func NewGameState() *GameState {
	return &GameState{
		Phase: PhaseWaiting,
		TurnInfo: TurnInfo{
			Phase:       PhaseWaiting,
			PlayedCards: make(map[string]card.Card),
		},
		PlayerSessionIDs: make(map[string]string),
	}
}

func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Players = make([]*Player, len(s.Players))
	for i, p := range s.Players {
		cp.Players[i] = p.clone()
	}
	cp.TableRows = s.TableRows.Clone()
	cp.TurnInfo.PlayedCards = make(map[string]card.Card, len(s.TurnInfo.PlayedCards))
	for id, c := range s.TurnInfo.PlayedCards {
		cp.TurnInfo.PlayedCards[id] = c
	}
	if s.TurnInfo.RowChoice != nil {
		rc := *s.TurnInfo.RowChoice
		cp.TurnInfo.RowChoice = &rc
	}
	if s.PlacementOrder != nil {
		cp.PlacementOrder = append([]PlacementStep(nil), s.PlacementOrder...)
	}
	cp.PlayerSessionIDs = make(map[string]string, len(s.PlayerSessionIDs))
	for id, sid := range s.PlayerSessionIDs {
		cp.PlayerSessionIDs[id] = sid
	}
	return &cp
}

// Persistable returns a copy without transient broadcast-only fields.
func (s *GameState) Persistable() *GameState {
	cp := s.Clone()
	cp.PlacementOrder = nil
	return cp
}

func (s *GameState) Player(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *GameState) playerIndex(id string) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *GameState) setPhase(phase Phase) {
	s.Phase = phase
	s.TurnInfo.Phase = phase
}

// normalize fills maps that a decoded snapshot may carry as null.
func (s *GameState) normalize() {
	if s.TurnInfo.PlayedCards == nil {
		s.TurnInfo.PlayedCards = make(map[string]card.Card)
	}
	if s.PlayerSessionIDs == nil {
		s.PlayerSessionIDs = make(map[string]string)
	}
}

// Validate checks the structural invariants of a snapshot.
func (s *GameState) Validate() error {
	if !s.Phase.Valid() {
		return ErrInvalidState(fmt.Sprintf("unknown phase %q", s.Phase))
	}
	if s.TurnInfo.Phase != s.Phase {
		return ErrInvalidState(fmt.Sprintf("turn phase %q differs from phase %q", s.TurnInfo.Phase, s.Phase))
	}
	if (s.TurnInfo.RowChoice != nil) != (s.Phase == PhaseResolving) {
		return ErrInvalidState("row choice must be present exactly while resolving")
	}
	if len(s.TurnInfo.PlayedCards) > len(s.Players) {
		return ErrInvalidState("more played cards than players")
	}
	for id := range s.TurnInfo.PlayedCards {
		if s.Player(id) == nil {
			return ErrInvalidState(fmt.Sprintf("played card from unknown player %s", id))
		}
	}
	if (s.Winner != "") != (s.Phase == PhaseGameEnd) {
		return ErrInvalidState("winner must be set exactly at game end")
	}
	seen := make(map[string]bool, len(s.Players))
	for _, p := range s.Players {
		if seen[p.ID] {
			return ErrInvalidState(fmt.Sprintf("duplicate player %s", p.ID))
		}
		seen[p.ID] = true
		if want := p.BankedScore + p.CollectedCards.TotalBullHeads(); p.Score != want {
			return ErrInvalidState(fmt.Sprintf("player %s score %d, collected cards say %d", p.ID, p.Score, want))
		}
	}
	for i, row := range s.TableRows {
		if len(row) > MaxRowLength {
			return ErrInvalidState(fmt.Sprintf("row %d has %d cards", i, len(row)))
		}
		for j := 1; j < len(row); j++ {
			if row[j] <= row[j-1] {
				return ErrInvalidState(fmt.Sprintf("row %d is not ascending", i))
			}
		}
		if s.Phase.Started() && len(row) == 0 {
			return ErrInvalidState(fmt.Sprintf("row %d is empty after the deal", i))
		}
	}
	return nil
}
