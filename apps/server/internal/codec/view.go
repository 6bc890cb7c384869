package codec

import (
	"nimmt-lite/card"
	"nimmt-lite/nimmt"
)

// StateView is what one viewer may see of a room. It is built field by
// field; nothing is copied from GameState wholesale.
type StateView struct {
	Phase          nimmt.Phase           `json:"phase"`
	Players        []PlayerView          `json:"players"`
	TableRows      nimmt.Rows            `json:"tableRows"`
	CurrentRound   int                   `json:"currentRound"`
	TurnInfo       TurnInfoView          `json:"turnInfo"`
	Winner         string                `json:"winner,omitempty"`
	HostID         string                `json:"hostId,omitempty"`
	PlacementOrder []nimmt.PlacementStep `json:"placementOrder,omitempty"`
	// MyCommittedCard is the viewer's own pending card while selecting.
	MyCommittedCard *card.Card `json:"myCommittedCard,omitempty"`
}

type PlayerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Hand is present only in the owner's view.
	Hand           card.CardList `json:"hand,omitempty"`
	HandCount      int           `json:"handCount"`
	CollectedCards card.CardList `json:"collectedCards"`
	Score          int           `json:"score"`
	Connected      bool          `json:"connected"`
	IsBot          bool          `json:"isBot"`
	IsReady        bool          `json:"isReady"`
}

type TurnInfoView struct {
	Phase      nimmt.Phase `json:"phase"`
	TurnNumber int         `json:"turnNumber"`
	// PlayedCards is only sent once the turn is revealed.
	PlayedCards map[string]card.Card `json:"playedCards,omitempty"`
	// While selecting, only who has committed is visible.
	CommittedCount      *int     `json:"committedCount,omitempty"`
	CommittedPlayerIDs  []string `json:"committedPlayerIds,omitempty"`
	WaitingForRowChoice string   `json:"waitingForRowChoice,omitempty"`
	// LowestCardPlayer holds the turn's lowest card; it is the row chooser.
	LowestCardPlayer string     `json:"lowestCardPlayer,omitempty"`
	RowChoiceCard    *card.Card `json:"rowChoiceCard,omitempty"`
}

// Project builds viewerID's view of s. An unknown viewer gets the public
// view only.
func Project(s *nimmt.GameState, viewerID string) StateView {
	view := StateView{
		Phase:        s.Phase,
		Players:      make([]PlayerView, 0, len(s.Players)),
		TableRows:    s.TableRows.Clone(),
		CurrentRound: s.CurrentRound,
		Winner:       s.Winner,
		HostID:       s.HostID,
	}
	if len(s.PlacementOrder) > 0 {
		view.PlacementOrder = append([]nimmt.PlacementStep(nil), s.PlacementOrder...)
	}

	for _, p := range s.Players {
		pv := PlayerView{
			ID:             p.ID,
			Name:           p.Name,
			HandCount:      len(p.Hand),
			CollectedCards: p.CollectedCards.Clone(),
			Score:          p.Score,
			Connected:      p.Connected,
			IsBot:          p.IsBot,
			IsReady:        p.IsReady,
		}
		if pv.CollectedCards == nil {
			pv.CollectedCards = card.CardList{}
		}
		if p.ID == viewerID {
			pv.Hand = p.Hand.Clone()
		}
		view.Players = append(view.Players, pv)
	}

	ti := TurnInfoView{
		Phase:      s.TurnInfo.Phase,
		TurnNumber: s.TurnInfo.TurnNumber,
	}
	if s.Phase == nimmt.PhaseSelecting {
		count := len(s.TurnInfo.PlayedCards)
		ti.CommittedCount = &count
		ti.CommittedPlayerIDs = s.CommittedPlayerIDs()
		if c, ok := s.TurnInfo.PlayedCards[viewerID]; ok {
			own := c
			view.MyCommittedCard = &own
		}
	} else if len(s.TurnInfo.PlayedCards) > 0 {
		ti.PlayedCards = make(map[string]card.Card, len(s.TurnInfo.PlayedCards))
		for id, c := range s.TurnInfo.PlayedCards {
			ti.PlayedCards[id] = c
		}
	}
	if rc := s.TurnInfo.RowChoice; rc != nil {
		ti.WaitingForRowChoice = rc.PlayerID
		ti.LowestCardPlayer = rc.PlayerID
		c := rc.Card
		ti.RowChoiceCard = &c
	}
	view.TurnInfo = ti
	return view
}
