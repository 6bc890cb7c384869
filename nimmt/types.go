package nimmt

import "nimmt-lite/card"

// Phase 游戏阶段
type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseSelecting Phase = "selecting"
	PhaseRevealing Phase = "revealing"
	PhaseResolving Phase = "resolving"
	PhaseRoundEnd  Phase = "roundEnd"
	PhaseGameEnd   Phase = "gameEnd"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseSelecting, PhaseRevealing, PhaseResolving, PhaseRoundEnd, PhaseGameEnd:
		return true
	}
	return false
}

// Started reports whether a game has been dealt in this phase.
func (p Phase) Started() bool {
	return p != PhaseWaiting && p.Valid()
}

const (
	TableRowCount = 4
	MaxRowLength  = 5

	// NoRowChoice marks the absence of an externally chosen row.
	NoRowChoice = -1

	// SubstituteRow is taken when a seat played by the server after a
	// disconnect has to choose a row.
	SubstituteRow = 0
)

// Rows is the table: exactly four rows, each strictly ascending by card id.
type Rows [TableRowCount]card.CardList

func (r Rows) Clone() Rows {
	var out Rows
	for i := range r {
		out[i] = r[i].Clone()
	}
	return out
}

// Penalty returns the total bull heads lying in row i.
func (r Rows) Penalty(i int) int {
	return r[i].TotalBullHeads()
}

// PlacementStep records one card applied during a turn's resolution, in
// application order. Clients replay these for animation.
type PlacementStep struct {
	Card           card.Card `json:"card"`
	RowIndex       int       `json:"rowIndex"`
	CardIndexInRow int       `json:"cardIndexInRow"`
}

// Collection is the set of cards a single player swept up during one turn.
type Collection struct {
	PlayerID string        `json:"playerId"`
	Cards    card.CardList `json:"cards"`
}
