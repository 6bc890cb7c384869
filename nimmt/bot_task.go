package nimmt

import (
	"fmt"

	"nimmt-lite/card"
)

type BotTaskKind string

const (
	BotTaskPlayCard  BotTaskKind = "playCard"
	BotTaskChooseRow BotTaskKind = "chooseRow"
)

// BotTask is a deferred action for a server-played seat. It captures what
// the state looked like when it was scheduled; ApplyBotTask re-checks all of
// it against the current state at fire time.
type BotTask struct {
	Kind     BotTaskKind
	PlayerID string
	Phase    Phase
	Round    int
	Turn     int
	Card     card.Card
	Row      int
}

// Key identifies the decision point. Two tasks with the same key are the
// same decision and only one should be pending.
func (t BotTask) Key() string {
	return fmt.Sprintf("%s/%s/%d/%d", t.Kind, t.PlayerID, t.Round, t.Turn)
}

// Fresh reports whether the task still applies to s.
func (t BotTask) Fresh(s *GameState) bool {
	if s.Phase != t.Phase || s.CurrentRound != t.Round || s.TurnInfo.TurnNumber != t.Turn {
		return false
	}
	p := s.Player(t.PlayerID)
	if p == nil || !p.IsBot {
		return false
	}
	switch t.Kind {
	case BotTaskPlayCard:
		if _, committed := s.TurnInfo.PlayedCards[t.PlayerID]; committed {
			return false
		}
		return p.Hand.Contains(t.Card)
	case BotTaskChooseRow:
		return s.TurnInfo.WaitingForRowChoice() == t.PlayerID &&
			t.Row >= 0 && t.Row < TableRowCount
	}
	return false
}

// ApplyBotTask runs a scheduled bot action, or returns ErrStaleTask without
// touching s when the moment has passed.
func (e *Engine) ApplyBotTask(s *GameState, task BotTask, cp Checkpoint) error {
	if !task.Fresh(s) {
		return ErrStaleTask
	}
	switch task.Kind {
	case BotTaskPlayCard:
		return e.PlayCard(s, task.PlayerID, task.Card.ID(), cp)
	case BotTaskChooseRow:
		return e.ChooseRow(s, task.PlayerID, task.Row, cp)
	}
	return ErrStaleTask
}
