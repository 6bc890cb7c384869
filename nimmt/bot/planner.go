package bot

import (
	"math/rand"
	"sync"
	"time"

	"nimmt-lite/card"
	"nimmt-lite/nimmt"
)

// Scheduled is a bot task together with when it should fire.
type Scheduled struct {
	Task  nimmt.BotTask
	Delay time.Duration
}

// Planner turns a state into the bot actions it is waiting on.
type Planner struct {
	brain    Brain
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewPlanner(brain Brain, minDelay, maxDelay time.Duration, seed int64) *Planner {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Planner{
		brain:    brain,
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Plan returns one task per bot seat the room is waiting on: every
// uncommitted card-holding bot while selecting, or the bot row chooser while
// resolving. Seats taken over after a disconnect follow the fixed fallback
// (lowest card, row 0); only added bots consult the brain.
func (p *Planner) Plan(s *nimmt.GameState) []Scheduled {
	var out []Scheduled
	switch s.Phase {
	case nimmt.PhaseSelecting:
		for _, pl := range s.Players {
			if !pl.IsBot || len(pl.Hand) == 0 {
				continue
			}
			if _, committed := s.TurnInfo.PlayedCards[pl.ID]; committed {
				continue
			}
			out = append(out, Scheduled{
				Task: nimmt.BotTask{
					Kind:     nimmt.BotTaskPlayCard,
					PlayerID: pl.ID,
					Phase:    s.Phase,
					Round:    s.CurrentRound,
					Turn:     s.TurnInfo.TurnNumber,
					Card:     p.pickCard(pl, s.TableRows),
				},
				Delay: p.delay(),
			})
		}
	case nimmt.PhaseResolving:
		chooser := s.Player(s.TurnInfo.WaitingForRowChoice())
		if chooser == nil || !chooser.IsBot {
			return nil
		}
		out = append(out, Scheduled{
			Task: nimmt.BotTask{
				Kind:     nimmt.BotTaskChooseRow,
				PlayerID: chooser.ID,
				Phase:    s.Phase,
				Round:    s.CurrentRound,
				Turn:     s.TurnInfo.TurnNumber,
				Row:      p.pickRow(chooser, s.TableRows),
			},
			Delay: p.delay(),
		})
	}
	return out
}

func (p *Planner) pickCard(pl *nimmt.Player, rows nimmt.Rows) card.Card {
	if pl.IsSubstitute {
		lowest, _ := pl.Hand.Lowest()
		return lowest
	}
	return p.brain.PickCard(View{Hand: pl.Hand, Rows: rows})
}

func (p *Planner) pickRow(pl *nimmt.Player, rows nimmt.Rows) int {
	if pl.IsSubstitute {
		return nimmt.SubstituteRow
	}
	return p.brain.PickRow(View{Hand: pl.Hand, Rows: rows})
}

func (p *Planner) delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ThinkDelay(p.rng, p.minDelay, p.maxDelay)
}
