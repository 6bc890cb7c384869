package bot

import (
	"math/rand"
	"sync"
	"time"

	"nimmt-lite/card"
	"nimmt-lite/nimmt"
)

// View is the read-only slice of state a bot decides on.
type View struct {
	Hand card.CardList
	Rows nimmt.Rows
}

// Brain is the decision interface for server-played seats.
type Brain interface {
	// PickCard returns the card to commit this turn. Hand is never empty.
	PickCard(view View) card.Card
	// PickRow returns the row to take when the bot holds the turn's lowest card.
	PickRow(view View) int
	// Name returns a human-readable identifier for debugging.
	Name() string
}

// RandomBrain plays a uniformly random card and takes the cheapest row.
type RandomBrain struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomBrain(seed int64) *RandomBrain {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomBrain{rng: rand.New(rand.NewSource(seed))}
}

func (b *RandomBrain) Name() string { return "random" }

func (b *RandomBrain) PickCard(view View) card.Card {
	if len(view.Hand) == 0 {
		return card.CardInvalid
	}
	b.mu.Lock()
	i := b.rng.Intn(len(view.Hand))
	b.mu.Unlock()
	return view.Hand[i]
}

// PickRow is greedy: the row with the fewest bull heads, lowest index on ties.
func (b *RandomBrain) PickRow(view View) int {
	return CheapestRow(view.Rows)
}

func CheapestRow(rows nimmt.Rows) int {
	best := 0
	for i := 1; i < nimmt.TableRowCount; i++ {
		if rows.Penalty(i) < rows.Penalty(best) {
			best = i
		}
	}
	return best
}

const (
	DefaultMinThink = 500 * time.Millisecond
	DefaultMaxThink = 1500 * time.Millisecond
)

// ThinkDelay draws a uniform pause in [lo, hi).
func ThinkDelay(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)))
}
