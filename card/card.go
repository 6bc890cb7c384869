package card

import (
	"encoding/json"
	"fmt"
)

// Card is a numbered card of the 104-card deck.
//
// The value is the card id (1..104); the penalty printed on it is derived
// from the id and never stored separately.
type Card uint8

const (
	CardInvalid Card = 0
	MinCard     Card = 1
	MaxCard     Card = 104

	// DeckSize is the number of cards in a full deck.
	DeckSize = int(MaxCard)
)

// BullHeads returns the penalty points for a card id:
// 55 -> 7, other multiples of 11 -> 5, multiples of 10 -> 3,
// multiples of 5 -> 2, everything else -> 1.
func BullHeads(id int) int {
	switch {
	case id == 55:
		return 7
	case id%11 == 0:
		return 5
	case id%10 == 0:
		return 3
	case id%5 == 0:
		return 2
	default:
		return 1
	}
}

func (c Card) ID() int { return int(c) }

func (c Card) BullHeads() int {
	if !c.Valid() {
		return 0
	}
	return BullHeads(int(c))
}

func (c Card) Valid() bool {
	return c >= MinCard && c <= MaxCard
}

func (c Card) String() string {
	if !c.Valid() {
		return "Invalid"
	}
	return fmt.Sprintf("%d(%d)", int(c), c.BullHeads())
}

// FromID converts a client-supplied id into a Card.
func FromID(id int) (Card, error) {
	if id < int(MinCard) || id > int(MaxCard) {
		return CardInvalid, fmt.Errorf("invalid card id: %d", id)
	}
	return Card(id), nil
}

type cardJSON struct {
	ID        int `json:"id"`
	BullHeads int `json:"bullHeads"`
}

// MarshalJSON encodes the card as {"id":N,"bullHeads":M}.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{ID: int(c), BullHeads: c.BullHeads()})
}

// UnmarshalJSON accepts the object form; bullHeads is recomputed from the id.
func (c *Card) UnmarshalJSON(data []byte) error {
	var raw cardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromID(raw.ID)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
