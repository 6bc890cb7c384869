package card

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeck_HasAllIDsOnce(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, 104)

	seen := make(map[Card]bool, len(deck))
	for i, c := range deck {
		require.Equal(t, i+1, c.ID())
		require.False(t, seen[c], "duplicate card %d", c)
		seen[c] = true
	}
}

func TestBullHeads_Table(t *testing.T) {
	cases := map[int]int{
		55: 7,
		11: 5, 22: 5, 33: 5, 44: 5, 66: 5, 77: 5, 88: 5, 99: 5,
		10: 3, 20: 3, 50: 3, 100: 3,
		5: 2, 15: 2, 25: 2, 95: 2,
		1: 1, 7: 1, 42: 1, 104: 1,
	}
	for id, want := range cases {
		assert.Equal(t, want, BullHeads(id), "id %d", id)
	}
}

func TestBullHeads_TotalOfDeck(t *testing.T) {
	// 1x7 + 8x5 + 10x3 + 9x2 + 76x1
	assert.Equal(t, 171, NewDeck().TotalBullHeads())
}

func TestNewShuffledDeck_IsPermutation(t *testing.T) {
	deck := NewShuffledDeck(rand.New(rand.NewSource(7)))
	require.Len(t, deck, DeckSize)
	assert.Equal(t, NewDeck(), deck.Sorted())
}

func TestCardJSON_RoundTripsThroughObjectForm(t *testing.T) {
	raw, err := json.Marshal(Card(55))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":55,"bullHeads":7}`, string(raw))

	var c Card
	require.NoError(t, json.Unmarshal([]byte(`{"id":22,"bullHeads":1}`), &c))
	assert.Equal(t, Card(22), c)
	assert.Equal(t, 5, c.BullHeads())

	require.Error(t, json.Unmarshal([]byte(`{"id":105}`), &c))
}

func TestCardList_RemoveAndLowest(t *testing.T) {
	hand := CardList{40, 7, 93}

	low, ok := hand.Lowest()
	require.True(t, ok)
	assert.Equal(t, Card(7), low)

	rest, found := hand.Remove(7)
	require.True(t, found)
	assert.Equal(t, CardList{40, 93}, rest)
	assert.Equal(t, CardList{40, 7, 93}, hand, "Remove must not mutate the receiver")

	_, found = hand.Remove(8)
	assert.False(t, found)

	_, ok = CardList{}.Lowest()
	assert.False(t, ok)
}

func TestCardList_PopCards(t *testing.T) {
	deck := NewDeck()
	top, ok := deck.PopCards(4)
	require.True(t, ok)
	assert.Equal(t, CardList{1, 2, 3, 4}, top)
	assert.Equal(t, 100, deck.Count())

	_, ok = deck.PopCards(101)
	assert.False(t, ok)
}
