package card

import (
	"math/rand"
	"sort"
)

type CardList []Card

// NewDeck returns the full ordered deck 1..104.
func NewDeck() CardList {
	deck := make(CardList, 0, DeckSize)
	for id := MinCard; id <= MaxCard; id++ {
		deck = append(deck, id)
	}
	return deck
}

// NewShuffledDeck returns a full deck shuffled with rng.
func NewShuffledDeck(rng *rand.Rand) CardList {
	deck := NewDeck()
	deck.Shuffle(rng)
	return deck
}

// Count 获取总牌数
func (ds CardList) Count() int {
	return len(ds)
}

func (ds CardList) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(ds), func(i, j int) {
		ds[i], ds[j] = ds[j], ds[i]
	})
}

func (ds *CardList) Add(cards ...Card) {
	*ds = append(*ds, cards...)
}

// PopCards removes size cards from the front of the list.
func (ds *CardList) PopCards(size int) (CardList, bool) {
	if size > ds.Count() {
		return nil, false
	}
	cards := make(CardList, size)
	copy(cards, (*ds)[:size])
	*ds = (*ds)[size:]
	return cards, true
}

func (ds CardList) Contains(c Card) bool {
	for _, cc := range ds {
		if cc == c {
			return true
		}
	}
	return false
}

// Remove returns a copy of the list without c and whether c was present.
func (ds CardList) Remove(c Card) (CardList, bool) {
	out := make(CardList, 0, len(ds))
	found := false
	for _, cc := range ds {
		if cc == c && !found {
			found = true
			continue
		}
		out = append(out, cc)
	}
	return out, found
}

// Lowest returns the card with the smallest id.
func (ds CardList) Lowest() (Card, bool) {
	if len(ds) == 0 {
		return CardInvalid, false
	}
	lowest := ds[0]
	for _, c := range ds[1:] {
		if c < lowest {
			lowest = c
		}
	}
	return lowest, true
}

// Last returns the final card of a row-ordered list.
func (ds CardList) Last() (Card, bool) {
	if len(ds) == 0 {
		return CardInvalid, false
	}
	return ds[len(ds)-1], true
}

func (ds CardList) TotalBullHeads() int {
	total := 0
	for _, c := range ds {
		total += c.BullHeads()
	}
	return total
}

func (ds CardList) Clone() CardList {
	if ds == nil {
		return nil
	}
	out := make(CardList, len(ds))
	copy(out, ds)
	return out
}

func (ds CardList) Sorted() CardList {
	out := ds.Clone()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
