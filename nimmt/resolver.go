package nimmt

import (
	"fmt"
	"sort"

	"nimmt-lite/card"
)

// TurnResult is the outcome of resolving one turn's simultaneous plays.
type TurnResult struct {
	Rows           Rows
	Collections    []Collection
	PlacementOrder []PlacementStep
}

type play struct {
	playerID string
	card     card.Card
}

// sortedPlays orders the turn's plays by ascending card id. Ids are unique
// within a deck; player id only breaks ties on corrupt input.
func sortedPlays(played map[string]card.Card) []play {
	plays := make([]play, 0, len(played))
	for playerID, c := range played {
		plays = append(plays, play{playerID: playerID, card: c})
	}
	sort.Slice(plays, func(i, j int) bool {
		if plays[i].card != plays[j].card {
			return plays[i].card < plays[j].card
		}
		return plays[i].playerID < plays[j].playerID
	})
	return plays
}

// lowestPlay returns the globally lowest card played this turn.
func lowestPlay(played map[string]card.Card) (play, bool) {
	plays := sortedPlays(played)
	if len(plays) == 0 {
		return play{}, false
	}
	return plays[0], true
}

// ResolveTurn applies the plays strictly in ascending card order, each one
// against the board left by the previous. Only the first (lowest) card can
// need a row choice, since every later card is higher than a card already on
// the table.
func ResolveTurn(rows Rows, played map[string]card.Card, lowestCardRowChoice int) (TurnResult, error) {
	current := rows.Clone()
	result := TurnResult{}

	for i, p := range sortedPlays(played) {
		rowChoice := NoRowChoice
		if Locate(p.card, current).Kind == PlacementTakeRow {
			if i > 0 || lowestCardRowChoice == NoRowChoice {
				return TurnResult{}, fmt.Errorf("card %d from %s: %w", p.card, p.playerID, ErrMissingRowChoice)
			}
			rowChoice = lowestCardRowChoice
		}

		placed, err := Apply(current, p.card, p.playerID, rowChoice)
		if err != nil {
			return TurnResult{}, fmt.Errorf("card %d from %s: %w", p.card, p.playerID, err)
		}
		current = placed.Rows

		result.PlacementOrder = append(result.PlacementOrder, PlacementStep{
			Card:           p.card,
			RowIndex:       placed.RowIndex,
			CardIndexInRow: placed.CardIndexInRow,
		})
		if placed.Collector != "" {
			result.Collections = append(result.Collections, Collection{
				PlayerID: placed.Collector,
				Cards:    placed.Collected,
			})
		}
	}

	result.Rows = current
	return result, nil
}
