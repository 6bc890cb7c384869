package nimmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nimmt-lite/card"
)

func TestResolveTurn_AppliesInAscendingOrderOnEvolvingBoard(t *testing.T) {
	rows := rowsOf(
		card.CardList{1},
		card.CardList{4, 5, 6, 7, 8},
		card.CardList{60},
		card.CardList{70},
	)
	played := map[string]card.Card{"A": 10, "B": 3, "C": 50}

	res, err := ResolveTurn(rows, played, NoRowChoice)
	require.NoError(t, err)

	assert.Equal(t, []PlacementStep{
		{Card: 3, RowIndex: 0, CardIndexInRow: 1},
		{Card: 10, RowIndex: 1, CardIndexInRow: 0},
		{Card: 50, RowIndex: 1, CardIndexInRow: 1},
	}, res.PlacementOrder)

	assert.Equal(t, card.CardList{1, 3}, res.Rows[0])
	assert.Equal(t, card.CardList{10, 50}, res.Rows[1])
	assert.Equal(t, card.CardList{60}, res.Rows[2])
	assert.Equal(t, card.CardList{70}, res.Rows[3])

	require.Len(t, res.Collections, 1)
	assert.Equal(t, "A", res.Collections[0].PlayerID)
	assert.Equal(t, card.CardList{4, 5, 6, 7, 8}, res.Collections[0].Cards)

	// Against the untouched board, 50 would have been a sixth card as well.
	naive, err := Apply(rows, 50, "C", NoRowChoice)
	require.NoError(t, err)
	assert.NotEmpty(t, naive.Collected)
	assert.NotEqual(t, naive.Rows, res.Rows)
}

func TestResolveTurn_LowestCardTakesChosenRow(t *testing.T) {
	rows := rowsOf(card.CardList{20}, card.CardList{30, 33}, card.CardList{40}, card.CardList{50})
	played := map[string]card.Card{"A": 2, "B": 41}

	res, err := ResolveTurn(rows, played, 1)
	require.NoError(t, err)

	assert.Equal(t, card.CardList{2}, res.Rows[1])
	assert.Equal(t, card.CardList{40, 41}, res.Rows[2])
	require.Len(t, res.Collections, 1)
	assert.Equal(t, Collection{PlayerID: "A", Cards: card.CardList{30, 33}}, res.Collections[0])
}

func TestResolveTurn_MissingRowChoice(t *testing.T) {
	rows := rowsOf(card.CardList{20}, card.CardList{30}, card.CardList{40}, card.CardList{50})

	_, err := ResolveTurn(rows, map[string]card.Card{"A": 2, "B": 60}, NoRowChoice)
	require.ErrorIs(t, err, ErrMissingRowChoice)
	assert.True(t, IsInvariantViolation(err))
}

func TestResolveTurn_EmptyTurn(t *testing.T) {
	rows := rowsOf(card.CardList{20}, card.CardList{30}, card.CardList{40}, card.CardList{50})

	res, err := ResolveTurn(rows, nil, NoRowChoice)
	require.NoError(t, err)
	assert.Equal(t, rows, res.Rows)
	assert.Empty(t, res.PlacementOrder)
}
