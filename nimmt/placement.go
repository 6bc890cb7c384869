package nimmt

import "nimmt-lite/card"

type PlacementKind byte

const (
	PlacementPlace   PlacementKind = 1 // 放到差值最小的行
	PlacementTakeRow PlacementKind = 2 // 比所有行尾都小，需要选择收走一行
)

// Placement is the outcome of Locate. RowIndex is meaningful only for
// PlacementPlace.
type Placement struct {
	Kind     PlacementKind
	RowIndex int
}

// Locate picks the row whose last card is the largest one still below c.
// Card ids are unique, so the minimum difference is never tied. Empty rows
// are skipped. When no row qualifies the caller must supply a row to take.
func Locate(c card.Card, rows Rows) Placement {
	best := -1
	smallestDiff := 0
	for i, row := range rows {
		last, ok := row.Last()
		if !ok || last >= c {
			continue
		}
		diff := int(c) - int(last)
		if best == -1 || diff < smallestDiff {
			best = i
			smallestDiff = diff
		}
	}
	if best == -1 {
		return Placement{Kind: PlacementTakeRow, RowIndex: NoRowChoice}
	}
	return Placement{Kind: PlacementPlace, RowIndex: best}
}

// PlacementResult is the table after one card has been applied.
type PlacementResult struct {
	Rows           Rows
	Collected      card.CardList
	Collector      string // empty when nothing was collected
	RowIndex       int
	CardIndexInRow int
}

// Apply places c for playerID on a copy of rows.
//
//   - TakeRow: rowChoice must be in [0,3]; that whole row is collected and
//     becomes [c].
//   - Place on a full row (sixth card): the five cards are collected and the
//     row becomes [c].
//   - Place otherwise: c is appended.
func Apply(rows Rows, c card.Card, playerID string, rowChoice int) (PlacementResult, error) {
	out := rows.Clone()
	placement := Locate(c, out)

	target := placement.RowIndex
	var collected card.CardList
	switch placement.Kind {
	case PlacementTakeRow:
		if rowChoice < 0 || rowChoice >= TableRowCount {
			return PlacementResult{}, ErrInvalidRowChoice
		}
		target = rowChoice
		collected = out[target]
		out[target] = card.CardList{c}
	default:
		if len(out[target]) >= MaxRowLength {
			collected = out[target]
			out[target] = card.CardList{c}
		} else {
			out[target] = append(out[target], c)
		}
	}

	result := PlacementResult{
		Rows:           out,
		RowIndex:       target,
		CardIndexInRow: len(out[target]) - 1,
	}
	if len(collected) > 0 {
		result.Collected = collected
		result.Collector = playerID
	}
	return result, nil
}
