package board

import "sort"

// positionGap is the spacing used for the first card in a column and for
// appends at the tail. Midpoint insertion between neighbors erodes float
// precision over many adjacent drops, which is acceptable at this scale.
const positionGap = 1000

// Positioned is anything that lives in a column at a sortable position.
type Positioned interface {
	PositionKey() float64
	IDKey() string
}

// ComputePosition returns the fractional ordering key for a card dropped at
// targetIndex among neighbors, which must already be sorted by position.
func ComputePosition(neighbors []float64, targetIndex int) float64 {
	if len(neighbors) == 0 {
		return positionGap
	}
	if targetIndex <= 0 {
		return neighbors[0] / 2
	}
	if targetIndex >= len(neighbors) {
		return neighbors[len(neighbors)-1] + positionGap
	}
	return (neighbors[targetIndex-1] + neighbors[targetIndex]) / 2
}

// TailPosition is the append key for a column whose current maximum
// position is max (zero when the column is empty).
func TailPosition(max float64) float64 {
	if max == 0 {
		return positionGap
	}
	return max + positionGap
}

// SortByPosition orders cards by position, breaking ties on id so that
// rendering stays deterministic when midpoints collide.
func SortByPosition[T Positioned](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].PositionKey() == items[j].PositionKey() {
			return items[i].IDKey() < items[j].IDKey()
		}
		return items[i].PositionKey() < items[j].PositionKey()
	})
}
