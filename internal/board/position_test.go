package board

import "testing"

func TestComputePosition(t *testing.T) {
	tests := []struct {
		name        string
		neighbors   []float64
		targetIndex int
		want        float64
	}{
		{name: "empty column", neighbors: nil, targetIndex: 0, want: 1000},
		{name: "before single element", neighbors: []float64{1000}, targetIndex: 0, want: 500},
		{name: "after single element", neighbors: []float64{1000}, targetIndex: 1, want: 2000},
		{name: "between two elements", neighbors: []float64{1000, 2000}, targetIndex: 1, want: 1500},
		{name: "head of longer column", neighbors: []float64{400, 800, 1200}, targetIndex: 0, want: 200},
		{name: "tail of longer column", neighbors: []float64{400, 800, 1200}, targetIndex: 3, want: 2200},
		{name: "index past the end clamps to tail", neighbors: []float64{1000}, targetIndex: 9, want: 2000},
		{name: "negative index clamps to head", neighbors: []float64{1000}, targetIndex: -1, want: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputePosition(tt.neighbors, tt.targetIndex); got != tt.want {
				t.Errorf("ComputePosition(%v, %d) = %v, want %v", tt.neighbors, tt.targetIndex, got, tt.want)
			}
		})
	}
}

func TestTailPosition(t *testing.T) {
	if got := TailPosition(0); got != 1000 {
		t.Errorf("TailPosition(0) = %v, want 1000", got)
	}
	if got := TailPosition(3000); got != 4000 {
		t.Errorf("TailPosition(3000) = %v, want 4000", got)
	}
}

type card struct {
	id       string
	position float64
}

func (c card) PositionKey() float64 { return c.position }
func (c card) IDKey() string        { return c.id }

func TestSortByPosition_TieBreakOnID(t *testing.T) {
	items := []card{
		{id: "c", position: 1000},
		{id: "a", position: 1000},
		{id: "b", position: 500},
	}
	SortByPosition(items)

	got := []string{items[0].id, items[1].id, items[2].id}
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
