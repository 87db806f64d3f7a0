package github

import (
	"testing"

	"taskboard/api/internal/board"
)

func TestResolveStatus_ClosedAlwaysWins(t *testing.T) {
	labelSets := [][]string{
		nil,
		{},
		{"status:review"},
		{"status:in-progress", "bug"},
		{"status:todo", "status:review", "status:in-progress"},
	}
	for _, labels := range labelSets {
		if got := ResolveStatus(StateClosed, labels); got != board.StatusDone {
			t.Errorf("ResolveStatus(closed, %v) = %v, want done", labels, got)
		}
	}
}

func TestResolveStatus_OpenPriorityOrder(t *testing.T) {
	tests := []struct {
		labels []string
		want   board.Status
	}{
		{labels: []string{"status:review", "status:in-progress"}, want: board.StatusReview},
		{labels: []string{"status:in-progress"}, want: board.StatusInProgress},
		{labels: []string{"bug", "help wanted"}, want: board.StatusTodo},
		{labels: nil, want: board.StatusTodo},
	}
	for _, tt := range tests {
		if got := ResolveStatus(StateOpen, tt.labels); got != tt.want {
			t.Errorf("ResolveStatus(open, %v) = %v, want %v", tt.labels, got, tt.want)
		}
	}
}

func TestLabelsForStatus_SetReplace(t *testing.T) {
	current := []string{"bug", "status:in-progress", "status:todo", "p1"}
	labels, ok := LabelsForStatus(current, board.StatusReview)
	if !ok {
		t.Fatal("review has a tracker representation")
	}

	want := map[string]bool{"bug": true, "p1": true, "status:review": true}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want exactly %v", labels, want)
	}
	for _, label := range labels {
		if !want[label] {
			t.Errorf("unexpected label %q in %v", label, labels)
		}
	}
}

func TestLabelsForStatus_UnmappedColumns(t *testing.T) {
	for _, status := range []board.Status{board.StatusBlocked, board.StatusArchived} {
		if _, ok := LabelsForStatus([]string{"bug"}, status); ok {
			t.Errorf("%v should have no tracker representation", status)
		}
	}
}

func TestStatusMapping_States(t *testing.T) {
	if StatusMapping[board.StatusDone].State != StateClosed {
		t.Error("done maps to the closed state")
	}
	for _, status := range []board.Status{board.StatusTodo, board.StatusInProgress, board.StatusReview} {
		if StatusMapping[status].State != StateOpen {
			t.Errorf("%v maps to the open state", status)
		}
	}
}
