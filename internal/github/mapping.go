// Package github maps GitHub issue state onto board statuses and carries
// the webhook payload types plus a minimal REST client for syncing status
// labels back to the tracker.
package github

import "taskboard/api/internal/board"

// IssueState is the open/closed state carried by issue payloads.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Mapping pairs the GitHub state and status label that represent a board
// column on the tracker side.
type Mapping struct {
	State string
	Label string
}

// StatusMapping is the fixed lookup table between board columns and the
// tracker's state+label representation. Blocked and archived columns have
// no tracker-side representation and never sync back.
var StatusMapping = map[board.Status]Mapping{
	board.StatusTodo:       {State: StateOpen, Label: "status:todo"},
	board.StatusInProgress: {State: StateOpen, Label: "status:in-progress"},
	board.StatusReview:     {State: StateOpen, Label: "status:review"},
	board.StatusDone:       {State: StateClosed, Label: "status:done"},
}

// ResolveStatus maps a tracker issue's state and label set to a board
// status. Total over its domain: closed always wins, then the review and
// in-progress labels in priority order, then todo.
func ResolveStatus(state string, labels []string) board.Status {
	if state == StateClosed {
		return board.StatusDone
	}
	if containsLabel(labels, "status:review") {
		return board.StatusReview
	}
	if containsLabel(labels, "status:in-progress") {
		return board.StatusInProgress
	}
	return board.StatusTodo
}

// LabelsForStatus computes the label set to apply on the tracker when a
// linked task moves to target: every status label is stripped and the
// target's single label appended (set-replace, not toggle). Non-status
// labels are preserved.
func LabelsForStatus(current []string, target board.Status) ([]string, bool) {
	mapping, ok := StatusMapping[target]
	if !ok {
		return nil, false
	}
	statusLabels := make(map[string]struct{}, len(StatusMapping))
	for _, m := range StatusMapping {
		statusLabels[m.Label] = struct{}{}
	}
	next := make([]string, 0, len(current)+1)
	for _, label := range current {
		if _, isStatus := statusLabels[label]; !isStatus {
			next = append(next, label)
		}
	}
	return append(next, mapping.Label), true
}

func containsLabel(labels []string, name string) bool {
	for _, label := range labels {
		if label == name {
			return true
		}
	}
	return false
}
