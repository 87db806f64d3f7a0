// Package board holds the pure kanban domain: status columns, the
// assignee roster and the fractional position allocator.
package board

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// Statuses is the full, permissive status set. Older deployments validated
// against a narrower set; the union is kept here on purpose.
var Statuses = []Status{
	StatusTodo,
	StatusInProgress,
	StatusReview,
	StatusBlocked,
	StatusDone,
	StatusArchived,
}

func ValidStatus(value string) bool {
	for _, s := range Statuses {
		if string(s) == value {
			return true
		}
	}
	return false
}

// StatusValuesMessage enumerates the legal values for validation errors.
func StatusValuesMessage() string {
	values := make([]string, len(Statuses))
	for i, s := range Statuses {
		values[i] = string(s)
	}
	return "status must be one of: " + strings.Join(values, ", ")
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func ValidPriority(value string) bool {
	for _, p := range Priorities {
		if string(p) == value {
			return true
		}
	}
	return false
}

func PriorityValuesMessage() string {
	values := make([]string, len(Priorities))
	for i, p := range Priorities {
		values[i] = string(p)
	}
	return fmt.Sprintf("priority must be one of: %s", strings.Join(values, ", "))
}
