package board

import "strings"

// The roster is a fixed, closed set of recognized actors. It is a design
// constraint of the product, not a placeholder for a user table.
const (
	Unassigned     = "unassigned"
	PrivilegedUser = "walter"
)

var Roster = []string{"walter", "mike", "gilfoyle", "dinesh"}

// RosterMember resolves a case-insensitive name to its canonical roster
// spelling. Returns "" when the name is not on the roster.
func RosterMember(name string) string {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for _, member := range Roster {
		if member == trimmed {
			return member
		}
	}
	return ""
}

// ValidAssignee accepts any roster member or "unassigned".
func ValidAssignee(name string) bool {
	return name == Unassigned || RosterMember(name) != ""
}

func AssigneeValuesMessage() string {
	return "assignee must be one of: " + strings.Join(append(append([]string{}, Roster...), Unassigned), ", ")
}
