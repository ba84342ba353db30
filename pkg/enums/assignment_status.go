package enums

import "fmt"

// AssignmentStatus tracks the lifecycle of a delivery assignment.
type AssignmentStatus string

const (
	AssignmentStatusAssigned  AssignmentStatus = "assigned"
	AssignmentStatusInTransit AssignmentStatus = "in_transit"
	AssignmentStatusCompleted AssignmentStatus = "completed"
	AssignmentStatusReleased  AssignmentStatus = "released"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusAssigned,
	AssignmentStatusInTransit,
	AssignmentStatusCompleted,
	AssignmentStatusReleased,
}

// String implements fmt.Stringer.
func (a AssignmentStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AssignmentStatus.
func (a AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsActive reports whether the assignment still binds the agent to the order.
func (a AssignmentStatus) IsActive() bool {
	return a == AssignmentStatusAssigned || a == AssignmentStatusInTransit
}

// ParseAssignmentStatus converts raw input into an AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
