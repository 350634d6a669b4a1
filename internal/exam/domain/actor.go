package domain

import "strings"

// Role identifies what an authenticated actor may see and do.
type Role string

const (
	// RoleUnspecified represents an invalid role value.
	RoleUnspecified Role = ""
	// RoleAdmin has full access to every exam and room.
	RoleAdmin Role = "admin"
	// RoleLecturer covers the rooms assigned to it (main lecturer covers
	// every room without a co-lecturer).
	RoleLecturer Role = "lecturer"
	// RoleSupervisor owns exactly one room.
	RoleSupervisor Role = "supervisor"
	// RoleStudent may only read its own student file.
	RoleStudent Role = "student"
)

// ParseRole maps a persisted role label back to a Role.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleLecturer:
		return RoleLecturer, true
	case RoleSupervisor:
		return RoleSupervisor, true
	case RoleStudent:
		return RoleStudent, true
	default:
		return RoleUnspecified, false
	}
}

// IsValid reports whether the role is one of the closed enumeration values.
func (r Role) IsValid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Actor is the authenticated identity attached to every command and query.
// The auth collaborator supplies it; the core trusts the identity and applies
// only its own role/room checks.
type Actor struct {
	ID string
	// Role is the actor's role for this exam.
	Role Role
	// RoomID is the assigned room for supervisors, empty otherwise.
	RoomID string
}

// IsStaff reports whether the actor holds a staff role.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleLecturer || a.Role == RoleSupervisor
}
