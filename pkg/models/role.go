package models

import "strings"

// Role is the closed set of actor roles a transition can be scoped to.
type Role string

const (
	RoleTaskCreator  Role = "TASK_CREATOR"
	RoleTaskReceiver Role = "TASK_RECEIVER"
	RoleAdmin        Role = "ADMIN"
)

// Roles lists every valid role value.
func Roles() []Role {
	return []Role{RoleTaskCreator, RoleTaskReceiver, RoleAdmin}
}

// IsValid reports whether the role is one of the closed enumeration values.
func (r Role) IsValid() bool {
	switch r {
	case RoleTaskCreator, RoleTaskReceiver, RoleAdmin:
		return true
	}

	return false
}

// ParseRole normalizes a raw role string ("task creator", "Task_Creator", ...)
// into a Role. Legacy clients send free-form casing and spaces.
func ParseRole(raw string) (Role, bool) {
	normalized := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "_")

	role := Role(normalized)
	if !role.IsValid() {
		return "", false
	}

	return role, true
}
