package model

import "strings"

// Role is the coarse role of an authenticated caller.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Principal is the caller identity handed to the core by the authentication layer.
type Principal struct {
	UserID string
	Role   Role
	Status string
}

// Active reports whether the principal's account may call the core.
func (p Principal) Active() bool {
	return p.UserID != "" && !strings.EqualFold(p.Status, "DISABLED")
}

// ParseRole normalises a role string.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}
