package domain

import (
	"fmt"
	"strings"
)

// Role determines what an actor may see.
type Role string

const (
	// RoleManager can access every application.
	RoleManager Role = "manager"
	// RoleOfficer can only access applications it owns.
	RoleOfficer Role = "officer"
)

func (r Role) IsValid() bool {
	return r == RoleManager || r == RoleOfficer
}

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Actor is an authenticated caller.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsManager() bool {
	return a.Role == RoleManager
}
