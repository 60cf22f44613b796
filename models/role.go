package models

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleInterviewer Role = "INTERVIEWER"
	RoleUser        Role = "USER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleInterviewer, RoleUser:
		return true
	}
	return false
}

// ParseRole normalizes case and surrounding space and rejects anything
// outside the closed set.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}
