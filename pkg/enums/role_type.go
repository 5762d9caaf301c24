package enums

import "fmt"

// RoleType is a contact-level role that gates access elsewhere in the system.
type RoleType string

const (
	RoleTypeMember RoleType = "member"
	RoleTypeAdmin  RoleType = "admin"
)

var validRoleTypes = []RoleType{
	RoleTypeMember,
	RoleTypeAdmin,
}

// String implements fmt.Stringer.
func (r RoleType) String() string {
	return string(r)
}

// IsValid reports whether the value is known.
func (r RoleType) IsValid() bool {
	for _, candidate := range validRoleTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRoleType converts raw input into a RoleType.
func ParseRoleType(value string) (RoleType, error) {
	for _, candidate := range validRoleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role type %q", value)
}
