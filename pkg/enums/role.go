package enums

import "fmt"

// Role represents a school-level permissions role.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleTeacher    Role = "TEACHER"
	RoleStaff      Role = "STAFF"
	RoleStudent    Role = "STUDENT"
	RoleParent     Role = "PARENT"
)

var validRoles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleTeacher,
	RoleStaff,
	RoleStudent,
	RoleParent,
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
