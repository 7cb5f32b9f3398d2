package core

import "strings"

// Roles
const (
	// Platform
	RoleSuperAdmin = "superadmin:"

	// School admins
	RoleAdmin          = "admin:"
	RoleAdminDirector  = "admin:director"
	RoleAdminSecretary = "admin:secretary"

	// Teachers
	RoleTeacher = "teacher:"
)

// Actor is the authenticated caller of a service operation.
// SchoolID is empty for super-admins.
type Actor struct {
	UserID   string
	Username string
	Email    string
	SchoolID string
	Roles    []string
}

func (a Actor) roleStartsWith(prefix string) bool {
	for _, role := range a.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (a Actor) IsSuperAdmin() bool { return a.roleStartsWith(RoleSuperAdmin) }
func (a Actor) IsAdmin() bool      { return a.roleStartsWith(RoleAdmin) }
func (a Actor) IsTeacher() bool    { return a.roleStartsWith(RoleTeacher) }
