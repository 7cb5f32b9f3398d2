package user

import (
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mavuisra/naklass-sub005/core"
)

var (
	AdminRoles   = []string{core.RoleAdmin, core.RoleAdminDirector, core.RoleAdminSecretary}
	TeacherRoles = []string{core.RoleTeacher}
	SchoolRoles  = getSchoolRoles()

	rolePriorities = map[string]int{
		// Platform
		core.RoleSuperAdmin: 100,

		// Admins: 30 - 21
		core.RoleAdminDirector:  30,
		core.RoleAdminSecretary: 25,
		core.RoleAdmin:          21,

		// Teachers: 20 - 11
		core.RoleTeacher: 11,
	}

	Roles = []Role{
		{Name: "Teacher", Value: core.RoleTeacher},
		{Name: "Admin", Value: core.RoleAdmin},
		{Name: "Admin Secretary", Value: core.RoleAdminSecretary},
		{Name: "Admin Director", Value: core.RoleAdminDirector},
	}
)

func getSchoolRoles() []string {
	all := make([]string, 0, 4)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	SchoolID     string    `json:"school_id,omitempty"` // empty for super-admins
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    null.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsSuperAdmin() bool { return u.RoleStartsWith(core.RoleSuperAdmin) }
func (u *User) IsAdmin() bool      { return u.RoleStartsWith(core.RoleAdmin) }
func (u *User) IsTeacher() bool    { return u.RoleStartsWith(core.RoleTeacher) }

// Actor returns the request identity of this user.
func (u *User) Actor() core.Actor {
	return core.Actor{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		SchoolID: u.SchoolID,
		Roles:    u.Roles,
	}
}

// NewUser contains information needed to create a new account.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,max=150,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,schoolroles"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
}

type GetFilter struct {
	ID string
	// SchoolID scopes lookups of accounts; empty means platform accounts (super-admins).
	SchoolID        string
	UsernameOrEmail string
}

type QueryFilter struct {
	SchoolID string
	Search   string `query:"search"`
	Role     string `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role)
}

// ResetUserPassword confirms a password reset with the uid and token sent by email.
type ResetUserPassword struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}
