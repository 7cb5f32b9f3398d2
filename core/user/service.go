package user

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrAmbiguousLogin = errors.New("several accounts match this login, the school code is required")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrEmailExists when another account of the same
		// school (or of the platform, for an empty schoolID) already uses username or email.
		CheckUniqueness(ctx context.Context, schoolID, username, email, excludedID string, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		// ListByLogin returns every account, in any school, whose username or email is login.
		ListByLogin(ctx context.Context, login string, exec ...core.DBExecutor) ([]User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		repo      Repository
		validator *core.Validator
	}
)

func NewService(repo Repository, validator *core.Validator) *Service {
	return &Service{repo: repo, validator: validator}
}

func (svc *Service) checkUniqueness(ctx context.Context, schoolID, uname, email, excludedID string, exec ...core.DBExecutor) error {
	if err := svc.repo.CheckUniqueness(ctx, schoolID, uname, email, excludedID, exec...); err != nil {
		var field string
		switch {
		case errors.Is(err, ErrUsernameExists):
			field = "username"
		case errors.Is(err, ErrEmailExists):
			field = "email"
		default:
			return err
		}
		return core.NewConflictError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Validate cleans and validates nu for the given school without writing anything.
func (svc *Service) Validate(ctx context.Context, schoolID string, nu *NewUser, exec ...core.DBExecutor) error {
	nu.Clean()
	if err := svc.validator.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, schoolID, nu.Username, nu.Email, "", exec...)
}

// Insert creates an account from an already validated NewUser.
func (svc *Service) Insert(ctx context.Context, schoolID string, nu NewUser, exec ...core.DBExecutor) (User, error) {
	now := time.Now().UTC()
	usr := User{
		SchoolID:  schoolID,
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr, exec...)
}

// Create validates and creates an account of the actor's school.
func (svc *Service) Create(ctx context.Context, actor core.Actor, nu NewUser) (User, error) {
	if err := svc.Validate(ctx, actor.SchoolID, &nu); err != nil {
		return User{}, err
	}
	// an admin cannot grant a role above their own
	if !actor.IsSuperAdmin() && MaxRolePriority(nu.Roles) > MaxRolePriority(actor.Roles) {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "roles", Error: "not enough rights to set these roles"})
	}
	return svc.Insert(ctx, actor.SchoolID, nu)
}

// CreateSuperAdmin creates (or resets) a platform account with the super-admin role.
func (svc *Service) CreateSuperAdmin(ctx context.Context, name, uname, email, pwd string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name == "" {
		name = uname
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: uname})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	if errors.Is(err, ErrNotFound) {
		if err := svc.checkUniqueness(ctx, "", uname, email, ""); err != nil {
			return User{}, err
		}
		now := time.Now().UTC()
		usr = User{Name: name, Username: uname, Email: email, CreatedAt: now}
	}
	usr.Roles = []string{core.RoleSuperAdmin}
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, pkgerrors.Wrap(err, "hashing password")
	}
	if usr.ID == "" {
		return svc.repo.CreateUser(ctx, usr)
	}
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

// GetForLogin resolves the account identified by login (username or email).
// schoolID restricts the lookup to one school; when empty, login must match exactly one account.
func (svc *Service) GetForLogin(ctx context.Context, schoolID, login string) (User, error) {
	login = core.CleanString(login, true /* lower */)
	if login == "" {
		return User{}, ErrNotFound
	}
	candidates, err := svc.repo.ListByLogin(ctx, login)
	if err != nil {
		return User{}, pkgerrors.Wrap(err, "listing users by login")
	}

	matches := make([]User, 0, len(candidates))
	for _, usr := range candidates {
		if schoolID == "" || usr.SchoolID == schoolID {
			matches = append(matches, usr)
		}
	}
	switch len(matches) {
	case 0:
		return User{}, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return User{}, ErrAmbiguousLogin
	}
}

// Query lists the accounts of the actor's school.
func (svc *Service) Query(ctx context.Context, actor core.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.SchoolID = actor.SchoolID
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin.SetValid(time.Now().UTC())
	return svc.repo.UpdateUser(ctx, usr)
}

// ResetPassword sets a new password on the account identified by login in the given school.
func (svc *Service) ResetPassword(ctx context.Context, schoolID, login, pwd string) error {
	usr, err := svc.GetForLogin(ctx, schoolID, login)
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return pkgerrors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// SetActive enables or disables sign-in for an account.
func (svc *Service) SetActive(ctx context.Context, id string, active bool, exec ...core.DBExecutor) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id}, exec...)
	if err != nil {
		return err
	}
	if usr.IsActive == active {
		return nil
	}
	usr.IsActive = active
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr, exec...)
	return err
}

func (svc *Service) Delete(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids, exec...)
	return err
}
