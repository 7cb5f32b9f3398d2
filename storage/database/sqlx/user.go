package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/user"
)

const userColumns = `id, ecole_id, name, username, email, roles, is_active, password_hash, last_login, created_at, updated_at`

var userOrdering = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"created_at": "created_at",
	"last_login": "last_login",
}

type userRow struct {
	ID           string      `db:"id"`
	SchoolID     null.String `db:"ecole_id"`
	Name         string      `db:"name"`
	Username     string      `db:"username"`
	Email        string      `db:"email"`
	Roles        jsonList    `db:"roles"`
	IsActive     bool        `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	LastLogin    null.Time   `db:"last_login"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func newUserRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		SchoolID:     null.NewString(usr.SchoolID, usr.SchoolID != ""),
		Name:         usr.Name,
		Username:     usr.Username,
		Email:        usr.Email,
		Roles:        jsonList(usr.Roles),
		IsActive:     usr.IsActive,
		PasswordHash: usr.PasswordHash,
		LastLogin:    usr.LastLogin,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
	}
}

func (r userRow) toUser() user.User {
	return user.User{
		ID:           r.ID,
		SchoolID:     r.SchoolID.String,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Roles:        []string(r.Roles),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin,
	}
}

func toUsers(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users
}

type UserRepository struct {
	db core.DBExecutor
}

var _ user.Repository = (*UserRepository)(nil)

func NewUserRepository(db core.DBExecutor) *UserRepository {
	return &UserRepository{db: db}
}

// schoolScope restricts a query to the accounts of a school, or to platform accounts.
func schoolScope(w *where, schoolID string) {
	if schoolID == "" {
		w.add("ecole_id IS NULL")
	} else {
		w.add("ecole_id = ?", schoolID)
	}
}

func (repo *UserRepository) CheckUniqueness(ctx context.Context, schoolID, username, email, excludedID string, exec ...core.DBExecutor) error {
	if schoolID != "" && !validID(schoolID) {
		return nil
	}
	e := getExec(repo.db, exec)
	taken := func(col, val string) (bool, error) {
		var w where
		schoolScope(&w, schoolID)
		w.add(col+" = ?", val)
		if validID(excludedID) {
			w.add("id <> ?", excludedID)
		}
		var n int
		err := e.GetContext(ctx, &n, e.Rebind("SELECT COUNT(*) FROM utilisateurs"+w.String()), w.args...)
		return n > 0, err
	}

	if username != "" {
		found, err := taken("username", username)
		if err != nil {
			return errors.Wrap(err, "checking username")
		}
		if found {
			return user.ErrUsernameExists
		}
	}
	if email != "" {
		found, err := taken("email", email)
		if err != nil {
			return errors.Wrap(err, "checking email")
		}
		if found {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *UserRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	q := `INSERT INTO utilisateurs (` + userColumns + `)
		VALUES (:id, :ecole_id, :name, :username, :email, :roles, :is_active, :password_hash, :last_login, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, newUserRow(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, core.NewConflictError(user.ErrUsernameExists, core.FieldError{Field: "username", Error: user.ErrUsernameExists.Error()})
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *UserRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	e := getExec(repo.db, exec)
	var w where
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.UsernameOrEmail != "":
		if filter.SchoolID != "" && !validID(filter.SchoolID) {
			return user.User{}, user.ErrNotFound
		}
		schoolScope(&w, filter.SchoolID)
		w.add("(username = ? OR email = ?)", filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := e.Rebind("SELECT " + userColumns + " FROM utilisateurs" + w.String() + " LIMIT 1")
	if err := e.GetContext(ctx, &row, q, w.args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound)
	}
	return row.toUser(), nil
}

func (repo *UserRepository) ListByLogin(ctx context.Context, login string, exec ...core.DBExecutor) ([]user.User, error) {
	e := getExec(repo.db, exec)
	var rows []userRow
	q := e.Rebind("SELECT " + userColumns + " FROM utilisateurs WHERE username = ? OR email = ?")
	if err := e.SelectContext(ctx, &rows, q, login, login); err != nil {
		return nil, err
	}
	return toUsers(rows), nil
}

func (repo *UserRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	e := getExec(repo.db, exec)
	var w where
	if filter != nil {
		if filter.SchoolID != "" && !validID(filter.SchoolID) {
			return []user.User{}, nil
		}
		schoolScope(&w, filter.SchoolID)
		if filter.Search != "" {
			p := likePattern(filter.Search)
			w.add(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(username) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, p, p, p)
		}
		if filter.Role != "" {
			// roles are matched by prefix so that "admin:" lists every admin
			w.add(`CAST(roles AS TEXT) LIKE ? ESCAPE '\'`, `%"`+likePrefix(filter.Role))
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}

	var rows []userRow
	q := "SELECT " + userColumns + " FROM utilisateurs" + w.String() + core.OrderBy(ordering, userOrdering, "name ASC")
	if err := e.SelectContext(ctx, &rows, e.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return toUsers(rows), nil
}

func (repo *UserRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := `UPDATE utilisateurs SET
		name = :name, username = :username, email = :email, roles = :roles, is_active = :is_active,
		password_hash = :password_hash, last_login = :last_login, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, newUserRow(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, core.NewConflictError(user.ErrUsernameExists, core.FieldError{Field: "username", Error: user.ErrUsernameExists.Error()})
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *UserRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}
	e := getExec(repo.db, exec)
	q, args, err := sqlx.In("DELETE FROM utilisateurs WHERE id IN (?)", valid)
	if err != nil {
		return 0, err
	}
	res, err := e.ExecContext(ctx, e.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), err
}
