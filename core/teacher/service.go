package teacher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/user"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("teacher not found")
	ErrMatriculeExists = errors.New("a teacher with this matricule already exists")
)

type (
	Repository interface {
		CreateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		GetTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Teacher, error)
		QueryTeachers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		DeleteTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
		// MatriculeExists looks for another teacher of the school (other than excludedID) using matricule.
		MatriculeExists(ctx context.Context, schoolID, matricule, excludedID string, exec ...core.DBExecutor) (bool, error)
		// CountMatricules counts the teachers of the school whose matricule starts with prefix.
		CountMatricules(ctx context.Context, schoolID, prefix string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		db        core.DB
		repo      Repository
		usrSvc    *user.Service
		files     core.FileStore
		validator *core.Validator
	}
)

func NewService(db core.DB, repo Repository, usrSvc *user.Service, files core.FileStore, validator *core.Validator) *Service {
	return &Service{db: db, repo: repo, usrSvc: usrSvc, files: files, validator: validator}
}

func matriculeExistsError() error {
	return core.NewConflictError(ErrMatriculeExists, core.FieldError{Field: "matricule", Error: ErrMatriculeExists.Error()})
}

func (svc *Service) checkMatricule(ctx context.Context, schoolID, matricule, excludedID string, exec ...core.DBExecutor) error {
	exists, err := svc.repo.MatriculeExists(ctx, schoolID, matricule, excludedID, exec...)
	if err != nil {
		return err
	}
	if exists {
		return matriculeExistsError()
	}
	return nil
}

// generateMatricule returns the first free `ENS-{YYYY}-{NNNN}` matricule of the school.
func (svc *Service) generateMatricule(ctx context.Context, schoolID string, now time.Time, exec core.DBExecutor) (string, error) {
	prefix := fmt.Sprintf("ENS-%d-", now.Year())
	n, err := svc.repo.CountMatricules(ctx, schoolID, prefix, exec)
	if err != nil {
		return "", err
	}
	for seq := n + 1; ; seq++ {
		matricule := fmt.Sprintf("%s%04d", prefix, seq)
		exists, err := svc.repo.MatriculeExists(ctx, schoolID, matricule, "", exec)
		if err != nil {
			return "", err
		}
		if !exists {
			return matricule, nil
		}
	}
}

// accountUser builds the account of a new teacher. The teacher email is used when the
// account has neither username nor email.
func accountUser(nt NewTeacher) *user.NewUser {
	if nt.Account == nil {
		return nil
	}
	nu := &user.NewUser{
		Name:            core.CleanString(nt.FirstName + " " + nt.LastName),
		Username:        nt.Account.Username,
		Email:           nt.Account.Email,
		Password:        nt.Account.Password,
		PasswordConfirm: nt.Account.PasswordConfirm,
		Roles:           user.TeacherRoles,
	}
	if nu.Username == "" && nu.Email == "" {
		nu.Email = nt.Email
	}
	return nu
}

// Create validates the teacher and its optional account, then writes the account and the teacher
// in one transaction. Nothing is written if any of them is invalid.
func (svc *Service) Create(ctx context.Context, actor core.Actor, nt NewTeacher) (Teacher, error) {
	nt.Clean()
	if err := svc.validator.Struct(nt); err != nil {
		return Teacher{}, err
	}
	nu := accountUser(nt)
	if nu != nil {
		if err := svc.usrSvc.Validate(ctx, actor.SchoolID, nu); err != nil {
			return Teacher{}, core.PrefixFields(err, "account")
		}
	}
	if nt.Matricule != "" {
		if err := svc.checkMatricule(ctx, actor.SchoolID, nt.Matricule, ""); err != nil {
			return Teacher{}, err
		}
	}

	now := time.Now().UTC()
	t := Teacher{
		SchoolID:  actor.SchoolID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	nt.apply(&t)

	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if t.Matricule == "" {
			if t.Matricule, err = svc.generateMatricule(ctx, actor.SchoolID, now, tx); err != nil {
				return err
			}
		}
		if nu != nil {
			usr, err := svc.usrSvc.Insert(ctx, actor.SchoolID, *nu, tx)
			if err != nil {
				return err
			}
			t.UserID = null.StringFrom(usr.ID)
		}
		t, err = svc.repo.CreateTeacher(ctx, t, tx)
		return err
	})
	if err != nil {
		return Teacher{}, err
	}
	return t, nil
}

func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, actor.SchoolID, id)
}

// Query lists the teachers of the actor's school.
func (svc *Service) Query(ctx context.Context, actor core.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]Teacher, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	filter.SchoolID = actor.SchoolID
	return svc.repo.QueryTeachers(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ut UpdateTeacher) (Teacher, error) {
	ut.Clean()
	ut.Account = nil
	if err := svc.validator.Struct(ut); err != nil {
		return Teacher{}, err
	}
	t, err := svc.repo.GetTeacher(ctx, actor.SchoolID, id)
	if err != nil {
		return Teacher{}, err
	}
	if ut.Matricule != "" && ut.Matricule != t.Matricule {
		if err := svc.checkMatricule(ctx, actor.SchoolID, ut.Matricule, t.ID); err != nil {
			return Teacher{}, err
		}
	}
	ut.apply(&t)
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTeacher(ctx, t)
}

// SetStatus changes the record status of a teacher. The linked account may only sign in
// while the teacher is active.
func (svc *Service) SetStatus(ctx context.Context, actor core.Actor, id string, su StatusUpdate) (Teacher, error) {
	su.Status = core.CleanString(su.Status)
	if err := svc.validator.Struct(su); err != nil {
		return Teacher{}, err
	}

	var t Teacher
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if t, err = svc.repo.GetTeacher(ctx, actor.SchoolID, id, tx); err != nil {
			return err
		}
		t.Status = su.Status
		t.UpdatedAt = time.Now().UTC()
		if t, err = svc.repo.UpdateTeacher(ctx, t, tx); err != nil {
			return err
		}
		if t.UserID.Valid {
			return svc.usrSvc.SetActive(ctx, t.UserID.String, t.Status == StatusActive, tx)
		}
		return nil
	})
	if err != nil {
		return Teacher{}, err
	}
	return t, nil
}

// Delete removes a teacher along with its account, then its photo.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	var t Teacher
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if t, err = svc.repo.GetTeacher(ctx, actor.SchoolID, id, tx); err != nil {
			return err
		}
		if err = svc.repo.DeleteTeacher(ctx, actor.SchoolID, t.ID, tx); err != nil {
			return err
		}
		if t.UserID.Valid {
			return svc.usrSvc.Delete(ctx, []string{t.UserID.String}, tx)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if t.Photo != "" {
		_ = svc.files.Delete(t.Photo)
	}
	return nil
}

// UpdatePhoto stores a new photo for the teacher and removes the previous one.
func (svc *Service) UpdatePhoto(ctx context.Context, actor core.Actor, id, filename string, r io.Reader) (Teacher, error) {
	t, err := svc.repo.GetTeacher(ctx, actor.SchoolID, id)
	if err != nil {
		return Teacher{}, err
	}
	name, err := svc.files.Save("photo", t.ID, filename, r)
	if err != nil {
		return Teacher{}, err
	}
	oldName := t.Photo
	t.Photo = name
	t.UpdatedAt = time.Now().UTC()
	if t, err = svc.repo.UpdateTeacher(ctx, t); err != nil {
		_ = svc.files.Delete(name)
		return Teacher{}, err
	}
	if oldName != "" && oldName != name {
		_ = svc.files.Delete(oldName)
	}
	return t, nil
}
