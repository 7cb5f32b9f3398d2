package school

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/user"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("school not found")
	ErrNotificationNotFound = core.NewNotFoundError("notification not found")
	ErrSignupNotFound       = core.NewNotFoundError("signup request not found")
	ErrContactEmailRequired = errors.New("the admin email is required to register a school")
	ErrCodeTaken            = errors.New("a school with this code already exists")
)

const (
	NotificationValidation = "validation"

	maxCodeAttempts   = 50
	maxInsertAttempts = 5
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		GetSchool(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (School, error)
		CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error)
		QuerySchools(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]School, error)
		UpdateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		// DeleteSchool removes the school and every row it owns. It returns the stored file names
		// (teacher photos) left to clean up.
		DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) ([]string, error)

		CreateHistoryEntry(ctx context.Context, h HistoryEntry, exec ...core.DBExecutor) (HistoryEntry, error)
		QueryHistory(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]HistoryEntry, error)

		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		QueryNotifications(ctx context.Context, schoolID string, unreadOnly bool, exec ...core.DBExecutor) ([]Notification, error)
		MarkNotificationRead(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error

		CreateSignupRequest(ctx context.Context, req SignupRequest, exec ...core.DBExecutor) (SignupRequest, error)
		GetSignupRequest(ctx context.Context, schoolID string, exec ...core.DBExecutor) (SignupRequest, error)
		QuerySignupRequests(ctx context.Context, status string, exec ...core.DBExecutor) ([]SignupRequest, error)
		UpdateSignupRequest(ctx context.Context, req SignupRequest, exec ...core.DBExecutor) (SignupRequest, error)

		GetStats(ctx context.Context, schoolID string, exec ...core.DBExecutor) (Stats, error)
		GetPlatformStats(ctx context.Context, exec ...core.DBExecutor) (PlatformStats, error)
	}

	Service struct {
		db        core.DB
		repo      Repository
		usrSvc    *user.Service
		files     core.FileStore
		mailSvc   core.EmailService
		validator *core.Validator
	}
)

func NewService(db core.DB, repo Repository, usrSvc *user.Service, files core.FileStore, mailSvc core.EmailService, validator *core.Validator) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		usrSvc:    usrSvc,
		files:     files,
		mailSvc:   mailSvc,
		validator: validator,
	}
}

func (svc *Service) Get(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByCode(ctx context.Context, code string) (School, error) {
	code = core.CleanString(code, true /* lower */)
	if code == "" {
		return School{}, ErrNotFound
	}
	return svc.repo.GetSchool(ctx, GetFilter{Code: code})
}

// generateCode derives a unique school code from the school name.
func (svc *Service) generateCode(ctx context.Context, name string, exec core.DBExecutor) (string, error) {
	base := core.Slugify(name)
	if base == "" {
		base = "ecole"
	}
	for i := 1; i <= maxCodeAttempts; i++ {
		code := base
		if i > 1 {
			code = fmt.Sprintf("%s-%d", base, i)
		}
		exists, err := svc.repo.CodeExists(ctx, code, exec)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return base + "-" + uuid.NewString()[:8], nil
}

// insertSchool gives sch a code and inserts it, then runs fn, all in one transaction.
// The whole transaction starts over when a concurrent insert took the code first.
func (svc *Service) insertSchool(ctx context.Context, sch School, fn func(sch School, tx core.DBExecutor) error) (School, error) {
	for attempt := 1; ; attempt++ {
		var created School
		err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
			code, err := svc.generateCode(ctx, sch.Name, tx)
			if err != nil {
				return err
			}
			sch.Code = code
			if created, err = svc.repo.CreateSchool(ctx, sch, tx); err != nil {
				return err
			}
			return fn(created, tx)
		})
		if errors.Is(err, ErrCodeTaken) && attempt < maxInsertAttempts {
			continue
		}
		if err != nil {
			return School{}, err
		}
		return created, nil
	}
}

func newSchool(p Profile, code string, now time.Time) School {
	sch := School{
		Code:             code,
		ValidationStatus: StatusPending,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	p.apply(&sch)
	return sch
}

// Signup registers a pending school along with its director account and the signup request
// super-admins review.
func (svc *Service) Signup(ctx context.Context, ns NewSignup) (School, error) {
	ns.School.Clean()
	ns.Admin.Clean()
	ns.ContactPhone = core.CleanString(ns.ContactPhone)
	ns.Message = core.CleanString(ns.Message)
	if err := svc.validator.Struct(ns); err != nil {
		return School{}, err
	}
	if ns.Admin.Email == "" {
		return School{}, core.NewValidationError(ErrContactEmailRequired, core.FieldError{Field: "admin.email", Error: ErrContactEmailRequired.Error()})
	}
	ns.Admin.Roles = []string{core.RoleAdminDirector}

	now := time.Now().UTC()
	sch, err := svc.insertSchool(ctx, newSchool(ns.School, "", now), func(sch School, tx core.DBExecutor) error {
		if _, err := svc.usrSvc.Insert(ctx, sch.ID, ns.Admin, tx); err != nil {
			return err
		}
		_, err := svc.repo.CreateSignupRequest(ctx, SignupRequest{
			SchoolID:     sch.ID,
			ContactName:  ns.Admin.Name,
			ContactEmail: ns.Admin.Email,
			ContactPhone: ns.ContactPhone,
			Message:      ns.Message,
			Status:       SignupPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, tx)
		return err
	})
	if err != nil {
		return School{}, err
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: ns.Admin.Name, Address: ns.Admin.Email}},
		Subject:      "Demande d'inscription reçue",
		TemplateName: "signup_received",
		TemplateData: map[string]interface{}{
			"ContactName": ns.Admin.Name,
			"SchoolName":  sch.Name,
			"SchoolCode":  sch.Code,
		},
	})
	return sch, nil
}

// Create registers an approved school, and its first admin account when provided.
func (svc *Service) Create(ctx context.Context, actor core.Actor, ns NewSchool) (School, error) {
	ns.School.Clean()
	if ns.Admin != nil {
		ns.Admin.Clean()
	}
	if err := svc.validator.Struct(ns); err != nil {
		return School{}, err
	}
	if ns.Admin != nil && len(ns.Admin.Roles) == 0 {
		ns.Admin.Roles = []string{core.RoleAdminDirector}
	}

	now := time.Now().UTC()
	sch := newSchool(ns.School, "", now)
	sch.ValidationStatus = StatusApproved
	sch.SuperAdminValidated = true
	sch.ValidatedAt = null.TimeFrom(now)
	sch.ValidatedBy = null.NewString(actor.UserID, actor.UserID != "")

	return svc.insertSchool(ctx, sch, func(sch School, tx core.DBExecutor) error {
		if ns.Admin == nil {
			return nil
		}
		_, err := svc.usrSvc.Insert(ctx, sch.ID, *ns.Admin, tx)
		return err
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]School, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.QuerySchools(ctx, filter, ordering)
}

// UpdateProfile replaces the profile and branding of the actor's school.
func (svc *Service) UpdateProfile(ctx context.Context, actor core.Actor, p Profile) (School, error) {
	p.Clean()
	if err := svc.validator.Struct(p); err != nil {
		return School{}, err
	}
	sch, err := svc.repo.GetSchool(ctx, GetFilter{ID: actor.SchoolID})
	if err != nil {
		return School{}, err
	}
	p.apply(&sch)
	sch.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSchool(ctx, sch)
}

// UpdateLogo stores a new logo for the actor's school and removes the previous one.
func (svc *Service) UpdateLogo(ctx context.Context, actor core.Actor, filename string, r io.Reader) (School, error) {
	sch, err := svc.repo.GetSchool(ctx, GetFilter{ID: actor.SchoolID})
	if err != nil {
		return School{}, err
	}
	name, err := svc.files.Save("logo", sch.ID, filename, r)
	if err != nil {
		return School{}, err
	}
	oldName := sch.Logo
	sch.Logo = name
	sch.UpdatedAt = time.Now().UTC()
	if sch, err = svc.repo.UpdateSchool(ctx, sch); err != nil {
		_ = svc.files.Delete(name)
		return School{}, err
	}
	if oldName != "" && oldName != name {
		_ = svc.files.Delete(oldName)
	}
	return sch, nil
}

// SetActive toggles the platform activation of a school, independently of its validation status.
func (svc *Service) SetActive(ctx context.Context, id string, active bool) (School, error) {
	sch, err := svc.repo.GetSchool(ctx, GetFilter{ID: id})
	if err != nil {
		return School{}, err
	}
	sch.Active = active
	sch.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSchool(ctx, sch)
}

// Transition applies a super-admin validation action to a school. The status update, the
// notification, the history entry and the signup request status are written in one transaction.
func (svc *Service) Transition(ctx context.Context, actor core.Actor, id string, tr TransitionRequest) (School, error) {
	tr.Note = core.CleanString(tr.Note)
	if err := svc.validator.Struct(tr); err != nil {
		return School{}, err
	}
	info := actions[tr.Action]

	var (
		sch          School
		contactEmail string
		contactName  string
	)
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if sch, err = svc.repo.GetSchool(ctx, GetFilter{ID: id, ForUpdate: true}, tx); err != nil {
			return err
		}
		from := sch.ValidationStatus
		if !CanTransition(from, info.status) {
			return core.NewConflictError(
				fmt.Errorf("cannot move a school from %s to %s", from, info.status),
				core.FieldError{Field: "action", Error: fmt.Sprintf("not allowed on a %s school", from)},
			)
		}

		now := time.Now().UTC()
		sch.ValidationStatus = info.status
		sch.UpdatedAt = now
		if info.status == StatusApproved {
			sch.SuperAdminValidated = true
			sch.ValidatedAt = null.TimeFrom(now)
			sch.ValidatedBy = null.NewString(actor.UserID, actor.UserID != "")
		}
		if sch, err = svc.repo.UpdateSchool(ctx, sch, tx); err != nil {
			return err
		}

		msg := info.notifMessage
		if tr.Note != "" {
			msg += "\n" + tr.Note
		}
		if _, err = svc.repo.CreateNotification(ctx, Notification{
			SchoolID:  sch.ID,
			Type:      NotificationValidation,
			Title:     info.notifTitle,
			Message:   msg,
			CreatedAt: now,
		}, tx); err != nil {
			return err
		}

		if _, err = svc.repo.CreateHistoryEntry(ctx, HistoryEntry{
			SchoolID:  sch.ID,
			Action:    info.history,
			OldStatus: string(from),
			NewStatus: string(info.status),
			AdminID:   null.NewString(actor.UserID, actor.UserID != ""),
			Comment:   tr.Note,
			CreatedAt: now,
		}, tx); err != nil {
			return err
		}

		req, err := svc.repo.GetSignupRequest(ctx, sch.ID, tx)
		if errors.Is(err, ErrSignupNotFound) {
			return nil // created by a super-admin
		} else if err != nil {
			return err
		}
		contactEmail, contactName = req.ContactEmail, req.ContactName
		req.Status = info.signupStatus
		req.UpdatedAt = now
		_, err = svc.repo.UpdateSignupRequest(ctx, req, tx)
		return err
	})
	if err != nil {
		return School{}, err
	}

	if to := validationRecipients(sch, contactName, contactEmail); len(to) > 0 {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           to,
			Subject:      info.emailSubject,
			TemplateName: "school_validation",
			TemplateData: map[string]interface{}{
				"SchoolName": sch.Name,
				"SchoolCode": sch.Code,
				"Message":    info.notifMessage,
				"Note":       tr.Note,
			},
		})
	}
	return sch, nil
}

func validationRecipients(sch School, contactName, contactEmail string) []mail.Address {
	var to []mail.Address
	if sch.Email != "" {
		to = append(to, mail.Address{Name: sch.Name, Address: sch.Email})
	}
	if contactEmail != "" && contactEmail != sch.Email {
		to = append(to, mail.Address{Name: contactName, Address: contactEmail})
	}
	return to
}

func (svc *Service) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	if _, err := svc.repo.GetSchool(ctx, GetFilter{ID: id}); err != nil {
		return nil, err
	}
	return svc.repo.QueryHistory(ctx, id)
}

// Delete removes a school with all its data, then its stored files.
func (svc *Service) Delete(ctx context.Context, id string) error {
	var (
		sch   School
		files []string
	)
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if sch, err = svc.repo.GetSchool(ctx, GetFilter{ID: id, ForUpdate: true}, tx); err != nil {
			return err
		}
		files, err = svc.repo.DeleteSchool(ctx, sch.ID, tx)
		return err
	})
	if err != nil {
		return err
	}
	if sch.Logo != "" {
		files = append(files, sch.Logo)
	}
	for _, name := range files {
		_ = svc.files.Delete(name)
	}
	return nil
}

func (svc *Service) Notifications(ctx context.Context, actor core.Actor, unreadOnly bool) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx, actor.SchoolID, unreadOnly)
}

func (svc *Service) MarkNotificationRead(ctx context.Context, actor core.Actor, id string) error {
	return svc.repo.MarkNotificationRead(ctx, actor.SchoolID, id)
}

func (svc *Service) SignupRequests(ctx context.Context, status string) ([]SignupRequest, error) {
	return svc.repo.QuerySignupRequests(ctx, core.CleanString(status, true /* lower */))
}

// Stats returns the dashboard counters of the actor's school.
func (svc *Service) Stats(ctx context.Context, actor core.Actor) (Stats, error) {
	return svc.repo.GetStats(ctx, actor.SchoolID)
}

func (svc *Service) PlatformStats(ctx context.Context) (PlatformStats, error) {
	return svc.repo.GetPlatformStats(ctx)
}
