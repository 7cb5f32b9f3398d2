package academicyear

import (
	"context"
	"errors"
	"time"

	"github.com/Mavuisra/naklass-sub005/core"
)

var (
	// errors
	ErrNotFound     = core.NewNotFoundError("academic year not found")
	ErrNoActiveYear = core.NewConflictError(errors.New("the school has no active academic year"))
	ErrArchived     = core.NewConflictError(errors.New("archived academic years cannot be modified"))
	ErrYearInUse    = core.NewConflictError(errors.New("the active year and years holding classes cannot be deleted"))
	ErrLabelExists  = errors.New("an academic year with this label already exists")
)

type (
	Repository interface {
		// LockSchool serializes year writes of a school until the end of the transaction.
		LockSchool(ctx context.Context, schoolID string, exec core.DBExecutor) error
		CreateYear(ctx context.Context, y AcademicYear, exec ...core.DBExecutor) (AcademicYear, error)
		GetYear(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (AcademicYear, error)
		GetActiveYear(ctx context.Context, schoolID string, exec ...core.DBExecutor) (AcademicYear, error)
		// LabelExists looks for a non-archived year of the school labeled label, other than excludedID.
		LabelExists(ctx context.Context, schoolID, label, excludedID string, exec ...core.DBExecutor) (bool, error)
		QueryYears(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]AcademicYear, error)
		UpdateYear(ctx context.Context, y AcademicYear, exec ...core.DBExecutor) (AcademicYear, error)
		DeactivateYears(ctx context.Context, schoolID string, exec ...core.DBExecutor) error
		// ArchiveYearRecords archives the classes and inscriptions of the year.
		ArchiveYearRecords(ctx context.Context, schoolID, yearID string, exec ...core.DBExecutor) (classes, inscriptions int64, err error)
		CountClasses(ctx context.Context, schoolID, yearID string, exec ...core.DBExecutor) (int, error)
		DeleteYear(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error
	}

	Service struct {
		db        core.DB
		repo      Repository
		validator *core.Validator
	}
)

func NewService(db core.DB, repo Repository, validator *core.Validator) *Service {
	return &Service{db: db, repo: repo, validator: validator}
}

func labelExistsError() error {
	return core.NewValidationError(ErrLabelExists, core.FieldError{Field: "libelle", Error: ErrLabelExists.Error()})
}

func (svc *Service) checkLabel(ctx context.Context, schoolID, label, excludedID string, exec core.DBExecutor) error {
	exists, err := svc.repo.LabelExists(ctx, schoolID, label, excludedID, exec)
	if err != nil {
		return err
	}
	if exists {
		return labelExistsError()
	}
	return nil
}

// Query lists the years of the actor's school, latest first.
func (svc *Service) Query(ctx context.Context, actor core.Actor, filter *QueryFilter) ([]AcademicYear, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.SchoolID = actor.SchoolID
	return svc.repo.QueryYears(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (AcademicYear, error) {
	return svc.repo.GetYear(ctx, actor.SchoolID, id)
}

// GetActive returns the active year of the actor's school, or ErrNotFound.
func (svc *Service) GetActive(ctx context.Context, actor core.Actor) (AcademicYear, error) {
	return svc.repo.GetActiveYear(ctx, actor.SchoolID)
}

// Create adds an inactive year to the actor's school.
func (svc *Service) Create(ctx context.Context, actor core.Actor, ny NewYear) (AcademicYear, error) {
	ny.Clean()
	if err := svc.validator.Struct(ny); err != nil {
		return AcademicYear{}, err
	}

	now := time.Now().UTC()
	y := AcademicYear{
		SchoolID:    actor.SchoolID,
		Label:       ny.Label,
		StartDate:   core.MustParseDate(ny.StartDate),
		EndDate:     core.MustParseDate(ny.EndDate),
		Description: ny.Description,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if err := svc.repo.LockSchool(ctx, actor.SchoolID, tx); err != nil {
			return err
		}
		if err := svc.checkLabel(ctx, actor.SchoolID, y.Label, "", tx); err != nil {
			return err
		}
		var err error
		y, err = svc.repo.CreateYear(ctx, y, tx)
		return err
	})
	if err != nil {
		return AcademicYear{}, err
	}
	return y, nil
}

// Edit updates the label, dates and description of a non-archived year.
func (svc *Service) Edit(ctx context.Context, actor core.Actor, id string, uy UpdateYear) (AcademicYear, error) {
	uy.Clean()
	if err := svc.validator.Struct(uy); err != nil {
		return AcademicYear{}, err
	}

	var y AcademicYear
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if err := svc.repo.LockSchool(ctx, actor.SchoolID, tx); err != nil {
			return err
		}
		var err error
		if y, err = svc.repo.GetYear(ctx, actor.SchoolID, id, tx); err != nil {
			return err
		}
		if y.IsArchived() {
			return ErrArchived
		}
		if err := svc.checkLabel(ctx, actor.SchoolID, uy.Label, y.ID, tx); err != nil {
			return err
		}
		y.Label = uy.Label
		y.StartDate = core.MustParseDate(uy.StartDate)
		y.EndDate = core.MustParseDate(uy.EndDate)
		y.Description = uy.Description
		y.UpdatedAt = time.Now().UTC()
		y, err = svc.repo.UpdateYear(ctx, y, tx)
		return err
	})
	if err != nil {
		return AcademicYear{}, err
	}
	return y, nil
}

// Activate makes id the only active year of the actor's school.
func (svc *Service) Activate(ctx context.Context, actor core.Actor, id string) (AcademicYear, error) {
	var y AcademicYear
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if err := svc.repo.LockSchool(ctx, actor.SchoolID, tx); err != nil {
			return err
		}
		var err error
		if y, err = svc.repo.GetYear(ctx, actor.SchoolID, id, tx); err != nil {
			return err
		}
		if y.IsArchived() {
			return ErrArchived
		}
		if err := svc.repo.DeactivateYears(ctx, actor.SchoolID, tx); err != nil {
			return err
		}
		y.Active = true
		y.UpdatedAt = time.Now().UTC()
		y, err = svc.repo.UpdateYear(ctx, y, tx)
		return err
	})
	if err != nil {
		return AcademicYear{}, err
	}
	return y, nil
}

// End closes the active year of the actor's school: the year is deactivated and archived
// along with its classes and inscriptions. There is no way back.
func (svc *Service) End(ctx context.Context, actor core.Actor) (EndResult, error) {
	var res EndResult
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if err := svc.repo.LockSchool(ctx, actor.SchoolID, tx); err != nil {
			return err
		}
		y, err := svc.repo.GetActiveYear(ctx, actor.SchoolID, tx)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNoActiveYear
			}
			return err
		}
		y.Active = false
		y.Status = StatusArchived
		y.UpdatedAt = time.Now().UTC()
		if res.Year, err = svc.repo.UpdateYear(ctx, y, tx); err != nil {
			return err
		}
		res.Classes, res.Inscriptions, err = svc.repo.ArchiveYearRecords(ctx, actor.SchoolID, y.ID, tx)
		return err
	})
	if err != nil {
		return EndResult{}, err
	}
	return res, nil
}

// Delete removes a year that is neither active nor holding classes.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		y, err := svc.repo.GetYear(ctx, actor.SchoolID, id, tx)
		if err != nil {
			return err
		}
		if y.IsCurrent() {
			return ErrYearInUse
		}
		n, err := svc.repo.CountClasses(ctx, actor.SchoolID, y.ID, tx)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrYearInUse
		}
		return svc.repo.DeleteYear(ctx, actor.SchoolID, y.ID, tx)
	})
}
