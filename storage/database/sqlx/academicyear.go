package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/academicyear"
)

const yearColumns = `id, ecole_id, libelle, date_debut, date_fin, description, active, statut, created_at, updated_at`

type yearRow struct {
	ID          string    `db:"id"`
	SchoolID    string    `db:"ecole_id"`
	Label       string    `db:"libelle"`
	StartDate   core.Date `db:"date_debut"`
	EndDate     core.Date `db:"date_fin"`
	Description string    `db:"description"`
	Active      bool      `db:"active"`
	Status      string    `db:"statut"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func newYearRow(y academicyear.AcademicYear) yearRow {
	return yearRow(y)
}

func (r yearRow) toYear() academicyear.AcademicYear {
	y := academicyear.AcademicYear(r)
	y.CreatedAt = r.CreatedAt.UTC()
	y.UpdatedAt = r.UpdatedAt.UTC()
	return y
}

type AcademicYearRepository struct {
	db core.DBExecutor
}

var _ academicyear.Repository = (*AcademicYearRepository)(nil)

func NewAcademicYearRepository(db core.DBExecutor) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

func (repo *AcademicYearRepository) LockSchool(ctx context.Context, schoolID string, exec core.DBExecutor) error {
	if !validID(schoolID) {
		return academicyear.ErrNotFound
	}
	var id string
	q := exec.Rebind("SELECT id FROM ecoles WHERE id = ?" + forUpdate(exec))
	if err := exec.GetContext(ctx, &id, q, schoolID); err != nil {
		return trapNoRowsErr(err, academicyear.ErrNotFound)
	}
	return nil
}

func (repo *AcademicYearRepository) CreateYear(ctx context.Context, y academicyear.AcademicYear, exec ...core.DBExecutor) (academicyear.AcademicYear, error) {
	if y.ID == "" {
		y.ID = uuid.NewString()
	}
	q := `INSERT INTO annees_scolaires (` + yearColumns + `)
		VALUES (:id, :ecole_id, :libelle, :date_debut, :date_fin, :description, :active, :statut, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, newYearRow(y)); err != nil {
		if isUniqueViolation(err) {
			return academicyear.AcademicYear{}, core.NewValidationError(academicyear.ErrLabelExists,
				core.FieldError{Field: "libelle", Error: academicyear.ErrLabelExists.Error()})
		}
		return academicyear.AcademicYear{}, errors.Wrap(err, "inserting academic year")
	}
	return y, nil
}

func (repo *AcademicYearRepository) getYear(ctx context.Context, e core.DBExecutor, w where) (academicyear.AcademicYear, error) {
	var row yearRow
	q := e.Rebind("SELECT " + yearColumns + " FROM annees_scolaires" + w.String() + " LIMIT 1")
	if err := e.GetContext(ctx, &row, q, w.args...); err != nil {
		return academicyear.AcademicYear{}, trapNoRowsErr(err, academicyear.ErrNotFound)
	}
	return row.toYear(), nil
}

func (repo *AcademicYearRepository) GetYear(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (academicyear.AcademicYear, error) {
	if !validID(schoolID) || !validID(id) {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	var w where
	w.add("ecole_id = ?", schoolID)
	w.add("id = ?", id)
	return repo.getYear(ctx, getExec(repo.db, exec), w)
}

func (repo *AcademicYearRepository) GetActiveYear(ctx context.Context, schoolID string, exec ...core.DBExecutor) (academicyear.AcademicYear, error) {
	if !validID(schoolID) {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	var w where
	w.add("ecole_id = ?", schoolID)
	w.add("active = ?", true)
	w.add("statut = ?", academicyear.StatusActive)
	return repo.getYear(ctx, getExec(repo.db, exec), w)
}

func (repo *AcademicYearRepository) LabelExists(ctx context.Context, schoolID, label, excludedID string, exec ...core.DBExecutor) (bool, error) {
	e := getExec(repo.db, exec)
	var w where
	w.add("ecole_id = ?", schoolID)
	w.add("libelle = ?", label)
	w.add("statut = ?", academicyear.StatusActive)
	if validID(excludedID) {
		w.add("id <> ?", excludedID)
	}
	var n int
	if err := e.GetContext(ctx, &n, e.Rebind("SELECT COUNT(*) FROM annees_scolaires"+w.String()), w.args...); err != nil {
		return false, errors.Wrap(err, "checking label")
	}
	return n > 0, nil
}

func (repo *AcademicYearRepository) QueryYears(ctx context.Context, filter *academicyear.QueryFilter, exec ...core.DBExecutor) ([]academicyear.AcademicYear, error) {
	e := getExec(repo.db, exec)
	if !validID(filter.SchoolID) {
		return []academicyear.AcademicYear{}, nil
	}
	var w where
	w.add("ecole_id = ?", filter.SchoolID)
	if filter.Status != "" {
		w.add("statut = ?", filter.Status)
	}

	var rows []yearRow
	q := "SELECT " + yearColumns + " FROM annees_scolaires" + w.String() + " ORDER BY date_debut DESC, libelle DESC"
	if err := e.SelectContext(ctx, &rows, e.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying academic years")
	}
	years := make([]academicyear.AcademicYear, 0, len(rows))
	for _, r := range rows {
		years = append(years, r.toYear())
	}
	return years, nil
}

func (repo *AcademicYearRepository) UpdateYear(ctx context.Context, y academicyear.AcademicYear, exec ...core.DBExecutor) (academicyear.AcademicYear, error) {
	q := `UPDATE annees_scolaires SET
		libelle = :libelle, date_debut = :date_debut, date_fin = :date_fin, description = :description,
		active = :active, statut = :statut, updated_at = :updated_at
		WHERE id = :id AND ecole_id = :ecole_id`
	res, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, newYearRow(y))
	if err != nil {
		if isUniqueViolation(err) {
			return academicyear.AcademicYear{}, core.NewValidationError(academicyear.ErrLabelExists,
				core.FieldError{Field: "libelle", Error: academicyear.ErrLabelExists.Error()})
		}
		return academicyear.AcademicYear{}, errors.Wrap(err, "updating academic year")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academicyear.AcademicYear{}, academicyear.ErrNotFound
	}
	return y, nil
}

func (repo *AcademicYearRepository) DeactivateYears(ctx context.Context, schoolID string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	q := e.Rebind("UPDATE annees_scolaires SET active = ?, updated_at = ? WHERE ecole_id = ? AND active = ?")
	if _, err := e.ExecContext(ctx, q, false, time.Now().UTC(), schoolID, true); err != nil {
		return errors.Wrap(err, "deactivating academic years")
	}
	return nil
}

func (repo *AcademicYearRepository) ArchiveYearRecords(ctx context.Context, schoolID, yearID string, exec ...core.DBExecutor) (int64, int64, error) {
	e := getExec(repo.db, exec)
	archive := func(table string) (int64, error) {
		q := e.Rebind("UPDATE " + table + " SET statut = ? WHERE ecole_id = ? AND annee_scolaire_id = ?")
		res, err := e.ExecContext(ctx, q, academicyear.StatusArchived, schoolID, yearID)
		if err != nil {
			return 0, errors.Wrapf(err, "archiving %s", table)
		}
		return res.RowsAffected()
	}
	classes, err := archive("classes")
	if err != nil {
		return 0, 0, err
	}
	inscriptions, err := archive("inscriptions")
	if err != nil {
		return 0, 0, err
	}
	return classes, inscriptions, nil
}

func (repo *AcademicYearRepository) CountClasses(ctx context.Context, schoolID, yearID string, exec ...core.DBExecutor) (int, error) {
	e := getExec(repo.db, exec)
	var n int
	q := e.Rebind("SELECT COUNT(*) FROM classes WHERE ecole_id = ? AND annee_scolaire_id = ?")
	if err := e.GetContext(ctx, &n, q, schoolID, yearID); err != nil {
		return 0, errors.Wrap(err, "counting classes")
	}
	return n, nil
}

func (repo *AcademicYearRepository) DeleteYear(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	e := getExec(repo.db, exec)
	res, err := e.ExecContext(ctx, e.Rebind("DELETE FROM annees_scolaires WHERE ecole_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return errors.Wrap(err, "deleting academic year")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academicyear.ErrNotFound
	}
	return nil
}
