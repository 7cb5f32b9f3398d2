package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/teacher"
)

const teacherColumns = `id, ecole_id, utilisateur_id, matricule, nom, prenom, sexe, date_naissance, telephone, email,
	adresse, diplome, specialites, experience_annees, date_embauche, photo, statut_record, created_at, updated_at`

var teacherOrdering = map[string]string{
	"nom":               "nom",
	"prenom":            "prenom",
	"matricule":         "matricule",
	"experience_annees": "experience_annees",
	"date_embauche":     "date_embauche",
	"created_at":        "created_at",
}

type teacherRow struct {
	ID              string      `db:"id"`
	SchoolID        string      `db:"ecole_id"`
	UserID          null.String `db:"utilisateur_id"`
	Matricule       string      `db:"matricule"`
	LastName        string      `db:"nom"`
	FirstName       string      `db:"prenom"`
	Sex             string      `db:"sexe"`
	BirthDate       *core.Date  `db:"date_naissance"`
	Phone           string      `db:"telephone"`
	Email           string      `db:"email"`
	Address         string      `db:"adresse"`
	Diploma         string      `db:"diplome"`
	Specialties     jsonList    `db:"specialites"`
	ExperienceYears int         `db:"experience_annees"`
	HireDate        *core.Date  `db:"date_embauche"`
	Photo           string      `db:"photo"`
	Status          string      `db:"statut_record"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func newTeacherRow(t teacher.Teacher) teacherRow {
	return teacherRow{
		ID:              t.ID,
		SchoolID:        t.SchoolID,
		UserID:          t.UserID,
		Matricule:       t.Matricule,
		LastName:        t.LastName,
		FirstName:       t.FirstName,
		Sex:             t.Sex,
		BirthDate:       t.BirthDate,
		Phone:           t.Phone,
		Email:           t.Email,
		Address:         t.Address,
		Diploma:         t.Diploma,
		Specialties:     jsonList(t.Specialties),
		ExperienceYears: t.ExperienceYears,
		HireDate:        t.HireDate,
		Photo:           t.Photo,
		Status:          t.Status,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func (r teacherRow) toTeacher() teacher.Teacher {
	return teacher.Teacher{
		ID:              r.ID,
		SchoolID:        r.SchoolID,
		UserID:          r.UserID,
		Matricule:       r.Matricule,
		LastName:        r.LastName,
		FirstName:       r.FirstName,
		Sex:             r.Sex,
		BirthDate:       r.BirthDate,
		Phone:           r.Phone,
		Email:           r.Email,
		Address:         r.Address,
		Diploma:         r.Diploma,
		Specialties:     []string(r.Specialties),
		ExperienceYears: r.ExperienceYears,
		HireDate:        r.HireDate,
		Photo:           r.Photo,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func matriculeConflict() error {
	return core.NewConflictError(teacher.ErrMatriculeExists,
		core.FieldError{Field: "matricule", Error: teacher.ErrMatriculeExists.Error()})
}

type TeacherRepository struct {
	db core.DBExecutor
}

var _ teacher.Repository = (*TeacherRepository)(nil)

func NewTeacherRepository(db core.DBExecutor) *TeacherRepository {
	return &TeacherRepository{db: db}
}

func (repo *TeacherRepository) CreateTeacher(ctx context.Context, t teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	q := `INSERT INTO enseignants (` + teacherColumns + `)
		VALUES (:id, :ecole_id, :utilisateur_id, :matricule, :nom, :prenom, :sexe, :date_naissance, :telephone, :email,
		:adresse, :diplome, :specialites, :experience_annees, :date_embauche, :photo, :statut_record, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, newTeacherRow(t)); err != nil {
		if isUniqueViolation(err) {
			return teacher.Teacher{}, matriculeConflict()
		}
		return teacher.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return t, nil
}

func (repo *TeacherRepository) GetTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (teacher.Teacher, error) {
	if !validID(schoolID) || !validID(id) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	e := getExec(repo.db, exec)
	var row teacherRow
	q := e.Rebind("SELECT " + teacherColumns + " FROM enseignants WHERE ecole_id = ? AND id = ?")
	if err := e.GetContext(ctx, &row, q, schoolID, id); err != nil {
		return teacher.Teacher{}, trapNoRowsErr(err, teacher.ErrNotFound)
	}
	return row.toTeacher(), nil
}

func (repo *TeacherRepository) QueryTeachers(ctx context.Context, filter *teacher.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]teacher.Teacher, error) {
	if !validID(filter.SchoolID) {
		return []teacher.Teacher{}, nil
	}
	e := getExec(repo.db, exec)
	var w where
	w.add("ecole_id = ?", filter.SchoolID)
	if filter.Search != "" {
		p := likePattern(filter.Search)
		w.add(`(LOWER(nom) LIKE ? ESCAPE '\' OR LOWER(prenom) LIKE ? ESCAPE '\' OR LOWER(matricule) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, p, p, p, p)
	}
	if filter.Status != "" {
		w.add("statut_record = ?", filter.Status)
	}
	if filter.Specialty != "" {
		w.add(`LOWER(CAST(specialites AS TEXT)) LIKE ? ESCAPE '\'`, likePattern(filter.Specialty))
	}

	var rows []teacherRow
	q := "SELECT " + teacherColumns + " FROM enseignants" + w.String() + core.OrderBy(ordering, teacherOrdering, "nom ASC, prenom ASC")
	if err := e.SelectContext(ctx, &rows, e.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	teachers := make([]teacher.Teacher, 0, len(rows))
	for _, r := range rows {
		teachers = append(teachers, r.toTeacher())
	}
	return teachers, nil
}

func (repo *TeacherRepository) UpdateTeacher(ctx context.Context, t teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error) {
	q := `UPDATE enseignants SET
		utilisateur_id = :utilisateur_id, matricule = :matricule, nom = :nom, prenom = :prenom, sexe = :sexe,
		date_naissance = :date_naissance, telephone = :telephone, email = :email, adresse = :adresse,
		diplome = :diplome, specialites = :specialites, experience_annees = :experience_annees,
		date_embauche = :date_embauche, photo = :photo, statut_record = :statut_record, updated_at = :updated_at
		WHERE id = :id AND ecole_id = :ecole_id`
	res, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, newTeacherRow(t))
	if err != nil {
		if isUniqueViolation(err) {
			return teacher.Teacher{}, matriculeConflict()
		}
		return teacher.Teacher{}, errors.Wrap(err, "updating teacher")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	return t, nil
}

func (repo *TeacherRepository) DeleteTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validID(schoolID) || !validID(id) {
		return teacher.ErrNotFound
	}
	e := getExec(repo.db, exec)
	res, err := e.ExecContext(ctx, e.Rebind("DELETE FROM enseignants WHERE ecole_id = ? AND id = ?"), schoolID, id)
	if err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return teacher.ErrNotFound
	}
	return nil
}

func (repo *TeacherRepository) MatriculeExists(ctx context.Context, schoolID, matricule, excludedID string, exec ...core.DBExecutor) (bool, error) {
	e := getExec(repo.db, exec)
	var w where
	w.add("ecole_id = ?", schoolID)
	w.add("matricule = ?", matricule)
	if validID(excludedID) {
		w.add("id <> ?", excludedID)
	}
	var n int
	if err := e.GetContext(ctx, &n, e.Rebind("SELECT COUNT(*) FROM enseignants"+w.String()), w.args...); err != nil {
		return false, errors.Wrap(err, "checking matricule")
	}
	return n > 0, nil
}

func (repo *TeacherRepository) CountMatricules(ctx context.Context, schoolID, prefix string, exec ...core.DBExecutor) (int, error) {
	e := getExec(repo.db, exec)
	var n int
	q := e.Rebind(`SELECT COUNT(*) FROM enseignants WHERE ecole_id = ? AND matricule LIKE ? ESCAPE '\'`)
	if err := e.GetContext(ctx, &n, q, schoolID, likePrefix(prefix)); err != nil {
		return 0, errors.Wrap(err, "counting matricules")
	}
	return n, nil
}
