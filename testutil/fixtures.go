package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/academicyear"
	"github.com/Mavuisra/naklass-sub005/core/school"
	"github.com/Mavuisra/naklass-sub005/core/teacher"
	"github.com/Mavuisra/naklass-sub005/core/user"
	sqlxrepos "github.com/Mavuisra/naklass-sub005/storage/database/sqlx"
)

func CreateSchool(t *testing.T, db *sqlx.DB, name, code string, status school.ValidationStatus, active bool) school.School {
	t.Helper()
	now := time.Now().UTC()
	sch := school.School{
		Code:             code,
		Name:             name,
		Email:            code + "@ecole.cd",
		ValidationStatus: status,
		Active:           active,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	sch, err := sqlxrepos.NewSchoolRepository(db).CreateSchool(context.Background(), sch)
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return sch
}

func CreateUser(
	t *testing.T,
	db *sqlx.DB,
	schoolID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	usr := user.User{
		SchoolID:  schoolID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := sqlxrepos.NewUserRepository(db).CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateYear(t *testing.T, db *sqlx.DB, schoolID, label, start, end string, active bool) academicyear.AcademicYear {
	t.Helper()
	now := time.Now().UTC()
	y := academicyear.AcademicYear{
		SchoolID:  schoolID,
		Label:     label,
		StartDate: core.MustParseDate(start),
		EndDate:   core.MustParseDate(end),
		Active:    active,
		Status:    academicyear.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	y, err := sqlxrepos.NewAcademicYearRepository(db).CreateYear(context.Background(), y)
	if err != nil {
		t.Fatalf("CreateYear() failed: %v", err)
	}
	return y
}

func CreateTeacher(t *testing.T, db *sqlx.DB, schoolID, matricule, lastName, firstName string, specialties ...string) teacher.Teacher {
	t.Helper()
	now := time.Now().UTC()
	tch := teacher.Teacher{
		SchoolID:    schoolID,
		Matricule:   matricule,
		LastName:    lastName,
		FirstName:   firstName,
		Sex:         "M",
		Specialties: specialties,
		Status:      teacher.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tch, err := sqlxrepos.NewTeacherRepository(db).CreateTeacher(context.Background(), tch)
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	return tch
}

func insert(t *testing.T, db *sqlx.DB, q string, args ...interface{}) string {
	t.Helper()
	id := uuid.NewString()
	if _, err := db.Exec(db.Rebind(q), append([]interface{}{id}, args...)...); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	return id
}

func CreateClass(t *testing.T, db *sqlx.DB, schoolID, yearID, name string) string {
	t.Helper()
	return insert(t, db, "INSERT INTO classes (id, ecole_id, annee_scolaire_id, nom, statut, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		schoolID, yearID, name, academicyear.StatusActive, time.Now().UTC())
}

func CreateStudent(t *testing.T, db *sqlx.DB, schoolID, lastName, firstName string) string {
	t.Helper()
	return insert(t, db, "INSERT INTO eleves (id, ecole_id, nom, prenom, statut, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		schoolID, lastName, firstName, "actif", time.Now().UTC())
}

func CreateInscription(t *testing.T, db *sqlx.DB, schoolID, yearID, classID, studentID string) string {
	t.Helper()
	return insert(t, db, "INSERT INTO inscriptions (id, ecole_id, eleve_id, classe_id, annee_scolaire_id, statut, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		schoolID, studentID, classID, yearID, academicyear.StatusActive, time.Now().UTC())
}

func CreatePayment(t *testing.T, db *sqlx.DB, schoolID, studentID string, amount float64) string {
	t.Helper()
	return insert(t, db, "INSERT INTO paiements (id, ecole_id, eleve_id, montant, created_at) VALUES (?, ?, ?, ?, ?)",
		schoolID, studentID, amount, time.Now().UTC())
}

func CreateCourse(t *testing.T, db *sqlx.DB, schoolID, classID, name string) string {
	t.Helper()
	return insert(t, db, "INSERT INTO cours (id, ecole_id, classe_id, nom, created_at) VALUES (?, ?, ?, ?, ?)",
		schoolID, classID, name, time.Now().UTC())
}
