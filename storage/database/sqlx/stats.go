package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/academicyear"
	"github.com/Mavuisra/naklass-sub005/core/school"
)

type countRow struct {
	Key   string `db:"k"`
	Count int    `db:"n"`
}

func (repo *SchoolRepository) count(ctx context.Context, e core.DBExecutor, q string, args ...interface{}) (int, error) {
	var n int
	if err := e.GetContext(ctx, &n, e.Rebind(q), args...); err != nil {
		return 0, errors.Wrap(err, "counting")
	}
	return n, nil
}

func (repo *SchoolRepository) GetStats(ctx context.Context, schoolID string, exec ...core.DBExecutor) (school.Stats, error) {
	stats := school.Stats{TeachersByStatus: make(map[string]int)}
	if !validID(schoolID) {
		return stats, school.ErrNotFound
	}
	e := getExec(repo.db, exec)

	var year struct {
		ID    string `db:"id"`
		Label string `db:"libelle"`
	}
	q := e.Rebind("SELECT id, libelle FROM annees_scolaires WHERE ecole_id = ? AND active = ? AND statut = ? LIMIT 1")
	err := e.GetContext(ctx, &year, q, schoolID, true, academicyear.StatusActive)
	if err = trapNoRowsErr(err, nil); err != nil {
		return stats, errors.Wrap(err, "getting active year")
	}
	if year.ID != "" {
		stats.ActiveYear = null.StringFrom(year.Label)
		if stats.Classes, err = repo.count(ctx, e, "SELECT COUNT(*) FROM classes WHERE ecole_id = ? AND annee_scolaire_id = ?", schoolID, year.ID); err != nil {
			return stats, err
		}
		if stats.Inscriptions, err = repo.count(ctx, e, "SELECT COUNT(*) FROM inscriptions WHERE ecole_id = ? AND annee_scolaire_id = ?", schoolID, year.ID); err != nil {
			return stats, err
		}
	}

	if stats.Students, err = repo.count(ctx, e, "SELECT COUNT(*) FROM eleves WHERE ecole_id = ? AND statut = ?", schoolID, "actif"); err != nil {
		return stats, err
	}
	if stats.Courses, err = repo.count(ctx, e, "SELECT COUNT(*) FROM cours WHERE ecole_id = ?", schoolID); err != nil {
		return stats, err
	}

	var byStatus []countRow
	q = e.Rebind("SELECT statut_record AS k, COUNT(*) AS n FROM enseignants WHERE ecole_id = ? GROUP BY statut_record")
	if err = e.SelectContext(ctx, &byStatus, q, schoolID); err != nil {
		return stats, errors.Wrap(err, "counting teachers")
	}
	for _, r := range byStatus {
		stats.TeachersByStatus[r.Key] = r.Count
		stats.Teachers += r.Count
	}

	q = e.Rebind("SELECT COALESCE(SUM(montant), 0) FROM paiements WHERE ecole_id = ?")
	if err = e.GetContext(ctx, &stats.PaymentsTotal, q, schoolID); err != nil {
		return stats, errors.Wrap(err, "summing payments")
	}
	return stats, nil
}

func (repo *SchoolRepository) GetPlatformStats(ctx context.Context, exec ...core.DBExecutor) (school.PlatformStats, error) {
	stats := school.PlatformStats{ByValidationStatus: make(map[school.ValidationStatus]int)}
	e := getExec(repo.db, exec)

	var byStatus []countRow
	if err := e.SelectContext(ctx, &byStatus, "SELECT validation_status AS k, COUNT(*) AS n FROM ecoles GROUP BY validation_status"); err != nil {
		return stats, errors.Wrap(err, "counting schools")
	}
	for _, r := range byStatus {
		stats.ByValidationStatus[school.ValidationStatus(r.Key)] = r.Count
		stats.Schools += r.Count
	}

	var err error
	if stats.ActiveSchools, err = repo.count(ctx, e, "SELECT COUNT(*) FROM ecoles WHERE activee = ?", true); err != nil {
		return stats, err
	}
	if stats.PendingSignups, err = repo.count(ctx, e, "SELECT COUNT(*) FROM demandes_inscription_ecoles WHERE statut = ?", school.SignupPending); err != nil {
		return stats, err
	}
	return stats, nil
}
