package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/school"
)

const schoolColumns = `id, code, nom, sigle, adresse, ville, pays, telephone, email, site_web, directeur, devise,
	description, logo, couleur_primaire, couleur_secondaire, validation_status, activee, super_admin_validated,
	validated_at, validated_by, created_at, updated_at`

var schoolOrdering = map[string]string{
	"nom":               "nom",
	"code":              "code",
	"ville":             "ville",
	"validation_status": "validation_status",
	"created_at":        "created_at",
}

type schoolRow struct {
	ID                  string      `db:"id"`
	Code                string      `db:"code"`
	Name                string      `db:"nom"`
	Acronym             string      `db:"sigle"`
	Address             string      `db:"adresse"`
	City                string      `db:"ville"`
	Country             string      `db:"pays"`
	Phone               string      `db:"telephone"`
	Email               string      `db:"email"`
	Website             string      `db:"site_web"`
	Director            string      `db:"directeur"`
	Motto               string      `db:"devise"`
	Description         string      `db:"description"`
	Logo                string      `db:"logo"`
	PrimaryColor        string      `db:"couleur_primaire"`
	SecondaryColor      string      `db:"couleur_secondaire"`
	ValidationStatus    string      `db:"validation_status"`
	Active              bool        `db:"activee"`
	SuperAdminValidated bool        `db:"super_admin_validated"`
	ValidatedAt         null.Time   `db:"validated_at"`
	ValidatedBy         null.String `db:"validated_by"`
	CreatedAt           time.Time   `db:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at"`
}

func newSchoolRow(sch school.School) schoolRow {
	return schoolRow{
		ID:                  sch.ID,
		Code:                sch.Code,
		Name:                sch.Name,
		Acronym:             sch.Acronym,
		Address:             sch.Address,
		City:                sch.City,
		Country:             sch.Country,
		Phone:               sch.Phone,
		Email:               sch.Email,
		Website:             sch.Website,
		Director:            sch.Director,
		Motto:               sch.Motto,
		Description:         sch.Description,
		Logo:                sch.Logo,
		PrimaryColor:        sch.PrimaryColor,
		SecondaryColor:      sch.SecondaryColor,
		ValidationStatus:    string(sch.ValidationStatus),
		Active:              sch.Active,
		SuperAdminValidated: sch.SuperAdminValidated,
		ValidatedAt:         sch.ValidatedAt,
		ValidatedBy:         sch.ValidatedBy,
		CreatedAt:           sch.CreatedAt,
		UpdatedAt:           sch.UpdatedAt,
	}
}

func (r schoolRow) toSchool() school.School {
	return school.School{
		ID:                  r.ID,
		Code:                r.Code,
		Name:                r.Name,
		Acronym:             r.Acronym,
		Address:             r.Address,
		City:                r.City,
		Country:             r.Country,
		Phone:               r.Phone,
		Email:               r.Email,
		Website:             r.Website,
		Director:            r.Director,
		Motto:               r.Motto,
		Description:         r.Description,
		Logo:                r.Logo,
		PrimaryColor:        r.PrimaryColor,
		SecondaryColor:      r.SecondaryColor,
		ValidationStatus:    school.ValidationStatus(r.ValidationStatus),
		Active:              r.Active,
		SuperAdminValidated: r.SuperAdminValidated,
		ValidatedAt:         r.ValidatedAt,
		ValidatedBy:         r.ValidatedBy,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
}

type historyRow struct {
	ID        string      `db:"id"`
	SchoolID  string      `db:"ecole_id"`
	Action    string      `db:"action"`
	OldStatus string      `db:"ancien_statut"`
	NewStatus string      `db:"nouveau_statut"`
	AdminID   null.String `db:"admin_id"`
	Comment   string      `db:"commentaire"`
	CreatedAt time.Time   `db:"created_at"`
}

type notificationRow struct {
	ID        string    `db:"id"`
	SchoolID  string    `db:"ecole_id"`
	Type      string    `db:"type"`
	Title     string    `db:"titre"`
	Message   string    `db:"message"`
	Read      bool      `db:"lu"`
	CreatedAt time.Time `db:"created_at"`
}

type signupRow struct {
	ID           string    `db:"id"`
	SchoolID     string    `db:"ecole_id"`
	SchoolName   string    `db:"nom_ecole"`
	ContactName  string    `db:"nom_contact"`
	ContactEmail string    `db:"email_contact"`
	ContactPhone string    `db:"telephone_contact"`
	Message      string    `db:"message"`
	Status       string    `db:"statut"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

const signupSelect = `SELECT d.id, d.ecole_id, e.nom AS nom_ecole, d.nom_contact, d.email_contact, d.telephone_contact,
	d.message, d.statut, d.created_at, d.updated_at
	FROM demandes_inscription_ecoles d JOIN ecoles e ON e.id = d.ecole_id`

type SchoolRepository struct {
	db core.DBExecutor
}

var _ school.Repository = (*SchoolRepository)(nil)

func NewSchoolRepository(db core.DBExecutor) *SchoolRepository {
	return &SchoolRepository{db: db}
}

func (repo *SchoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	if sch.ID == "" {
		sch.ID = uuid.NewString()
	}
	q := `INSERT INTO ecoles (` + schoolColumns + `)
		VALUES (:id, :code, :nom, :sigle, :adresse, :ville, :pays, :telephone, :email, :site_web, :directeur, :devise,
		:description, :logo, :couleur_primaire, :couleur_secondaire, :validation_status, :activee, :super_admin_validated,
		:validated_at, :validated_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, newSchoolRow(sch)); err != nil {
		if isUniqueViolation(err) {
			return school.School{}, core.NewConflictError(school.ErrCodeTaken)
		}
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo *SchoolRepository) GetSchool(ctx context.Context, filter school.GetFilter, exec ...core.DBExecutor) (school.School, error) {
	e := getExec(repo.db, exec)
	var w where
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return school.School{}, school.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Code != "":
		w.add("code = ?", filter.Code)
	default:
		return school.School{}, school.ErrNotFound
	}

	q := "SELECT " + schoolColumns + " FROM ecoles" + w.String()
	if filter.ForUpdate {
		q += forUpdate(e)
	}
	var row schoolRow
	if err := e.GetContext(ctx, &row, e.Rebind(q), w.args...); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound)
	}
	return row.toSchool(), nil
}

func (repo *SchoolRepository) CodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	e := getExec(repo.db, exec)
	var n int
	if err := e.GetContext(ctx, &n, e.Rebind("SELECT COUNT(*) FROM ecoles WHERE code = ?"), code); err != nil {
		return false, errors.Wrap(err, "checking school code")
	}
	return n > 0, nil
}

func (repo *SchoolRepository) QuerySchools(ctx context.Context, filter *school.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.School, error) {
	e := getExec(repo.db, exec)
	var w where
	if filter != nil {
		if filter.Search != "" {
			p := likePattern(filter.Search)
			w.add(`(LOWER(nom) LIKE ? ESCAPE '\' OR LOWER(code) LIKE ? ESCAPE '\' OR LOWER(ville) LIKE ? ESCAPE '\')`, p, p, p)
		}
		if filter.ValidationStatus != "" {
			w.add("validation_status = ?", filter.ValidationStatus)
		}
		if filter.Active != nil {
			w.add("activee = ?", *filter.Active)
		}
	}

	var rows []schoolRow
	q := "SELECT " + schoolColumns + " FROM ecoles" + w.String() + core.OrderBy(ordering, schoolOrdering, "created_at DESC")
	if err := e.SelectContext(ctx, &rows, e.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	schools := make([]school.School, 0, len(rows))
	for _, r := range rows {
		schools = append(schools, r.toSchool())
	}
	return schools, nil
}

func (repo *SchoolRepository) UpdateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	q := `UPDATE ecoles SET
		nom = :nom, sigle = :sigle, adresse = :adresse, ville = :ville, pays = :pays, telephone = :telephone,
		email = :email, site_web = :site_web, directeur = :directeur, devise = :devise, description = :description,
		logo = :logo, couleur_primaire = :couleur_primaire, couleur_secondaire = :couleur_secondaire,
		validation_status = :validation_status, activee = :activee, super_admin_validated = :super_admin_validated,
		validated_at = :validated_at, validated_by = :validated_by, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, newSchoolRow(sch))
	if err != nil {
		return school.School{}, errors.Wrap(err, "updating school")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.School{}, school.ErrNotFound
	}
	return sch, nil
}

// schoolOwnedTables lists the tables holding rows of a school, children first.
var schoolOwnedTables = []string{
	"paiements",
	"inscriptions",
	"cours",
	"classes",
	"eleves",
	"enseignants",
	"annees_scolaires",
	"super_admin_notifications",
	"school_validation_history",
	"demandes_inscription_ecoles",
	"utilisateurs",
}

func (repo *SchoolRepository) DeleteSchool(ctx context.Context, id string, exec ...core.DBExecutor) ([]string, error) {
	if !validID(id) {
		return nil, school.ErrNotFound
	}
	e := getExec(repo.db, exec)

	var photos []string
	q := e.Rebind("SELECT photo FROM enseignants WHERE ecole_id = ? AND photo <> ''")
	if err := e.SelectContext(ctx, &photos, q, id); err != nil {
		return nil, errors.Wrap(err, "listing teacher photos")
	}

	for _, table := range schoolOwnedTables {
		if _, err := e.ExecContext(ctx, e.Rebind("DELETE FROM "+table+" WHERE ecole_id = ?"), id); err != nil {
			return nil, errors.Wrapf(err, "deleting %s", table)
		}
	}
	res, err := e.ExecContext(ctx, e.Rebind("DELETE FROM ecoles WHERE id = ?"), id)
	if err != nil {
		return nil, errors.Wrap(err, "deleting school")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, school.ErrNotFound
	}
	return photos, nil
}

func (repo *SchoolRepository) CreateHistoryEntry(ctx context.Context, h school.HistoryEntry, exec ...core.DBExecutor) (school.HistoryEntry, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	q := `INSERT INTO school_validation_history (id, ecole_id, action, ancien_statut, nouveau_statut, admin_id, commentaire, created_at)
		VALUES (:id, :ecole_id, :action, :ancien_statut, :nouveau_statut, :admin_id, :commentaire, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, historyRow(h)); err != nil {
		return school.HistoryEntry{}, errors.Wrap(err, "inserting validation history")
	}
	return h, nil
}

func (repo *SchoolRepository) QueryHistory(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]school.HistoryEntry, error) {
	if !validID(schoolID) {
		return []school.HistoryEntry{}, nil
	}
	e := getExec(repo.db, exec)
	var rows []historyRow
	q := e.Rebind(`SELECT id, ecole_id, action, ancien_statut, nouveau_statut, admin_id, commentaire, created_at
		FROM school_validation_history WHERE ecole_id = ? ORDER BY created_at DESC`)
	if err := e.SelectContext(ctx, &rows, q, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying validation history")
	}
	entries := make([]school.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		h := school.HistoryEntry(r)
		h.CreatedAt = r.CreatedAt.UTC()
		entries = append(entries, h)
	}
	return entries, nil
}

func (repo *SchoolRepository) CreateNotification(ctx context.Context, n school.Notification, exec ...core.DBExecutor) (school.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	q := `INSERT INTO super_admin_notifications (id, ecole_id, type, titre, message, lu, created_at)
		VALUES (:id, :ecole_id, :type, :titre, :message, :lu, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, notificationRow(n)); err != nil {
		return school.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *SchoolRepository) QueryNotifications(ctx context.Context, schoolID string, unreadOnly bool, exec ...core.DBExecutor) ([]school.Notification, error) {
	if !validID(schoolID) {
		return []school.Notification{}, nil
	}
	e := getExec(repo.db, exec)
	var w where
	w.add("ecole_id = ?", schoolID)
	if unreadOnly {
		w.add("lu = ?", false)
	}
	var rows []notificationRow
	q := "SELECT id, ecole_id, type, titre, message, lu, created_at FROM super_admin_notifications" + w.String() + " ORDER BY created_at DESC"
	if err := e.SelectContext(ctx, &rows, e.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]school.Notification, 0, len(rows))
	for _, r := range rows {
		n := school.Notification(r)
		n.CreatedAt = r.CreatedAt.UTC()
		notifs = append(notifs, n)
	}
	return notifs, nil
}

func (repo *SchoolRepository) MarkNotificationRead(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) error {
	if !validID(schoolID) || !validID(id) {
		return school.ErrNotificationNotFound
	}
	e := getExec(repo.db, exec)
	res, err := e.ExecContext(ctx, e.Rebind("UPDATE super_admin_notifications SET lu = ? WHERE ecole_id = ? AND id = ?"), true, schoolID, id)
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.ErrNotificationNotFound
	}
	return nil
}

func (repo *SchoolRepository) CreateSignupRequest(ctx context.Context, req school.SignupRequest, exec ...core.DBExecutor) (school.SignupRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	q := `INSERT INTO demandes_inscription_ecoles
		(id, ecole_id, nom_contact, email_contact, telephone_contact, message, statut, created_at, updated_at)
		VALUES (:id, :ecole_id, :nom_contact, :email_contact, :telephone_contact, :message, :statut, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, signupRow(req)); err != nil {
		return school.SignupRequest{}, errors.Wrap(err, "inserting signup request")
	}
	return req, nil
}

func toSignupRequest(r signupRow) school.SignupRequest {
	req := school.SignupRequest(r)
	req.CreatedAt = r.CreatedAt.UTC()
	req.UpdatedAt = r.UpdatedAt.UTC()
	return req
}

func (repo *SchoolRepository) GetSignupRequest(ctx context.Context, schoolID string, exec ...core.DBExecutor) (school.SignupRequest, error) {
	if !validID(schoolID) {
		return school.SignupRequest{}, school.ErrSignupNotFound
	}
	e := getExec(repo.db, exec)
	var row signupRow
	q := e.Rebind(signupSelect + " WHERE d.ecole_id = ? ORDER BY d.created_at DESC LIMIT 1")
	if err := e.GetContext(ctx, &row, q, schoolID); err != nil {
		return school.SignupRequest{}, trapNoRowsErr(err, school.ErrSignupNotFound)
	}
	return toSignupRequest(row), nil
}

func (repo *SchoolRepository) QuerySignupRequests(ctx context.Context, status string, exec ...core.DBExecutor) ([]school.SignupRequest, error) {
	e := getExec(repo.db, exec)
	var w where
	if status != "" {
		w.add("d.statut = ?", status)
	}
	var rows []signupRow
	if err := e.SelectContext(ctx, &rows, e.Rebind(signupSelect+w.String()+" ORDER BY d.created_at DESC"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying signup requests")
	}
	reqs := make([]school.SignupRequest, 0, len(rows))
	for _, r := range rows {
		reqs = append(reqs, toSignupRequest(r))
	}
	return reqs, nil
}

func (repo *SchoolRepository) UpdateSignupRequest(ctx context.Context, req school.SignupRequest, exec ...core.DBExecutor) (school.SignupRequest, error) {
	q := `UPDATE demandes_inscription_ecoles SET
		nom_contact = :nom_contact, email_contact = :email_contact, telephone_contact = :telephone_contact,
		message = :message, statut = :statut, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, getExec(repo.db, exec), q, signupRow(req))
	if err != nil {
		return school.SignupRequest{}, errors.Wrap(err, "updating signup request")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.SignupRequest{}, school.ErrSignupNotFound
	}
	return req, nil
}
