package teacher

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/Mavuisra/naklass-sub005/core"
)

// Record statuses
const (
	StatusActive    = "actif"
	StatusSuspended = "suspendu"
	StatusLeave     = "congé"
	StatusRetired   = "retraité"
	StatusResigned  = "démissionné"
)

var Statuses = []string{StatusActive, StatusSuspended, StatusLeave, StatusRetired, StatusResigned}

type Teacher struct {
	ID              string      `json:"id"`
	SchoolID        string      `json:"ecole_id"`
	UserID          null.String `json:"utilisateur_id"`
	Matricule       string      `json:"matricule"`
	LastName        string      `json:"nom"`
	FirstName       string      `json:"prenom"`
	Sex             string      `json:"sexe"`
	BirthDate       *core.Date  `json:"date_naissance"`
	Phone           string      `json:"telephone"`
	Email           string      `json:"email"`
	Address         string      `json:"adresse"`
	Diploma         string      `json:"diplome"`
	Specialties     []string    `json:"specialites"`
	ExperienceYears int         `json:"experience_annees"`
	HireDate        *core.Date  `json:"date_embauche"`
	Photo           string      `json:"photo"`
	Status          string      `json:"statut_record"`
	CreatedAt       time.Time   `json:"created_at"` // UTC
	UpdatedAt       time.Time   `json:"updated_at"` // UTC
}

func (t *Teacher) FullName() string {
	return core.CleanString(t.FirstName + " " + t.LastName)
}

// Account holds the login credentials optionally created along with a teacher.
type Account struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// NewTeacher contains information needed to create a teacher. An empty matricule is generated.
type NewTeacher struct {
	Matricule       string   `json:"matricule" validate:"max=50"`
	LastName        string   `json:"nom" validate:"required,max=100"`
	FirstName       string   `json:"prenom" validate:"required,max=100"`
	Sex             string   `json:"sexe" validate:"required,oneof=M F"`
	BirthDate       string   `json:"date_naissance" validate:"omitempty,datetime=2006-01-02"`
	Phone           string   `json:"telephone" validate:"max=30"`
	Email           string   `json:"email" validate:"omitempty,email,max=255"`
	Address         string   `json:"adresse" validate:"max=1000"`
	Diploma         string   `json:"diplome" validate:"max=255"`
	Specialties     []string `json:"specialites" validate:"max=20,dive,required,max=100"`
	ExperienceYears int      `json:"experience_annees" validate:"gte=0,lte=80"`
	HireDate        string   `json:"date_embauche" validate:"omitempty,datetime=2006-01-02"`
	Account         *Account `json:"account"`
}

// UpdateTeacher carries the editable fields of a teacher. Account is ignored and an empty
// matricule keeps the current one.
type UpdateTeacher = NewTeacher

func (nt *NewTeacher) Clean() {
	nt.Matricule = core.CleanString(nt.Matricule)
	nt.LastName = core.CleanString(nt.LastName)
	nt.FirstName = core.CleanString(nt.FirstName)
	nt.Sex = core.CleanString(nt.Sex)
	nt.BirthDate = core.CleanString(nt.BirthDate)
	nt.Phone = core.CleanString(nt.Phone)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.Address = core.CleanString(nt.Address)
	nt.Diploma = core.CleanString(nt.Diploma)
	nt.HireDate = core.CleanString(nt.HireDate)

	specialties := make([]string, 0, len(nt.Specialties))
	for _, s := range nt.Specialties {
		if s = core.CleanString(s); s != "" && !core.StringsContain(specialties, s) {
			specialties = append(specialties, s)
		}
	}
	nt.Specialties = specialties
}

func (nt NewTeacher) apply(t *Teacher) {
	if nt.Matricule != "" {
		t.Matricule = nt.Matricule
	}
	t.LastName = nt.LastName
	t.FirstName = nt.FirstName
	t.Sex = nt.Sex
	t.BirthDate = optionalDate(nt.BirthDate)
	t.Phone = nt.Phone
	t.Email = nt.Email
	t.Address = nt.Address
	t.Diploma = nt.Diploma
	t.Specialties = nt.Specialties
	t.ExperienceYears = nt.ExperienceYears
	t.HireDate = optionalDate(nt.HireDate)
}

func optionalDate(s string) *core.Date {
	if s == "" {
		return nil
	}
	d := core.MustParseDate(s)
	return &d
}

type StatusUpdate struct {
	Status string `json:"statut_record" validate:"required,oneof=actif suspendu congé retraité démissionné"`
}

type QueryFilter struct {
	SchoolID  string
	Search    string `query:"search"`
	Status    string `query:"statut"`
	Specialty string `query:"specialite"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true /* lower */)
	qf.Status = core.CleanString(qf.Status)
	qf.Specialty = core.CleanString(qf.Specialty)
}
