package school

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/user"
)

type ValidationStatus string

const (
	StatusPending      ValidationStatus = "pending"
	StatusApproved     ValidationStatus = "approved"
	StatusRejected     ValidationStatus = "rejected"
	StatusNeedsChanges ValidationStatus = "needs_changes"
)

var transitions = map[ValidationStatus][]ValidationStatus{
	StatusPending:      {StatusApproved, StatusRejected, StatusNeedsChanges},
	StatusNeedsChanges: {StatusApproved, StatusRejected},
}

// CanTransition reports whether a school may move from status `from` to `to`.
// approved and rejected are terminal.
func CanTransition(from, to ValidationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionRequestChanges Action = "request_changes"
)

type actionInfo struct {
	status       ValidationStatus
	history      string // school_validation_history.action
	signupStatus string
	notifTitle   string
	notifMessage string
	emailSubject string
}

var actions = map[Action]actionInfo{
	ActionApprove: {
		status:       StatusApproved,
		history:      "validated",
		signupStatus: SignupApproved,
		notifTitle:   "École approuvée",
		notifMessage: "Votre école a été approuvée. Toutes les fonctionnalités sont désormais disponibles.",
		emailSubject: "Votre école a été approuvée",
	},
	ActionReject: {
		status:       StatusRejected,
		history:      "rejected",
		signupStatus: SignupRejected,
		notifTitle:   "École rejetée",
		notifMessage: "La demande d'inscription de votre école a été rejetée.",
		emailSubject: "Demande d'inscription rejetée",
	},
	ActionRequestChanges: {
		status:       StatusNeedsChanges,
		history:      "changes_requested",
		signupStatus: SignupChangesRequested,
		notifTitle:   "Modifications demandées",
		notifMessage: "Des modifications ont été demandées sur la demande d'inscription de votre école.",
		emailSubject: "Modifications demandées sur votre inscription",
	},
}

// Signup request statuses
const (
	SignupPending          = "en_attente"
	SignupApproved         = "approuvee"
	SignupRejected         = "rejetee"
	SignupChangesRequested = "modifications_demandees"
)

type School struct {
	ID                  string           `json:"id"`
	Code                string           `json:"code"`
	Name                string           `json:"nom"`
	Acronym             string           `json:"sigle"`
	Address             string           `json:"adresse"`
	City                string           `json:"ville"`
	Country             string           `json:"pays"`
	Phone               string           `json:"telephone"`
	Email               string           `json:"email"`
	Website             string           `json:"site_web"`
	Director            string           `json:"directeur"`
	Motto               string           `json:"devise"`
	Description         string           `json:"description"`
	Logo                string           `json:"logo"`
	PrimaryColor        string           `json:"couleur_primaire"`
	SecondaryColor      string           `json:"couleur_secondaire"`
	ValidationStatus    ValidationStatus `json:"validation_status"`
	Active              bool             `json:"activee"`
	SuperAdminValidated bool             `json:"super_admin_validated"`
	ValidatedAt         null.Time        `json:"validated_at"`
	ValidatedBy         null.String      `json:"validated_by"`
	CreatedAt           time.Time        `json:"created_at"` // UTC
	UpdatedAt           time.Time        `json:"updated_at"` // UTC
}

// CanLogin reports whether the accounts of the school may sign in.
func (s *School) CanLogin() bool {
	return s.Active && s.ValidationStatus != StatusRejected
}

// Profile holds the fields a school admin edits on their own school.
type Profile struct {
	Name           string `json:"nom" validate:"required,max=255"`
	Acronym        string `json:"sigle" validate:"max=50"`
	Address        string `json:"adresse" validate:"max=1000"`
	City           string `json:"ville" validate:"max=100"`
	Country        string `json:"pays" validate:"max=100"`
	Phone          string `json:"telephone" validate:"max=30"`
	Email          string `json:"email" validate:"omitempty,email,max=255"`
	Website        string `json:"site_web" validate:"omitempty,url,max=255"`
	Director       string `json:"directeur" validate:"max=255"`
	Motto          string `json:"devise" validate:"max=255"`
	Description    string `json:"description" validate:"max=5000"`
	PrimaryColor   string `json:"couleur_primaire" validate:"omitempty,hexcolor,len=7"`
	SecondaryColor string `json:"couleur_secondaire" validate:"omitempty,hexcolor,len=7"`
}

func (p *Profile) Clean() {
	p.Name = core.CleanString(p.Name)
	p.Acronym = core.CleanString(p.Acronym)
	p.Address = core.CleanString(p.Address)
	p.City = core.CleanString(p.City)
	p.Country = core.CleanString(p.Country)
	p.Phone = core.CleanString(p.Phone)
	p.Email = core.CleanString(p.Email, true /* lower */)
	p.Website = core.CleanString(p.Website)
	p.Director = core.CleanString(p.Director)
	p.Motto = core.CleanString(p.Motto)
	p.Description = core.CleanString(p.Description)
	p.PrimaryColor = core.CleanString(p.PrimaryColor, true /* lower */)
	p.SecondaryColor = core.CleanString(p.SecondaryColor, true /* lower */)
}

func (p Profile) apply(s *School) {
	s.Name = p.Name
	s.Acronym = p.Acronym
	s.Address = p.Address
	s.City = p.City
	s.Country = p.Country
	s.Phone = p.Phone
	s.Email = p.Email
	s.Website = p.Website
	s.Director = p.Director
	s.Motto = p.Motto
	s.Description = p.Description
	s.PrimaryColor = p.PrimaryColor
	s.SecondaryColor = p.SecondaryColor
}

// NewSchool is used by super-admins to create an approved school, optionally with its first admin.
type NewSchool struct {
	School Profile       `json:"school"`
	Admin  *user.NewUser `json:"admin"`
}

// NewSignup is the public registration form of a school.
type NewSignup struct {
	School       Profile      `json:"school"`
	Admin        user.NewUser `json:"admin"`
	ContactPhone string       `json:"contact_phone" validate:"max=30"`
	Message      string       `json:"message" validate:"max=2000"`
}

type TransitionRequest struct {
	Action Action `json:"action" validate:"required,oneof=approve reject request_changes"`
	Note   string `json:"note" validate:"max=2000"`
}

type HistoryEntry struct {
	ID        string      `json:"id"`
	SchoolID  string      `json:"ecole_id"`
	Action    string      `json:"action"`
	OldStatus string      `json:"ancien_statut"`
	NewStatus string      `json:"nouveau_statut"`
	AdminID   null.String `json:"admin_id"`
	Comment   string      `json:"commentaire"`
	CreatedAt time.Time   `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"ecole_id"`
	Type      string    `json:"type"`
	Title     string    `json:"titre"`
	Message   string    `json:"message"`
	Read      bool      `json:"lu"`
	CreatedAt time.Time `json:"created_at"`
}

type SignupRequest struct {
	ID           string    `json:"id"`
	SchoolID     string    `json:"ecole_id"`
	SchoolName   string    `json:"nom_ecole"`
	ContactName  string    `json:"nom_contact"`
	ContactEmail string    `json:"email_contact"`
	ContactPhone string    `json:"telephone_contact"`
	Message      string    `json:"message"`
	Status       string    `json:"statut"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Stats are the dashboard counters of one school. Class and inscription counts are
// those of the active year.
type Stats struct {
	ActiveYear       null.String    `json:"active_year"`
	Students         int            `json:"students"`
	Classes          int            `json:"classes"`
	Inscriptions     int            `json:"inscriptions"`
	Courses          int            `json:"courses"`
	Teachers         int            `json:"teachers"`
	TeachersByStatus map[string]int `json:"teachers_by_status"`
	PaymentsTotal    float64        `json:"payments_total"`
}

// PlatformStats are the super-admin dashboard counters.
type PlatformStats struct {
	Schools            int                      `json:"schools"`
	ActiveSchools      int                      `json:"active_schools"`
	ByValidationStatus map[ValidationStatus]int `json:"by_validation_status"`
	PendingSignups     int                      `json:"pending_signups"`
}

type GetFilter struct {
	ID   string
	Code string
	// ForUpdate locks the row until the end of the transaction (postgres only).
	ForUpdate bool
}

type QueryFilter struct {
	Search           string `query:"search"`
	ValidationStatus string `query:"validation_status"`
	Active           *bool  `query:"activee"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search, true /* lower */)
	qf.ValidationStatus = core.CleanString(qf.ValidationStatus, true /* lower */)
}
