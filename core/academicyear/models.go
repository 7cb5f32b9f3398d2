package academicyear

import (
	"time"

	"github.com/Mavuisra/naklass-sub005/core"
)

const (
	StatusActive   = "actif"
	StatusArchived = "archivé"
)

type AcademicYear struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"ecole_id"`
	Label       string    `json:"libelle"`
	StartDate   core.Date `json:"date_debut"`
	EndDate     core.Date `json:"date_fin"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	Status      string    `json:"statut"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (y *AcademicYear) IsArchived() bool { return y.Status == StatusArchived }

// IsCurrent reports whether y is the school's active year.
func (y *AcademicYear) IsCurrent() bool { return y.Active && y.Status == StatusActive }

// NewYear contains the data needed to create or edit an academic year.
// Dates are "2006-01-02" strings.
type NewYear struct {
	Label       string `json:"libelle" validate:"required,max=50"`
	StartDate   string `json:"date_debut" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"date_fin" validate:"required,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=2000"`
}

type UpdateYear = NewYear

func (ny *NewYear) Clean() {
	ny.Label = core.CleanString(ny.Label)
	ny.StartDate = core.CleanString(ny.StartDate)
	ny.EndDate = core.CleanString(ny.EndDate)
	ny.Description = core.CleanString(ny.Description)
}

type QueryFilter struct {
	SchoolID string
	Status   string `query:"statut"`
}

// EndResult reports what "end year" archived.
type EndResult struct {
	Year         AcademicYear `json:"year"`
	Classes      int64        `json:"classes"`
	Inscriptions int64        `json:"inscriptions"`
}
