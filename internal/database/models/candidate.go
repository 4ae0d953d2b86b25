package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Candidate is a locally stored candidate record kept in sync with the
// remote CRM contact of the same external id.
//
// Identity and profile fields are authoritative: they always mirror the
// remote system, including becoming empty. Enrichment fields (linkedin,
// salary expectations, skills, notes) are protective and are never
// blanked by sync.
type Candidate struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// ExternalID is the remote CRM record id. Immutable once assigned,
	// unique when present.
	ExternalID *string `gorm:"uniqueIndex" json:"external_id,omitempty"`

	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     *string `gorm:"uniqueIndex" json:"email,omitempty"`
	Phone     string  `json:"phone"`
	JobTitle  string  `json:"job_title"`
	City      string  `json:"city"`
	Status    string  `gorm:"index" json:"status"`

	LinkedinURL    string `json:"linkedin_url"`
	SalaryRangeMin *int   `json:"salary_range_min,omitempty"`
	SalaryRangeMax *int   `json:"salary_range_max,omitempty"`
	Skills         string `json:"skills"`
	Notes          string `json:"notes"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a fresh local id.
func (c *Candidate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
