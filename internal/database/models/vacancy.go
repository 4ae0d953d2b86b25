package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Vacancy is an open position kept in sync with the remote CRM
// potential/deal of the same external id.
type Vacancy struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	ExternalID *string `gorm:"uniqueIndex" json:"external_id,omitempty"`

	Title    string `gorm:"index" json:"title"`
	Location string `json:"location"`
	Status   string `gorm:"index" json:"status"`

	Description string `json:"description"`
	SalaryMin   *int   `json:"salary_min,omitempty"`
	SalaryMax   *int   `json:"salary_max,omitempty"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a fresh local id.
func (v *Vacancy) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
