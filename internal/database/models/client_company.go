package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClientCompany is a hiring client kept in sync with the remote CRM
// organization of the same external id. The natural key is the company
// name, used only when no external id is present.
type ClientCompany struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	ExternalID *string `gorm:"uniqueIndex" json:"external_id,omitempty"`

	Name  string  `gorm:"index" json:"name"`
	Email *string `json:"email,omitempty"`
	Phone string  `json:"phone"`
	City  string  `json:"city"`

	Industry string `json:"industry"`
	Website  string `json:"website"`
	Notes    string `json:"notes"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a fresh local id.
func (c *ClientCompany) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
