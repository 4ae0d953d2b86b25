package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TodoItem is a follow-up task kept in sync with the remote CRM task of
// the same external id.
type TodoItem struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	ExternalID *string `gorm:"uniqueIndex" json:"external_id,omitempty"`

	Subject     string `json:"subject"`
	Status      string `gorm:"index" json:"status"`
	Description string `json:"description"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BeforeCreate assigns a fresh local id.
func (t *TodoItem) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
