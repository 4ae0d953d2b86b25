package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncHistoryEntry records the outcome of one entity-type sync within a
// run. The log is a rolling window; older entries are discarded.
type SyncHistoryEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamp  time.Time `gorm:"index" json:"timestamp"`
	EntityType string    `json:"entity_type"`
	Direction  string    `json:"direction"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
}

// BeforeCreate assigns a fresh entry id.
func (e *SyncHistoryEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
