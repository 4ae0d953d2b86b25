package database

import (
	"context"
	"fmt"
	"time"

	"github.com/devitechsolutions/vextr-sub000/internal/database/models"
)

// AppendHistory records one sync outcome and silently trims entries
// beyond the configured limit, oldest first.
func (r *Repository) AppendHistory(ctx context.Context, entry models.SyncHistoryEntry, limit int) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	db := r.db.WithContext(ctx)
	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}

	if limit <= 0 {
		return nil
	}

	var count int64
	if err := db.Model(&models.SyncHistoryEntry{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count history entries: %w", err)
	}
	if count <= int64(limit) {
		return nil
	}

	var stale []models.SyncHistoryEntry
	if err := db.Order("timestamp ASC, id ASC").Limit(int(count) - limit).Find(&stale).Error; err != nil {
		return fmt.Errorf("failed to select stale history entries: %w", err)
	}
	for _, old := range stale {
		if err := db.Delete(&models.SyncHistoryEntry{}, "id = ?", old.ID).Error; err != nil {
			return fmt.Errorf("failed to trim history entry %s: %w", old.ID, err)
		}
	}
	return nil
}

// ListHistory returns sync outcomes, most recent first. A non-positive
// limit returns everything still retained.
func (r *Repository) ListHistory(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error) {
	query := r.db.WithContext(ctx).Order("timestamp DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.SyncHistoryEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list history entries: %w", err)
	}
	return entries, nil
}
