package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/devitechsolutions/vextr-sub000/internal/database/models"
	"github.com/devitechsolutions/vextr-sub000/pkg/logger"
	"github.com/devitechsolutions/vextr-sub000/pkg/mapping"
)

// Incoming is one mapped record headed for the local store.
type Incoming struct {
	ExternalID string
	Fields     mapping.Record
}

// UpsertResult summarizes one bulk upsert. Skipped counts records that
// failed individually and were left out of the store.
type UpsertResult struct {
	Created int
	Updated int
	Skipped int
}

// Total returns the number of records written.
func (r UpsertResult) Total() int {
	return r.Created + r.Updated
}

// Repository performs idempotent create-or-update operations against the
// local store. Lookups go through the unique indexes on external_id and
// the natural key, never through table scans: sync runs upsert thousands
// of records and a linear probe per record does not hold up.
type Repository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewRepository creates a repository on the given GORM handle.
func NewRepository(db *gorm.DB, log *logger.Logger) *Repository {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Repository{db: db, log: log.WithField("component", "store")}
}

// upsertFunc writes one incoming record and reports whether it updated
// an existing row (as opposed to creating one).
type upsertFunc func(tx *gorm.DB, in Incoming) (updated bool, err error)

// eachRecord runs one transaction per record so a single bad record is
// skipped instead of rolling back the rest of the batch. Only when every
// record fails does the whole upsert surface an error, since that points
// at the store rather than the data.
func (r *Repository) eachRecord(ctx context.Context, entity string, records []Incoming, upsert upsertFunc) (UpsertResult, error) {
	var result UpsertResult

	for _, in := range records {
		var updated bool
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			updated, err = upsert(tx, in)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Skipped++
			r.log.WithError(err).WithFields(map[string]interface{}{
				"entity_type": entity,
				"external_id": in.ExternalID,
			}).Warn("Record skipped during upsert")
			continue
		}
		if updated {
			result.Updated++
		} else {
			result.Created++
		}
	}

	if result.Skipped > 0 && result.Total() == 0 {
		return result, fmt.Errorf("all %d %s records failed to upsert", result.Skipped, entity)
	}
	return result, nil
}

// BulkUpsertCandidates applies mapped candidate records. Resolution order:
// external id index first, then the email natural key when the incoming
// record carries no external id (or the id is not yet known locally).
// A record found by email adopts the incoming external id if it has none;
// an already-assigned external id is never rewritten.
func (r *Repository) BulkUpsertCandidates(ctx context.Context, records []Incoming) (UpsertResult, error) {
	now := time.Now().UTC()

	return r.eachRecord(ctx, "candidates", records, func(tx *gorm.DB, in Incoming) (bool, error) {
		existing, err := findCandidate(tx, in)
		if err != nil {
			return false, err
		}

		if existing != nil {
			applyCandidateFields(existing, in.Fields)
			adoptExternalID(&existing.ExternalID, in.ExternalID)
			existing.LastSyncedAt = &now
			if err := tx.Save(existing).Error; err != nil {
				return false, fmt.Errorf("failed to update candidate %s: %w", existing.ID, err)
			}
			return true, nil
		}

		candidate := &models.Candidate{}
		applyCandidateFields(candidate, in.Fields)
		adoptExternalID(&candidate.ExternalID, in.ExternalID)
		candidate.LastSyncedAt = &now

		// A second remote contact can share the address of a record
		// already bound to a different external id. The unique index
		// keeps the address on the record that owns it; the new record
		// is stored without one.
		if err := releaseSharedEmail(tx, candidate); err != nil {
			return false, err
		}

		if err := tx.Create(candidate).Error; err != nil {
			return false, fmt.Errorf("failed to create candidate: %w", err)
		}
		return false, nil
	})
}

// BulkUpsertClientCompanies applies mapped organization records, using
// the company name as the natural key.
func (r *Repository) BulkUpsertClientCompanies(ctx context.Context, records []Incoming) (UpsertResult, error) {
	now := time.Now().UTC()

	return r.eachRecord(ctx, "client_companies", records, func(tx *gorm.DB, in Incoming) (bool, error) {
		var existing *models.ClientCompany

		if in.ExternalID != "" {
			existing = firstOrNil[models.ClientCompany](tx, "external_id = ?", in.ExternalID)
		}
		if existing == nil {
			if name := in.Fields.String("name"); name != "" {
				if byName := firstOrNil[models.ClientCompany](tx, "name = ? AND external_id IS NULL", name); byName != nil {
					existing = byName
				}
			}
		}

		if existing != nil {
			applyClientFields(existing, in.Fields)
			adoptExternalID(&existing.ExternalID, in.ExternalID)
			existing.LastSyncedAt = &now
			if err := tx.Save(existing).Error; err != nil {
				return false, fmt.Errorf("failed to update client %s: %w", existing.ID, err)
			}
			return true, nil
		}

		client := &models.ClientCompany{}
		applyClientFields(client, in.Fields)
		adoptExternalID(&client.ExternalID, in.ExternalID)
		client.LastSyncedAt = &now
		if err := tx.Create(client).Error; err != nil {
			return false, fmt.Errorf("failed to create client: %w", err)
		}
		return false, nil
	})
}

// BulkUpsertVacancies applies mapped vacancy records.
func (r *Repository) BulkUpsertVacancies(ctx context.Context, records []Incoming) (UpsertResult, error) {
	now := time.Now().UTC()

	return r.eachRecord(ctx, "vacancies", records, func(tx *gorm.DB, in Incoming) (bool, error) {
		var existing *models.Vacancy
		if in.ExternalID != "" {
			existing = firstOrNil[models.Vacancy](tx, "external_id = ?", in.ExternalID)
		}

		if existing != nil {
			applyVacancyFields(existing, in.Fields)
			existing.LastSyncedAt = &now
			if err := tx.Save(existing).Error; err != nil {
				return false, fmt.Errorf("failed to update vacancy %s: %w", existing.ID, err)
			}
			return true, nil
		}

		vacancy := &models.Vacancy{}
		applyVacancyFields(vacancy, in.Fields)
		adoptExternalID(&vacancy.ExternalID, in.ExternalID)
		vacancy.LastSyncedAt = &now
		if err := tx.Create(vacancy).Error; err != nil {
			return false, fmt.Errorf("failed to create vacancy: %w", err)
		}
		return false, nil
	})
}

// BulkUpsertTodoItems applies mapped task records.
func (r *Repository) BulkUpsertTodoItems(ctx context.Context, records []Incoming) (UpsertResult, error) {
	now := time.Now().UTC()

	return r.eachRecord(ctx, "todo_items", records, func(tx *gorm.DB, in Incoming) (bool, error) {
		var existing *models.TodoItem
		if in.ExternalID != "" {
			existing = firstOrNil[models.TodoItem](tx, "external_id = ?", in.ExternalID)
		}

		if existing != nil {
			applyTodoFields(existing, in.Fields)
			existing.LastSyncedAt = &now
			if err := tx.Save(existing).Error; err != nil {
				return false, fmt.Errorf("failed to update todo %s: %w", existing.ID, err)
			}
			return true, nil
		}

		todo := &models.TodoItem{}
		applyTodoFields(todo, in.Fields)
		adoptExternalID(&todo.ExternalID, in.ExternalID)
		todo.LastSyncedAt = &now
		if err := tx.Create(todo).Error; err != nil {
			return false, fmt.Errorf("failed to create todo: %w", err)
		}
		return false, nil
	})
}

// GetCandidate loads a candidate by local id.
func (r *Repository) GetCandidate(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	var candidate models.Candidate
	if err := r.db.WithContext(ctx).First(&candidate, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load candidate %s: %w", id, err)
	}
	return &candidate, nil
}

// UpdateCandidateStatus stores a locally decided candidate status.
func (r *Repository) UpdateCandidateStatus(ctx context.Context, id uuid.UUID, status string) error {
	res := r.db.WithContext(ctx).Model(&models.Candidate{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update candidate status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountCandidates returns the number of stored candidates.
func (r *Repository) CountCandidates(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Candidate{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count candidates: %w", err)
	}
	return count, nil
}

// findCandidate resolves an incoming record against the indexes.
func findCandidate(tx *gorm.DB, in Incoming) (*models.Candidate, error) {
	if in.ExternalID != "" {
		var candidate models.Candidate
		err := tx.Where("external_id = ?", in.ExternalID).First(&candidate).Error
		if err == nil {
			return &candidate, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("external id lookup failed: %w", err)
		}
	}

	email := in.Fields.String("email")
	if email == "" {
		return nil, nil
	}

	var candidate models.Candidate
	err := tx.Where("email = ?", email).First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("email lookup failed: %w", err)
	}

	// A record already bound to a different external id belongs to a
	// different remote contact that happens to share the address.
	if candidate.ExternalID != nil && in.ExternalID != "" && *candidate.ExternalID != in.ExternalID {
		return nil, nil
	}
	return &candidate, nil
}

// releaseSharedEmail drops the email from a to-be-created candidate when
// another record already holds it.
func releaseSharedEmail(tx *gorm.DB, candidate *models.Candidate) error {
	if candidate.Email == nil {
		return nil
	}
	var count int64
	if err := tx.Model(&models.Candidate{}).Where("email = ?", *candidate.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("email collision check failed: %w", err)
	}
	if count > 0 {
		candidate.Email = nil
	}
	return nil
}

func firstOrNil[T any](tx *gorm.DB, query string, args ...interface{}) *T {
	var record T
	if err := tx.Where(query, args...).First(&record).Error; err != nil {
		return nil
	}
	return &record
}

// adoptExternalID assigns the incoming external id when the record has
// none. An already-assigned external id is immutable.
func adoptExternalID(target **string, incoming string) {
	if incoming == "" || *target != nil {
		return
	}
	value := incoming
	*target = &value
}

func applyCandidateFields(c *models.Candidate, f mapping.Record) {
	if f.Has("first_name") {
		c.FirstName = f.String("first_name")
	}
	if f.Has("last_name") {
		c.LastName = f.String("last_name")
	}
	if f.Has("email") {
		setNullableString(&c.Email, f.String("email"))
	}
	if f.Has("phone") {
		c.Phone = f.String("phone")
	}
	if f.Has("job_title") {
		c.JobTitle = f.String("job_title")
	}
	if f.Has("city") {
		c.City = f.String("city")
	}
	if f.Has("status") {
		c.Status = f.String("status")
	}
	if f.Has("linkedin_url") {
		c.LinkedinURL = f.String("linkedin_url")
	}
	if n, ok := f.Int("salary_range_min"); ok {
		c.SalaryRangeMin = &n
	}
	if n, ok := f.Int("salary_range_max"); ok {
		c.SalaryRangeMax = &n
	}
	if f.Has("skills") {
		c.Skills = f.String("skills")
	}
	if f.Has("notes") {
		c.Notes = f.String("notes")
	}
}

func applyClientFields(c *models.ClientCompany, f mapping.Record) {
	if f.Has("name") {
		c.Name = f.String("name")
	}
	if f.Has("email") {
		setNullableString(&c.Email, f.String("email"))
	}
	if f.Has("phone") {
		c.Phone = f.String("phone")
	}
	if f.Has("city") {
		c.City = f.String("city")
	}
	if f.Has("industry") {
		c.Industry = f.String("industry")
	}
	if f.Has("website") {
		c.Website = f.String("website")
	}
	if f.Has("notes") {
		c.Notes = f.String("notes")
	}
}

func applyVacancyFields(v *models.Vacancy, f mapping.Record) {
	if f.Has("title") {
		v.Title = f.String("title")
	}
	if f.Has("location") {
		v.Location = f.String("location")
	}
	if f.Has("status") {
		v.Status = f.String("status")
	}
	if f.Has("description") {
		v.Description = f.String("description")
	}
	if n, ok := f.Int("salary_min"); ok {
		v.SalaryMin = &n
	}
	if n, ok := f.Int("salary_max"); ok {
		v.SalaryMax = &n
	}
}

func applyTodoFields(t *models.TodoItem, f mapping.Record) {
	if f.Has("subject") {
		t.Subject = f.String("subject")
	}
	if f.Has("status") {
		t.Status = f.String("status")
	}
	if f.Has("description") {
		t.Description = f.String("description")
	}
}

// setNullableString keeps unique-indexed empty values as NULL so they do
// not collide with each other.
func setNullableString(target **string, value string) {
	if value == "" {
		*target = nil
		return
	}
	*target = &value
}
