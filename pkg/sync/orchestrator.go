package sync

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/devitechsolutions/vextr-sub000/internal/database"
	"github.com/devitechsolutions/vextr-sub000/internal/database/models"
	"github.com/devitechsolutions/vextr-sub000/pkg/crm"
	"github.com/devitechsolutions/vextr-sub000/pkg/logger"
	"github.com/devitechsolutions/vextr-sub000/pkg/mapping"
)

// Options tunes orchestrator behavior.
type Options struct {
	// HistoryLimit caps the rolling outcome log. Zero means keep all.
	HistoryLimit int
	// EnableAutoSync is the initial scheduler toggle, surfaced in
	// status snapshots.
	EnableAutoSync bool
}

// Orchestrator runs full sync passes against the CRM and owns the
// engine's lifecycle state. One orchestrator serves the whole process;
// concurrent triggers beyond the first are rejected, not queued.
type Orchestrator struct {
	connector Connector
	store     Store
	log       *logger.Logger
	tracer    trace.Tracer

	machine *machine
	tracker *tracker

	historyLimit int

	mu           sync.RWMutex
	lastSyncTime *time.Time
	initialized  bool
	autoSync     bool
}

// NewOrchestrator wires the orchestrator to a connector and store.
func NewOrchestrator(connector Connector, store Store, opts Options, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Orchestrator{
		connector:    connector,
		store:        store,
		log:          log.WithField("component", "orchestrator"),
		tracer:       otel.Tracer("vextr.sync"),
		machine:      newMachine(),
		tracker:      newTracker(),
		historyLimit: opts.HistoryLimit,
		autoSync:     opts.EnableAutoSync,
	}
}

// entityPass describes one entity type inside a run.
type entityPass struct {
	entity string
	run    func(ctx context.Context) (database.UpsertResult, error)
}

// SyncAll executes one full pass: candidates first and mandatory, then
// client companies, vacancies and todos, each failing independently.
// Only pulls from the CRM are supported; the engine is read-only apart
// from the candidate status push.
func (o *Orchestrator) SyncAll(ctx context.Context, direction Direction) error {
	if direction != DirectionFromExternal {
		return fmt.Errorf("%w: %s", ErrUnsupportedDirection, direction)
	}

	if err := o.machine.Begin(); err != nil {
		return err
	}

	ctx, span := o.tracer.Start(ctx, "sync.all",
		trace.WithAttributes(attribute.String("sync.direction", string(direction))))
	defer span.End()

	o.tracker.start("sync started")
	o.emit()

	started := time.Now()
	o.log.WithField("direction", string(direction)).Info("Sync run started")

	// Candidates carry the progress counters and abort the run on
	// failure.
	candidates, err := o.syncCandidates(ctx)
	if err != nil {
		o.recordOutcome(ctx, EntityCandidates, direction, StatusError, err.Error())
		o.machine.Finish(StatusError)
		o.tracker.setMessage(fmt.Sprintf("candidate sync failed: %v", err))
		o.emit()
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate sync failed")
		o.log.WithError(err).Error("Candidate sync failed, aborting run")
		return fmt.Errorf("candidate sync failed: %w", err)
	}
	o.recordOutcome(ctx, EntityCandidates, direction, StatusSuccess,
		fmt.Sprintf("%d created, %d updated", candidates.Created, candidates.Updated))

	for _, pass := range []entityPass{
		{EntityClients, o.syncClients},
		{EntityVacancies, o.syncVacancies},
		{EntityTodos, o.syncTodos},
	} {
		result, err := pass.run(ctx)
		if err != nil {
			o.recordOutcome(ctx, pass.entity, direction, StatusError, err.Error())
			o.log.WithError(err).WithField("entity_type", pass.entity).
				Warn("Secondary entity sync failed, continuing run")
			continue
		}
		o.recordOutcome(ctx, pass.entity, direction, StatusSuccess,
			fmt.Sprintf("%d created, %d updated", result.Created, result.Updated))
	}

	now := time.Now().UTC()
	o.mu.Lock()
	o.lastSyncTime = &now
	o.initialized = true
	o.mu.Unlock()

	o.machine.Finish(StatusSuccess)
	o.tracker.setMessage("sync completed")
	o.emit()

	span.SetAttributes(
		attribute.Int("sync.candidates.created", candidates.Created),
		attribute.Int("sync.candidates.updated", candidates.Updated),
	)
	o.log.WithFields(map[string]interface{}{
		"duration_ms": time.Since(started).Milliseconds(),
		"created":     candidates.Created,
		"updated":     candidates.Updated,
	}).Info("Sync run completed")

	return nil
}

func (o *Orchestrator) syncCandidates(ctx context.Context) (database.UpsertResult, error) {
	ctx, span := o.tracer.Start(ctx, "sync.candidates")
	defer span.End()

	rows, err := o.connector.RetrieveContacts(ctx, func(fetched, total int) {
		o.tracker.update(fetched, total)
		o.emit()
	})
	if err != nil {
		return database.UpsertResult{}, fmt.Errorf("contact retrieval failed: %w", err)
	}

	records := mapRows(mapping.CandidateTable(), rows)
	result, err := o.store.BulkUpsertCandidates(ctx, records)
	if err != nil {
		return database.UpsertResult{}, fmt.Errorf("candidate upsert failed: %w", err)
	}

	o.tracker.update(len(rows), len(rows))
	span.SetAttributes(attribute.Int("sync.rows", len(rows)))
	return result, nil
}

func (o *Orchestrator) syncClients(ctx context.Context) (database.UpsertResult, error) {
	rows, err := o.connector.RetrieveOrganizations(ctx, nil)
	if err != nil {
		return database.UpsertResult{}, fmt.Errorf("organization retrieval failed: %w", err)
	}
	result, err := o.store.BulkUpsertClientCompanies(ctx, mapRows(mapping.ClientCompanyTable(), rows))
	if err != nil {
		return database.UpsertResult{}, fmt.Errorf("client upsert failed: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) syncVacancies(ctx context.Context) (database.UpsertResult, error) {
	rows, err := o.connector.QueryAll(ctx, "SELECT * FROM Potentials")
	if err != nil {
		return database.UpsertResult{}, fmt.Errorf("vacancy retrieval failed: %w", err)
	}
	result, err := o.store.BulkUpsertVacancies(ctx, mapRows(mapping.VacancyTable(), rows))
	if err != nil {
		return database.UpsertResult{}, fmt.Errorf("vacancy upsert failed: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) syncTodos(ctx context.Context) (database.UpsertResult, error) {
	rows, err := o.connector.QueryAll(ctx, "SELECT * FROM Calendar")
	if err != nil {
		return database.UpsertResult{}, fmt.Errorf("todo retrieval failed: %w", err)
	}
	result, err := o.store.BulkUpsertTodoItems(ctx, mapRows(mapping.TodoTable(), rows))
	if err != nil {
		return database.UpsertResult{}, fmt.Errorf("todo upsert failed: %w", err)
	}
	return result, nil
}

// PushCandidateStatus writes a locally decided status to the CRM and
// mirrors it into the local record. This is the engine's only write
// direction.
func (o *Orchestrator) PushCandidateStatus(ctx context.Context, id uuid.UUID, status string) error {
	ctx, span := o.tracer.Start(ctx, "sync.push_status",
		trace.WithAttributes(attribute.String("candidate.id", id.String())))
	defer span.End()

	candidate, err := o.store.GetCandidate(ctx, id)
	if err != nil {
		return err
	}
	if candidate == nil {
		return fmt.Errorf("candidate %s not found", id)
	}
	if candidate.ExternalID == nil {
		return fmt.Errorf("candidate %s has no external id, status push requires a synced record", id)
	}

	if err := o.connector.PushCandidateStatus(ctx, *candidate.ExternalID, status); err != nil {
		span.RecordError(err)
		return fmt.Errorf("status push failed: %w", err)
	}
	if err := o.store.UpdateCandidateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("local status update failed: %w", err)
	}

	o.log.WithFields(map[string]interface{}{
		"candidate_id": id.String(),
		"status":       status,
	}).Info("Candidate status pushed")
	return nil
}

// Snapshot returns one consistent view of the engine.
func (o *Orchestrator) Snapshot() Snapshot {
	status := o.machine.Current()

	snap := Snapshot{
		Status:    status,
		IsRunning: status == StatusSyncing,
	}
	o.tracker.fill(&snap)

	o.mu.RLock()
	snap.LastSyncTime = o.lastSyncTime
	snap.IsInitialized = o.initialized
	snap.EnableAutoSync = o.autoSync
	o.mu.RUnlock()

	return snap
}

// Subscribe registers a progress consumer for snapshot events.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	return o.tracker.Subscribe()
}

// History returns recent sync outcomes, most recent first.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error) {
	if limit <= 0 || (o.historyLimit > 0 && limit > o.historyLimit) {
		limit = o.historyLimit
	}
	return o.store.ListHistory(ctx, limit)
}

// SetAutoSync records the scheduler toggle for status reporting.
func (o *Orchestrator) SetAutoSync(enabled bool) {
	o.mu.Lock()
	o.autoSync = enabled
	o.mu.Unlock()
}

// Shutdown releases the remote session.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.connector.Logout(ctx)
}

func (o *Orchestrator) emit() {
	o.tracker.publish(o.Snapshot())
}

func (o *Orchestrator) recordOutcome(ctx context.Context, entity string, direction Direction, status Status, message string) {
	entry := models.SyncHistoryEntry{
		Timestamp:  time.Now().UTC(),
		EntityType: entity,
		Direction:  string(direction),
		Status:     string(status),
		Message:    message,
	}
	if err := o.store.AppendHistory(ctx, entry, o.historyLimit); err != nil {
		o.log.WithError(err).Warn("Failed to append sync history entry")
	}
}

// mapRows runs raw CRM rows through a mapping table and pairs each
// result with its remote record id.
func mapRows(table *mapping.Table, rows []crm.Row) []database.Incoming {
	records := make([]database.Incoming, 0, len(rows))
	for _, row := range rows {
		records = append(records, database.Incoming{
			ExternalID: rowID(row),
			Fields:     table.Extract(row),
		})
	}
	return records
}

func rowID(row crm.Row) string {
	raw, ok := row["id"]
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
