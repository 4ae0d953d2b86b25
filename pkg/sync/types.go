package sync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/devitechsolutions/vextr-sub000/internal/database"
	"github.com/devitechsolutions/vextr-sub000/internal/database/models"
	"github.com/devitechsolutions/vextr-sub000/pkg/crm"
)

// Direction of a sync run relative to the local store.
type Direction string

const (
	DirectionFromExternal  Direction = "from-external"
	DirectionToExternal    Direction = "to-external"
	DirectionBidirectional Direction = "bidirectional"
)

// Entity types processed by a run. Candidates are mandatory; the rest
// are secondary and fail independently.
const (
	EntityCandidates = "candidates"
	EntityClients    = "client_companies"
	EntityVacancies  = "vacancies"
	EntityTodos      = "todo_items"
)

var (
	// ErrSyncInProgress is returned when a trigger arrives while a run
	// is already executing.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrUnsupportedDirection is returned for push or bidirectional
	// runs. The engine deliberately reads from the CRM only; the single
	// write path is the candidate status push.
	ErrUnsupportedDirection = errors.New("sync direction not supported")
)

// Connector is the slice of the CRM client the orchestrator drives.
type Connector interface {
	RetrieveContacts(ctx context.Context, onProgress crm.ProgressFunc) ([]crm.Row, error)
	RetrieveOrganizations(ctx context.Context, onProgress crm.ProgressFunc) ([]crm.Row, error)
	QueryAll(ctx context.Context, baseStatement string) ([]crm.Row, error)
	PushCandidateStatus(ctx context.Context, externalID, status string) error
	Logout(ctx context.Context)
}

// Store is the slice of the local repository the orchestrator writes to.
type Store interface {
	BulkUpsertCandidates(ctx context.Context, records []database.Incoming) (database.UpsertResult, error)
	BulkUpsertClientCompanies(ctx context.Context, records []database.Incoming) (database.UpsertResult, error)
	BulkUpsertVacancies(ctx context.Context, records []database.Incoming) (database.UpsertResult, error)
	BulkUpsertTodoItems(ctx context.Context, records []database.Incoming) (database.UpsertResult, error)
	GetCandidate(ctx context.Context, id uuid.UUID) (*models.Candidate, error)
	UpdateCandidateStatus(ctx context.Context, id uuid.UUID, status string) error
	AppendHistory(ctx context.Context, entry models.SyncHistoryEntry, limit int) error
	ListHistory(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error)
}

// Snapshot is one consistent view of the engine, served to the control
// plane and to progress subscribers.
type Snapshot struct {
	Status              Status     `json:"status"`
	LastSyncTime        *time.Time `json:"lastSyncTime,omitempty"`
	IsInitialized       bool       `json:"isInitialized"`
	EnableAutoSync      bool       `json:"enableAutoSync"`
	ProcessedCandidates int        `json:"processedCandidates"`
	TotalCandidates     int        `json:"totalCandidates"`
	ProgressPercentage  float64    `json:"progressPercentage"`
	Rate                float64    `json:"rate"`
	IsRunning           bool       `json:"isRunning"`
	Message             string     `json:"message"`
}
