package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devitechsolutions/vextr-sub000/internal/database"
	"github.com/devitechsolutions/vextr-sub000/internal/database/models"
	"github.com/devitechsolutions/vextr-sub000/pkg/crm"
	syncpkg "github.com/devitechsolutions/vextr-sub000/pkg/sync"
)

type stubConnector struct {
	mu           sync.Mutex
	contacts     []crm.Row
	pushedID     string
	pushedStatus string
}

func (s *stubConnector) RetrieveContacts(ctx context.Context, onProgress crm.ProgressFunc) ([]crm.Row, error) {
	return s.contacts, nil
}

func (s *stubConnector) RetrieveOrganizations(ctx context.Context, onProgress crm.ProgressFunc) ([]crm.Row, error) {
	return nil, nil
}

func (s *stubConnector) QueryAll(ctx context.Context, baseStatement string) ([]crm.Row, error) {
	return nil, nil
}

func (s *stubConnector) PushCandidateStatus(ctx context.Context, externalID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushedID = externalID
	s.pushedStatus = status
	return nil
}

func (s *stubConnector) Logout(ctx context.Context) {}

type stubStore struct {
	mu        sync.Mutex
	history   []models.SyncHistoryEntry
	candidate *models.Candidate
	statuses  map[uuid.UUID]string
}

func newStubStore() *stubStore {
	return &stubStore{statuses: make(map[uuid.UUID]string)}
}

func (s *stubStore) upsert(records []database.Incoming) (database.UpsertResult, error) {
	return database.UpsertResult{Created: len(records)}, nil
}

func (s *stubStore) BulkUpsertCandidates(ctx context.Context, records []database.Incoming) (database.UpsertResult, error) {
	return s.upsert(records)
}

func (s *stubStore) BulkUpsertClientCompanies(ctx context.Context, records []database.Incoming) (database.UpsertResult, error) {
	return s.upsert(records)
}

func (s *stubStore) BulkUpsertVacancies(ctx context.Context, records []database.Incoming) (database.UpsertResult, error) {
	return s.upsert(records)
}

func (s *stubStore) BulkUpsertTodoItems(ctx context.Context, records []database.Incoming) (database.UpsertResult, error) {
	return s.upsert(records)
}

func (s *stubStore) GetCandidate(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidate != nil && s.candidate.ID == id {
		return s.candidate, nil
	}
	return nil, nil
}

func (s *stubStore) UpdateCandidateStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

func (s *stubStore) AppendHistory(ctx context.Context, entry models.SyncHistoryEntry, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	return nil
}

func (s *stubStore) ListHistory(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SyncHistoryEntry, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		out = append(out, s.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T, connector *stubConnector, store *stubStore) (*gin.Engine, *syncpkg.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orchestrator := syncpkg.NewOrchestrator(connector, store, syncpkg.Options{HistoryLimit: 100}, nil)
	scheduler := syncpkg.NewScheduler(orchestrator, 30*time.Minute, nil)
	t.Cleanup(scheduler.Stop)

	router := gin.New()
	controller := NewSyncController(orchestrator, scheduler, nil)
	controller.RegisterRoutes(router.Group("/api/v1/sync"))
	return router, orchestrator
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestGetStatus(t *testing.T) {
	router, _ := newTestRouter(t, &stubConnector{}, newStubStore())

	resp := doRequest(router, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var snap syncpkg.Snapshot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &snap))
	assert.Equal(t, syncpkg.StatusIdle, snap.Status)
	assert.False(t, snap.IsRunning)
	assert.False(t, snap.IsInitialized)
}

func TestTriggerSyncAccepted(t *testing.T) {
	connector := &stubConnector{contacts: []crm.Row{{"id": "12x1", "firstname": "Ana"}}}
	router, orchestrator := newTestRouter(t, connector, newStubStore())

	resp := doRequest(router, http.MethodPost, "/api/v1/sync/trigger", nil)
	require.Equal(t, http.StatusAccepted, resp.Code)

	require.Eventually(t, func() bool {
		return orchestrator.Snapshot().Status == syncpkg.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGetHistoryAfterRun(t *testing.T) {
	connector := &stubConnector{contacts: []crm.Row{{"id": "12x1", "firstname": "Ana"}}}
	store := newStubStore()
	router, orchestrator := newTestRouter(t, connector, store)

	require.NoError(t, orchestrator.SyncAll(context.Background(), syncpkg.DirectionFromExternal))

	resp := doRequest(router, http.MethodGet, "/api/v1/sync/history?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		History []models.SyncHistoryEntry `json:"history"`
		Count   int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, 2, payload.Count)
}

func TestGetHistoryRejectsBadLimit(t *testing.T) {
	router, _ := newTestRouter(t, &stubConnector{}, newStubStore())

	resp := doRequest(router, http.MethodGet, "/api/v1/sync/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdateConfig(t *testing.T) {
	router, orchestrator := newTestRouter(t, &stubConnector{}, newStubStore())

	resp := doRequest(router, http.MethodPut, "/api/v1/sync/config", map[string]interface{}{
		"syncInterval":   "15m",
		"enableAutoSync": true,
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, orchestrator.Snapshot().EnableAutoSync)

	resp = doRequest(router, http.MethodPut, "/api/v1/sync/config", map[string]interface{}{
		"syncInterval": "not-a-duration",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(router, http.MethodPut, "/api/v1/sync/config", map[string]interface{}{
		"syncInterval": "5s",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAutoSyncToggle(t *testing.T) {
	router, orchestrator := newTestRouter(t, &stubConnector{}, newStubStore())

	resp := doRequest(router, http.MethodPost, "/api/v1/sync/auto/start", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, orchestrator.Snapshot().EnableAutoSync)

	resp = doRequest(router, http.MethodPost, "/api/v1/sync/auto/stop", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, orchestrator.Snapshot().EnableAutoSync)
}

func TestPushCandidateStatusEndpoint(t *testing.T) {
	externalID := "12x9"
	id := uuid.New()
	connector := &stubConnector{}
	store := newStubStore()
	store.candidate = &models.Candidate{ID: id, ExternalID: &externalID}
	router, _ := newTestRouter(t, connector, store)

	resp := doRequest(router, http.MethodPost, "/api/v1/sync/candidates/"+id.String()+"/status",
		map[string]string{"status": "placed"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, externalID, connector.pushedID)
	assert.Equal(t, "placed", store.statuses[id])

	resp = doRequest(router, http.MethodPost, "/api/v1/sync/candidates/not-a-uuid/status",
		map[string]string{"status": "placed"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
