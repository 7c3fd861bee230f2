package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/crm-api/internal/importer"
	"github.com/sjperalta/crm-api/internal/jobs"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/internal/services"
	"github.com/sjperalta/crm-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockClientRepo struct {
	repository.ClientRepository
	mu           sync.Mutex
	existing     map[string]bool
	created      []*models.Client
	gate         chan struct{}
	mockList     func(ctx context.Context, q *repository.ClientQuery) ([]models.Client, int64, error)
	mockFindByID func(ctx context.Context, id uint) (*models.Client, error)
}

func (m *mockClientRepo) ExistingTradingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	if m.gate != nil {
		<-m.gate
	}
	out := make(map[string]bool)
	for _, c := range codes {
		if m.existing[c] {
			out[c] = true
		}
	}
	return out, nil
}

func (m *mockClientRepo) CreateBatch(ctx context.Context, clients []*models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range clients {
		c.ID = uint(len(m.created) + 1)
		m.created = append(m.created, c)
	}
	return nil
}

func (m *mockClientRepo) UpdateByTradingCode(ctx context.Context, code string, fields map[string]interface{}) error {
	return nil
}

func (m *mockClientRepo) List(ctx context.Context, q *repository.ClientQuery) ([]models.Client, int64, error) {
	return m.mockList(ctx, q)
}

func (m *mockClientRepo) FindByID(ctx context.Context, id uint) (*models.Client, error) {
	return m.mockFindByID(ctx, id)
}

func newImportHandler(t *testing.T, repo *mockClientRepo, timeout time.Duration) *ImportHandler {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	worker := jobs.NewWorker(1)
	t.Cleanup(worker.Shutdown)

	svc := services.NewImportService(repo, store, worker, importer.Options{
		SyncThreshold: 100,
		BatchSize:     10,
		DuplicateTTL:  time.Hour,
	})
	return NewImportHandler(svc, timeout, 1)
}

func uploadContext(t *testing.T, path, csv string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "clients.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", path, body)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	return c, w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestImportHandler_Upload_MissingKeyColumn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &mockClientRepo{}
	handler := newImportHandler(t, repo, 5*time.Second)

	c, w := uploadContext(t, "/clients/upload", "Name,City\nAlice,Pune\n")
	handler.Upload(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "Trading Code")
	assert.Empty(t, repo.created)
}

func TestImportHandler_Upload_NoFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newImportHandler(t, &mockClientRepo{}, time.Second)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("POST", "/clients/upload", nil)
	handler.Upload(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHandler_DuplicateDownloadIsOneTime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &mockClientRepo{existing: map[string]bool{"OLD": true}}
	handler := newImportHandler(t, repo, 5*time.Second)

	c, w := uploadContext(t, "/clients/upload", "Trading Code,Name\nA1,Alice\nOLD,Existing\n")
	handler.Upload(c)

	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["newRecords"])
	assert.EqualValues(t, 1, body["duplicatesSkipped"])
	assert.Equal(t, []interface{}{"OLD"}, body["skippedTradingCodes"])

	dup, ok := body["duplicateFile"].(map[string]interface{})
	require.True(t, ok, "duplicate file expected")
	name := dup["filename"].(string)
	assert.Equal(t, importer.DuplicateDownloadPrefix+name, dup["downloadUrl"])

	download := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("GET", "/clients/duplicates/"+url.PathEscape(name), nil)
		c.Params = gin.Params{{Key: "filename", Value: name}}
		handler.DownloadDuplicates(c)
		return w
	}

	first := download()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "Trading Code,Name\nOLD,Existing\n", first.Body.String())

	second := download()
	assert.Equal(t, http.StatusNotFound, second.Code)
}

func TestImportHandler_DownloadRejectsTraversal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newImportHandler(t, &mockClientRepo{}, time.Second)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/clients/duplicates/x", nil)
	c.Params = gin.Params{{Key: "filename", Value: "../../etc/passwd"}}
	handler.DownloadDuplicates(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportHandler_Timeout(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		path   string
		run    func(h *ImportHandler, c *gin.Context)
		status int
	}{
		{"insert answers accepted", "/clients/upload", (*ImportHandler).Upload, http.StatusAccepted},
		{"upsert answers request timeout", "/clients/update-csv", (*ImportHandler).UpdateCSV, http.StatusRequestTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockClientRepo{gate: make(chan struct{})}
			handler := newImportHandler(t, repo, 20*time.Millisecond)

			c, w := uploadContext(t, tt.path, "Trading Code,Name\nA1,Alice\n")
			tt.run(handler, c)
			close(repo.gate)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "processing", decode(t, w)["status"])
		})
	}
}

func TestClientHandler_Index_InvalidFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)

	repo := &mockClientRepo{}
	called := false
	repo.mockList = func(ctx context.Context, q *repository.ClientQuery) ([]models.Client, int64, error) {
		called = true
		return nil, 0, nil
	}
	handler := NewClientHandler(services.NewClientService(repo, nil), nil)

	for _, raw := range []string{
		`not-json`,
		`[{"field":"favouriteColour","operator":"equals","value":"x"}]`,
		`[{"field":"name","operator":"resembles","value":"x"}]`,
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("GET", "/clients?filters="+url.QueryEscape(raw), nil)
		handler.Index(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
	}
	assert.False(t, called)
}

func TestClientHandler_Index_PassesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	repo := &mockClientRepo{}
	var captured *repository.ClientQuery
	repo.mockList = func(ctx context.Context, q *repository.ClientQuery) ([]models.Client, int64, error) {
		captured = q
		return []models.Client{{ID: 1, TradingCode: "A1"}}, 250, nil
	}
	handler := NewClientHandler(services.NewClientService(repo, nil), nil)

	filters := `[{"field":"city","operator":"equals","value":"Pune"},{"field":"holdingValue","operator":"greaterThan","value":1000,"logicalOperator":"AND"}]`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/clients?page=2&limit=50&search=ali&filters="+url.QueryEscape(filters), nil)
	handler.Index(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, captured)
	assert.Equal(t, 2, captured.Page)
	assert.Equal(t, 50, captured.Limit)
	assert.Equal(t, "ali", captured.Search)
	assert.NotNil(t, captured.Where)

	body := decode(t, w)
	assert.EqualValues(t, 250, body["totalRecords"])
	assert.EqualValues(t, 5, body["totalPages"])
	assert.EqualValues(t, 2, body["appliedFilters"])
}

func TestClientHandler_Show(t *testing.T) {
	gin.SetMode(gin.TestMode)

	repo := &mockClientRepo{}
	repo.mockFindByID = func(ctx context.Context, id uint) (*models.Client, error) {
		if id == 1 {
			return &models.Client{ID: 1, TradingCode: "A1"}, nil
		}
		return nil, gorm.ErrRecordNotFound
	}
	handler := NewClientHandler(services.NewClientService(repo, nil), nil)

	tests := []struct {
		id     string
		status int
	}{
		{"1", http.StatusOK},
		{"2", http.StatusNotFound},
		{"abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("GET", "/clients/"+tt.id, nil)
		c.Params = gin.Params{{Key: "id", Value: tt.id}}
		handler.Show(c)
		assert.Equal(t, tt.status, w.Code, tt.id)
	}
}

type mockSavedFilterRepo struct {
	repository.SavedFilterRepository
	created []*models.SavedFilter
}

func (m *mockSavedFilterRepo) FindByName(ctx context.Context, name string) (*models.SavedFilter, error) {
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSavedFilterRepo) Create(ctx context.Context, f *models.SavedFilter) error {
	f.ID = uint(len(m.created) + 1)
	m.created = append(m.created, f)
	return nil
}

func TestSavedFilterHandler_Create(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		payload string
		status  int
	}{
		{"valid", `{"name":" Pune HNI ","filterConditions":[{"field":"city","operator":"equals","value":"Pune"}]}`, http.StatusCreated},
		{"missing name", `{"filterConditions":[{"field":"city","operator":"equals","value":"Pune"}]}`, http.StatusBadRequest},
		{"no conditions", `{"name":"Empty","filterConditions":[]}`, http.StatusBadRequest},
		{"unknown operator", `{"name":"Bad","filterConditions":[{"field":"city","operator":"near","value":"Pune"}]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockSavedFilterRepo{}
			handler := NewSavedFilterHandler(services.NewSavedFilterService(repo))

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest("POST", "/saved-filters", bytes.NewBufferString(tt.payload))
			c.Request.Header.Set("Content-Type", "application/json")
			handler.Create(c)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusCreated {
				require.Len(t, repo.created, 1)
				assert.Equal(t, "Pune HNI", repo.created[0].Name)
				assert.Equal(t, "System", repo.created[0].CreatedBy)
				assert.True(t, repo.created[0].IsPublic)
			}
		})
	}
}

type mockAuditRepo struct {
	repository.AuditRepository
	logs []models.AuditLog
}

func (m *mockAuditRepo) FindAll(ctx context.Context, query *repository.ListQuery) ([]models.AuditLog, error) {
	return m.logs, nil
}

func TestAuditHandler_Export(t *testing.T) {
	gin.SetMode(gin.TestMode)

	repo := &mockAuditRepo{logs: []models.AuditLog{{
		TradingCode: "A1",
		Action:      models.AuditActionUpdate,
		EditedBy:    "Ana",
		Changes: []models.FieldChange{
			{Field: "city", FieldLabel: "City", OldValue: "Pune", NewValue: "Mumbai"},
			{Field: "state", FieldLabel: "State", OldValue: "Empty", NewValue: "MH"},
		},
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}}}
	handler := NewAuditHandler(services.NewAuditService(repo), services.NewExportService(nil))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/audit-logs/export", nil)
	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["count"])

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/audit-logs/export?format=csv", nil)
	handler.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "audit_logs_")
	assert.Contains(t, w.Body.String(), "2024-03-01 10:00:00,A1,UPDATE,Ana,,City,Pune,Mumbai")
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/health", nil)
	NewHealthHandler(func() error { return nil }).Index(c)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/health", nil)
	NewHealthHandler(func() error { return errors.New("down") }).Index(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
