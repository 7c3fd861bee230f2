package services

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Mock ClientRepository backed by a map keyed by id
type mockClientRepository struct {
	repository.ClientRepository
	clients map[uint]*models.Client
	updated map[string]interface{}
}

func (m *mockClientRepository) FindByID(ctx context.Context, id uint) (*models.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockClientRepository) FindByTradingCode(ctx context.Context, code string) (*models.Client, error) {
	for _, c := range m.clients {
		if c.TradingCode == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockClientRepository) Create(ctx context.Context, client *models.Client) error {
	client.ID = uint(len(m.clients) + 1)
	m.clients[client.ID] = client
	return nil
}

func (m *mockClientRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	c, ok := m.clients[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.updated = fields
	for key, info := range map[string]*string{"city": &c.City, "state": &c.State, "trading_code": &c.TradingCode} {
		if v, ok := fields[key]; ok {
			*info = v.(string)
		}
	}
	return nil
}

// Mock AuditRepository recording created entries
type mockAuditRepository struct {
	repository.AuditRepository
	created []*models.AuditLog
	err     error
}

func (m *mockAuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, entry)
	return nil
}

func newClientFixture() (*ClientService, *mockClientRepository, *mockAuditRepository) {
	clients := &mockClientRepository{clients: map[uint]*models.Client{
		1: {ID: 1, TradingCode: "A1", Name: "Alice", City: "Pune"},
	}}
	audits := &mockAuditRepository{}
	return NewClientService(clients, NewAuditService(audits)), clients, audits
}

var testActor = models.Actor{Name: "Ana", Email: "ana@example.com", IPAddress: "10.0.0.1"}

func TestDiffFields(t *testing.T) {
	before := map[string]string{"name": "Alice", "city": "Pune", "state": ""}
	after := map[string]string{"city": "Mumbai", "state": "MH", "name": "Alice", "lastModified": "now"}

	changes := DiffFields(before, after)

	require.Len(t, changes, 2)
	assert.Equal(t, models.FieldChange{Field: "city", FieldLabel: "City", OldValue: "Pune", NewValue: "Mumbai"}, changes[0])
	assert.Equal(t, models.FieldChange{Field: "state", FieldLabel: "State", OldValue: "Empty", NewValue: "MH"}, changes[1])
}

func TestDiffFields_NoChanges(t *testing.T) {
	v := map[string]string{"city": "Pune"}
	assert.Empty(t, DiffFields(v, v))
}

func TestClientService_Update(t *testing.T) {
	svc, clients, audits := newClientFixture()

	updated, changed, err := svc.Update(context.Background(), 1, map[string]interface{}{
		"city":     "Mumbai",
		"name":     "Alice",
		"nickname": "ignored",
	}, testActor)

	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, "Mumbai", updated.City)
	assert.NotContains(t, clients.updated, "nickname")
	assert.Contains(t, clients.updated, "last_modified")

	require.Len(t, audits.created, 1)
	entry := audits.created[0]
	assert.Equal(t, models.AuditActionUpdate, entry.Action)
	assert.Equal(t, "A1", entry.TradingCode)
	assert.Equal(t, "Ana", entry.EditedBy)
	assert.Equal(t, "10.0.0.1", entry.Metadata.IPAddress)
	require.Len(t, entry.Changes, 1)
	assert.Equal(t, "Pune", entry.Changes[0].OldValue)
}

func TestClientService_Update_NoChangesNotAudited(t *testing.T) {
	svc, _, audits := newClientFixture()

	_, changed, err := svc.Update(context.Background(), 1, map[string]interface{}{"city": "Pune"}, testActor)

	require.NoError(t, err)
	assert.Equal(t, 0, changed)
	assert.Empty(t, audits.created)
}

func TestClientService_Update_AuditFailureIgnored(t *testing.T) {
	svc, _, audits := newClientFixture()
	audits.err = errors.New("audit store down")

	updated, changed, err := svc.Update(context.Background(), 1, map[string]interface{}{"city": "Delhi"}, testActor)

	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, "Delhi", updated.City)
}

func TestClientService_Update_Errors(t *testing.T) {
	tests := []struct {
		name   string
		id     uint
		input  map[string]interface{}
		target error
	}{
		{"missing client", 9, map[string]interface{}{"city": "X"}, ErrNotFound},
		{"blank trading code", 1, map[string]interface{}{"tradingCode": "  "}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, audits := newClientFixture()
			_, _, err := svc.Update(context.Background(), tt.id, tt.input, testActor)
			assert.ErrorIs(t, err, tt.target)
			assert.Empty(t, audits.created)
		})
	}
}

func TestClientService_Create(t *testing.T) {
	svc, _, audits := newClientFixture()

	client, err := svc.Create(context.Background(), map[string]interface{}{
		"tradingCode":  "B2",
		"name":         "Bob",
		"holdingValue": 1500.5,
	}, nil, models.Actor{})

	require.NoError(t, err)
	assert.Equal(t, "1500.5", client.HoldingValue)
	require.Len(t, audits.created, 1)
	assert.Equal(t, models.AuditActionCreate, audits.created[0].Action)
	assert.Equal(t, "Admin", audits.created[0].EditedBy)
	assert.Len(t, audits.created[0].Changes, 3)
}

func TestClientService_Create_Rejects(t *testing.T) {
	svc, _, _ := newClientFixture()

	_, err := svc.Create(context.Background(), map[string]interface{}{"tradingCode": "A1"}, nil, testActor)
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.Create(context.Background(), map[string]interface{}{"name": "No Code"}, nil, testActor)
	assert.ErrorIs(t, err, ErrValidation)
}

// Mock SavedFilterRepository
type mockSavedFilterRepository struct {
	repository.SavedFilterRepository
	filters map[uint]*models.SavedFilter
}

func (m *mockSavedFilterRepository) FindByID(ctx context.Context, id uint) (*models.SavedFilter, error) {
	f, ok := m.filters[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockSavedFilterRepository) FindByName(ctx context.Context, name string) (*models.SavedFilter, error) {
	for _, f := range m.filters {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSavedFilterRepository) Update(ctx context.Context, f *models.SavedFilter) error {
	m.filters[f.ID] = f
	return nil
}

func (m *mockSavedFilterRepository) IncrementUsage(ctx context.Context, id uint) error {
	f, ok := m.filters[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.UsageCount++
	return nil
}

func TestSavedFilterService_Update(t *testing.T) {
	cond := []models.FilterCondition{{Field: "city", Operator: "equals", Value: "Pune"}}
	repo := &mockSavedFilterRepository{filters: map[uint]*models.SavedFilter{
		1: {ID: 1, Name: "Pune", FilterConditions: cond},
		2: {ID: 2, Name: "Mumbai", FilterConditions: cond},
	}}
	svc := NewSavedFilterService(repo)
	name := func(s string) *string { return &s }

	_, err := svc.Update(context.Background(), 1, SavedFilterInput{Name: name("Mumbai")})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = svc.Update(context.Background(), 1, SavedFilterInput{FilterConditions: []models.FilterCondition{}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update(context.Background(), 3, SavedFilterInput{Name: name("Other")})
	assert.ErrorIs(t, err, ErrNotFound)

	f, err := svc.Update(context.Background(), 1, SavedFilterInput{Name: name(" Pune "), Description: name("west")})
	require.NoError(t, err)
	assert.Equal(t, "Pune", f.Name)
	assert.Equal(t, "west", f.Description)
}

func TestSavedFilterService_LoadCountsUsage(t *testing.T) {
	repo := &mockSavedFilterRepository{filters: map[uint]*models.SavedFilter{1: {ID: 1, Name: "Pune"}}}
	svc := NewSavedFilterService(repo)

	f, err := svc.Load(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.UsageCount)

	_, err = svc.Use(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupService_Sweeps(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	old, err := store.SaveUpload(strings.NewReader("Trading Code\nA1\n"), "old.csv")
	require.NoError(t, err)
	fresh, err := store.SaveUpload(strings.NewReader("Trading Code\nB2\n"), "fresh.csv")
	require.NoError(t, err)
	past := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	svc := NewCleanupService(store, time.Hour, time.Hour)

	_, err = svc.Manual(-1)
	assert.ErrorIs(t, err, ErrValidation)

	res, err := svc.Manual(2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedCount)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Temp.Files)

	res, err = svc.Force()
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedCount)
	assert.NoFileExists(t, fresh)
	assert.DirExists(t, filepath.Dir(fresh))
}

func TestExportService_Clients(t *testing.T) {
	svc := NewExportService(columns.DefaultMapper())
	svc.now = func() time.Time { return time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC) }

	file, err := svc.Clients([]models.Client{{TradingCode: "A1", Name: "Alice, Jr."}}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "clients_2024-05-02.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)

	records, err := csv.NewReader(strings.NewReader(string(file.Data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Trading Code", records[0][0])
	assert.Equal(t, "A1", records[1][0])
	assert.Contains(t, records[1], "Alice, Jr.")

	xlsx, err := svc.Clients(nil, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, "clients_2024-05-02.xlsx", xlsx.Filename)
	assert.NotEmpty(t, xlsx.Data)

	_, err = svc.Clients(nil, "pdf")
	assert.ErrorIs(t, err, ErrValidation)
}
