package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/jobs"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/internal/statemachine"
	"github.com/sjperalta/crm-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// memoryStore is an in-memory Store with failure injection.
type memoryStore struct {
	mu         sync.Mutex
	clients    map[string]*models.Client
	updates    map[string]map[string]interface{}
	failBatch  bool
	failCodes  map[string]error
	batchCalls int
	rowCalls   int
}

func newMemoryStore(codes ...string) *memoryStore {
	s := &memoryStore{
		clients:   make(map[string]*models.Client),
		updates:   make(map[string]map[string]interface{}),
		failCodes: make(map[string]error),
	}
	for _, c := range codes {
		s.clients[c] = &models.Client{TradingCode: c}
	}
	return s
}

func (s *memoryStore) ExistingTradingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, c := range codes {
		if _, ok := s.clients[c]; ok {
			out[c] = true
		}
	}
	return out, nil
}

func (s *memoryStore) Create(ctx context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCalls++
	if err := s.failCodes[client.TradingCode]; err != nil {
		return err
	}
	s.clients[client.TradingCode] = client
	return nil
}

func (s *memoryStore) CreateBatch(ctx context.Context, clients []*models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchCalls++
	if s.failBatch {
		return errors.New("batch rejected")
	}
	for _, c := range clients {
		s.clients[c.TradingCode] = c
	}
	return nil
}

func (s *memoryStore) UpdateByTradingCode(ctx context.Context, code string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failCodes[code]; err != nil {
		return err
	}
	s.updates[code] = fields
	return nil
}

func (s *memoryStore) touched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchCalls > 0 || s.rowCalls > 0 || len(s.updates) > 0
}

type fakeRunner struct {
	mu        sync.Mutex
	async     []jobs.Job
	scheduled []string
}

func (r *fakeRunner) EnqueueAsync(name string, job jobs.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.async = append(r.async, job)
}

func (r *fakeRunner) ScheduleAt(name string, at time.Time, job jobs.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, name)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func writeUpload(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestPipeline(store Store, files FileStore, runner Runner) *Pipeline {
	return NewPipeline(columns.DefaultMapper(), store, files, runner, Options{
		SyncThreshold: 1000,
		BatchSize:     2,
		DuplicateTTL:  time.Hour,
	})
}

func TestParse_MissingKeyColumn(t *testing.T) {
	session := statemachine.NewImportFSM()
	_, err := Parse(context.Background(), strings.NewReader("Name,City\nAsha,Pune\n"), columns.DefaultMapper(), session)

	assert.ErrorIs(t, err, ErrMissingKeyColumn)
	assert.Contains(t, err.Error(), "Found columns: Name, City")
	assert.True(t, IsRejection(err))
	assert.Equal(t, statemachine.ImportFailed, session.Current())
}

func TestParse_EmptyInputs(t *testing.T) {
	for name, content := range map[string]string{
		"no header":    "",
		"header only":  "Trading Code,Name\n",
		"no key cells": "Trading Code,Name\n,Asha\n , Ravi\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(context.Background(), strings.NewReader(content), columns.DefaultMapper(), statemachine.NewImportFSM())
			assert.ErrorIs(t, err, ErrEmptyFile)
		})
	}
}

func TestParse_SkipsBlankAndKeylessRows(t *testing.T) {
	session := statemachine.NewImportFSM()
	csv := "\ufeffTrading Code, Name ,Mobile,Unknown\nA1,Asha,999,x\n,,,\n,Ravi,123,\nB2, ,,\n"

	sheet, err := Parse(context.Background(), strings.NewReader(csv), columns.DefaultMapper(), session)
	require.NoError(t, err)

	assert.Equal(t, statemachine.ImportEndOfStream, session.Current())
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, 2, sheet.Skipped)
	assert.Equal(t, "Asha", sheet.Rows[0].Values["name"])
	assert.Equal(t, "999", sheet.Rows[0].Values["mobileNo"])
	assert.NotContains(t, sheet.Rows[1].Values, "name")
	assert.Equal(t, []string{"Unknown"}, sheet.Layout.Extra)
	assert.Equal(t, []string{"A1", "B2"}, sheet.Keys())
}

func TestParse_StreamErrorIsMalformed(t *testing.T) {
	r := io.MultiReader(strings.NewReader("Trading Code\nA1\n"), iotest.ErrReader(errors.New("connection reset")))
	session := statemachine.NewImportFSM()

	_, err := Parse(context.Background(), r, columns.DefaultMapper(), session)
	assert.ErrorIs(t, err, ErrMalformedCSV)
	assert.False(t, IsRejection(err))
	assert.Equal(t, statemachine.ImportFailed, session.Current())
}

func TestPipeline_MissingKeyHasNoSideEffects(t *testing.T) {
	store := newMemoryStore()
	files := newTestStorage(t)
	path := writeUpload(t, "Name,City\nAsha,Pune\n")

	_, err := newTestPipeline(store, files, &fakeRunner{}).Run(context.Background(), path, Request{Mode: ModeInsert})

	assert.ErrorIs(t, err, ErrMissingKeyColumn)
	assert.False(t, store.touched())
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "temp upload is removed on rejection")
}

func TestPipeline_InsertDetectsIntraFileDuplicates(t *testing.T) {
	store := newMemoryStore("OLD")
	files := newTestStorage(t)
	runner := &fakeRunner{}
	path := writeUpload(t, "Trading Code,Name\nA1,First\nA1,Second\nOLD,Existing\nB2,Other\n")

	out, err := newTestPipeline(store, files, runner).Run(context.Background(), path, Request{Mode: ModeInsert})
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	require.NotNil(t, out.Insert)
	assert.Equal(t, 4, out.TotalRows)
	assert.Equal(t, 2, out.Insert.NewRecords)
	assert.Equal(t, 2, out.Insert.DuplicatesSkipped)
	assert.Equal(t, []string{"A1", "OLD"}, out.Insert.SkippedCodes)
	assert.Equal(t, "First", store.clients["A1"].Name, "first occurrence wins")

	require.NotNil(t, out.Insert.DuplicateFile)
	assert.Equal(t, []string{"expire:" + out.Insert.DuplicateFile.Name}, runner.scheduled)

	f, err := files.OpenDuplicate(out.Insert.DuplicateFile.Name)
	require.NoError(t, err)
	content, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "Trading Code,Name\nA1,Second\nOLD,Existing\n", string(content))

	status, body := out.Response()
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 2, body["newRecords"])
	dup := body["duplicateFile"].(map[string]interface{})
	assert.Equal(t, DuplicateDownloadPrefix+out.Insert.DuplicateFile.Name, dup["downloadUrl"])
	assert.Equal(t, 2, dup["recordCount"])
	assert.Contains(t, body, "warnings")
	assert.NotContains(t, body, "failedRecordsDetails")
}

func TestResolver_BatchFailureFallsBackToRows(t *testing.T) {
	store := newMemoryStore()
	store.failBatch = true
	store.failCodes["B2"] = repository.ErrDuplicateKey
	store.failCodes["C3"] = errors.New("value too long")

	sheet, err := Parse(context.Background(), strings.NewReader("Trading Code\nA1\nB2\nC3\nD4\nE5\n"), columns.DefaultMapper(), statemachine.NewImportFSM())
	require.NoError(t, err)

	r := NewResolver(store, newTestStorage(t), nil, 2, 0)
	res, err := r.Insert(context.Background(), sheet, nil, false, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 3, res.NewRecords)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, []RowFailure{
		{TradingCode: "B2", Error: "duplicate key"},
		{TradingCode: "C3", Error: "value too long"},
	}, res.Failures)
	assert.Equal(t, 3, store.batchCalls, "one attempt per batch of two")
	assert.Nil(t, res.DuplicateFile)
}

func TestResolver_SamplesAreBounded(t *testing.T) {
	var b strings.Builder
	b.WriteString("Trading Code\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "T%02d\n", i)
	}
	store := newMemoryStore()
	for i := 0; i < 25; i += 2 {
		store.clients[fmt.Sprintf("T%02d", i)] = &models.Client{}
	}

	sheet, err := Parse(context.Background(), strings.NewReader(b.String()), columns.DefaultMapper(), statemachine.NewImportFSM())
	require.NoError(t, err)

	res, err := NewResolver(store, newTestStorage(t), nil, 100, 0).Insert(context.Background(), sheet, nil, false, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 12, res.NewRecords)
	assert.Equal(t, 13, res.DuplicatesSkipped)
	assert.Len(t, res.Clients, sampleSize)
	assert.Len(t, res.SkippedCodes, sampleSize)
}

func TestPipeline_LargeSheetRunsInBackground(t *testing.T) {
	var b strings.Builder
	b.WriteString("Trading Code,City\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "BG%d,Pune\n", i)
	}
	store := newMemoryStore()
	runner := &fakeRunner{}
	p := NewPipeline(columns.DefaultMapper(), store, newTestStorage(t), runner, Options{SyncThreshold: 3, BatchSize: 2})

	out, err := p.Run(context.Background(), writeUpload(t, b.String()), Request{Mode: ModeInsert})
	require.NoError(t, err)

	assert.True(t, out.Background)
	assert.Nil(t, out.Insert)
	assert.False(t, store.touched(), "nothing persisted before the worker runs")

	status, body := out.Response()
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, "1 seconds", body["estimatedTime"])

	require.Len(t, runner.async, 1)
	require.NoError(t, runner.async[0](context.Background()))
	assert.Len(t, store.clients, 5)
}

func TestPipeline_UpsertPreservesAbsentColumns(t *testing.T) {
	db := openTestDB(t)
	repo := repository.NewClientRepository(db)
	ctx := context.Background()
	p := newTestPipeline(repo, newTestStorage(t), &fakeRunner{})

	_, err := p.Run(ctx, writeUpload(t, "Trading Code,Name,City,Remarks\nA1,Asha,Pune,vip\n"), Request{Mode: ModeInsert})
	require.NoError(t, err)

	out, err := p.Run(ctx, writeUpload(t, "Trading Code,Name,Remarks\nA1,Asha Rao,\nA1,Ignored,\nN1,New,\n"), Request{Mode: ModeUpsert})
	require.NoError(t, err)

	require.NotNil(t, out.Upsert)
	assert.Equal(t, 1, out.Upsert.Updated)
	assert.Equal(t, 1, out.Upsert.Inserted)
	assert.Equal(t, 1, out.Upsert.DuplicatesInFile)

	got, err := repo.FindByTradingCode(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.Name)
	assert.Equal(t, "Pune", got.City, "column absent from the sheet is untouched")
	assert.Equal(t, "", got.Remarks, "present but blank column is written")

	status, body := out.Response()
	assert.Equal(t, http.StatusOK, status)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, true, summary["onlySpecifiedColumnsUpdated"])
	assert.Equal(t, 3, summary["columnsInCSV"])
}

func TestResolver_UpsertCapturesRowFailures(t *testing.T) {
	store := newMemoryStore("A1", "B2")
	store.failCodes["A1"] = errors.New("locked")

	sheet, err := Parse(context.Background(), strings.NewReader("Trading Code,City\nA1,Pune\nB2,\n"), columns.DefaultMapper(), statemachine.NewImportFSM())
	require.NoError(t, err)

	res, err := NewResolver(store, nil, nil, 100, 0).Upsert(context.Background(), sheet, nil, testLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, []RowFailure{{TradingCode: "A1", Error: "locked", Action: "update"}}, res.Failures)
	assert.Equal(t, "", store.updates["B2"]["city"])
	assert.NotContains(t, store.updates["B2"], "trading_code")
	assert.Contains(t, store.updates["B2"], "last_modified")
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:importer_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Client{}))
	return db
}
