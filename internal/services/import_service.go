package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/importer"
	"github.com/sjperalta/crm-api/internal/jobs"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/internal/storage"
	"github.com/sjperalta/crm-api/pkg/logger"
)

// ImportService stages uploaded CSV files and runs them through the import pipeline
type ImportService struct {
	pipeline *importer.Pipeline
	storage  *storage.LocalStorage
	worker   *jobs.Worker
	active   atomic.Int64
}

// ImportResult is the final result of a started import.
type ImportResult struct {
	Outcome *importer.Outcome
	Err     error
}

// NewImportService creates a new import service
func NewImportService(clients repository.ClientRepository, storage *storage.LocalStorage, worker *jobs.Worker, opts importer.Options) *ImportService {
	return &ImportService{
		pipeline: importer.NewPipeline(columns.DefaultMapper(), clients, storage, worker, opts),
		storage:  storage,
		worker:   worker,
	}
}

// Stage copies the upload to temp storage so processing can outlive the request body.
func (s *ImportService) Stage(src io.Reader, originalName string) (string, error) {
	return s.storage.SaveUpload(src, originalName)
}

// Start imports a staged file on the worker, so the work is not tied to the
// request that started it. The result is delivered once on the returned
// channel and the staged file is always removed.
func (s *ImportService) Start(path string, req importer.Request) <-chan ImportResult {
	done := make(chan ImportResult, 1)
	s.active.Add(1)
	s.worker.EnqueueAsync("upload:"+filepath.Base(path), func(ctx context.Context) error {
		defer s.active.Add(-1)
		out, err := s.pipeline.Run(ctx, path, req)
		done <- ImportResult{Outcome: out, Err: err}
		if importer.IsRejection(err) {
			return nil
		}
		return err
	})
	return done
}

// Active returns the number of uploads still being parsed or resolved in
// the foreground. Background resolutions are counted by the worker.
func (s *ImportService) Active() int64 {
	return s.active.Load()
}

// OpenDuplicates opens a duplicate report for download. Unknown or invalid
// names return ErrNotFound.
func (s *ImportService) OpenDuplicates(name string) (*os.File, error) {
	f, err := s.storage.OpenDuplicate(name)
	if errors.Is(err, storage.ErrInvalidName) || errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// ConsumeDuplicates deletes a duplicate report after it was served once.
func (s *ImportService) ConsumeDuplicates(name string) {
	if err := s.storage.DeleteDuplicate(name); err != nil {
		logger.Warn("Failed to delete duplicate file", slog.String("file", name), slog.String("error", err.Error()))
	}
}
