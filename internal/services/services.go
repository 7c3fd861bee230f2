package services

import (
	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/config"
	"github.com/sjperalta/crm-api/internal/importer"
	"github.com/sjperalta/crm-api/internal/jobs"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/internal/storage"
)

// Services holds all service instances
type Services struct {
	Client      *ClientService
	Import      *ImportService
	Audit       *AuditService
	SavedFilter *SavedFilterService
	Export      *ExportService
	Cleanup     *CleanupService
	Job         *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, storage *storage.LocalStorage, cfg *config.Config) *Services {
	auditSvc := NewAuditService(repos.Audit)
	importSvc := NewImportService(repos.Client, storage, worker, importer.Options{
		SyncThreshold: cfg.ImportSyncThreshold,
		BatchSize:     cfg.ImportBatchSize,
		DuplicateTTL:  cfg.DuplicateFileTTL,
	})

	return &Services{
		Client:      NewClientService(repos.Client, auditSvc),
		Import:      importSvc,
		Audit:       auditSvc,
		SavedFilter: NewSavedFilterService(repos.SavedFilter),
		Export:      NewExportService(columns.DefaultMapper()),
		Cleanup:     NewCleanupService(storage, cfg.TempFileMaxAge, cfg.DuplicateFileTTL),
		Job:         NewJobService(worker, importSvc),
	}
}
