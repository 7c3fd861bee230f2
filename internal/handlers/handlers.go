package handlers

import (
	"github.com/sjperalta/crm-api/internal/config"
	"github.com/sjperalta/crm-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health      *HealthHandler
	Client      *ClientHandler
	Import      *ImportHandler
	Audit       *AuditHandler
	SavedFilter *SavedFilterHandler
	Cleanup     *CleanupHandler
	Job         *JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services, cfg *config.Config, ping func() error) *Handlers {
	return &Handlers{
		Health:      NewHealthHandler(ping),
		Client:      NewClientHandler(svcs.Client, svcs.Export),
		Import:      NewImportHandler(svcs.Import, cfg.ImportTimeout, cfg.MaxUploadMB),
		Audit:       NewAuditHandler(svcs.Audit, svcs.Export),
		SavedFilter: NewSavedFilterHandler(svcs.SavedFilter),
		Cleanup:     NewCleanupHandler(svcs.Cleanup),
		Job:         NewJobHandler(svcs.Job),
	}
}
