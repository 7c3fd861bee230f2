package services

import (
	"github.com/sjperalta/crm-api/internal/jobs"
)

// JobService reports on the background worker that runs large imports and sweeps
type JobService struct {
	worker  *jobs.Worker
	imports *ImportService
}

func NewJobService(worker *jobs.Worker, imports *ImportService) *JobService {
	return &JobService{worker: worker, imports: imports}
}

// WorkerStatus is the worker snapshot plus import load.
type WorkerStatus struct {
	jobs.WorkerStats
	ActiveUploads int64 `json:"active_uploads"`
	Saturated     bool  `json:"saturated"`
}

// GetStatus returns the current worker load. Saturated is set once running
// jobs reach the async concurrency limit; new imports then wait for a slot.
func (s *JobService) GetStatus() WorkerStatus {
	stats := s.worker.GetStats()
	status := WorkerStatus{
		WorkerStats: stats,
		Saturated:   stats.ActiveJobs >= stats.MaxConcurrent,
	}
	if s.imports != nil {
		status.ActiveUploads = s.imports.Active()
	}
	return status
}
