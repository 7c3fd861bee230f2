package services

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sjperalta/crm-api/internal/metrics"
	"github.com/sjperalta/crm-api/internal/storage"
	"github.com/sjperalta/crm-api/pkg/logger"
)

// CleanupService removes abandoned uploads and stale duplicate reports
type CleanupService struct {
	storage      *storage.LocalStorage
	tempMaxAge   time.Duration
	duplicateTTL time.Duration
	now          func() time.Time
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(storage *storage.LocalStorage, tempMaxAge, duplicateTTL time.Duration) *CleanupService {
	return &CleanupService{
		storage:      storage,
		tempMaxAge:   tempMaxAge,
		duplicateTTL: duplicateTTL,
		now:          time.Now,
	}
}

// StorageStats describes the storage areas managed by the sweeps.
type StorageStats struct {
	Temp       storage.DirStats `json:"temp"`
	Duplicates storage.DirStats `json:"duplicates"`
	MaxAge     string           `json:"maxAge"`
}

// Stats reports file counts and sizes per storage area.
func (s *CleanupService) Stats() (*StorageStats, error) {
	temp, err := s.storage.Stats(storage.TempDir)
	if err != nil {
		return nil, err
	}
	dups, err := s.storage.Stats(storage.DuplicatesDir)
	if err != nil {
		return nil, err
	}
	return &StorageStats{Temp: temp, Duplicates: dups, MaxAge: s.tempMaxAge.String()}, nil
}

// SweepTemp removes temp uploads older than the configured age.
func (s *CleanupService) SweepTemp() (storage.SweepResult, error) {
	return s.sweep(storage.TempDir, s.tempMaxAge)
}

// SweepDuplicates removes duplicate reports nobody downloaded in time.
func (s *CleanupService) SweepDuplicates() (storage.SweepResult, error) {
	return s.sweep(storage.DuplicatesDir, s.duplicateTTL)
}

// Manual removes temp uploads older than maxAgeHours.
func (s *CleanupService) Manual(maxAgeHours float64) (storage.SweepResult, error) {
	if maxAgeHours < 0 {
		return storage.SweepResult{}, invalid("maxAgeHours must not be negative")
	}
	return s.sweep(storage.TempDir, time.Duration(maxAgeHours*float64(time.Hour)))
}

// Force removes every temp upload regardless of age.
func (s *CleanupService) Force() (storage.SweepResult, error) {
	return s.sweep(storage.TempDir, 0)
}

func (s *CleanupService) sweep(dir string, maxAge time.Duration) (storage.SweepResult, error) {
	res, err := s.storage.SweepOlderThan(dir, maxAge, s.now())
	metrics.TempFilesSweptTotal.WithLabelValues(dir).Add(float64(res.DeletedCount))
	if res.DeletedCount > 0 {
		logger.Info("Storage sweep removed files",
			slog.String("area", dir),
			slog.Int("deleted", res.DeletedCount),
			slog.Int64("bytes", res.TotalSize))
	}
	if err != nil {
		return res, errors.Join(errors.New("storage sweep incomplete"), err)
	}
	return res, nil
}
