package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sjperalta/crm-api/internal/metrics"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/pkg/logger"
	"gorm.io/gorm"
)

// reservedAuditField is bookkeeping and never diffed.
const reservedAuditField = "lastModified"

const defaultEditor = "Admin"

type AuditService struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo, now: time.Now}
}

// DiffFields compares the values in after against before, in field registry
// order followed by any unregistered keys. Values are compared as strings.
func DiffFields(before, after map[string]string) []models.FieldChange {
	changes := []models.FieldChange{}
	seen := make(map[string]bool, len(after))

	add := func(key string) {
		seen[key] = true
		if key == reservedAuditField {
			return
		}
		newValue, ok := after[key]
		if !ok {
			return
		}
		oldValue := before[key]
		if oldValue == newValue {
			return
		}
		changes = append(changes, models.FieldChange{
			Field:      key,
			FieldLabel: models.FieldLabel(key),
			OldValue:   formatValue(oldValue),
			NewValue:   formatValue(newValue),
		})
	}

	for _, f := range models.ClientFields() {
		add(f.Key)
	}
	for key := range after {
		if !seen[key] {
			add(key)
		}
	}
	return changes
}

func formatValue(v string) string {
	if v == "" {
		return "Empty"
	}
	return v
}

// RecordChanges writes one audit entry when after differs from before. It never
// fails the caller: persistence errors are logged and reported, and nil is
// returned.
func (s *AuditService) RecordChanges(ctx context.Context, clientID uint, tradingCode, action string, before, after map[string]string, actor models.Actor) *models.AuditLog {
	changes := DiffFields(before, after)
	if len(changes) == 0 {
		return nil
	}

	editedBy := actor.Name
	if editedBy == "" {
		editedBy = defaultEditor
	}
	now := s.now()
	entry := &models.AuditLog{
		ClientID:      clientID,
		TradingCode:   tradingCode,
		Action:        action,
		EditedBy:      editedBy,
		EditedByEmail: actor.Email,
		Changes:       changes,
		Metadata: models.AuditMetadata{
			IPAddress: actor.IPAddress,
			UserAgent: actor.UserAgent,
			Timestamp: now,
		},
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		metrics.AuditFailuresTotal.Inc()
		logger.Error("Failed to record audit entry",
			slog.Uint64("client_id", uint64(clientID)),
			slog.String("trading_code", tradingCode),
			slog.String("action", action),
			slog.String("error", err.Error()))
		sentry.CaptureException(err)
		return nil
	}
	metrics.AuditEntriesTotal.WithLabelValues(action).Inc()
	return entry
}

// ListByClient returns the history of one client, newest first.
func (s *AuditService) ListByClient(ctx context.Context, clientID uint, page, limit int) ([]models.AuditLog, int64, error) {
	query := pagedQuery(page, limit)
	query.Filters["client_id"] = uintString(clientID)
	return s.repo.List(ctx, query)
}

// ListByTradingCode returns the history of one trading code, including
// entries of deleted clients.
func (s *AuditService) ListByTradingCode(ctx context.Context, code string, page, limit int) ([]models.AuditLog, int64, error) {
	query := pagedQuery(page, limit)
	query.Filters["trading_code"] = code
	return s.repo.List(ctx, query)
}

// List returns filtered entries plus the distinct editors for filter options.
func (s *AuditService) List(ctx context.Context, query *repository.ListQuery) ([]models.AuditLog, int64, []string, error) {
	logs, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, 0, nil, err
	}
	editors, err := s.repo.Editors(ctx)
	if err != nil {
		return nil, 0, nil, err
	}
	return logs, total, editors, nil
}

// Stats aggregates entries created within the optional bounds.
func (s *AuditService) Stats(ctx context.Context, from, to *time.Time) (*models.AuditStats, error) {
	return s.repo.Stats(ctx, from, to)
}

// AuditExportRow is one field change flattened with its entry.
type AuditExportRow struct {
	Date          time.Time `json:"date"`
	TradingCode   string    `json:"tradingCode"`
	Action        string    `json:"action"`
	EditedBy      string    `json:"editedBy"`
	EditedByEmail string    `json:"editedByEmail"`
	Field         string    `json:"field"`
	OldValue      string    `json:"oldValue"`
	NewValue      string    `json:"newValue"`
}

// ExportRows flattens matching entries into one row per field change.
func (s *AuditService) ExportRows(ctx context.Context, query *repository.ListQuery) ([]AuditExportRow, error) {
	logs, err := s.repo.FindAll(ctx, query)
	if err != nil {
		return nil, err
	}
	rows := []AuditExportRow{}
	for _, l := range logs {
		for _, ch := range l.Changes {
			rows = append(rows, AuditExportRow{
				Date:          l.CreatedAt,
				TradingCode:   l.TradingCode,
				Action:        l.Action,
				EditedBy:      l.EditedBy,
				EditedByEmail: l.EditedByEmail,
				Field:         ch.FieldLabel,
				OldValue:      ch.OldValue,
				NewValue:      ch.NewValue,
			})
		}
	}
	return rows, nil
}

// Delete purges one entry.
func (s *AuditService) Delete(ctx context.Context, id uint) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
