package repository

import (
	"context"
	"time"

	"github.com/sjperalta/crm-api/internal/models"
	"gorm.io/gorm"
)

// AuditRepository defines the interface for audit log data access
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	FindByID(ctx context.Context, id uint) (*models.AuditLog, error)
	List(ctx context.Context, query *ListQuery) ([]models.AuditLog, int64, error)
	FindAll(ctx context.Context, query *ListQuery) ([]models.AuditLog, error)
	Editors(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, from, to *time.Time) (*models.AuditStats, error)
	Delete(ctx context.Context, id uint) error
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) FindByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	var entry models.AuditLog
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// scope applies the audit filters. Supported keys: client_id, trading_code
// (exact), trading_code_like, edited_by, action, start_date, end_date.
func (r *auditRepository) scope(ctx context.Context, query *ListQuery) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&models.AuditLog{})
	f := query.Filters

	if v := f["client_id"]; v != "" {
		db = db.Where("client_id = ?", v)
	}
	if v := f["trading_code"]; v != "" {
		db = db.Where("trading_code = ?", v)
	}
	if v := f["trading_code_like"]; v != "" {
		db = db.Where(`LOWER(trading_code) LIKE ? ESCAPE '\'`, likePattern(v))
	}
	if v := f["edited_by"]; v != "" {
		db = db.Where("edited_by = ?", v)
	}
	if v := f["action"]; v != "" {
		db = db.Where("action = ?", v)
	}
	if v, ok := ParseTime(f["start_date"]); ok {
		db = db.Where("created_at >= ?", v)
	}
	if v, ok := ParseTime(f["end_date"]); ok {
		db = db.Where("created_at <= ?", v)
	}

	if query.Search != "" {
		p := likePattern(query.Search)
		db = db.Where(`(LOWER(trading_code) LIKE ? ESCAPE '\' OR LOWER(edited_by) LIKE ? ESCAPE '\' OR LOWER(edited_by_email) LIKE ? ESCAPE '\')`, p, p, p)
	}
	return db
}

func (r *auditRepository) List(ctx context.Context, query *ListQuery) ([]models.AuditLog, int64, error) {
	db := r.scope(ctx, query)

	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.AuditLog
	err := db.Order("created_at DESC").Order("id DESC").
		Offset(query.Offset()).
		Limit(query.PerPage).
		Find(&logs).Error
	return logs, total, err
}

func (r *auditRepository) FindAll(ctx context.Context, query *ListQuery) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := r.scope(ctx, query).Order("created_at DESC").Order("id DESC").Find(&logs).Error
	return logs, err
}

func (r *auditRepository) Editors(ctx context.Context) ([]string, error) {
	var editors []string
	err := r.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Distinct("edited_by").
		Order("edited_by").
		Pluck("edited_by", &editors).Error
	return editors, err
}

func (r *auditRepository) Stats(ctx context.Context, from, to *time.Time) (*models.AuditStats, error) {
	base := func() *gorm.DB {
		db := r.db.WithContext(ctx).Model(&models.AuditLog{})
		if from != nil {
			db = db.Where("created_at >= ?", *from)
		}
		if to != nil {
			db = db.Where("created_at <= ?", *to)
		}
		return db
	}

	stats := &models.AuditStats{ActionCounts: map[string]int64{}}
	if err := base().Count(&stats.TotalLogs).Error; err != nil {
		return nil, err
	}

	var actions []struct {
		Action string
		Count  int64
	}
	if err := base().Select("action, COUNT(*) AS count").Group("action").Scan(&actions).Error; err != nil {
		return nil, err
	}
	for _, a := range actions {
		stats.ActionCounts[a.Action] = a.Count
	}

	if err := base().
		Select("edited_by, COUNT(*) AS count").
		Group("edited_by").
		Order("count DESC").
		Limit(10).
		Scan(&stats.TopEditors).Error; err != nil {
		return nil, err
	}

	day := "TO_CHAR(created_at, 'YYYY-MM-DD')"
	if r.db.Dialector.Name() == "sqlite" {
		day = "strftime('%Y-%m-%d', created_at)"
	}
	if err := base().
		Select(day + " AS date, COUNT(*) AS count").
		Group(day).
		Order("date DESC").
		Limit(30).
		Scan(&stats.RecentActivity).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *auditRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.AuditLog{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ParseTime accepts RFC 3339 timestamps and plain dates.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
