package repository

import (
	"context"

	"github.com/sjperalta/crm-api/internal/models"
	"gorm.io/gorm"
)

// SavedFilterRepository defines the interface for saved filter data access
type SavedFilterRepository interface {
	FindByID(ctx context.Context, id uint) (*models.SavedFilter, error)
	FindByName(ctx context.Context, name string) (*models.SavedFilter, error)
	List(ctx context.Context) ([]models.SavedFilter, error)
	Create(ctx context.Context, f *models.SavedFilter) error
	Update(ctx context.Context, f *models.SavedFilter) error
	Delete(ctx context.Context, id uint) error
	IncrementUsage(ctx context.Context, id uint) error
}

type savedFilterRepository struct {
	db *gorm.DB
}

// NewSavedFilterRepository creates a new saved filter repository
func NewSavedFilterRepository(db *gorm.DB) SavedFilterRepository {
	return &savedFilterRepository{db: db}
}

func (r *savedFilterRepository) FindByID(ctx context.Context, id uint) (*models.SavedFilter, error) {
	var f models.SavedFilter
	if err := r.db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *savedFilterRepository) FindByName(ctx context.Context, name string) (*models.SavedFilter, error) {
	var f models.SavedFilter
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// List returns filters ordered by popularity, newest first among equals.
func (r *savedFilterRepository) List(ctx context.Context) ([]models.SavedFilter, error) {
	var filters []models.SavedFilter
	err := r.db.WithContext(ctx).
		Order("usage_count DESC").
		Order("created_at DESC").
		Order("id DESC").
		Find(&filters).Error
	return filters, err
}

func (r *savedFilterRepository) Create(ctx context.Context, f *models.SavedFilter) error {
	return translate(r.db.WithContext(ctx).Create(f).Error)
}

func (r *savedFilterRepository) Update(ctx context.Context, f *models.SavedFilter) error {
	return translate(r.db.WithContext(ctx).Save(f).Error)
}

func (r *savedFilterRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.SavedFilter{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *savedFilterRepository) IncrementUsage(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.SavedFilter{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
