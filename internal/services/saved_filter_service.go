package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sjperalta/crm-api/internal/filter"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/sjperalta/crm-api/internal/repository"
	"gorm.io/gorm"
)

const defaultFilterCreator = "System"

// SavedFilterService manages named filter templates
type SavedFilterService struct {
	repo repository.SavedFilterRepository
}

// NewSavedFilterService creates a new saved filter service
func NewSavedFilterService(repo repository.SavedFilterRepository) *SavedFilterService {
	return &SavedFilterService{repo: repo}
}

// SavedFilterInput is the writable part of a saved filter. Nil pointers leave
// the stored value unchanged on update.
type SavedFilterInput struct {
	Name             *string                  `json:"name"`
	Description      *string                  `json:"description"`
	FilterConditions []models.FilterCondition `json:"filterConditions"`
	CreatedBy        *string                  `json:"createdBy"`
	IsPublic         *bool                    `json:"isPublic"`
}

// List returns all filters, most used first.
func (s *SavedFilterService) List(ctx context.Context) ([]models.SavedFilter, error) {
	filters, err := s.repo.List(ctx)
	if filters == nil {
		filters = []models.SavedFilter{}
	}
	return filters, err
}

func (s *SavedFilterService) find(ctx context.Context, id uint) (*models.SavedFilter, error) {
	f, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return f, err
}

// Load returns a filter and counts the load as a use.
func (s *SavedFilterService) Load(ctx context.Context, id uint) (*models.SavedFilter, error) {
	if err := s.repo.IncrementUsage(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.find(ctx, id)
}

// Use counts one application of a filter.
func (s *SavedFilterService) Use(ctx context.Context, id uint) (*models.SavedFilter, error) {
	return s.Load(ctx, id)
}

// Create validates and stores a new filter. Names are unique after trimming.
func (s *SavedFilterService) Create(ctx context.Context, in SavedFilterInput) (*models.SavedFilter, error) {
	name := ""
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	if name == "" || len(in.FilterConditions) == 0 {
		return nil, invalid("Name and filter conditions are required")
	}
	if err := validateConditions(in.FilterConditions); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, name, 0); err != nil {
		return nil, err
	}

	f := &models.SavedFilter{
		Name:             name,
		FilterConditions: in.FilterConditions,
		CreatedBy:        defaultFilterCreator,
		IsPublic:         true,
	}
	if in.Description != nil {
		f.Description = *in.Description
	}
	if in.CreatedBy != nil && strings.TrimSpace(*in.CreatedBy) != "" {
		f.CreatedBy = strings.TrimSpace(*in.CreatedBy)
	}
	if in.IsPublic != nil {
		f.IsPublic = *in.IsPublic
	}

	if err := s.repo.Create(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, conflict("A filter with this name already exists")
		}
		return nil, err
	}
	return f, nil
}

// Update changes the provided attributes of a filter.
func (s *SavedFilterService) Update(ctx context.Context, id uint, in SavedFilterInput) (*models.SavedFilter, error) {
	f, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalid("Name cannot be empty")
		}
		if name != f.Name {
			if err := s.ensureNameFree(ctx, name, id); err != nil {
				return nil, err
			}
		}
		f.Name = name
	}
	if in.Description != nil {
		f.Description = *in.Description
	}
	if in.FilterConditions != nil {
		if len(in.FilterConditions) == 0 {
			return nil, invalid("Filter conditions cannot be empty")
		}
		if err := validateConditions(in.FilterConditions); err != nil {
			return nil, err
		}
		f.FilterConditions = in.FilterConditions
	}
	if in.IsPublic != nil {
		f.IsPublic = *in.IsPublic
	}

	if err := s.repo.Update(ctx, f); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, conflict("A filter with this name already exists")
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a filter.
func (s *SavedFilterService) Delete(ctx context.Context, id uint) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *SavedFilterService) ensureNameFree(ctx context.Context, name string, selfID uint) error {
	existing, err := s.repo.FindByName(ctx, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return conflict("A filter with this name already exists")
	}
	return nil
}

// validateConditions rejects templates that would fail when applied.
func validateConditions(conds []models.FilterCondition) error {
	if _, err := filter.Compile(conds, time.Now()); err != nil {
		return invalid("%s", err.Error())
	}
	return nil
}
