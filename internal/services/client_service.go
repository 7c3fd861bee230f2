package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sjperalta/crm-api/internal/columns"
	"github.com/sjperalta/crm-api/internal/filter"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/pkg/logger"
	"gorm.io/gorm"
)

// recentUploadWindow is the period counted as "recent" in client stats.
const recentUploadWindow = 24 * time.Hour

// ClientService handles client records and their audit trail
type ClientService struct {
	repo  repository.ClientRepository
	audit *AuditService
	now   func() time.Time
}

// NewClientService creates a new client service
func NewClientService(repo repository.ClientRepository, audit *AuditService) *ClientService {
	return &ClientService{repo: repo, audit: audit, now: time.Now}
}

// ClientListParams selects a page of clients.
type ClientListParams struct {
	Page    int
	Limit   int
	Search  string
	Filters []models.FilterCondition
}

// ClientPage is one page of a client listing. Query is the compiled filter in
// readable form, empty when no filter applied.
type ClientPage struct {
	Clients        []models.Client `json:"clients"`
	TotalPages     int             `json:"totalPages"`
	CurrentPage    int             `json:"currentPage"`
	TotalRecords   int64           `json:"totalRecords"`
	Limit          int             `json:"limit"`
	AppliedFilters int             `json:"appliedFilters"`
	Query          string          `json:"query"`
}

func (s *ClientService) clientQuery(params ClientListParams) (*repository.ClientQuery, error) {
	where, err := filter.Compile(params.Filters, s.now())
	if err != nil {
		return nil, invalid("%s", err.Error())
	}
	return &repository.ClientQuery{
		Page:   max(params.Page, 1),
		Limit:  ClampLimit(params.Limit, DefaultClientPageSize),
		Search: strings.TrimSpace(params.Search),
		Where:  where,
	}, nil
}

// List returns a page of clients matching the search text and filter
// conditions, newest upload first.
func (s *ClientService) List(ctx context.Context, params ClientListParams) (*ClientPage, error) {
	q, err := s.clientQuery(params)
	if err != nil {
		return nil, err
	}

	clients, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if clients == nil {
		clients = []models.Client{}
	}

	page := &ClientPage{
		Clients:        clients,
		TotalPages:     TotalPages(total, q.Limit),
		CurrentPage:    q.Page,
		TotalRecords:   total,
		Limit:          q.Limit,
		AppliedFilters: len(params.Filters),
	}
	if q.Where != nil {
		page.Query = q.Where.String()
	}
	return page, nil
}

// IDs returns the ids of every client matching the search and filters.
func (s *ClientService) IDs(ctx context.Context, search string, filters []models.FilterCondition) ([]uint, error) {
	q, err := s.clientQuery(ClientListParams{Search: search, Filters: filters})
	if err != nil {
		return nil, err
	}
	ids, err := s.repo.ListIDs(ctx, q)
	if ids == nil {
		ids = []uint{}
	}
	return ids, err
}

// ExportRows returns every matching client for export.
func (s *ClientService) ExportRows(ctx context.Context, search string, filters []models.FilterCondition) ([]models.Client, error) {
	q, err := s.clientQuery(ClientListParams{Search: search, Filters: filters})
	if err != nil {
		return nil, err
	}
	clients, err := s.repo.FindAll(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, ErrNotFound
	}
	return clients, nil
}

func (s *ClientService) FindByID(ctx context.Context, id uint) (*models.Client, error) {
	client, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return client, err
}

// Create stores one client from a field map and audits it as CREATE.
func (s *ClientService) Create(ctx context.Context, input map[string]interface{}, uploadedBy *uint, actor models.Actor) (*models.Client, error) {
	values := normalizeFields(input)
	code := values[columns.KeyField]
	if code == "" {
		return nil, invalid("Trading Code is required")
	}

	if _, err := s.repo.FindByTradingCode(ctx, code); err == nil {
		return nil, conflict("Trading Code %s already exists", code)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	nonEmpty := make(map[string]string, len(values))
	for k, v := range values {
		if v != "" {
			nonEmpty[k] = v
		}
	}
	client := models.NewClient(nonEmpty, uploadedBy, s.now())
	if err := s.repo.Create(ctx, client); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, conflict("Trading Code %s already exists", code)
		}
		return nil, err
	}

	s.audit.RecordChanges(ctx, client.ID, client.TradingCode, models.AuditActionCreate, map[string]string{}, client.Values(), actor)
	logger.Info("Client created", slog.Uint64("client_id", uint64(client.ID)), slog.String("trading_code", client.TradingCode))
	return client, nil
}

// Update applies the given fields and audits the fields that actually changed.
// Keys outside the field registry are ignored. It returns the refreshed client
// and the number of changed fields.
func (s *ClientService) Update(ctx context.Context, id uint, input map[string]interface{}, actor models.Actor) (*models.Client, int, error) {
	client, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	updates := normalizeFields(input)
	if code, ok := updates[columns.KeyField]; ok {
		if code == "" {
			return nil, 0, invalid("Trading Code cannot be empty")
		}
		if code != client.TradingCode {
			if _, err := s.repo.FindByTradingCode(ctx, code); err == nil {
				return nil, 0, conflict("Trading Code %s already exists", code)
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, 0, err
			}
		}
	}

	before := client.Values()
	columnsToWrite := make(map[string]interface{}, len(updates)+1)
	for key, value := range updates {
		info, _ := models.LookupField(key)
		columnsToWrite[info.Column] = value
	}
	columnsToWrite["last_modified"] = s.now()

	if err := s.repo.Update(ctx, id, columnsToWrite); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, 0, conflict("Trading Code %s already exists", updates[columns.KeyField])
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}

	tradingCode := client.TradingCode
	if code, ok := updates[columns.KeyField]; ok {
		tradingCode = code
	}
	changed := len(DiffFields(before, updates))
	s.audit.RecordChanges(ctx, client.ID, tradingCode, models.AuditActionUpdate, before, updates, actor)

	updated, err := s.FindByID(ctx, id)
	return updated, changed, err
}

// SetReadStatus toggles the read flag without auditing.
func (s *ClientService) SetReadStatus(ctx context.Context, id uint, isRead bool) (*models.Client, error) {
	if err := s.repo.SetRead(ctx, id, isRead); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// Delete removes one client and audits its last values as DELETE.
func (s *ClientService) Delete(ctx context.Context, id uint, actor models.Actor) error {
	client, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	before := client.Values()
	after := make(map[string]string, len(before))
	for k := range before {
		after[k] = ""
	}
	s.audit.RecordChanges(ctx, client.ID, client.TradingCode, models.AuditActionDelete, before, after, actor)
	return nil
}

// DeleteMany removes clients by id and returns how many existed.
func (s *ClientService) DeleteMany(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, invalid("No client IDs provided")
	}
	n, err := s.repo.DeleteMany(ctx, ids)
	if err == nil {
		logger.Info("Clients deleted", slog.Int64("count", n))
	}
	return n, err
}

// DeleteAll empties the client table.
func (s *ClientService) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err == nil {
		logger.Warn("All clients deleted", slog.Int64("count", n))
	}
	return n, err
}

// Stats summarises the client table.
func (s *ClientService) Stats(ctx context.Context) (*models.ClientStats, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.CountUploadedSince(ctx, s.now().Add(-recentUploadWindow))
	if err != nil {
		return nil, err
	}
	return &models.ClientStats{
		TotalClients:  total,
		RecentUploads: recent,
		TotalColumns:  len(models.ClientFields()),
	}, nil
}

// normalizeFields keeps registry keys and renders their values as trimmed strings.
func normalizeFields(input map[string]interface{}) map[string]string {
	out := make(map[string]string, len(input))
	for key, raw := range input {
		if _, ok := models.LookupField(key); !ok {
			continue
		}
		out[key] = strings.TrimSpace(stringify(raw))
	}
	return out
}

// stringify renders a decoded JSON value as text. Objects and arrays keep
// their JSON form.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
