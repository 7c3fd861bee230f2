package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sjperalta/crm-api/internal/filter"
	"github.com/sjperalta/crm-api/internal/models"
	"gorm.io/gorm"
)

// lookupChunk bounds the IN list of a single existence query.
const lookupChunk = 1000

var searchColumns = []string{"name", "email_id", "trading_code", "mobile_no", "city", "owner", "state"}

// ClientQuery selects clients for listing, id collection and export.
type ClientQuery struct {
	Page   int
	Limit  int
	Search string
	Where  filter.Expr
}

// ClientRepository defines the interface for client data access
type ClientRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Client, error)
	FindByTradingCode(ctx context.Context, code string) (*models.Client, error)
	ExistingTradingCodes(ctx context.Context, codes []string) (map[string]bool, error)
	Create(ctx context.Context, client *models.Client) error
	CreateBatch(ctx context.Context, clients []*models.Client) error
	UpdateByTradingCode(ctx context.Context, code string, fields map[string]interface{}) error
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	SetRead(ctx context.Context, id uint, isRead bool) error
	Delete(ctx context.Context, id uint) error
	DeleteMany(ctx context.Context, ids []uint) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	List(ctx context.Context, q *ClientQuery) ([]models.Client, int64, error)
	ListIDs(ctx context.Context, q *ClientQuery) ([]uint, error)
	FindAll(ctx context.Context, q *ClientQuery) ([]models.Client, error)
	Count(ctx context.Context) (int64, error)
	CountUploadedSince(ctx context.Context, since time.Time) (int64, error)
}

type clientRepository struct {
	db *gorm.DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *gorm.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) FindByID(ctx context.Context, id uint) (*models.Client, error) {
	var client models.Client
	if err := r.db.WithContext(ctx).First(&client, id).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *clientRepository) FindByTradingCode(ctx context.Context, code string) (*models.Client, error) {
	var client models.Client
	err := r.db.WithContext(ctx).
		Where("trading_code = ?", code).
		First(&client).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

// ExistingTradingCodes returns the subset of codes already stored.
func (r *clientRepository) ExistingTradingCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(codes))
	for start := 0; start < len(codes); start += lookupChunk {
		end := min(start+lookupChunk, len(codes))
		var found []string
		err := r.db.WithContext(ctx).
			Model(&models.Client{}).
			Where("trading_code IN ?", codes[start:end]).
			Pluck("trading_code", &found).Error
		if err != nil {
			return nil, err
		}
		for _, c := range found {
			existing[c] = true
		}
	}
	return existing, nil
}

func (r *clientRepository) Create(ctx context.Context, client *models.Client) error {
	return translate(r.db.WithContext(ctx).Create(client).Error)
}

// CreateBatch inserts all clients in one statement; it succeeds or fails as a whole.
func (r *clientRepository) CreateBatch(ctx context.Context, clients []*models.Client) error {
	if len(clients) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&clients).Error)
}

// UpdateByTradingCode writes the given columns of one client.
func (r *clientRepository) UpdateByTradingCode(ctx context.Context, code string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&models.Client{}).
		Where("trading_code = ?", code).
		Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *clientRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&models.Client{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *clientRepository) SetRead(ctx context.Context, id uint, isRead bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Client{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_read": isRead, "last_modified": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *clientRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Client{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *clientRepository) DeleteMany(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Client{})
	return res.RowsAffected, res.Error
}

func (r *clientRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Client{})
	return res.RowsAffected, res.Error
}

// scope applies free-text search and the compiled filter. Search and filter
// combine with AND.
func (r *clientRepository) scope(ctx context.Context, q *ClientQuery) (*gorm.DB, error) {
	db := r.db.WithContext(ctx).Model(&models.Client{})

	if s := strings.TrimSpace(q.Search); s != "" {
		pattern := likePattern(s)
		clauses := make([]string, len(searchColumns))
		args := make([]interface{}, len(searchColumns))
		for i, col := range searchColumns {
			clauses[i] = fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, col)
			args[i] = pattern
		}
		db = db.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	if q.Where != nil {
		pred, err := filter.ToSQL(q.Where, r.db.Dialector.Name())
		if err != nil {
			return nil, err
		}
		sql, args, err := pred.ToSql()
		if err != nil {
			return nil, err
		}
		db = db.Where(sql, args...)
	}
	return db, nil
}

func (r *clientRepository) List(ctx context.Context, q *ClientQuery) ([]models.Client, int64, error) {
	db, err := r.scope(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(q.Page, 1)
	var clients []models.Client
	err = db.Order("uploaded_at DESC").Order("id DESC").
		Offset((page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&clients).Error
	return clients, total, err
}

func (r *clientRepository) ListIDs(ctx context.Context, q *ClientQuery) ([]uint, error) {
	db, err := r.scope(ctx, q)
	if err != nil {
		return nil, err
	}
	var ids []uint
	err = db.Order("uploaded_at DESC").Order("id DESC").Pluck("id", &ids).Error
	return ids, err
}

func (r *clientRepository) FindAll(ctx context.Context, q *ClientQuery) ([]models.Client, error) {
	db, err := r.scope(ctx, q)
	if err != nil {
		return nil, err
	}
	var clients []models.Client
	err = db.Order("uploaded_at DESC").Order("id DESC").Find(&clients).Error
	return clients, err
}

func (r *clientRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Client{}).Count(&total).Error
	return total, err
}

func (r *clientRepository) CountUploadedSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Client{}).
		Where("uploaded_at >= ?", since).
		Count(&total).Error
	return total, err
}
