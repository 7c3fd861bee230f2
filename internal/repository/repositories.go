package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sjperalta/crm-api/internal/filter"
	"gorm.io/gorm"
)

// ErrDuplicateKey is returned when a unique constraint rejects a write.
var ErrDuplicateKey = errors.New("duplicate key")

// Repositories holds all repository instances
type Repositories struct {
	Client      ClientRepository
	Audit       AuditRepository
	SavedFilter SavedFilterRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Client:      NewClientRepository(db),
		Audit:       NewAuditRepository(db),
		SavedFilter: NewSavedFilterRepository(db),
	}
}

// ListQuery represents common query parameters
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
	SortBy  string
	SortDir string
	Filters map[string]string
}

// NewListQuery creates a ListQuery with defaults
func NewListQuery() *ListQuery {
	return &ListQuery{
		Page:    1,
		PerPage: 50,
		Filters: make(map[string]string),
	}
}

// Offset returns the row offset for the current page.
func (q *ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PerPage
}

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translate maps driver errors onto repository errors.
func translate(err error) error {
	if isDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return err
}

// likePattern builds a case-insensitive contains pattern for LOWER(col) LIKE ?.
func likePattern(s string) string {
	return "%" + filter.EscapeLike(strings.ToLower(strings.TrimSpace(s))) + "%"
}
