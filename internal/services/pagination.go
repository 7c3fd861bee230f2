package services

import (
	"strconv"

	"github.com/sjperalta/crm-api/internal/repository"
)

// Page size bounds shared by listing endpoints
const (
	DefaultPageSize       = 50
	DefaultClientPageSize = 100
	MaxPageSize           = 1000
)

// ClampLimit applies the default for non-positive limits and caps the rest.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// TotalPages returns the number of pages needed for total rows.
func TotalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

func pagedQuery(page, limit int) *repository.ListQuery {
	query := repository.NewListQuery()
	query.Page = max(page, 1)
	query.PerPage = ClampLimit(limit, DefaultPageSize)
	return query
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
