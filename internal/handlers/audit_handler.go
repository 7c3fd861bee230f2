package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/sjperalta/crm-api/internal/repository"
	"github.com/sjperalta/crm-api/internal/services"
)

const auditNotFound = "Audit log not found"

type AuditHandler struct {
	auditService  *services.AuditService
	exportService *services.ExportService
}

func NewAuditHandler(auditService *services.AuditService, exportService *services.ExportService) *AuditHandler {
	return &AuditHandler{auditService: auditService, exportService: exportService}
}

func pagination(total int64, page, limit int) gin.H {
	return gin.H{
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": services.TotalPages(total, limit),
	}
}

// auditQuery reads the shared audit filters from the query string.
func auditQuery(c *gin.Context) *repository.ListQuery {
	query := repository.NewListQuery()
	query.Page = max(queryInt(c, "page", 1), 1)
	query.PerPage = services.ClampLimit(queryInt(c, "limit", services.DefaultPageSize), services.DefaultPageSize)
	query.Search = strings.TrimSpace(c.Query("search"))
	query.Filters["client_id"] = c.Query("clientId")
	query.Filters["trading_code_like"] = c.Query("tradingCode")
	query.Filters["edited_by"] = c.Query("editedBy")
	query.Filters["action"] = strings.ToUpper(c.Query("action"))
	query.Filters["start_date"] = c.Query("startDate")
	query.Filters["end_date"] = c.Query("endDate")
	return query
}

// @Summary List Audit Logs
// @Description Paginated audit entries, newest first, with editor and action filter options
// @Tags Audit
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(50)
// @Param editedBy query string false "Exact editor name"
// @Param action query string false "CREATE, UPDATE or DELETE"
// @Param tradingCode query string false "Trading code substring"
// @Param startDate query string false "Start date (YYYY-MM-DD or RFC 3339)"
// @Param endDate query string false "End date (YYYY-MM-DD or RFC 3339)"
// @Param search query string false "Search trading code, editor name and e-mail"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audit-logs [get]
func (h *AuditHandler) Index(c *gin.Context) {
	query := auditQuery(c)
	logs, total, editors, err := h.auditService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err, auditNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":       nonNilLogs(logs),
		"pagination": pagination(total, query.Page, query.PerPage),
		"filterOptions": gin.H{
			"editors": editors,
			"actions": models.AuditActions,
		},
	})
}

// @Summary Client Audit History
// @Tags Audit
// @Produce json
// @Param clientId path int true "Client ID"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(50)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audit-logs/client/{clientId} [get]
func (h *AuditHandler) ByClient(c *gin.Context) {
	id, ok := paramID(c, "clientId")
	if !ok {
		return
	}
	page, limit := max(queryInt(c, "page", 1), 1), services.ClampLimit(queryInt(c, "limit", 0), services.DefaultPageSize)
	logs, total, err := h.auditService.ListByClient(c.Request.Context(), id, page, limit)
	if err != nil {
		respondError(c, err, auditNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": nonNilLogs(logs), "pagination": pagination(total, page, limit)})
}

// @Summary Trading Code Audit History
// @Description History of a trading code, including entries of deleted clients
// @Tags Audit
// @Produce json
// @Param tradingCode path string true "Trading code"
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(50)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audit-logs/trading-code/{tradingCode} [get]
func (h *AuditHandler) ByTradingCode(c *gin.Context) {
	code := c.Param("tradingCode")
	page, limit := max(queryInt(c, "page", 1), 1), services.ClampLimit(queryInt(c, "limit", 0), services.DefaultPageSize)
	logs, total, err := h.auditService.ListByTradingCode(c.Request.Context(), code, page, limit)
	if err != nil {
		respondError(c, err, auditNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": nonNilLogs(logs), "pagination": pagination(total, page, limit)})
}

// @Summary Audit Statistics
// @Description Totals by action, top editors and daily activity
// @Tags Audit
// @Produce json
// @Param startDate query string false "Start date"
// @Param endDate query string false "End date"
// @Success 200 {object} models.AuditStats
// @Security BearerAuth
// @Router /audit-logs/stats [get]
func (h *AuditHandler) Stats(c *gin.Context) {
	var from, to *time.Time
	if t, ok := repository.ParseTime(c.Query("startDate")); ok {
		from = &t
	}
	if t, ok := repository.ParseTime(c.Query("endDate")); ok {
		to = &t
	}
	stats, err := h.auditService.Stats(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err, auditNotFound)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// @Summary Export Audit Logs
// @Description One row per field change. format=json returns the rows inline; csv and xlsx download a file.
// @Tags Audit
// @Produce json
// @Produce application/octet-stream
// @Param format query string false "json, csv or xlsx" default(json)
// @Param clientId query int false "Client ID"
// @Param tradingCode query string false "Trading code substring"
// @Param startDate query string false "Start date"
// @Param endDate query string false "End date"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	rows, err := h.auditService.ExportRows(c.Request.Context(), auditQuery(c))
	if err != nil {
		respondError(c, err, auditNotFound)
		return
	}

	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format == "json" {
		c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
		return
	}
	file, err := h.exportService.AuditRows(rows, format)
	if err != nil {
		respondError(c, err, auditNotFound)
		return
	}
	sendFile(c, file)
}

// @Summary Delete Audit Log
// @Tags Audit
// @Produce json
// @Param id path int true "Audit log ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /audit-logs/{id} [delete]
func (h *AuditHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.auditService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, auditNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Audit log deleted successfully"})
}

func nonNilLogs(logs []models.AuditLog) []models.AuditLog {
	if logs == nil {
		return []models.AuditLog{}
	}
	return logs
}
