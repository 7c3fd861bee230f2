package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/crm-api/internal/middleware"
	"github.com/sjperalta/crm-api/internal/models"
	"github.com/sjperalta/crm-api/internal/services"
)

const clientNotFound = "Client not found"

type ClientHandler struct {
	clientService *services.ClientService
	exportService *services.ExportService
}

func NewClientHandler(clientService *services.ClientService, exportService *services.ExportService) *ClientHandler {
	return &ClientHandler{clientService: clientService, exportService: exportService}
}

// parseFilters decodes the JSON-encoded "filters" query parameter.
func parseFilters(c *gin.Context) ([]models.FilterCondition, bool) {
	raw := strings.TrimSpace(c.Query("filters"))
	if raw == "" {
		return nil, true
	}
	var conds []models.FilterCondition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filters format"})
		return nil, false
	}
	return conds, true
}

// @Summary List Clients
// @Description Paginated client listing with free-text search and dynamic filter conditions
// @Tags Clients
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(100)
// @Param search query string false "Search over name, trading code, e-mail, mobile, owner, city and state"
// @Param filters query string false "JSON array of filter conditions"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /clients [get]
func (h *ClientHandler) Index(c *gin.Context) {
	filters, ok := parseFilters(c)
	if !ok {
		return
	}

	page, err := h.clientService.List(c.Request.Context(), services.ClientListParams{
		Page:    queryInt(c, "page", 1),
		Limit:   queryInt(c, "limit", services.DefaultClientPageSize),
		Search:  c.Query("search"),
		Filters: filters,
	})
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Clients fetched successfully",
		"clients":        page.Clients,
		"totalPages":     page.TotalPages,
		"currentPage":    page.CurrentPage,
		"totalRecords":   page.TotalRecords,
		"limit":          page.Limit,
		"appliedFilters": page.AppliedFilters,
		"query":          page.Query,
	})
}

// @Summary List Client IDs
// @Description Ids of every client matching the search and filters, for bulk operations
// @Tags Clients
// @Produce json
// @Param search query string false "Search text"
// @Param filters query string false "JSON array of filter conditions"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /clients/ids [get]
func (h *ClientHandler) IDs(c *gin.Context) {
	filters, ok := parseFilters(c)
	if !ok {
		return
	}
	ids, err := h.clientService.IDs(c.Request.Context(), c.Query("search"), filters)
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Client IDs fetched successfully",
		"ids":     ids,
		"count":   len(ids),
	})
}

// @Summary Client Statistics
// @Tags Clients
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /clients/stats [get]
func (h *ClientHandler) Stats(c *gin.Context) {
	stats, err := h.clientService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Statistics fetched successfully", "stats": stats})
}

// @Summary Export Clients
// @Description Downloads matching clients as CSV (primary header spellings) or XLSX
// @Tags Clients
// @Produce application/octet-stream
// @Param format query string false "csv or xlsx" default(csv)
// @Param search query string false "Search text"
// @Param filters query string false "JSON array of filter conditions"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /clients/export [get]
func (h *ClientHandler) Export(c *gin.Context) {
	filters, ok := parseFilters(c)
	if !ok {
		return
	}
	clients, err := h.clientService.ExportRows(c.Request.Context(), c.Query("search"), filters)
	if err != nil {
		respondError(c, err, "No clients found to export")
		return
	}
	file, err := h.exportService.Clients(clients, c.DefaultQuery("format", services.FormatCSV))
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	sendFile(c, file)
}

// @Summary Create Client
// @Description Creates one client; the trading code must be unique
// @Tags Clients
// @Accept json
// @Produce json
// @Param request body map[string]interface{} true "Client fields keyed by field name"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /clients [post]
func (h *ClientHandler) Create(c *gin.Context) {
	var input map[string]interface{}
	if err := BindNestedOrFlat(c, "client", &input); err != nil || input == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	client, err := h.clientService.Create(c.Request.Context(), input, middleware.GetUploader(c), middleware.GetActor(c))
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Client created successfully", "client": client})
}

// @Summary Get Client
// @Tags Clients
// @Produce json
// @Param id path int true "Client ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /clients/{id} [get]
func (h *ClientHandler) Show(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	client, err := h.clientService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Client fetched successfully", "client": client})
}

// @Summary Update Client
// @Description Updates the given fields and records the changed ones in the audit trail
// @Tags Clients
// @Accept json
// @Produce json
// @Param id path int true "Client ID"
// @Param request body map[string]interface{} true "Fields to change"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /clients/{id} [put]
func (h *ClientHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var input map[string]interface{}
	if err := BindNestedOrFlat(c, "client", &input); err != nil || input == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	client, changed, err := h.clientService.Update(c.Request.Context(), id, input, middleware.GetActor(c))
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":       "Client updated successfully",
		"client":        client,
		"changesLogged": changed,
	})
}

type readStatusRequest struct {
	IsRead *bool `json:"isRead"`
}

// @Summary Set Read Status
// @Tags Clients
// @Accept json
// @Produce json
// @Param id path int true "Client ID"
// @Param request body readStatusRequest true "Read flag"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /clients/{id}/read-status [patch]
func (h *ClientHandler) ToggleRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req readStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsRead == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "isRead is required"})
		return
	}
	client, err := h.clientService.SetReadStatus(c.Request.Context(), id, *req.IsRead)
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Read status updated successfully", "client": client})
}

// @Summary Delete Client
// @Tags Clients
// @Produce json
// @Param id path int true "Client ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /clients/{id} [delete]
func (h *ClientHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.clientService.Delete(c.Request.Context(), id, middleware.GetActor(c)); err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Client deleted successfully"})
}

type deleteManyRequest struct {
	IDs []uint `json:"ids"`
}

// @Summary Delete Clients
// @Tags Clients
// @Accept json
// @Produce json
// @Param request body deleteManyRequest true "Client IDs"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /clients/delete-multiple [post]
func (h *ClientHandler) DeleteMany(c *gin.Context) {
	var req deleteManyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No client IDs provided"})
		return
	}
	n, err := h.clientService.DeleteMany(c.Request.Context(), req.IDs)
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Clients deleted successfully", "deletedCount": n})
}

// @Summary Delete All Clients
// @Description Empties the client table (admin)
// @Tags Clients
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /clients/all/clear [delete]
func (h *ClientHandler) DeleteAll(c *gin.Context) {
	n, err := h.clientService.DeleteAll(c.Request.Context())
	if err != nil {
		respondError(c, err, clientNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All clients deleted successfully", "deletedCount": n})
}

func sendFile(c *gin.Context, file *services.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
