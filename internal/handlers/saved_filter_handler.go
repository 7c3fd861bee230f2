package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/crm-api/internal/services"
)

const savedFilterNotFound = "Saved filter not found"

type SavedFilterHandler struct {
	savedFilterService *services.SavedFilterService
}

func NewSavedFilterHandler(savedFilterService *services.SavedFilterService) *SavedFilterHandler {
	return &SavedFilterHandler{savedFilterService: savedFilterService}
}

// @Summary List Saved Filters
// @Description All saved filters, most used first
// @Tags Saved Filters
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /saved-filters [get]
func (h *SavedFilterHandler) Index(c *gin.Context) {
	filters, err := h.savedFilterService.List(c.Request.Context())
	if err != nil {
		respondError(c, err, savedFilterNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(filters), "filters": filters})
}

// @Summary Get Saved Filter
// @Description Loads a saved filter and counts the load as a use
// @Tags Saved Filters
// @Produce json
// @Param id path int true "Saved filter ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /saved-filters/{id} [get]
func (h *SavedFilterHandler) Show(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	f, err := h.savedFilterService.Load(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, savedFilterNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "filter": f})
}

// @Summary Create Saved Filter
// @Tags Saved Filters
// @Accept json
// @Produce json
// @Param request body services.SavedFilterInput true "Filter template"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /saved-filters [post]
func (h *SavedFilterHandler) Create(c *gin.Context) {
	var in services.SavedFilterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and filter conditions are required"})
		return
	}
	f, err := h.savedFilterService.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, savedFilterNotFound)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Filter saved successfully", "filter": f})
}

// @Summary Update Saved Filter
// @Tags Saved Filters
// @Accept json
// @Produce json
// @Param id path int true "Saved filter ID"
// @Param request body services.SavedFilterInput true "Attributes to change"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /saved-filters/{id} [put]
func (h *SavedFilterHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var in services.SavedFilterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	f, err := h.savedFilterService.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err, savedFilterNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Filter updated successfully", "filter": f})
}

// @Summary Delete Saved Filter
// @Tags Saved Filters
// @Produce json
// @Param id path int true "Saved filter ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /saved-filters/{id} [delete]
func (h *SavedFilterHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.savedFilterService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, savedFilterNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Filter deleted successfully"})
}

// @Summary Record Saved Filter Use
// @Tags Saved Filters
// @Produce json
// @Param id path int true "Saved filter ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /saved-filters/{id}/use [post]
func (h *SavedFilterHandler) Use(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	f, err := h.savedFilterService.Use(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, savedFilterNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "usageCount": f.UsageCount})
}
