package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/crm-api/internal/services"
)

type CleanupHandler struct {
	cleanupService *services.CleanupService
}

func NewCleanupHandler(cleanupService *services.CleanupService) *CleanupHandler {
	return &CleanupHandler{cleanupService: cleanupService}
}

// @Summary Storage Statistics
// @Description File counts and sizes of temp uploads and duplicate reports
// @Tags Cleanup
// @Produce json
// @Success 200 {object} services.StorageStats
// @Security BearerAuth
// @Router /cleanup/stats [get]
func (h *CleanupHandler) Stats(c *gin.Context) {
	stats, err := h.cleanupService.Stats()
	if err != nil {
		respondError(c, err, "Storage not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

type manualCleanupRequest struct {
	MaxAgeHours *float64 `json:"maxAgeHours"`
}

// @Summary Manual Cleanup
// @Description Removes temp uploads older than maxAgeHours (default 1)
// @Tags Cleanup
// @Accept json
// @Produce json
// @Param request body manualCleanupRequest false "Age threshold"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /cleanup/manual [post]
func (h *CleanupHandler) Manual(c *gin.Context) {
	var req manualCleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	maxAge := 1.0
	if req.MaxAgeHours != nil {
		maxAge = *req.MaxAgeHours
	}
	res, err := h.cleanupService.Manual(maxAge)
	if err != nil {
		respondError(c, err, "Storage not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Cleanup completed", "result": res})
}

// @Summary Force Cleanup
// @Description Removes every temp upload regardless of age
// @Tags Cleanup
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /cleanup/force [post]
func (h *CleanupHandler) Force(c *gin.Context) {
	res, err := h.cleanupService.Force()
	if err != nil {
		respondError(c, err, "Storage not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "All temp files removed", "result": res})
}
