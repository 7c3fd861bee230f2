package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	ping func() error
}

func NewHealthHandler(ping func() error) *HealthHandler {
	return &HealthHandler{ping: ping}
}

// @Summary Health Check
// @Description Checks if the API and its database are reachable
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Index(c *gin.Context) {
	status, database := http.StatusOK, "ok"
	if h.ping != nil {
		if err := h.ping(); err != nil {
			status, database = http.StatusServiceUnavailable, "unreachable"
		}
	}
	c.JSON(status, gin.H{
		"status":   http.StatusText(status),
		"service":  "crm-api",
		"version":  "1.0.0",
		"database": database,
	})
}
