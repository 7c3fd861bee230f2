package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/crm-api/internal/services"
)

type JobHandler struct {
	jobService *services.JobService
}

func NewJobHandler(jobSvc *services.JobService) *JobHandler {
	return &JobHandler{jobService: jobSvc}
}

// @Summary Background Job Status
// @Description Worker statistics (active, completed and failed jobs, queue length), uploads in progress and whether the worker is saturated
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.WorkerStatus
// @Router /jobs/status [get]
func (h *JobHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobService.GetStatus())
}
