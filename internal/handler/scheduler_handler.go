package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-academic-api/internal/dto"
	"github.com/noah-isme/tc-academic-api/pkg/response"
)

type jobRunner interface {
	Status() []dto.JobStatus
	RunNow(ctx context.Context, name string) (dto.JobRun, error)
}

// SchedulerHandler lets administrators inspect and trigger batch jobs.
type SchedulerHandler struct {
	runner jobRunner
}

// NewSchedulerHandler constructs the handler.
func NewSchedulerHandler(runner jobRunner) *SchedulerHandler {
	return &SchedulerHandler{runner: runner}
}

// List godoc
// @Summary List scheduled jobs
// @Tags Scheduler
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /scheduler/jobs [get]
func (h *SchedulerHandler) List(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.runner.Status())
}

// Run godoc
// @Summary Run a job immediately
// @Tags Scheduler
// @Produce json
// @Param name path string true "Job name"
// @Success 200 {object} response.Envelope
// @Router /scheduler/jobs/{name}/run [post]
func (h *SchedulerHandler) Run(c *gin.Context) {
	run, err := h.runner.RunNow(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}
