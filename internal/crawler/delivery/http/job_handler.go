package http

import (
	"errors"
	"net/http"

	"astock-crawler/internal/crawler/dto"
	"astock-crawler/internal/crawler/service"
	"astock-crawler/pkg/logger"

	"github.com/labstack/echo/v4"
)

// JobHandler handles HTTP requests for scheduled jobs.
type JobHandler struct {
	scheduler service.SchedulerService
	logger    *logger.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(scheduler service.SchedulerService, logger *logger.Logger) *JobHandler {
	return &JobHandler{scheduler: scheduler, logger: logger}
}

// RegisterRoutes registers the job routes to the Echo group.
func (h *JobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetAllJobs)
	g.POST("/:id/run", h.RunJob)
	g.DELETE("/:id", h.RemoveJob)
}

// GetAllJobs lists the registered jobs with their schedules and last
// outcomes.
func (h *JobHandler) GetAllJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.JobStatuses())
}

// RunJob fires a job immediately. The run happens in the background; the
// response only acknowledges the trigger.
func (h *JobHandler) RunJob(c echo.Context) error {
	jobID := c.Param("id")
	if err := h.scheduler.TriggerJob(c.Request().Context(), jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	}
	h.logger.Info("Job triggered via API", logger.StringField("job", jobID))
	return c.JSON(http.StatusAccepted, echo.Map{"status": "triggered", "job": jobID})
}

// RemoveJob unschedules a job.
func (h *JobHandler) RemoveJob(c echo.Context) error {
	jobID := c.Param("id")
	if err := h.scheduler.RemoveJob(jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "removed", "job": jobID})
}
