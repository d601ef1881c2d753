package http

import (
	"errors"
	"net/http"
	"time"

	"astock-crawler/internal/crawler/dto"
	"astock-crawler/internal/crawler/repository"
	"astock-crawler/internal/crawler/service"
	"astock-crawler/pkg/logger"
	"astock-crawler/pkg/utils"

	"github.com/labstack/echo/v4"
)

// CrawlHandler handles HTTP requests for crawl operations and stored
// Dragon-Tiger data.
type CrawlHandler struct {
	crawlService    service.CrawlService
	dragonTigerRepo repository.DragonTigerRepository
	crawlRunRepo    repository.CrawlRunRepository
	logger          *logger.Logger
}

// NewCrawlHandler creates a new CrawlHandler.
func NewCrawlHandler(
	crawlService service.CrawlService,
	dragonTigerRepo repository.DragonTigerRepository,
	crawlRunRepo repository.CrawlRunRepository,
	logger *logger.Logger,
) *CrawlHandler {
	return &CrawlHandler{
		crawlService:    crawlService,
		dragonTigerRepo: dragonTigerRepo,
		crawlRunRepo:    crawlRunRepo,
		logger:          logger,
	}
}

// RegisterRoutes registers the crawl routes to the Echo group.
func (h *CrawlHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/crawler/dragon-tiger", h.TriggerCrawl)
	g.GET("/dragon-tiger", h.GetSummaryRange)
	g.GET("/dragon-tiger/stats", h.GetReasonStats)
	g.GET("/dragon-tiger/:date", h.GetSummaries)
	g.GET("/dragon-tiger/:date/:code", h.GetDetails)
	g.GET("/crawler/runs", h.GetRuns)
}

// TriggerCrawl starts a crawl cycle for the requested date (query parameter
// or body; empty means today) and waits for it to finish.
func (h *CrawlHandler) TriggerCrawl(c echo.Context) error {
	var req dto.TriggerCrawlRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request payload"})
	}
	if date := c.QueryParam("date"); date != "" {
		req.Date = date
	}
	if req.Date != "" {
		if _, err := time.Parse(utils.DateLayoutISO, req.Date); err != nil {
			return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "date must be YYYY-MM-DD"})
		}
	}

	result, err := h.crawlService.CrawlDragonTiger(c.Request().Context(), req.Date)
	if err != nil {
		h.logger.Error("Crawl trigger failed", logger.ErrorField(err))
		return c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// GetSummaries returns the stored board for one date.
func (h *CrawlHandler) GetSummaries(c echo.Context) error {
	date, err := parseDateParam(c.Param("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "date must be YYYY-MM-DD"})
	}

	summaries, err := h.dragonTigerRepo.FindSummariesByDate(c.Request().Context(), date)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, summaries)
}

// GetDetails returns the stored broker seats for one stock on one date.
func (h *CrawlHandler) GetDetails(c echo.Context) error {
	date, err := parseDateParam(c.Param("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "date must be YYYY-MM-DD"})
	}
	code := c.Param("code")

	details, err := h.dragonTigerRepo.FindDetailsByStock(c.Request().Context(), code, date)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, details)
}

// GetSummaryRange returns the stored board across an inclusive date range.
func (h *CrawlHandler) GetSummaryRange(c echo.Context) error {
	start, end, err := parseRangeParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	summaries, err := h.dragonTigerRepo.FindSummariesByDateRange(c.Request().Context(), start, end)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, summaries)
}

// GetReasonStats aggregates listing-reason counts across a date range.
func (h *CrawlHandler) GetReasonStats(c echo.Context) error {
	start, end, err := parseRangeParams(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	counts, err := h.dragonTigerRepo.CountByReason(c.Request().Context(), start, end)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, counts)
}

// GetRuns returns recent crawl-run history, optionally filtered by job name.
func (h *CrawlHandler) GetRuns(c echo.Context) error {
	runs, err := h.crawlRunRepo.FindRecent(c.Request().Context(), c.QueryParam("job"), 50)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, runs)
}

// parseDateParam accepts an ISO date path segment and returns the compact
// form the tables store.
func parseDateParam(value string) (string, error) {
	if _, err := time.Parse(utils.DateLayoutISO, value); err != nil {
		return "", err
	}
	return utils.CompactDate(value), nil
}

// parseRangeParams reads the start/end ISO query parameters and returns them
// in compact form.
func parseRangeParams(c echo.Context) (string, string, error) {
	start, err := parseDateParam(c.QueryParam("start"))
	if err != nil {
		return "", "", errors.New("start must be YYYY-MM-DD")
	}
	end, err := parseDateParam(c.QueryParam("end"))
	if err != nil {
		return "", "", errors.New("end must be YYYY-MM-DD")
	}
	if end < start {
		return "", "", errors.New("end must not precede start")
	}
	return start, end, nil
}
