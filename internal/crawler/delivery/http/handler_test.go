package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"astock-crawler/internal/crawler/dto"
	"astock-crawler/internal/crawler/repository"
	"astock-crawler/internal/crawler/service"
	"astock-crawler/internal/entity"
	"astock-crawler/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCrawlService struct {
	gotDate string
	result  *dto.CrawlResult
	err     error
}

func (s *stubCrawlService) CrawlDragonTiger(ctx context.Context, tradeDate string) (*dto.CrawlResult, error) {
	s.gotDate = tradeDate
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubScheduler struct {
	service.SchedulerService
	statuses  []dto.JobStatusResponse
	triggered string
	removeErr error
}

func (s *stubScheduler) JobStatuses() []dto.JobStatusResponse { return s.statuses }

func (s *stubScheduler) TriggerJob(ctx context.Context, jobID string) error {
	if jobID == "missing" {
		return fmt.Errorf("%w: missing", service.ErrJobNotFound)
	}
	s.triggered = jobID
	return nil
}

func (s *stubScheduler) RemoveJob(jobID string) error { return s.removeErr }

type stubDragonTigerRepo struct {
	repository.DragonTigerRepository
	summaries []entity.DragonTigerSummary
}

func (s *stubDragonTigerRepo) FindSummariesByDate(ctx context.Context, tradeDate string) ([]entity.DragonTigerSummary, error) {
	return s.summaries, nil
}

func newHandlerLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return log
}

func TestTriggerCrawl(t *testing.T) {
	svc := &stubCrawlService{result: &dto.CrawlResult{Outcome: dto.CrawlDone, TradeDate: "2024-12-20"}}
	h := NewCrawlHandler(svc, &stubDragonTigerRepo{}, nil, newHandlerLogger(t))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/crawler/dragon-tiger?date=2024-12-20", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.TriggerCrawl(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-12-20", svc.gotDate)

	var result dto.CrawlResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, dto.CrawlDone, result.Outcome)
}

func TestTriggerCrawlRejectsBadDate(t *testing.T) {
	h := NewCrawlHandler(&stubCrawlService{}, &stubDragonTigerRepo{}, nil, newHandlerLogger(t))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/crawler/dragon-tiger?date=20241220", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.TriggerCrawl(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// A cycle that exhausted its source chain still answers with the result
// body; only storage faults turn into error responses.
func TestTriggerCrawlReturnsFailedCycle(t *testing.T) {
	svc := &stubCrawlService{result: &dto.CrawlResult{
		Outcome:   dto.CrawlFailed,
		TradeDate: "2024-12-20",
		Message:   "all data sources failed",
	}}
	h := NewCrawlHandler(svc, &stubDragonTigerRepo{}, nil, newHandlerLogger(t))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/crawler/dragon-tiger?date=2024-12-20", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.TriggerCrawl(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var result dto.CrawlResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, dto.CrawlFailed, result.Outcome)
	assert.NotEmpty(t, result.Message)
}

func TestTriggerCrawlUpstreamFailure(t *testing.T) {
	svc := &stubCrawlService{err: fmt.Errorf("persist summaries: connection reset")}
	h := NewCrawlHandler(svc, &stubDragonTigerRepo{}, nil, newHandlerLogger(t))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/crawler/dragon-tiger", strings.NewReader(`{"date":"2024-12-20"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.TriggerCrawl(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetSummaries(t *testing.T) {
	repo := &stubDragonTigerRepo{summaries: []entity.DragonTigerSummary{
		{StockCode: "000001", StockName: "平安银行", TradeDate: "20241220"},
	}}
	h := NewCrawlHandler(&stubCrawlService{}, repo, nil, newHandlerLogger(t))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("date")
	c.SetParamValues("2024-12-20")

	require.NoError(t, h.GetSummaries(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var summaries []entity.DragonTigerSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "000001", summaries[0].StockCode)
}

func TestRunJob(t *testing.T) {
	sched := &stubScheduler{}
	h := NewJobHandler(sched, newHandlerLogger(t))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("dragon_tiger_crawl")

	require.NoError(t, h.RunJob(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "dragon_tiger_crawl", sched.triggered)
}

func TestRunJobNotFound(t *testing.T) {
	h := NewJobHandler(&stubScheduler{}, newHandlerLogger(t))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	require.NoError(t, h.RunJob(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAllJobs(t *testing.T) {
	sched := &stubScheduler{statuses: []dto.JobStatusResponse{{ID: "health_check", Schedule: "0 * * * *"}}}
	h := NewJobHandler(sched, newHandlerLogger(t))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.GetAllJobs(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var statuses []dto.JobStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "health_check", statuses[0].ID)
}
