package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"astock-crawler/internal/crawler/config"
	"astock-crawler/internal/crawler/datasource"
	"astock-crawler/internal/crawler/dto"
	"astock-crawler/internal/crawler/repository"
	"astock-crawler/internal/entity"
	"astock-crawler/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeSource struct {
	name        string
	summary     *datasource.SummaryResult
	summaryErr  error
	details     map[string]*datasource.DetailResult
	detailErr   map[string]error
	summaryHits int
	detailHits  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchSummary(ctx context.Context, tradeDate string) (*datasource.SummaryResult, error) {
	f.summaryHits++
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return f.summary, nil
}

func (f *fakeSource) FetchDetail(ctx context.Context, stockCode, tradeDate string) (*datasource.DetailResult, error) {
	f.detailHits++
	if err := f.detailErr[stockCode]; err != nil {
		return nil, err
	}
	if d, ok := f.details[stockCode]; ok {
		return d, nil
	}
	return &datasource.DetailResult{}, nil
}

type fakeDragonTigerRepo struct {
	repository.DragonTigerRepository
	summaries  []entity.DragonTigerSummary
	details    []entity.DragonTigerDetail
	summaryErr error
}

func (f *fakeDragonTigerRepo) UpsertSummaries(ctx context.Context, records []entity.DragonTigerSummary) (*repository.UpsertResult, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	f.summaries = append(f.summaries, records...)
	return &repository.UpsertResult{Written: len(records)}, nil
}

func (f *fakeDragonTigerRepo) UpsertDetails(ctx context.Context, records []entity.DragonTigerDetail) (*repository.UpsertResult, error) {
	f.details = append(f.details, records...)
	return &repository.UpsertResult{Written: len(records)}, nil
}

type fakeCrawlRunRepo struct {
	repository.CrawlRunRepository
	created   *entity.CrawlRun
	completed entity.CrawlRunStatus
	failedMsg string
}

func (f *fakeCrawlRunRepo) Create(ctx context.Context, run *entity.CrawlRun) error {
	run.ID = 1
	f.created = run
	return nil
}

func (f *fakeCrawlRunRepo) Complete(ctx context.Context, id uint, status entity.CrawlRunStatus, summaryCount, detailCount int, message string, result datatypes.JSON) error {
	f.completed = status
	return nil
}

func (f *fakeCrawlRunRepo) Fail(ctx context.Context, id uint, errorMessage string) error {
	f.completed = entity.RunStatusFailed
	f.failedMsg = errorMessage
	return nil
}

func summaryRecord(code string) entity.DragonTigerSummary {
	return entity.DragonTigerSummary{
		StockCode:  code,
		StockName:  "测试股份",
		TradeDate:  "20241220",
		DataSource: "primary",
	}
}

func detailResult(code string) *datasource.DetailResult {
	amount := 1_000_000.0
	return &datasource.DetailResult{Records: []entity.DragonTigerDetail{{
		StockCode:  code,
		TradeDate:  "20241220",
		TradeType:  entity.TradeTypeBuy,
		Rank:       1,
		Department: "某某营业部",
		Amount:     &amount,
	}}}
}

func testConfig(maxDetail int) *config.Config {
	return &config.Config{
		Crawler: config.Crawler{
			MaxDetailStocks: maxDetail,
			DetailDelay:     "0s",
		},
	}
}

func newTestCrawlService(t *testing.T, cfg *config.Config, sources []datasource.DataSource, dtRepo repository.DragonTigerRepository, runRepo repository.CrawlRunRepository) CrawlService {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return NewCrawlService(cfg, sources, dtRepo, runRepo, nil, nil, log)
}

func TestCrawlDragonTigerHappyPath(t *testing.T) {
	source := &fakeSource{
		name: "primary",
		summary: &datasource.SummaryResult{Records: []entity.DragonTigerSummary{
			summaryRecord("000001"), summaryRecord("600519"),
		}},
		details: map[string]*datasource.DetailResult{
			"000001": detailResult("000001"),
			"600519": detailResult("600519"),
		},
	}
	dtRepo := &fakeDragonTigerRepo{}
	runRepo := &fakeCrawlRunRepo{}
	svc := newTestCrawlService(t, testConfig(5), []datasource.DataSource{source}, dtRepo, runRepo)

	result, err := svc.CrawlDragonTiger(context.Background(), "2024-12-20")
	require.NoError(t, err)

	assert.Equal(t, dto.CrawlDone, result.Outcome)
	assert.Equal(t, "primary", result.DataSource)
	assert.Equal(t, 2, result.SummaryCount)
	assert.Equal(t, 2, result.DetailCount)
	assert.Len(t, dtRepo.summaries, 2)
	assert.Equal(t, entity.RunStatusSuccess, runRepo.completed)
}

func TestCrawlDragonTigerFallsBackOnUnavailable(t *testing.T) {
	primary := &fakeSource{
		name:       "primary",
		summaryErr: datasource.NewSourceError("primary", fmt.Errorf("connection refused")),
	}
	fallback := &fakeSource{
		name:    "fallback",
		summary: &datasource.SummaryResult{Records: []entity.DragonTigerSummary{summaryRecord("000001")}},
	}
	dtRepo := &fakeDragonTigerRepo{}
	runRepo := &fakeCrawlRunRepo{}
	svc := newTestCrawlService(t, testConfig(0), []datasource.DataSource{primary, fallback}, dtRepo, runRepo)

	result, err := svc.CrawlDragonTiger(context.Background(), "2024-12-20")
	require.NoError(t, err)

	assert.Equal(t, 1, primary.summaryHits)
	assert.Equal(t, 1, fallback.summaryHits)
	assert.Equal(t, "fallback", result.DataSource)
	assert.Equal(t, dto.CrawlDone, result.Outcome)
}

func TestCrawlDragonTigerAllSourcesFail(t *testing.T) {
	primary := &fakeSource{name: "primary", summaryErr: datasource.NewSourceError("primary", fmt.Errorf("timeout"))}
	fallback := &fakeSource{name: "fallback", summaryErr: datasource.NewSourceError("fallback", fmt.Errorf("http 502"))}
	runRepo := &fakeCrawlRunRepo{}
	svc := newTestCrawlService(t, testConfig(0), []datasource.DataSource{primary, fallback}, &fakeDragonTigerRepo{}, runRepo)

	// An exhausted source chain is still a reportable cycle: the caller gets
	// a failed result, not a bare error.
	result, err := svc.CrawlDragonTiger(context.Background(), "2024-12-20")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, dto.CrawlFailed, result.Outcome)
	assert.Equal(t, "2024-12-20", result.TradeDate)
	assert.Contains(t, result.Message, "all data sources failed")
	assert.Equal(t, entity.RunStatusFailed, runRepo.completed)
	assert.NotEmpty(t, runRepo.failedMsg)
}

func TestCrawlDragonTigerEmptyBoard(t *testing.T) {
	source := &fakeSource{name: "primary", summary: &datasource.SummaryResult{}}
	dtRepo := &fakeDragonTigerRepo{}
	runRepo := &fakeCrawlRunRepo{}
	svc := newTestCrawlService(t, testConfig(5), []datasource.DataSource{source}, dtRepo, runRepo)

	result, err := svc.CrawlDragonTiger(context.Background(), "2024-12-21")
	require.NoError(t, err)

	assert.Equal(t, dto.CrawlDone, result.Outcome)
	assert.Zero(t, result.SummaryCount)
	assert.Zero(t, result.DetailCount)
	assert.Empty(t, dtRepo.summaries)
	assert.Equal(t, entity.RunStatusSuccess, runRepo.completed)
}

func TestCrawlDragonTigerPartialOnDetailFailure(t *testing.T) {
	source := &fakeSource{
		name: "primary",
		summary: &datasource.SummaryResult{Records: []entity.DragonTigerSummary{
			summaryRecord("000001"), summaryRecord("600519"),
		}},
		details:   map[string]*datasource.DetailResult{"000001": detailResult("000001")},
		detailErr: map[string]error{"600519": fmt.Errorf("detail page gone")},
	}
	runRepo := &fakeCrawlRunRepo{}
	svc := newTestCrawlService(t, testConfig(5), []datasource.DataSource{source}, &fakeDragonTigerRepo{}, runRepo)

	result, err := svc.CrawlDragonTiger(context.Background(), "2024-12-20")
	require.NoError(t, err)

	assert.Equal(t, dto.CrawlPartial, result.Outcome)
	assert.Equal(t, 2, result.SummaryCount)
	assert.Equal(t, 1, result.DetailCount)
	assert.Contains(t, result.Message, "600519")
	assert.Equal(t, entity.RunStatusPartial, runRepo.completed)
}

func TestCrawlDragonTigerDetailCap(t *testing.T) {
	var records []entity.DragonTigerSummary
	for i := 0; i < 8; i++ {
		records = append(records, summaryRecord(fmt.Sprintf("00000%d", i)))
	}
	source := &fakeSource{name: "primary", summary: &datasource.SummaryResult{Records: records}}
	svc := newTestCrawlService(t, testConfig(5), []datasource.DataSource{source}, &fakeDragonTigerRepo{}, &fakeCrawlRunRepo{})

	_, err := svc.CrawlDragonTiger(context.Background(), "2024-12-20")
	require.NoError(t, err)
	assert.Equal(t, 5, source.detailHits)
}

func TestCrawlDragonTigerPersistFailure(t *testing.T) {
	source := &fakeSource{
		name:    "primary",
		summary: &datasource.SummaryResult{Records: []entity.DragonTigerSummary{summaryRecord("000001")}},
	}
	dtRepo := &fakeDragonTigerRepo{summaryErr: fmt.Errorf("connection reset")}
	runRepo := &fakeCrawlRunRepo{}
	svc := newTestCrawlService(t, testConfig(5), []datasource.DataSource{source}, dtRepo, runRepo)

	_, err := svc.CrawlDragonTiger(context.Background(), "2024-12-20")
	require.Error(t, err)
	assert.Equal(t, entity.RunStatusFailed, runRepo.completed)
}

func TestCrawlDragonTigerRerunIdempotent(t *testing.T) {
	source := &fakeSource{
		name:    "primary",
		summary: &datasource.SummaryResult{Records: []entity.DragonTigerSummary{summaryRecord("000001")}},
		details: map[string]*datasource.DetailResult{"000001": detailResult("000001")},
	}
	dtRepo := &fakeDragonTigerRepo{}
	svc := newTestCrawlService(t, testConfig(5), []datasource.DataSource{source}, dtRepo, &fakeCrawlRunRepo{})

	first, err := svc.CrawlDragonTiger(context.Background(), "2024-12-20")
	require.NoError(t, err)
	second, err := svc.CrawlDragonTiger(context.Background(), "2024-12-20")
	require.NoError(t, err)

	// Upserts key on (stock, date); a rerun reports the same counts.
	assert.Equal(t, first.SummaryCount, second.SummaryCount)
	assert.Equal(t, first.DetailCount, second.DetailCount)
}

func TestCrawlDragonTigerDefaultsToToday(t *testing.T) {
	source := &fakeSource{name: "primary", summary: &datasource.SummaryResult{}}
	svc := newTestCrawlService(t, testConfig(0), []datasource.DataSource{source}, &fakeDragonTigerRepo{}, &fakeCrawlRunRepo{})

	result, err := svc.CrawlDragonTiger(context.Background(), "")
	require.NoError(t, err)
	_, parseErr := time.Parse("2006-01-02", result.TradeDate)
	assert.NoError(t, parseErr)
}
