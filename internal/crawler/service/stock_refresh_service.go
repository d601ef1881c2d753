package service

import (
	"context"
	"fmt"
	"time"

	"astock-crawler/internal/crawler/config"
	"astock-crawler/internal/crawler/datasource"
	"astock-crawler/internal/crawler/repository"
	"astock-crawler/internal/entity"
	"astock-crawler/pkg/logger"
	"astock-crawler/pkg/utils"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	// staleErrorWindow is how long an errored stock stays parked before the
	// incremental job retries it.
	staleErrorWindow = 7 * 24 * time.Hour

	// retention windows applied by the cleanup job.
	dailyBarRetentionDays = 730
	crawlRunRetentionDays = 90

	// staleDataWindow is how old the newest board entry may be before the
	// health probe flags it. Covers a long weekend.
	staleDataWindow = 4 * 24 * time.Hour
)

// StockRefreshService runs the catalogue and market-data maintenance jobs
// around the Dragon-Tiger crawl: security list refresh, daily bars,
// incremental catch-up, retention cleanup, and the health probe.
type StockRefreshService interface {
	RefreshStockBasics(ctx context.Context) error
	RefreshDailyBars(ctx context.Context, tradeDate string) error
	IncrementalRefresh(ctx context.Context) error
	CleanupDatabase(ctx context.Context) error
	HealthCheck(ctx context.Context) map[string]string
}

// NewStockRefreshService creates a new StockRefreshService.
func NewStockRefreshService(
	cfg *config.Config,
	tushare *datasource.Tushare,
	stocksRepo repository.StocksRepository,
	stockDailyRepo repository.StockDailyRepository,
	dragonTigerRepo repository.DragonTigerRepository,
	crawlRunRepo repository.CrawlRunRepository,
	db *gorm.DB,
	redisClient *redis.Client,
	log *logger.Logger,
) StockRefreshService {
	incrementalDelay, err := time.ParseDuration(cfg.Scheduler.IncrementalDelay)
	if err != nil || incrementalDelay < 0 {
		incrementalDelay = 500 * time.Millisecond
	}
	return &stockRefreshService{
		cfg:              cfg,
		tushare:          tushare,
		stocksRepo:       stocksRepo,
		stockDailyRepo:   stockDailyRepo,
		dragonTigerRepo:  dragonTigerRepo,
		crawlRunRepo:     crawlRunRepo,
		db:               db,
		redisClient:      redisClient,
		log:              log,
		incrementalDelay: incrementalDelay,
	}
}

type stockRefreshService struct {
	cfg              *config.Config
	tushare          *datasource.Tushare
	stocksRepo       repository.StocksRepository
	stockDailyRepo   repository.StockDailyRepository
	dragonTigerRepo  repository.DragonTigerRepository
	crawlRunRepo     repository.CrawlRunRepository
	db               *gorm.DB
	redisClient      *redis.Client
	log              *logger.Logger
	incrementalDelay time.Duration
}

// RefreshStockBasics replaces the listed-security catalogue from the
// structured source.
func (s *stockRefreshService) RefreshStockBasics(ctx context.Context) error {
	stocks, err := s.tushare.FetchStockList(ctx)
	if err != nil {
		return fmt.Errorf("fetch stock list: %w", err)
	}
	if err := s.stocksRepo.UpsertStocks(ctx, stocks); err != nil {
		return fmt.Errorf("upsert stocks: %w", err)
	}
	s.log.Info("Stock catalogue refreshed", logger.IntField("count", len(stocks)))
	return nil
}

// RefreshDailyBars pulls the day's bars for every active stock and updates
// each stock's latest price.
func (s *stockRefreshService) RefreshDailyBars(ctx context.Context, tradeDate string) error {
	if tradeDate == "" {
		tradeDate = utils.TimeNowCST().Format(utils.DateLayoutISO)
	}
	stocks, err := s.stocksRepo.GetActiveStocks(ctx)
	if err != nil {
		return fmt.Errorf("load active stocks: %w", err)
	}

	var refreshed, failed int
	for _, stock := range stocks {
		if !utils.ShouldContinue(ctx, s.log) {
			break
		}
		if err := s.refreshOneStock(ctx, stock.Code, tradeDate, tradeDate); err != nil {
			failed++
			continue
		}
		refreshed++
	}

	s.log.Info("Daily bars refreshed",
		logger.StringField("trade_date", tradeDate),
		logger.IntField("refreshed", refreshed),
		logger.IntField("failed", failed))
	if failed > 0 && refreshed == 0 {
		return fmt.Errorf("daily bar refresh failed for all %d stocks", failed)
	}
	return nil
}

// IncrementalRefresh works through pending and retry-eligible stocks in
// bounded batches, so a full catalogue backfill spreads across firings.
func (s *stockRefreshService) IncrementalRefresh(ctx context.Context) error {
	reset, err := s.stocksRepo.ResetStaleErrors(ctx, staleErrorWindow)
	if err != nil {
		s.log.Warn("Failed to reset stale errors", logger.ErrorField(err))
	} else if reset > 0 {
		s.log.Info("Reset stale errored stocks", logger.Field("count", reset))
	}

	limit := s.cfg.Scheduler.IncrementalMaxStocks
	if limit <= 0 {
		limit = 50
	}
	stocks, err := s.stocksRepo.GetStocksByStatus(ctx, entity.CrawlStatusPending, limit)
	if err != nil {
		return fmt.Errorf("load pending stocks: %w", err)
	}
	if len(stocks) == 0 {
		return nil
	}

	endDate := utils.TimeNowCST().Format(utils.DateLayoutISO)
	for _, stock := range stocks {
		if !utils.ShouldContinue(ctx, s.log) {
			break
		}
		if err := s.stocksRepo.UpdateCrawlStatus(ctx, stock.Code, entity.CrawlStatusCrawling, ""); err != nil {
			s.log.Warn("Failed to mark stock crawling", logger.StringField("code", stock.Code), logger.ErrorField(err))
		}

		startDate, err := s.backfillStart(ctx, stock.Code)
		if err == nil {
			err = s.refreshOneStock(ctx, stock.Code, startDate, endDate)
		}
		if err != nil {
			s.log.Warn("Incremental refresh failed",
				logger.StringField("code", stock.Code),
				logger.ErrorField(err))
			if statusErr := s.stocksRepo.UpdateCrawlStatus(ctx, stock.Code, entity.CrawlStatusError, err.Error()); statusErr != nil {
				s.log.Error("Failed to mark stock errored", logger.StringField("code", stock.Code), logger.ErrorField(statusErr))
			}
		} else if err := s.stocksRepo.UpdateCrawlStatus(ctx, stock.Code, entity.CrawlStatusCompleted, ""); err != nil {
			s.log.Error("Failed to mark stock completed", logger.StringField("code", stock.Code), logger.ErrorField(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.incrementalDelay):
		}
	}
	return nil
}

// backfillStart picks where a stock's bar history resumes: the day after the
// latest stored bar, or thirty days back for a fresh stock.
func (s *stockRefreshService) backfillStart(ctx context.Context, code string) (string, error) {
	latest, err := s.stockDailyRepo.LatestTradeDate(ctx, code)
	if err != nil {
		return "", err
	}
	if latest == "" {
		return utils.TimeNowCST().AddDate(0, 0, -30).Format(utils.DateLayoutISO), nil
	}
	t, err := time.Parse(utils.DateLayoutCompact, latest)
	if err != nil {
		return "", fmt.Errorf("stored trade date %q: %w", latest, err)
	}
	return t.AddDate(0, 0, 1).Format(utils.DateLayoutISO), nil
}

func (s *stockRefreshService) refreshOneStock(ctx context.Context, code, startDate, endDate string) error {
	bars, err := s.tushare.FetchDailyBars(ctx, code, startDate, endDate)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return nil
	}
	if err := s.stockDailyRepo.UpsertBars(ctx, bars); err != nil {
		return err
	}

	latest := bars[len(bars)-1]
	if err := s.stocksRepo.UpdateLatest(ctx, code, latest.Close, latest.TradeDate); err != nil {
		s.log.Warn("Failed to update latest price", logger.StringField("code", code), logger.ErrorField(err))
	}
	return nil
}

// CleanupDatabase applies the retention windows to daily bars and run
// history and unparks long-errored stocks. Dragon-Tiger rows are kept
// indefinitely.
func (s *stockRefreshService) CleanupDatabase(ctx context.Context) error {
	if reset, err := s.stocksRepo.ResetStaleErrors(ctx, staleErrorWindow); err != nil {
		s.log.Warn("Failed to reset stale errors", logger.ErrorField(err))
	} else if reset > 0 {
		s.log.Info("Reset stale errored stocks", logger.Field("count", reset))
	}

	barCutoff := utils.TimeNowCST().AddDate(0, 0, -dailyBarRetentionDays).Format(utils.DateLayoutCompact)
	removedBars, err := s.stockDailyRepo.DeleteOlderThan(ctx, barCutoff)
	if err != nil {
		return fmt.Errorf("cleanup daily bars: %w", err)
	}

	runCutoff := time.Now().AddDate(0, 0, -crawlRunRetentionDays)
	removedRuns, err := s.crawlRunRepo.DeleteOlderThan(ctx, runCutoff)
	if err != nil {
		return fmt.Errorf("cleanup crawl runs: %w", err)
	}

	s.log.Info("Database cleanup finished",
		logger.Field("removed_bars", removedBars),
		logger.Field("removed_runs", removedRuns))
	return nil
}

// HealthCheck probes the database and redis and reports per-dependency
// status strings.
func (s *stockRefreshService) HealthCheck(ctx context.Context) map[string]string {
	checks := map[string]string{}

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		checks["database"] = err.Error()
	} else {
		checks["database"] = "ok"
	}

	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	if counts, err := s.stocksRepo.CountByStatus(ctx); err == nil {
		checks["stocks"] = fmt.Sprintf("pending=%d crawling=%d completed=%d error=%d",
			counts[entity.CrawlStatusPending], counts[entity.CrawlStatusCrawling],
			counts[entity.CrawlStatusCompleted], counts[entity.CrawlStatusError])
	}

	if latest, err := s.dragonTigerRepo.LatestSummaryDate(ctx); err == nil {
		switch {
		case latest == "":
			checks["dragon_tiger"] = "no data"
		default:
			checks["dragon_tiger"] = "latest=" + latest
			if t, err := time.Parse(utils.DateLayoutCompact, latest); err == nil {
				if utils.TimeNowCST().Sub(t) > staleDataWindow {
					checks["dragon_tiger"] = "stale, latest=" + latest
				}
			}
		}
	}
	return checks
}
