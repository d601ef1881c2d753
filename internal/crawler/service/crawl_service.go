package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"astock-crawler/internal/crawler/config"
	"astock-crawler/internal/crawler/datasource"
	"astock-crawler/internal/crawler/dto"
	"astock-crawler/internal/crawler/repository"
	"astock-crawler/internal/entity"
	"astock-crawler/pkg/common"
	"astock-crawler/pkg/logger"
	"astock-crawler/pkg/telegram"
	"astock-crawler/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// CrawlService orchestrates one Dragon-Tiger acquisition cycle: walk the
// data-source chain, persist summaries and broker-seat details, record the
// run, and publish the result.
type CrawlService interface {
	CrawlDragonTiger(ctx context.Context, tradeDate string) (*dto.CrawlResult, error)
}

// NewCrawlService creates a new CrawlService.
func NewCrawlService(
	cfg *config.Config,
	sources []datasource.DataSource,
	dragonTigerRepo repository.DragonTigerRepository,
	crawlRunRepo repository.CrawlRunRepository,
	redisClient *redis.Client,
	notifier telegram.Notifier,
	log *logger.Logger,
) CrawlService {
	detailDelay, err := time.ParseDuration(cfg.Crawler.DetailDelay)
	if err != nil || detailDelay < 0 {
		detailDelay = time.Second
	}
	return &crawlService{
		cfg:             cfg,
		sources:         sources,
		dragonTigerRepo: dragonTigerRepo,
		crawlRunRepo:    crawlRunRepo,
		redisClient:     redisClient,
		notifier:        notifier,
		log:             log,
		detailDelay:     detailDelay,
	}
}

type crawlService struct {
	cfg             *config.Config
	sources         []datasource.DataSource
	dragonTigerRepo repository.DragonTigerRepository
	crawlRunRepo    repository.CrawlRunRepository
	redisClient     *redis.Client
	notifier        telegram.Notifier
	log             *logger.Logger
	detailDelay     time.Duration
}

// CrawlDragonTiger runs one cycle for the given ISO trade date (empty means
// today). A date with no board entries completes with zero counts; detail
// failures for individual stocks demote the outcome to partial but never
// abort the cycle. A cycle whose sources are all unavailable still hands the
// caller a Result (outcome failed, message set); only storage or programming
// faults return an error.
func (s *crawlService) CrawlDragonTiger(ctx context.Context, tradeDate string) (*dto.CrawlResult, error) {
	startedAt := time.Now()
	if tradeDate == "" {
		tradeDate = utils.TimeNowCST().Format(utils.DateLayoutISO)
	}

	run := &entity.CrawlRun{
		JobName:   common.JobDragonTigerCrawl,
		TradeDate: utils.CompactDate(tradeDate),
		StartedAt: startedAt,
	}
	if err := s.crawlRunRepo.Create(ctx, run); err != nil {
		s.log.Error("Failed to record crawl run", logger.ErrorField(err))
	}

	result, err := s.crawl(ctx, tradeDate, startedAt)
	if err != nil {
		s.failRun(ctx, run, err.Error())
		s.alertFailure(err.Error())
		s.publish(ctx, &dto.CrawlResult{
			Outcome:   dto.CrawlFailed,
			TradeDate: tradeDate,
			Message:   err.Error(),
			StartedAt: startedAt,
			Duration:  time.Since(startedAt).String(),
		})
		return nil, err
	}

	if result.Outcome == dto.CrawlFailed {
		s.failRun(ctx, run, result.Message)
		s.alertFailure(result.Message)
		s.publish(ctx, result)
		return result, nil
	}

	s.completeRun(ctx, run, result)
	s.publish(ctx, result)
	return result, nil
}

func (s *crawlService) crawl(ctx context.Context, tradeDate string, startedAt time.Time) (*dto.CrawlResult, error) {
	summary, source, err := s.fetchSummaryChain(ctx, tradeDate)
	if err != nil {
		if !errors.Is(err, datasource.ErrSourceUnavailable) {
			return nil, err
		}
		// Exhausting the source chain is an expected acquisition outcome,
		// not an exception: report it through the result.
		return &dto.CrawlResult{
			Outcome:   dto.CrawlFailed,
			TradeDate: tradeDate,
			Message:   err.Error(),
			StartedAt: startedAt,
			Duration:  time.Since(startedAt).String(),
		}, nil
	}

	result := &dto.CrawlResult{
		Outcome:     dto.CrawlDone,
		TradeDate:   tradeDate,
		SkippedRows: summary.SkippedRows,
		StartedAt:   startedAt,
	}
	if source != nil {
		result.DataSource = source.Name()
	}

	if len(summary.Records) == 0 {
		s.log.Info("No dragon-tiger entries for date", logger.StringField("trade_date", tradeDate))
		result.Duration = time.Since(startedAt).String()
		return result, nil
	}

	upsert, err := s.dragonTigerRepo.UpsertSummaries(ctx, summary.Records)
	if err != nil {
		return nil, fmt.Errorf("persist summaries: %w", err)
	}
	result.SummaryCount = upsert.Written
	result.SkippedRows += upsert.Skipped

	detailCount, detailSkipped, failedStocks := s.crawlDetails(ctx, source, summary.Records, tradeDate)
	result.DetailCount = detailCount
	result.SkippedRows += detailSkipped

	if len(failedStocks) > 0 {
		result.Outcome = dto.CrawlPartial
		result.Message = fmt.Sprintf("detail fetch failed for %d stocks: %v", len(failedStocks), failedStocks)
	}
	result.Duration = time.Since(startedAt).String()

	s.log.Info("Crawl cycle finished",
		logger.StringField("trade_date", tradeDate),
		logger.StringField("outcome", string(result.Outcome)),
		logger.IntField("summaries", result.SummaryCount),
		logger.IntField("details", result.DetailCount),
		logger.IntField("skipped", result.SkippedRows))

	return result, nil
}

// fetchSummaryChain walks the configured sources in order, falling through
// only on availability failures. A source that answers — even with an empty
// board — wins.
func (s *crawlService) fetchSummaryChain(ctx context.Context, tradeDate string) (*datasource.SummaryResult, datasource.DataSource, error) {
	var chainErrors []error
	for _, source := range s.sources {
		summary, err := source.FetchSummary(ctx, tradeDate)
		if err == nil {
			return summary, source, nil
		}
		if !errors.Is(err, datasource.ErrSourceUnavailable) {
			return nil, nil, err
		}
		s.log.Warn("Data source unavailable, trying next",
			logger.StringField("source", source.Name()),
			logger.ErrorField(err))
		chainErrors = append(chainErrors, err)
	}
	return nil, nil, fmt.Errorf("all data sources failed: %w", errors.Join(chainErrors...))
}

// crawlDetails fetches broker-seat pages for the first maxDetailStocks
// summaries with a pacing delay between requests.
func (s *crawlService) crawlDetails(ctx context.Context, source datasource.DataSource, summaries []entity.DragonTigerSummary, tradeDate string) (written, skipped int, failed []string) {
	maxStocks := s.cfg.Crawler.MaxDetailStocks
	if maxStocks <= 0 || maxStocks > len(summaries) {
		maxStocks = len(summaries)
	}

	for i := 0; i < maxStocks; i++ {
		if !utils.ShouldContinue(ctx, s.log) {
			return written, skipped, failed
		}
		code := summaries[i].StockCode

		detail, err := source.FetchDetail(ctx, code, tradeDate)
		if err != nil {
			s.log.Warn("Detail fetch failed",
				logger.StringField("stock_code", code),
				logger.ErrorField(err))
			failed = append(failed, code)
			continue
		}
		skipped += detail.SkippedRows

		upsert, err := s.dragonTigerRepo.UpsertDetails(ctx, detail.Records)
		if err != nil {
			s.log.Warn("Detail persist failed",
				logger.StringField("stock_code", code),
				logger.ErrorField(err))
			failed = append(failed, code)
			continue
		}
		written += upsert.Written
		skipped += upsert.Skipped

		if i < maxStocks-1 && s.detailDelay > 0 {
			select {
			case <-ctx.Done():
				return written, skipped, failed
			case <-time.After(s.detailDelay):
			}
		}
	}
	return written, skipped, failed
}

func (s *crawlService) completeRun(ctx context.Context, run *entity.CrawlRun, result *dto.CrawlResult) {
	if run.ID == 0 {
		return
	}
	status := entity.RunStatusSuccess
	if result.Outcome == dto.CrawlPartial {
		status = entity.RunStatusPartial
	}
	payload, err := json.Marshal(result)
	if err != nil {
		s.log.Error("Failed to marshal crawl result", logger.ErrorField(err))
		payload = nil
	}
	if err := s.crawlRunRepo.Complete(ctx, run.ID, status, result.SummaryCount, result.DetailCount, result.Message, payload); err != nil {
		s.log.Error("Failed to complete crawl run", logger.ErrorField(err), logger.Field("run_id", run.ID))
	}
}

func (s *crawlService) failRun(ctx context.Context, run *entity.CrawlRun, message string) {
	if run.ID == 0 {
		return
	}
	if err := s.crawlRunRepo.Fail(ctx, run.ID, message); err != nil {
		s.log.Error("Failed to mark crawl run failed", logger.ErrorField(err), logger.Field("run_id", run.ID))
	}
}

func (s *crawlService) alertFailure(message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(telegram.FormatErrorAlertMessage(time.Now(), common.JobDragonTigerCrawl, message)); err != nil {
		s.log.Warn("Failed to send telegram alert", logger.ErrorField(err))
	}
}

// publish pushes the result onto the redis stream and notifies telegram.
// Both are best-effort; the crawl outcome does not depend on them.
func (s *crawlService) publish(ctx context.Context, result *dto.CrawlResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		s.log.Error("Failed to marshal crawl result", logger.ErrorField(err))
		return
	}

	if s.redisClient != nil {
		if err := s.redisClient.XAdd(ctx, &redis.XAddArgs{
			Stream: common.RedisStreamCrawlResult,
			Values: map[string]interface{}{"payload": payload},
			MaxLen: s.cfg.Redis.StreamMaxLen,
		}).Err(); err != nil {
			s.log.Error("Failed to publish crawl result", logger.ErrorField(err))
		}
	}

	// Failed cycles already pushed an error alert.
	if s.notifier != nil && result.Outcome != dto.CrawlFailed {
		report := telegram.CrawlReport{
			TradeDate:    result.TradeDate,
			Status:       string(result.Outcome),
			SummaryCount: result.SummaryCount,
			DetailCount:  result.DetailCount,
			SkippedRows:  result.SkippedRows,
			Message:      result.Message,
		}
		if err := s.notifier.SendMessage(telegram.FormatCrawlReportMessage(report)); err != nil {
			s.log.Warn("Failed to send telegram report", logger.ErrorField(err))
		}
	}
}
