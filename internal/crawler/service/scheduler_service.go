package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"astock-crawler/internal/crawler/config"
	"astock-crawler/internal/crawler/dto"
	"astock-crawler/pkg/common"
	"astock-crawler/pkg/logger"
	"astock-crawler/pkg/utils"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// ErrJobNotFound is returned when a job id is not registered.
var ErrJobNotFound = fmt.Errorf("job not found")

// SchedulerService owns the recurring jobs: the post-close Dragon-Tiger
// crawl, catalogue and bar refreshes, cleanup, and the health probe. All
// schedules run in Asia/Shanghai.
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop()
	TriggerJob(ctx context.Context, jobID string) error
	RemoveJob(jobID string) error
	JobStatuses() []dto.JobStatusResponse
}

type scheduledJob struct {
	id          string
	description string
	schedule    string
	// tradingDayOnly gates the run on the trade calendar.
	tradingDayOnly bool
	run            func(ctx context.Context) error

	mu          sync.Mutex
	entryID     cron.EntryID
	running     bool
	removed     bool
	lastRunAt   time.Time
	lastOutcome string
}

// NewSchedulerService creates a new SchedulerService.
func NewSchedulerService(
	cfg *config.Config,
	crawlService CrawlService,
	refreshService StockRefreshService,
	redisClient *redis.Client,
	log *logger.Logger,
) SchedulerService {
	lockTTL, err := time.ParseDuration(cfg.Scheduler.JobLockTTL)
	if err != nil || lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &schedulerService{
		cfg:            cfg,
		crawlService:   crawlService,
		refreshService: refreshService,
		redisClient:    redisClient,
		log:            log,
		lockTTL:        lockTTL,
		jobs:           map[string]*scheduledJob{},
		now:            utils.TimeNowCST,
	}
}

type schedulerService struct {
	cfg            *config.Config
	crawlService   CrawlService
	refreshService StockRefreshService
	redisClient    *redis.Client
	log            *logger.Logger
	lockTTL        time.Duration

	cron *cron.Cron
	jobs map[string]*scheduledJob
	mu   sync.RWMutex
	ctx  context.Context
	now  func() time.Time
}

// Start registers the job table and begins the cron loop. It returns after
// scheduling; jobs fire on the cron goroutine until Stop or ctx cancel.
func (s *schedulerService) Start(ctx context.Context) error {
	location := utils.GetCSTTimeLocation()
	s.ctx = ctx
	s.cron = cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	for _, job := range s.buildJobTable() {
		if err := s.register(job); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.log.Info("Scheduler started",
		logger.IntField("jobs", len(s.jobs)),
		logger.StringField("timezone", location.String()))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs.
func (s *schedulerService) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("Scheduler stopped")
}

func (s *schedulerService) buildJobTable() []*scheduledJob {
	return []*scheduledJob{
		{
			id:          common.JobStockBasicRefresh,
			description: "Refresh the listed-security catalogue",
			schedule:    fmt.Sprintf("%s * * 1-5", hhmmToCron(s.cfg.Scheduler.DailyUpdateTime, "0 8")),
			run:         s.refreshService.RefreshStockBasics,
		},
		{
			id:             common.JobStockDailyRefresh,
			description:    "Pull daily bars for active stocks after close",
			schedule:       "30 15 * * 1-5",
			tradingDayOnly: true,
			run: func(ctx context.Context) error {
				return s.refreshService.RefreshDailyBars(ctx, "")
			},
		},
		{
			id:             common.JobIncrementalRefresh,
			description:    "Work through pending stocks in bounded batches",
			schedule:       "*/30 9-11,13-15 * * 1-5",
			tradingDayOnly: true,
			run:            s.refreshService.IncrementalRefresh,
		},
		{
			id:          common.JobDatabaseCleanup,
			description: "Apply retention windows to bars and run history",
			schedule:    "0 2 * * 0",
			run:         s.refreshService.CleanupDatabase,
		},
		{
			id:             common.JobDragonTigerCrawl,
			description:    "Crawl the Dragon-Tiger board after market close",
			schedule:       fmt.Sprintf("%s * * 1-5", hhmmToCron(s.cfg.Scheduler.DragonTigerTime, "0 17")),
			tradingDayOnly: true,
			run: func(ctx context.Context) error {
				result, err := s.crawlService.CrawlDragonTiger(ctx, "")
				if err != nil {
					return err
				}
				if result.Outcome == dto.CrawlFailed {
					return errors.New(result.Message)
				}
				return nil
			},
		},
		{
			id:          common.JobHealthCheck,
			description: "Probe database and redis",
			schedule:    "0 * * * *",
			run: func(ctx context.Context) error {
				checks := s.refreshService.HealthCheck(ctx)
				for name, state := range checks {
					if state != "ok" && (name == "database" || name == "redis") {
						return fmt.Errorf("%s unhealthy: %s", name, state)
					}
				}
				return nil
			},
		},
	}
}

func (s *schedulerService) register(job *scheduledJob) error {
	entryID, err := s.cron.AddFunc(job.schedule, func() { s.execute(job) })
	if err != nil {
		return fmt.Errorf("schedule job %s (%q): %w", job.id, job.schedule, err)
	}
	job.entryID = entryID

	s.mu.Lock()
	s.jobs[job.id] = job
	s.mu.Unlock()
	return nil
}

// execute runs one firing: trading-day gate, cross-instance redis lock, then
// the job body.
func (s *schedulerService) execute(job *scheduledJob) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if job.tradingDayOnly && !utils.IsTradingDay(s.now()) {
		s.log.Debug("Skipping job on non-trading day", logger.StringField("job", job.id))
		return
	}

	unlock, acquired := s.acquireLock(ctx, job.id)
	if !acquired {
		s.log.Info("Job already running elsewhere, skipping", logger.StringField("job", job.id))
		return
	}
	defer unlock()

	// A manual trigger may be mid-flight; the cron chain only serializes
	// scheduled firings, so the in-process flag is the overlap guard.
	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		s.log.Info("Job already running, skipping firing", logger.StringField("job", job.id))
		return
	}
	job.running = true
	job.lastRunAt = time.Now()
	job.mu.Unlock()

	s.log.Info("Job starting", logger.StringField("job", job.id))
	err := job.run(ctx)

	job.mu.Lock()
	job.running = false
	if err != nil {
		job.lastOutcome = err.Error()
	} else {
		job.lastOutcome = "ok"
	}
	job.mu.Unlock()

	if err != nil {
		s.log.Error("Job failed", logger.StringField("job", job.id), logger.ErrorField(err))
		return
	}
	s.log.Info("Job finished", logger.StringField("job", job.id))
}

// acquireLock takes a redis SETNX lock so only one instance fires a job.
// Without redis, locking degrades to the in-process SkipIfStillRunning chain.
func (s *schedulerService) acquireLock(ctx context.Context, jobID string) (func(), bool) {
	if s.redisClient == nil {
		return func() {}, true
	}
	key := common.RedisKeyJobLockPrefix + jobID
	ok, err := s.redisClient.SetNX(ctx, key, time.Now().Format(time.RFC3339), s.lockTTL).Result()
	if err != nil {
		s.log.Warn("Job lock unavailable, running unlocked",
			logger.StringField("job", jobID), logger.ErrorField(err))
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := s.redisClient.Del(context.Background(), key).Err(); err != nil {
			s.log.Warn("Failed to release job lock",
				logger.StringField("job", jobID), logger.ErrorField(err))
		}
	}, true
}

// TriggerJob fires a registered job immediately, outside its schedule. The
// trading-day gate does not apply to manual triggers. The run detaches from
// the caller's context: an HTTP trigger returns before the job finishes and
// must not cancel it.
func (s *schedulerService) TriggerJob(ctx context.Context, jobID string) error {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	runCtx := s.ctx
	if runCtx == nil {
		runCtx = context.Background()
	}

	job.mu.Lock()
	if job.running {
		job.mu.Unlock()
		return fmt.Errorf("job %s is already running", jobID)
	}
	job.running = true
	job.lastRunAt = time.Now()
	job.mu.Unlock()

	utils.GoSafe(func() {
		err := job.run(runCtx)
		job.mu.Lock()
		job.running = false
		if err != nil {
			job.lastOutcome = err.Error()
		} else {
			job.lastOutcome = "ok"
		}
		job.mu.Unlock()
		if err != nil {
			s.log.Error("Triggered job failed", logger.StringField("job", jobID), logger.ErrorField(err))
		}
	})
	return nil
}

// RemoveJob unschedules a job. It stays triggerable manually.
func (s *schedulerService) RemoveJob(jobID string) error {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if s.cron != nil {
		s.cron.Remove(job.entryID)
	}
	job.mu.Lock()
	job.removed = true
	job.mu.Unlock()
	s.log.Info("Job unscheduled", logger.StringField("job", jobID))
	return nil
}

func (s *schedulerService) JobStatuses() []dto.JobStatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]dto.JobStatusResponse, 0, len(s.jobs))
	for _, job := range s.jobs {
		job.mu.Lock()
		status := dto.JobStatusResponse{
			ID:          job.id,
			Description: job.description,
			Schedule:    job.schedule,
			Scheduled:   !job.removed,
			Running:     job.running,
			LastRunAt:   job.lastRunAt,
			LastOutcome: job.lastOutcome,
		}
		entryID := job.entryID
		removed := job.removed
		job.mu.Unlock()

		if s.cron != nil && !removed {
			if entry := s.cron.Entry(entryID); entry.ID == entryID {
				status.NextRunAt = entry.Next
			}
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// hhmmToCron converts an "HH:MM" config value to the "M H" cron prefix,
// falling back when the value is absent or malformed.
func hhmmToCron(hhmm, fallback string) string {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return fallback
	}
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return fallback
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fallback
	}
	return fmt.Sprintf("%d %d", m, h)
}
