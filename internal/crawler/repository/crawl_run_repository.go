package repository

import (
	"context"
	"database/sql"
	"time"

	"astock-crawler/internal/entity"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CrawlRunRepository records job executions and their outcomes.
type CrawlRunRepository interface {
	Create(ctx context.Context, run *entity.CrawlRun) error
	Complete(ctx context.Context, id uint, status entity.CrawlRunStatus, summaryCount, detailCount int, message string, result datatypes.JSON) error
	Fail(ctx context.Context, id uint, errorMessage string) error
	FindRecent(ctx context.Context, jobName string, limit int) ([]entity.CrawlRun, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// NewCrawlRunRepository creates a new instance of CrawlRunRepository.
func NewCrawlRunRepository(db *gorm.DB) CrawlRunRepository {
	return &crawlRunRepository{db: db}
}

type crawlRunRepository struct {
	db *gorm.DB
}

func (r *crawlRunRepository) Create(ctx context.Context, run *entity.CrawlRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = entity.RunStatusRunning
	}
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *crawlRunRepository) Complete(ctx context.Context, id uint, status entity.CrawlRunStatus, summaryCount, detailCount int, message string, result datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&entity.CrawlRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"summary_count": summaryCount,
			"detail_count":  detailCount,
			"message":       message,
			"result":        result,
			"completed_at":  sql.NullTime{Time: time.Now(), Valid: true},
		}).Error
}

func (r *crawlRunRepository) Fail(ctx context.Context, id uint, errorMessage string) error {
	return r.db.WithContext(ctx).
		Model(&entity.CrawlRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        entity.RunStatusFailed,
			"error_message": sql.NullString{String: errorMessage, Valid: true},
			"completed_at":  sql.NullTime{Time: time.Now(), Valid: true},
		}).Error
}

func (r *crawlRunRepository) FindRecent(ctx context.Context, jobName string, limit int) ([]entity.CrawlRun, error) {
	var runs []entity.CrawlRun
	q := r.db.WithContext(ctx).Order("started_at DESC")
	if jobName != "" {
		q = q.Where("job_name = ?", jobName)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *crawlRunRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("started_at < ?", before).
		Delete(&entity.CrawlRun{})
	return res.RowsAffected, res.Error
}
