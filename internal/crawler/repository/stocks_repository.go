package repository

import (
	"context"
	"time"

	"astock-crawler/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StocksRepository maintains the listed-security catalogue used by the
// refresh jobs.
type StocksRepository interface {
	UpsertStocks(ctx context.Context, stocks []entity.Stock) error
	GetActiveStocks(ctx context.Context) ([]entity.Stock, error)
	GetStocksByStatus(ctx context.Context, status entity.CrawlStatus, limit int) ([]entity.Stock, error)
	UpdateCrawlStatus(ctx context.Context, code string, status entity.CrawlStatus, errorMessage string) error
	UpdateLatest(ctx context.Context, code string, price *float64, tradeDate string) error
	ResetStaleErrors(ctx context.Context, olderThan time.Duration) (int64, error)
	CountByStatus(ctx context.Context) (map[entity.CrawlStatus]int64, error)
}

// NewStocksRepository creates a new instance of StocksRepository.
func NewStocksRepository(db *gorm.DB) StocksRepository {
	return &stocksRepository{db: db}
}

type stocksRepository struct {
	db *gorm.DB
}

// UpsertStocks refreshes the catalogue from a source listing. Existing rows
// keep their crawl bookkeeping; only descriptive columns are overwritten.
func (r *stocksRepository) UpsertStocks(ctx context.Context, stocks []entity.Stock) error {
	if len(stocks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "exchange", "industry", "is_active", "updated_at",
		}),
	}).Create(&stocks).Error
}

func (r *stocksRepository) GetActiveStocks(ctx context.Context) ([]entity.Stock, error) {
	var stocks []entity.Stock
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("code ASC").
		Find(&stocks).Error
	if err != nil {
		return nil, err
	}
	return stocks, nil
}

func (r *stocksRepository) GetStocksByStatus(ctx context.Context, status entity.CrawlStatus, limit int) ([]entity.Stock, error) {
	var stocks []entity.Stock
	q := r.db.WithContext(ctx).
		Where("is_active = ? AND crawl_status = ?", true, status).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&stocks).Error; err != nil {
		return nil, err
	}
	return stocks, nil
}

func (r *stocksRepository) UpdateCrawlStatus(ctx context.Context, code string, status entity.CrawlStatus, errorMessage string) error {
	updates := map[string]interface{}{
		"crawl_status":  status,
		"error_message": errorMessage,
	}
	if status == entity.CrawlStatusCompleted {
		updates["last_crawl_date"] = time.Now().Format("20060102")
	}
	return r.db.WithContext(ctx).
		Model(&entity.Stock{}).
		Where("code = ?", code).
		Updates(updates).Error
}

func (r *stocksRepository) UpdateLatest(ctx context.Context, code string, price *float64, tradeDate string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Stock{}).
		Where("code = ?", code).
		Updates(map[string]interface{}{
			"latest_price": price,
			"latest_date":  tradeDate,
		}).Error
}

// ResetStaleErrors flips errored stocks back to pending once their failure
// is older than the given window, so transient outages retry eventually.
func (r *stocksRepository) ResetStaleErrors(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := r.db.WithContext(ctx).
		Model(&entity.Stock{}).
		Where("crawl_status = ? AND updated_at < ?", entity.CrawlStatusError, cutoff).
		Updates(map[string]interface{}{
			"crawl_status":  entity.CrawlStatusPending,
			"error_message": "",
		})
	return res.RowsAffected, res.Error
}

func (r *stocksRepository) CountByStatus(ctx context.Context) (map[entity.CrawlStatus]int64, error) {
	type row struct {
		CrawlStatus entity.CrawlStatus
		Total       int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&entity.Stock{}).
		Select("crawl_status, COUNT(*) AS total").
		Group("crawl_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[entity.CrawlStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.CrawlStatus] = r.Total
	}
	return counts, nil
}
