package repository

import (
	"context"

	"astock-crawler/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockDailyRepository persists daily bars.
type StockDailyRepository interface {
	UpsertBars(ctx context.Context, bars []entity.StockDaily) error
	FindByStock(ctx context.Context, stockCode, startDate, endDate string) ([]entity.StockDaily, error)
	LatestTradeDate(ctx context.Context, stockCode string) (string, error)
	DeleteOlderThan(ctx context.Context, tradeDate string) (int64, error)
}

// NewStockDailyRepository creates a new instance of StockDailyRepository.
func NewStockDailyRepository(db *gorm.DB) StockDailyRepository {
	return &stockDailyRepository{db: db}
}

type stockDailyRepository struct {
	db *gorm.DB
}

func (r *stockDailyRepository) UpsertBars(ctx context.Context, bars []entity.StockDaily) error {
	if len(bars) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stock_code"}, {Name: "trade_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open", "high", "low", "close", "volume", "amount", "pct_change", "updated_at",
		}),
	}).CreateInBatches(&bars, 500).Error
}

func (r *stockDailyRepository) FindByStock(ctx context.Context, stockCode, startDate, endDate string) ([]entity.StockDaily, error) {
	var bars []entity.StockDaily
	err := r.db.WithContext(ctx).
		Where("stock_code = ? AND trade_date BETWEEN ? AND ?", stockCode, startDate, endDate).
		Order("trade_date ASC").
		Find(&bars).Error
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// LatestTradeDate returns the newest stored bar date for a stock, or empty
// when none exist yet.
func (r *stockDailyRepository) LatestTradeDate(ctx context.Context, stockCode string) (string, error) {
	var latest string
	err := r.db.WithContext(ctx).
		Model(&entity.StockDaily{}).
		Select("COALESCE(MAX(trade_date), '')").
		Where("stock_code = ?", stockCode).
		Scan(&latest).Error
	if err != nil {
		return "", err
	}
	return latest, nil
}

func (r *stockDailyRepository) DeleteOlderThan(ctx context.Context, tradeDate string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("trade_date < ?", tradeDate).
		Delete(&entity.StockDaily{})
	return res.RowsAffected, res.Error
}
