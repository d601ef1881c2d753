package repository

import (
	"context"
	"regexp"

	"astock-crawler/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var stockCodePattern = regexp.MustCompile(`^\d{6}$`)

// UpsertResult reports how a batch write went: records written (inserted or
// updated) and records dropped before the transaction for failing validation.
type UpsertResult struct {
	Written int
	Skipped int
}

// DragonTigerRepository persists board summaries and broker-seat details.
// Upserts key on the natural identity of each record, so re-crawling a date
// converges instead of duplicating.
type DragonTigerRepository interface {
	UpsertSummaries(ctx context.Context, records []entity.DragonTigerSummary) (*UpsertResult, error)
	UpsertDetails(ctx context.Context, records []entity.DragonTigerDetail) (*UpsertResult, error)
	FindSummariesByDate(ctx context.Context, tradeDate string) ([]entity.DragonTigerSummary, error)
	FindSummariesByDateRange(ctx context.Context, startDate, endDate string) ([]entity.DragonTigerSummary, error)
	FindDetailsByStock(ctx context.Context, stockCode, tradeDate string) ([]entity.DragonTigerDetail, error)
	CountByReason(ctx context.Context, startDate, endDate string) (map[string]int64, error)
	LatestSummaryDate(ctx context.Context) (string, error)
	DeleteOlderThan(ctx context.Context, tradeDate string) (int64, error)
}

// NewDragonTigerRepository creates a new instance of DragonTigerRepository.
func NewDragonTigerRepository(db *gorm.DB) DragonTigerRepository {
	return &dragonTigerRepository{db: db}
}

type dragonTigerRepository struct {
	db *gorm.DB
}

func validSummary(r *entity.DragonTigerSummary) bool {
	return stockCodePattern.MatchString(r.StockCode) && len(r.TradeDate) == 8
}

// mergeSummary folds a duplicate listing of the same (stock, date) into dst:
// reasons union, numeric fields filled from whichever row has them.
func mergeSummary(dst, src *entity.DragonTigerSummary) {
	for _, reason := range src.Reasons {
		if reason != "" && !containsReason(dst.Reasons, reason) {
			dst.Reasons = append(dst.Reasons, reason)
		}
	}
	if dst.Reason == "" {
		dst.Reason = src.Reason
	}
	if dst.ClosePrice == nil {
		dst.ClosePrice = src.ClosePrice
	}
	if dst.ChangeRate == nil {
		dst.ChangeRate = src.ChangeRate
	}
	if dst.Turnover == nil {
		dst.Turnover = src.Turnover
	}
	if dst.NetBuyAmount == nil {
		dst.NetBuyAmount = src.NetBuyAmount
	}
}

func containsReason(reasons []string, reason string) bool {
	for _, r := range reasons {
		if r == reason {
			return true
		}
	}
	return false
}

func validDetail(r *entity.DragonTigerDetail) bool {
	if !stockCodePattern.MatchString(r.StockCode) || len(r.TradeDate) != 8 {
		return false
	}
	return (r.TradeType == entity.TradeTypeBuy || r.TradeType == entity.TradeTypeSell) && r.Rank > 0
}

// UpsertSummaries writes a batch of board summaries in one transaction.
// Records failing identity validation are dropped up front and counted;
// any database error rolls the whole batch back. A stock appearing more
// than once on a date (one listing per reason) collapses into a single row
// with the reasons unioned, since the conflict key cannot absorb two rows
// of the same batch.
func (r *dragonTigerRepository) UpsertSummaries(ctx context.Context, records []entity.DragonTigerSummary) (*UpsertResult, error) {
	result := &UpsertResult{}
	index := make(map[string]int, len(records))
	valid := make([]entity.DragonTigerSummary, 0, len(records))
	for i := range records {
		if !validSummary(&records[i]) {
			result.Skipped++
			continue
		}
		key := records[i].StockCode + records[i].TradeDate
		if at, ok := index[key]; ok {
			mergeSummary(&valid[at], &records[i])
			continue
		}
		index[key] = len(valid)
		valid = append(valid, records[i])
	}
	if len(valid) == 0 {
		return result, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stock_code"}, {Name: "trade_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"stock_name", "close_price", "change_rate", "turnover",
				"net_buy_amount", "reason", "reasons", "data_source", "updated_at",
			}),
		}).Create(&valid).Error
	})
	if err != nil {
		return nil, err
	}
	result.Written = len(valid)
	return result, nil
}

// UpsertDetails writes a batch of broker-seat records in one transaction,
// keyed on (stock, date, side, rank).
func (r *dragonTigerRepository) UpsertDetails(ctx context.Context, records []entity.DragonTigerDetail) (*UpsertResult, error) {
	result := &UpsertResult{}
	valid := make([]entity.DragonTigerDetail, 0, len(records))
	for i := range records {
		if !validDetail(&records[i]) {
			result.Skipped++
			continue
		}
		valid = append(valid, records[i])
	}
	if len(valid) == 0 {
		return result, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "stock_code"}, {Name: "trade_date"},
				{Name: "trade_type"}, {Name: "rank"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"department", "amount", "ratio", "data_source", "updated_at",
			}),
		}).Create(&valid).Error
	})
	if err != nil {
		return nil, err
	}
	result.Written = len(valid)
	return result, nil
}

func (r *dragonTigerRepository) FindSummariesByDate(ctx context.Context, tradeDate string) ([]entity.DragonTigerSummary, error) {
	var summaries []entity.DragonTigerSummary
	err := r.db.WithContext(ctx).
		Where("trade_date = ?", tradeDate).
		Order("stock_code ASC").
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *dragonTigerRepository) FindSummariesByDateRange(ctx context.Context, startDate, endDate string) ([]entity.DragonTigerSummary, error) {
	var summaries []entity.DragonTigerSummary
	err := r.db.WithContext(ctx).
		Where("trade_date BETWEEN ? AND ?", startDate, endDate).
		Order("trade_date ASC, stock_code ASC").
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *dragonTigerRepository) FindDetailsByStock(ctx context.Context, stockCode, tradeDate string) ([]entity.DragonTigerDetail, error) {
	var details []entity.DragonTigerDetail
	err := r.db.WithContext(ctx).
		Where("stock_code = ? AND trade_date = ?", stockCode, tradeDate).
		Order("trade_type ASC, rank ASC").
		Find(&details).Error
	if err != nil {
		return nil, err
	}
	return details, nil
}

// CountByReason aggregates listing reasons across a date range.
func (r *dragonTigerRepository) CountByReason(ctx context.Context, startDate, endDate string) (map[string]int64, error) {
	type row struct {
		Reason string
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&entity.DragonTigerSummary{}).
		Select("reason, COUNT(*) AS total").
		Where("trade_date BETWEEN ? AND ?", startDate, endDate).
		Group("reason").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Reason] = r.Total
	}
	return counts, nil
}

// LatestSummaryDate returns the newest stored board date, or empty when the
// table is empty. The health probe uses it to flag staleness.
func (r *dragonTigerRepository) LatestSummaryDate(ctx context.Context) (string, error) {
	var latest string
	err := r.db.WithContext(ctx).
		Model(&entity.DragonTigerSummary{}).
		Select("COALESCE(MAX(trade_date), '')").
		Scan(&latest).Error
	if err != nil {
		return "", err
	}
	return latest, nil
}

// DeleteOlderThan removes summaries and details before the given date and
// returns the number of rows removed. Used by the cleanup job.
func (r *dragonTigerRepository) DeleteOlderThan(ctx context.Context, tradeDate string) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("trade_date < ?", tradeDate).Delete(&entity.DragonTigerDetail{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected

		res = tx.Where("trade_date < ?", tradeDate).Delete(&entity.DragonTigerSummary{})
		if res.Error != nil {
			return res.Error
		}
		removed += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
