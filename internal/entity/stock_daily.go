package entity

import (
	"time"
)

// StockDaily is one stock's daily bar.
type StockDaily struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StockCode string    `gorm:"type:varchar(6);not null;uniqueIndex:idx_stock_daily_code_date,priority:1" json:"stock_code"`
	TradeDate string    `gorm:"type:varchar(8);not null;uniqueIndex:idx_stock_daily_code_date,priority:2" json:"trade_date"`
	Open      *float64  `json:"open"`
	High      *float64  `json:"high"`
	Low       *float64  `json:"low"`
	Close     *float64  `json:"close"`
	Volume    *float64  `json:"volume"`
	Amount    *float64  `json:"amount"`
	PctChange *float64  `json:"pct_change"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for the StockDaily model.
func (StockDaily) TableName() string {
	return "stock_daily"
}
