package entity

import (
	"time"

	"github.com/lib/pq"
)

// TradeType distinguishes buy-side and sell-side broker seats.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// DragonTigerSummary is one stock's appearance on the daily Dragon-Tiger
// board. Amount fields are in CNY after unit normalization; nil means the
// source published no value, which is distinct from zero.
type DragonTigerSummary struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	StockCode    string         `gorm:"type:varchar(6);not null;uniqueIndex:idx_dt_summary_code_date,priority:1" json:"stock_code"`
	StockName    string         `gorm:"type:varchar(32);not null" json:"stock_name"`
	TradeDate    string         `gorm:"type:varchar(8);not null;uniqueIndex:idx_dt_summary_code_date,priority:2;index:idx_dt_summary_date" json:"trade_date"`
	ClosePrice   *float64       `json:"close_price"`
	ChangeRate   *float64       `json:"change_rate"`
	Turnover     *float64       `json:"turnover"`
	NetBuyAmount *float64       `json:"net_buy_amount"`
	Reason       string         `gorm:"type:text" json:"reason"`
	Reasons      pq.StringArray `gorm:"type:text[]" json:"reasons"`
	DataSource   string         `gorm:"type:varchar(20)" json:"data_source"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for the DragonTigerSummary model.
func (DragonTigerSummary) TableName() string {
	return "dragon_tiger_summary"
}

// DragonTigerDetail is one broker seat's buy or sell disclosure for a stock
// on a trade date. Rank restarts per (stock, date, trade type).
type DragonTigerDetail struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StockCode  string    `gorm:"type:varchar(6);not null;uniqueIndex:idx_dt_detail_key,priority:1" json:"stock_code"`
	TradeDate  string    `gorm:"type:varchar(8);not null;uniqueIndex:idx_dt_detail_key,priority:2;index:idx_dt_detail_date" json:"trade_date"`
	TradeType  TradeType `gorm:"type:varchar(4);not null;uniqueIndex:idx_dt_detail_key,priority:3" json:"trade_type"`
	Rank       int       `gorm:"not null;uniqueIndex:idx_dt_detail_key,priority:4" json:"rank"`
	Department string    `gorm:"type:text" json:"department"`
	Amount     *float64  `json:"amount"`
	Ratio      *float64  `json:"ratio"`
	DataSource string    `gorm:"type:varchar(20)" json:"data_source"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for the DragonTigerDetail model.
func (DragonTigerDetail) TableName() string {
	return "dragon_tiger_detail"
}
