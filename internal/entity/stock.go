package entity

import (
	"time"
)

// CrawlStatus tracks per-stock refresh progress.
type CrawlStatus string

const (
	CrawlStatusPending   CrawlStatus = "pending"
	CrawlStatusCrawling  CrawlStatus = "crawling"
	CrawlStatusCompleted CrawlStatus = "completed"
	CrawlStatusError     CrawlStatus = "error"
)

// Stock is a listed A-share security tracked by the refresh jobs.
type Stock struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	Code          string      `gorm:"type:varchar(6);uniqueIndex;not null" json:"code"`
	Name          string      `gorm:"type:varchar(32);not null" json:"name"`
	Exchange      string      `gorm:"type:varchar(8)" json:"exchange"`
	Industry      string      `gorm:"type:varchar(32)" json:"industry"`
	IsActive      bool        `gorm:"default:true" json:"is_active"`
	LatestPrice   *float64    `json:"latest_price"`
	LatestDate    string      `gorm:"type:varchar(8)" json:"latest_date"`
	CrawlStatus   CrawlStatus `gorm:"type:varchar(16);default:pending" json:"crawl_status"`
	ErrorMessage  string      `gorm:"type:text" json:"error_message"`
	LastCrawlDate string      `gorm:"type:varchar(8)" json:"last_crawl_date"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for the Stock model.
func (Stock) TableName() string {
	return "stocks"
}
