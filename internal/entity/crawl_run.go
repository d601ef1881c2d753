package entity

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

// CrawlRunStatus is the terminal state of one crawl cycle or job run.
type CrawlRunStatus string

const (
	RunStatusRunning CrawlRunStatus = "running"
	RunStatusSuccess CrawlRunStatus = "success"
	RunStatusPartial CrawlRunStatus = "partial"
	RunStatusFailed  CrawlRunStatus = "failed"
)

// CrawlRun records one execution of a scheduled or manually triggered job,
// so skipped-row counts and failures are queryable rather than log-only.
type CrawlRun struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	JobName      string         `gorm:"type:varchar(64);not null;index" json:"job_name"`
	Status       CrawlRunStatus `gorm:"type:varchar(16);not null" json:"status"`
	TradeDate    string         `gorm:"type:varchar(8)" json:"trade_date"`
	SummaryCount int            `json:"summary_count"`
	DetailCount  int            `json:"detail_count"`
	Message      string         `gorm:"type:text" json:"message"`
	Result       datatypes.JSON `json:"result"`
	StartedAt    time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt  sql.NullTime   `json:"completed_at"`
	ErrorMessage sql.NullString `json:"error_message"`
}

// TableName specifies the table name for the CrawlRun model.
func (CrawlRun) TableName() string {
	return "crawl_runs"
}
