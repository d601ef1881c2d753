package dto

import "time"

// CrawlOutcome is the terminal state of one crawl cycle.
type CrawlOutcome string

const (
	CrawlDone    CrawlOutcome = "done"
	CrawlPartial CrawlOutcome = "partial"
	CrawlFailed  CrawlOutcome = "failed"
)

// CrawlResult summarizes one Dragon-Tiger crawl cycle for API responses and
// the result stream. A cycle on a day with no board entries is still "done"
// with zero counts.
type CrawlResult struct {
	Outcome      CrawlOutcome `json:"outcome"`
	TradeDate    string       `json:"trade_date"`
	DataSource   string       `json:"data_source"`
	SummaryCount int          `json:"summary_count"`
	DetailCount  int          `json:"detail_count"`
	SkippedRows  int          `json:"skipped_rows"`
	Message      string       `json:"message,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	Duration     string       `json:"duration"`
}

// TriggerCrawlRequest is the body for a manual crawl trigger. Date is
// ISO (YYYY-MM-DD); empty means today.
type TriggerCrawlRequest struct {
	Date string `json:"date"`
}

// JobStatusResponse describes one scheduled job.
type JobStatusResponse struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Schedule    string    `json:"schedule"`
	Scheduled   bool      `json:"scheduled"`
	Running     bool      `json:"running"`
	LastRunAt   time.Time `json:"last_run_at"`
	LastOutcome string    `json:"last_outcome"`
	NextRunAt   time.Time `json:"next_run_at"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Uptime   string            `json:"uptime"`
	Checked  time.Time         `json:"checked"`
	Revision string            `json:"revision,omitempty"`
}
