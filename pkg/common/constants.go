package common

const (
	RedisStreamCrawlResult = "crawler.dragon_tiger.result"

	RedisKeyJobLockPrefix = "crawler:job:lock:"
)

// Scheduler job identifiers.
const (
	JobStockBasicRefresh  = "stock_basic_refresh"
	JobStockDailyRefresh  = "stock_daily_refresh"
	JobIncrementalRefresh = "incremental_refresh"
	JobDatabaseCleanup    = "database_cleanup"
	JobDragonTigerCrawl   = "dragon_tiger_crawl"
	JobHealthCheck        = "health_check"
)

// Data source names recorded on persisted rows.
const (
	SourceTongHuaShun = "tonghuashun"
	SourceTushare     = "tushare"
)
