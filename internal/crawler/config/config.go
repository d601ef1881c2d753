package config

import (
	"astock-crawler/pkg/config"
)

// Crawler holds acquisition pipeline configuration.
type Crawler struct {
	// Sources is the data-source priority order, e.g. ["tonghuashun", "tushare"].
	Sources             []string `mapstructure:"sources"`
	TongHuaShunBaseURL  string   `mapstructure:"tonghuashun_base_url"`
	TushareAPIURL       string   `mapstructure:"tushare_api_url"`
	TushareToken        string   `mapstructure:"tushare_token"`
	RequestTimeout      string   `mapstructure:"request_timeout"`
	MaxRequestPerMinute int      `mapstructure:"max_request_per_minute"`
	// MaxDetailStocks caps how many per-stock detail pages one crawl cycle
	// fetches, to respect source load.
	MaxDetailStocks int    `mapstructure:"max_detail_stocks"`
	DetailDelay     string `mapstructure:"detail_delay"`
}

// Scheduler holds recurring-job configuration.
type Scheduler struct {
	Enabled              bool   `mapstructure:"enabled"`
	DailyUpdateTime      string `mapstructure:"daily_update_time"`      // HH:MM
	DragonTigerTime      string `mapstructure:"dragon_tiger_time"`      // HH:MM
	IncrementalMaxStocks int    `mapstructure:"incremental_max_stocks"` // bound per firing
	IncrementalDelay     string `mapstructure:"incremental_delay"`
	JobLockTTL           string `mapstructure:"job_lock_ttl"`
}

// Config holds the full configuration for the crawler service.
type Config struct {
	App       config.App      `mapstructure:"app"`
	Logger    config.Logger   `mapstructure:"logger"`
	Database  config.Database `mapstructure:"database"`
	Redis     config.Redis    `mapstructure:"redis"`
	API       config.API      `mapstructure:"api"`
	Telegram  config.Telegram `mapstructure:"telegram"`
	Crawler   Crawler         `mapstructure:"crawler"`
	Scheduler Scheduler       `mapstructure:"scheduler"`
}

// Load loads the crawler configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
