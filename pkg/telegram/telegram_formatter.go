package telegram

import (
	"fmt"
	"strings"
	"time"
)

// CrawlReport carries the fields of a crawl cycle outcome that are worth
// pushing to the operations channel.
type CrawlReport struct {
	TradeDate    string
	Status       string
	SummaryCount int
	DetailCount  int
	SkippedRows  int
	Message      string
}

// FormatCrawlReportMessage formats a crawl cycle outcome into a Markdown
// message for Telegram.
func FormatCrawlReportMessage(report CrawlReport) string {
	var sb strings.Builder

	var icon string
	switch report.Status {
	case "done":
		icon = "✅"
	case "partial":
		icon = "⚠️"
	default:
		icon = "📛"
	}

	sb.WriteString(fmt.Sprintf("%s *Dragon-Tiger Crawl* `%s`\n", icon, report.TradeDate))
	sb.WriteString(fmt.Sprintf("📋 Status: %s\n", report.Status))
	sb.WriteString(fmt.Sprintf("📈 Summary rows: %d\n", report.SummaryCount))
	sb.WriteString(fmt.Sprintf("🏦 Detail rows: %d\n", report.DetailCount))
	if report.SkippedRows > 0 {
		sb.WriteString(fmt.Sprintf("🚫 Skipped rows: %d\n", report.SkippedRows))
	}
	if report.Message != "" {
		sb.WriteString(fmt.Sprintf("💬 %s\n", report.Message))
	}
	return sb.String()
}

// FormatErrorAlertMessage formats a background job failure alert.
func FormatErrorAlertMessage(at time.Time, jobName string, errMsg string) string {
	return fmt.Sprintf(`📛 [ERROR ALERT]
%s
🔧 %s
⚠️ %s
`, at.Format("2006-01-02 15:04:05"), jobName, errMsg)
}
